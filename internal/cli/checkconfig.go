package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dendrite/internal/config"
)

// NewCheckConfigCommand creates the check-config command: validate settings
// and the registry file, then print a summary. Secrets are reported but not
// required, so this works offline.
func NewCheckConfigCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate settings and the project registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadSettings(opts.ConfigPath)
			if err != nil {
				return err
			}
			registry, err := config.LoadRegistry(opts.RegistryPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "app:          %s (%s)\n", settings.AppName, settings.Environment)
			fmt.Fprintf(out, "db:           %s\n", settings.DBPath)
			fmt.Fprintf(out, "listen:       %s\n", settings.ListenAddr)
			fmt.Fprintf(out, "channel:      %s (%s)\n", registry.Slack.ChannelName, registry.Slack.ChannelID)
			fmt.Fprintf(out, "projects:     %s\n", strings.Join(registry.ProjectIDs(), ", "))

			if err := settings.RequireSlackSecrets(); err != nil {
				fmt.Fprintf(out, "slack:        NOT CONFIGURED (%v)\n", err)
			} else {
				fmt.Fprintf(out, "slack:        configured\n")
			}
			return nil
		},
	}
}
