// Package cli wires the dendrite commands: serve, bootstrap, check-config.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath   string
	RegistryPath string
}

// NewRootCommand creates the root command for the dendrite CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dendrite",
		Short: "dendrite - chat-driven knowledge graph",
		Long:  "Ingests structured change proposals from Slack and commits them through an append-only graph ledger.",
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "dendrite.yaml", "settings file (optional)")
	cmd.PersistentFlags().StringVar(&opts.RegistryPath, "registry", "config/projects.cue", "project registry file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewBootstrapCommand(opts))
	cmd.AddCommand(NewCheckConfigCommand(opts))

	return cmd
}
