package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dendrite/internal/config"
	"github.com/roach88/dendrite/internal/graph"
	"github.com/roach88/dendrite/internal/store"
)

// timeNow is indirected for tests.
var timeNow = time.Now

// NewBootstrapCommand creates the bootstrap command: sync the configured
// project registry into the store. Safe to re-run; never deletes.
func NewBootstrapCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Sync the project registry into the graph store",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadSettings(opts.ConfigPath)
			if err != nil {
				return err
			}
			registry, err := config.LoadRegistry(opts.RegistryPath)
			if err != nil {
				return err
			}

			st, err := store.Open(settings.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := syncRegistry(cmd.Context(), st, registry); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "bootstrapped %d projects into %s\n",
				len(registry.ProjectIDs()), settings.DBPath)
			return nil
		},
	}
}

func projectFromRegistry(p config.RegistryProject) graph.Project {
	return graph.Project{
		ProjectID:    p.ProjectID,
		Name:         p.Name,
		OwnerUserIDs: p.OwnerUserIDs,
	}
}
