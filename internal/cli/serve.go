package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/dendrite/internal/config"
	"github.com/roach88/dendrite/internal/httpapi"
	"github.com/roach88/dendrite/internal/ingest"
	"github.com/roach88/dendrite/internal/ledger"
	"github.com/roach88/dendrite/internal/store"
)

// NewServeCommand creates the serve command: open the store, sync the
// registry projection, and run the HTTP surface.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dendrite HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadSettings(opts.ConfigPath)
			if err != nil {
				return err
			}
			if err := settings.RequireSlackSecrets(); err != nil {
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

			// Idempotent registry sync so the store's project projection
			// matches configuration before the first commit arrives.
			if err := syncRegistry(cmd.Context(), st, registry); err != nil {
				return fmt.Errorf("registry sync: %w", err)
			}

			server := httpapi.NewServer(settings, registry, st, buildPipeline(settings, registry, st))
			slog.Info("starting dendrite",
				"environment", settings.Environment,
				"db", settings.DBPath,
				"channel", registry.Slack.ChannelID,
				"projects", len(registry.ProjectIDs()),
			)
			return server.Run()
		},
	}
}

// buildPipeline assembles the commit pipeline over one store.
func buildPipeline(settings config.Settings, registry *config.Registry, st *store.Store) *ingest.Pipeline {
	resolver := ingest.NewPermalinkResolver(settings.SlackBotToken, settings.PermalinkTimeout)
	gate := ingest.NewGate(st, registry.Slack.ChannelID, resolver)
	return ingest.NewPipeline(
		gate,
		registry,
		ledger.NewSequencer(st),
		ledger.NewDetector(st),
		ledger.NewNoOpFilter(st),
	)
}

// syncRegistry upserts every configured project into the store. Projects
// removed from the registry are left untouched; this path only adds and
// refreshes.
func syncRegistry(ctx context.Context, st *store.Store, registry *config.Registry) error {
	for _, p := range registry.Projects() {
		err := st.UpsertProject(ctx, projectFromRegistry(p), timeNow())
		if err != nil {
			return err
		}
	}
	return nil
}
