package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/splx7/gridflow-sub000/internal/config"
	"github.com/splx7/gridflow-sub000/internal/observability"
)

func newWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Load the project topology and keep power-flow results in sync with edits",
		Long: `Loads the active project's network graph from the platform, then watches for
structural changes and schedules debounced power-flow recomputations until
interrupted. Accepted results are archived when a database is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := config.Get()

			components, err := buildComponents(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to build components: %w", err)
			}
			defer components.Shutdown()

			if err := components.Store.Load(ctx); err != nil {
				return fmt.Errorf("failed to load topology: %w", err)
			}
			logger.Info("Watching topology",
				zap.String("signature", components.Store.StructureSignature()),
				zap.Int("buses", components.Store.BusCount()))

			// If a recommendation was applied in an earlier session the
			// baseline already exists server side; arm eagerly so what-if
			// previews work from the start. Best effort, like the accept path.
			components.WhatIf.ArmFromProject(ctx)

			// The evaluator follows component moves in its own loop while the
			// scheduler blocks here until the root context is canceled.
			go components.WhatIf.Run(ctx, components.Store)
			components.Scheduler.Run(ctx)
			return nil
		},
	}
	return watchCmd
}
