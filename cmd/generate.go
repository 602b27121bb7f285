package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/splx7/gridflow-sub000/api/schemas"
	"github.com/splx7/gridflow-sub000/internal/config"
	"github.com/splx7/gridflow-sub000/internal/observability"
)

func newGenerateCmd() *cobra.Command {
	var voltageLevels []float64
	var preferCables bool
	var gridCode string

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Replace the project topology with an auto-generated network",
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

			project, err := components.Orchestrator.AutoGenerate(ctx, schemas.AutoGenerateOptions{
				VoltageLevelsKV: voltageLevels,
				PreferCables:    preferCables,
				GridCode:        gridCode,
			})
			if err != nil {
				return err
			}

			snap := components.Store.Snapshot()
			logger.Info("Generation complete",
				zap.String("network_mode", string(project.NetworkMode)),
				zap.Int("buses", len(snap.Buses)),
				zap.Int("branches", len(snap.Branches)),
				zap.Int("recommendations", len(components.Recommend.All())))
			return nil
		},
	}

	generateCmd.Flags().Float64SliceVar(&voltageLevels, "voltage-levels", nil, "voltage levels in kV for the generated network")
	generateCmd.Flags().BoolVar(&preferCables, "prefer-cables", false, "prefer cables over overhead lines")
	generateCmd.Flags().StringVar(&gridCode, "grid-code", "", "grid code to generate against")
	return generateCmd
}
