package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/splx7/gridflow-sub000/api/schemas"
	"github.com/splx7/gridflow-sub000/internal/config"
	"github.com/splx7/gridflow-sub000/internal/layout"
	"github.com/splx7/gridflow-sub000/internal/observability"
)

func newLayoutCmd() *cobra.Command {
	var apply bool

	layoutCmd := &cobra.Command{
		Use:   "layout",
		Short: "Compute diagram positions for the project's buses",
		Long: `Resolves a canvas position for every bus using the configured geometry.
Buses with a persisted position keep it; the rest are placed by voltage layer.
With --apply, computed positions are persisted for buses that had none.`,
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

			snapshot := components.Store.Snapshot()
			geo := layout.GeometryFrom(cfg.Layout)
			positions := layout.Resolve(snapshot.Buses, snapshot.Branches, geo)

			if apply {
				persisted := 0
				for _, bus := range snapshot.Buses {
					if bus.Position != nil {
						continue
					}
					pos := positions[bus.ID]
					if _, err := components.Store.SetBusPosition(ctx, bus.ID, &schemas.Position{X: pos.X, Y: pos.Y}); err != nil {
						return fmt.Errorf("failed to persist position for bus %s: %w", bus.ID, err)
					}
					persisted++
				}
				logger.Info("Layout applied",
					zap.Int("buses", len(snapshot.Buses)),
					zap.Int("persisted", persisted),
					zap.Float64("canvas_width", geo.CanvasWidth))
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(positions)
		},
	}
	layoutCmd.Flags().BoolVar(&apply, "apply", false, "persist computed positions for buses without one")
	return layoutCmd
}
