package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/splx7/gridflow-sub000/internal/config"
	"github.com/splx7/gridflow-sub000/internal/observability"
)

func newContingencyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contingency",
		Short: "Run an N-1 contingency analysis on the current topology",
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
			if err := components.Store.ValidateForPowerFlow(); err != nil {
				return fmt.Errorf("topology is not solvable: %w", err)
			}

			report, err := components.API.RunContingencyAnalysis(ctx, cfg.API.ProjectID)
			if err != nil {
				return fmt.Errorf("contingency analysis failed: %w", err)
			}

			failed := 0
			for _, outcome := range report.Outcomes {
				if !outcome.Converged || len(outcome.Violations) > 0 {
					failed++
				}
			}
			logger.Info("Contingency analysis complete",
				zap.Int("outcomes", len(report.Outcomes)),
				zap.Int("problematic", failed))

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(report)
		},
	}
}

func newGridCodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grid-codes",
		Short: "List the grid codes available on the platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Get()

			components, err := buildComponents(ctx, cfg, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to build components: %w", err)
			}
			defer components.Shutdown()

			codes, err := components.API.ListGridCodes(ctx)
			if err != nil {
				return fmt.Errorf("failed to list grid codes: %w", err)
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(codes)
		},
	}
}
