package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/splx7/gridflow-sub000/internal/archive"
	"github.com/splx7/gridflow-sub000/internal/config"
	"github.com/splx7/gridflow-sub000/internal/observability"
	"github.com/splx7/gridflow-sub000/internal/resultdiff"
)

// openArchive connects to the configured result archive. The returned closer
// releases the pool.
func openArchive(ctx context.Context) (*archive.Store, func(), error) {
	cfg := config.Get()
	if cfg.Postgres.URL == "" {
		return nil, nil, fmt.Errorf("postgres.url must be configured to query archived runs")
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store, err := archive.New(ctx, pool, observability.GetLogger())
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize result archive: %w", err)
	}
	return store, pool.Close, nil
}

func newRunsCmd() *cobra.Command {
	var limit int
	var runID string

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived power-flow runs for the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closePool, err := openArchive(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")

			if runID != "" {
				result, err := store.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				return encoder.Encode(result)
			}

			runs, err := store.ListRuns(ctx, config.Get().API.ProjectID, limit)
			if err != nil {
				return err
			}
			return encoder.Encode(runs)
		},
	}

	runsCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	runsCmd.Flags().StringVar(&runID, "run-id", "", "print the full payload of one archived run")

	runsCmd.AddCommand(newRunsDiffCmd())
	return runsCmd
}

func newRunsDiffCmd() *cobra.Command {
	var voltageTolerance float64
	var loadingTolerance float64

	diffCmd := &cobra.Command{
		Use:   "diff <before-run-id> <after-run-id>",
		Short: "Compare two archived runs and report what changed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closePool, err := openArchive(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			before, err := store.GetRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("load run %s: %w", args[0], err)
			}
			after, err := store.GetRun(ctx, args[1])
			if err != nil {
				return fmt.Errorf("load run %s: %w", args[1], err)
			}

			opts := resultdiff.DefaultOptions()
			if voltageTolerance > 0 {
				opts.VoltageTolerancePU = voltageTolerance
			}
			if loadingTolerance > 0 {
				opts.LoadingTolerancePct = loadingTolerance
			}

			comparison := resultdiff.CompareWithOptions(before, after, opts)
			fmt.Fprintln(os.Stderr, comparison.Summary())

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(comparison)
		},
	}

	diffCmd.Flags().Float64Var(&voltageTolerance, "voltage-tolerance", 0, "minimum per-unit voltage shift to report")
	diffCmd.Flags().Float64Var(&loadingTolerance, "loading-tolerance", 0, "minimum branch loading shift in percent to report")
	return diffCmd
}
