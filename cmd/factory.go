package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/splx7/gridflow-sub000/api/schemas"
	"github.com/splx7/gridflow-sub000/internal/archive"
	"github.com/splx7/gridflow-sub000/internal/config"
	"github.com/splx7/gridflow-sub000/internal/gridapi"
	"github.com/splx7/gridflow-sub000/internal/network"
	"github.com/splx7/gridflow-sub000/internal/recommend"
	"github.com/splx7/gridflow-sub000/internal/recompute"
	"github.com/splx7/gridflow-sub000/internal/topology"
	"github.com/splx7/gridflow-sub000/internal/whatif"
	"github.com/splx7/gridflow-sub000/internal/workflow"
)

// Components holds all the initialized services for a watch session. The
// struct centralizes lifecycle management of the wired dependencies.
type Components struct {
	API           *gridapi.Client
	Store         *topology.Store
	Scheduler     *recompute.Scheduler
	WhatIf        *whatif.Evaluator
	Recommend     *recommend.Workflow
	Orchestrator  *workflow.Orchestrator
	ResultArchive schemas.ResultArchive
	DBPool        *pgxpool.Pool
}

// buildComponents wires the full dependency graph from configuration.
func buildComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	clientCfg := network.NewDefaultClientConfig()
	clientCfg.RequestTimeout = cfg.API.RequestTimeout
	clientCfg.IgnoreTLSErrors = cfg.API.IgnoreTLSErrors
	clientCfg.Logger = logger
	httpClient := network.NewClient(clientCfg)

	api := gridapi.New(cfg.API.BaseURL, cfg.API.APIKey, httpClient, logger)
	store := topology.New(cfg.API.ProjectID, api, logger)

	c := &Components{
		API:   api,
		Store: store,
	}

	// The archive is optional; without a database URL results simply are not
	// kept beyond the in-memory snapshot.
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to archive database: %w", err)
		}
		archiveStore, err := archive.New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize result archive: %w", err)
		}
		c.DBPool = pool
		c.ResultArchive = archiveStore
	}

	// Recommendation workflow and scheduler reference each other: the
	// scheduler feeds results in, accepts force recomputes back out.
	c.Recommend = recommend.New(store, nil, logger)
	c.Scheduler = recompute.New(store, api, logger, recompute.Options{
		QuietPeriod:   cfg.Recompute.QuietPeriod,
		SolverTimeout: cfg.Recompute.SolverTimeout,
		Archive:       c.ResultArchive,
		Consumers:     []recompute.ResultConsumer{c.Recommend},
	})
	c.Recommend.SetRecomputer(c.Scheduler)

	c.WhatIf = whatif.New(cfg.API.ProjectID, api, logger, whatif.Options{
		EditDebounce: cfg.WhatIf.EditDebounce,
		EvalTimeout:  cfg.WhatIf.EvalTimeout,
	})
	// An applied recommendation arms the evaluator with a fresh baseline.
	c.Recommend.SetBaselineArmer(c.WhatIf)
	c.Orchestrator = workflow.New(store, api, c.Recommend, logger)

	return c, nil
}

// Shutdown releases held resources. The scheduler goroutine is owned by the
// caller's context; by the time this runs it has already drained.
func (c *Components) Shutdown() {
	if c.WhatIf != nil {
		c.WhatIf.Stop()
		c.WhatIf.Wait()
	}
	if c.DBPool != nil {
		c.DBPool.Close()
	}
}
