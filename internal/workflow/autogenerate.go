// Package workflow glues the bulk operations together: collaborator call,
// wholesale topology replacement, and the follow-up re-fetches the bulk call
// implies.
package workflow

import (
	"context"
	"fmt"

	"github.com/splx7/gridflow-sub000/api/schemas"
	"github.com/splx7/gridflow-sub000/internal/recommend"
	"github.com/splx7/gridflow-sub000/internal/topology"
	"go.uber.org/zap"
)

// Orchestrator runs the multi-step workflows that touch more than one
// component at a time.
type Orchestrator struct {
	store *topology.Store
	api   schemas.GridAPI
	recs  *recommend.Workflow
	log   *zap.Logger
}

// New wires an orchestrator. The recommendation workflow may be nil when the
// caller does not render recommendations.
func New(store *topology.Store, api schemas.GridAPI, recs *recommend.Workflow, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store: store,
		api:   api,
		recs:  recs,
		log:   logger.Named("workflow"),
	}
}

// AutoGenerate asks the synthesis collaborator for a complete topology and
// replaces the local graph with it. The parent project is re-fetched because
// its network mode flips to multi-bus, and the component list is re-fetched
// because components may have been auto-assigned onto buses.
func (o *Orchestrator) AutoGenerate(ctx context.Context, opts schemas.AutoGenerateOptions) (schemas.Project, error) {
	projectID := o.store.ProjectID()

	generated, err := o.api.AutoGenerateNetwork(ctx, projectID, opts)
	if err != nil {
		return schemas.Project{}, fmt.Errorf("auto-generate network: %w", err)
	}

	if err := o.store.ReplaceAll(generated.Buses, generated.Branches, generated.LoadAllocations); err != nil {
		return schemas.Project{}, fmt.Errorf("apply generated topology: %w", err)
	}

	project, err := o.api.GetProject(ctx, projectID)
	if err != nil {
		return schemas.Project{}, fmt.Errorf("refetch project: %w", err)
	}

	components, err := o.api.ListComponents(ctx, projectID)
	if err != nil {
		return schemas.Project{}, fmt.Errorf("refetch components: %w", err)
	}
	o.store.SetComponents(components)

	if o.recs != nil {
		o.recs.SetRecommendations(generated.Recommendations)
	}

	o.log.Info("Network auto-generated",
		zap.Int("buses", len(generated.Buses)),
		zap.Int("branches", len(generated.Branches)),
		zap.String("network_mode", string(project.NetworkMode)))
	return project, nil
}
