package schemas

import "context"

// -- Collaborator Interfaces --
// The topology subsystem never talks to the outside world directly; it goes
// through these contracts so components stay testable in isolation.

// TopologyAPI is the remote persistence collaborator for the network graph.
// Every local mutation is delegated here first; local state only changes
// after the collaborator accepted the write.
type TopologyAPI interface {
	ListBuses(ctx context.Context, projectID string) ([]Bus, error)
	CreateBus(ctx context.Context, bus Bus) (Bus, error)
	UpdateBus(ctx context.Context, bus Bus) (Bus, error)
	DeleteBus(ctx context.Context, projectID, busID string) error

	ListBranches(ctx context.Context, projectID string) ([]Branch, error)
	CreateBranch(ctx context.Context, branch Branch) (Branch, error)
	UpdateBranch(ctx context.Context, branch Branch) (Branch, error)
	DeleteBranch(ctx context.Context, projectID, branchID string) error

	ListLoadAllocations(ctx context.Context, projectID string) ([]LoadAllocation, error)
	CreateLoadAllocation(ctx context.Context, alloc LoadAllocation) (LoadAllocation, error)
	DeleteLoadAllocation(ctx context.Context, projectID, allocID string) error

	ListComponents(ctx context.Context, projectID string) ([]Component, error)
	UpdateComponent(ctx context.Context, component Component) (Component, error)

	GetProject(ctx context.Context, projectID string) (Project, error)
}

// Solver is the black-box numeric service. It may return a result with
// Converged == false rather than an error; both outcomes replace the stored
// result wholesale.
type Solver interface {
	RunPowerFlow(ctx context.Context, projectID string) (*PowerFlowResult, error)
	RunContingencyAnalysis(ctx context.Context, projectID string) (*ContingencyReport, error)
	ListGridCodes(ctx context.Context) ([]GridCode, error)
}

// HealthEvaluator is the stateless hypothetical-evaluation collaborator used
// by the what-if path. Nothing it sees is persisted. FetchHealthBaseline
// returns the project's load/solar summary once a recommendation has been
// applied server side; before that it may return an error, which callers
// treat as "not armed yet" rather than a failure.
type HealthEvaluator interface {
	EvaluateSystemHealth(ctx context.Context, projectID string, req HealthRequest) (*SystemHealth, error)
	FetchHealthBaseline(ctx context.Context, projectID string) (*HealthBaseline, error)
}

// NetworkGenerator is the bulk topology synthesis collaborator.
type NetworkGenerator interface {
	AutoGenerateNetwork(ctx context.Context, projectID string, opts AutoGenerateOptions) (*GeneratedNetwork, error)
}

// GridAPI is the full remote surface a wired deployment talks to.
type GridAPI interface {
	TopologyAPI
	Solver
	HealthEvaluator
	NetworkGenerator
}

// ResultArchive persists accepted power-flow snapshots for later reporting.
// Archiving is best effort; callers log and swallow its errors.
type ResultArchive interface {
	ArchiveResult(ctx context.Context, result *PowerFlowResult) error
}
