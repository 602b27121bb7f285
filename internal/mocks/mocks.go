// Package mocks provides testify mocks for the external collaborator
// interfaces so component tests never touch the network.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/splx7/gridflow-sub000/api/schemas"
)

// -- Topology Persistence Mock --

// MockTopologyAPI mocks the schemas.TopologyAPI interface.
type MockTopologyAPI struct {
	mock.Mock
}

var _ schemas.TopologyAPI = (*MockTopologyAPI)(nil)

func (m *MockTopologyAPI) ListBuses(ctx context.Context, projectID string) ([]schemas.Bus, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Bus), args.Error(1)
}

func (m *MockTopologyAPI) CreateBus(ctx context.Context, bus schemas.Bus) (schemas.Bus, error) {
	args := m.Called(ctx, bus)
	if args.Get(0) == nil {
		return schemas.Bus{}, args.Error(1)
	}
	return args.Get(0).(schemas.Bus), args.Error(1)
}

func (m *MockTopologyAPI) UpdateBus(ctx context.Context, bus schemas.Bus) (schemas.Bus, error) {
	args := m.Called(ctx, bus)
	if args.Get(0) == nil {
		return schemas.Bus{}, args.Error(1)
	}
	return args.Get(0).(schemas.Bus), args.Error(1)
}

func (m *MockTopologyAPI) DeleteBus(ctx context.Context, projectID, busID string) error {
	return m.Called(ctx, projectID, busID).Error(0)
}

func (m *MockTopologyAPI) ListBranches(ctx context.Context, projectID string) ([]schemas.Branch, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Branch), args.Error(1)
}

func (m *MockTopologyAPI) CreateBranch(ctx context.Context, branch schemas.Branch) (schemas.Branch, error) {
	args := m.Called(ctx, branch)
	if args.Get(0) == nil {
		return schemas.Branch{}, args.Error(1)
	}
	return args.Get(0).(schemas.Branch), args.Error(1)
}

func (m *MockTopologyAPI) UpdateBranch(ctx context.Context, branch schemas.Branch) (schemas.Branch, error) {
	args := m.Called(ctx, branch)
	if args.Get(0) == nil {
		return schemas.Branch{}, args.Error(1)
	}
	return args.Get(0).(schemas.Branch), args.Error(1)
}

func (m *MockTopologyAPI) DeleteBranch(ctx context.Context, projectID, branchID string) error {
	return m.Called(ctx, projectID, branchID).Error(0)
}

func (m *MockTopologyAPI) ListLoadAllocations(ctx context.Context, projectID string) ([]schemas.LoadAllocation, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.LoadAllocation), args.Error(1)
}

func (m *MockTopologyAPI) CreateLoadAllocation(ctx context.Context, alloc schemas.LoadAllocation) (schemas.LoadAllocation, error) {
	args := m.Called(ctx, alloc)
	if args.Get(0) == nil {
		return schemas.LoadAllocation{}, args.Error(1)
	}
	return args.Get(0).(schemas.LoadAllocation), args.Error(1)
}

func (m *MockTopologyAPI) DeleteLoadAllocation(ctx context.Context, projectID, allocID string) error {
	return m.Called(ctx, projectID, allocID).Error(0)
}

func (m *MockTopologyAPI) ListComponents(ctx context.Context, projectID string) ([]schemas.Component, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Component), args.Error(1)
}

func (m *MockTopologyAPI) UpdateComponent(ctx context.Context, component schemas.Component) (schemas.Component, error) {
	args := m.Called(ctx, component)
	if args.Get(0) == nil {
		return schemas.Component{}, args.Error(1)
	}
	return args.Get(0).(schemas.Component), args.Error(1)
}

func (m *MockTopologyAPI) GetProject(ctx context.Context, projectID string) (schemas.Project, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return schemas.Project{}, args.Error(1)
	}
	return args.Get(0).(schemas.Project), args.Error(1)
}

// -- Solver Mock --

// MockSolver mocks the schemas.Solver interface.
type MockSolver struct {
	mock.Mock
}

var _ schemas.Solver = (*MockSolver)(nil)

func (m *MockSolver) RunPowerFlow(ctx context.Context, projectID string) (*schemas.PowerFlowResult, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.PowerFlowResult), args.Error(1)
}

func (m *MockSolver) RunContingencyAnalysis(ctx context.Context, projectID string) (*schemas.ContingencyReport, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.ContingencyReport), args.Error(1)
}

func (m *MockSolver) ListGridCodes(ctx context.Context) ([]schemas.GridCode, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.GridCode), args.Error(1)
}

// -- Health Evaluator Mock --

// MockHealthEvaluator mocks the schemas.HealthEvaluator interface.
type MockHealthEvaluator struct {
	mock.Mock
}

var _ schemas.HealthEvaluator = (*MockHealthEvaluator)(nil)

func (m *MockHealthEvaluator) EvaluateSystemHealth(ctx context.Context, projectID string, req schemas.HealthRequest) (*schemas.SystemHealth, error) {
	args := m.Called(ctx, projectID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.SystemHealth), args.Error(1)
}

func (m *MockHealthEvaluator) FetchHealthBaseline(ctx context.Context, projectID string) (*schemas.HealthBaseline, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.HealthBaseline), args.Error(1)
}

// -- Network Generator Mock --

// MockNetworkGenerator mocks the schemas.NetworkGenerator interface.
type MockNetworkGenerator struct {
	mock.Mock
}

var _ schemas.NetworkGenerator = (*MockNetworkGenerator)(nil)

func (m *MockNetworkGenerator) AutoGenerateNetwork(ctx context.Context, projectID string, opts schemas.AutoGenerateOptions) (*schemas.GeneratedNetwork, error) {
	args := m.Called(ctx, projectID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.GeneratedNetwork), args.Error(1)
}

// -- Composite Mock --

// MockGridAPI mocks the full schemas.GridAPI surface.
type MockGridAPI struct {
	MockTopologyAPI
	MockSolver
	MockHealthEvaluator
	MockNetworkGenerator
}

var _ schemas.GridAPI = (*MockGridAPI)(nil)

// -- Result Archive Mock --

// MockResultArchive mocks the schemas.ResultArchive interface.
type MockResultArchive struct {
	mock.Mock
}

var _ schemas.ResultArchive = (*MockResultArchive)(nil)

func (m *MockResultArchive) ArchiveResult(ctx context.Context, result *schemas.PowerFlowResult) error {
	return m.Called(ctx, result).Error(0)
}
