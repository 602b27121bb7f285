package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/splx7/gridflow-sub000/api/schemas"
	"github.com/splx7/gridflow-sub000/internal/mocks"
	"github.com/splx7/gridflow-sub000/internal/recommend"
	"github.com/splx7/gridflow-sub000/internal/topology"
)

const testProject = "proj-1"

func generatedNetwork() *schemas.GeneratedNetwork {
	return &schemas.GeneratedNetwork{
		Buses: []schemas.Bus{
			{ID: "bus-mv", ProjectID: testProject, Name: "MV Bus", Type: schemas.BusSlack, NominalVoltageKV: 11},
			{ID: "bus-lv", ProjectID: testProject, Name: "LV Bus", Type: schemas.BusPQ, NominalVoltageKV: 0.4},
		},
		Branches: []schemas.Branch{
			{ID: "tx-1", ProjectID: testProject, Name: "TX1", Type: schemas.BranchTransformer, FromBusID: "bus-mv", ToBusID: "bus-lv"},
		},
		LoadAllocations: []schemas.LoadAllocation{
			{ID: "alloc-1", ProjectID: testProject, BusID: "bus-lv", Fraction: 1, PowerFactor: 0.95},
		},
		Recommendations: []schemas.NetworkRecommendation{
			{Severity: schemas.SeverityInfo, Code: "GENERATED", Message: "review transformer ratings"},
		},
	}
}

func TestAutoGenerate(t *testing.T) {
	t.Parallel()
	api := new(mocks.MockGridAPI)
	store := topology.New(testProject, &api.MockTopologyAPI, zaptest.NewLogger(t))
	recs := recommend.New(store, nil, zaptest.NewLogger(t))
	orch := New(store, api, recs, zaptest.NewLogger(t))

	generated := generatedNetwork()
	placed := []schemas.Component{{ID: "c-1", ProjectID: testProject, Type: "solar_array", BusID: "bus-lv"}}

	api.MockNetworkGenerator.On("AutoGenerateNetwork", mock.Anything, testProject, mock.Anything).Return(generated, nil).Once()
	api.MockTopologyAPI.On("GetProject", mock.Anything, testProject).Return(
		schemas.Project{ID: testProject, NetworkMode: schemas.NetworkModeMultiBus}, nil).Once()
	api.MockTopologyAPI.On("ListComponents", mock.Anything, testProject).Return(placed, nil).Once()

	project, err := orch.AutoGenerate(context.Background(), schemas.AutoGenerateOptions{
		VoltageLevelsKV: []float64{11, 0.4},
		PreferCables:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, schemas.NetworkModeMultiBus, project.NetworkMode)

	snap := store.Snapshot()
	assert.Len(t, snap.Buses, 2)
	assert.Len(t, snap.Branches, 1)
	assert.Len(t, snap.Allocations, 1)
	require.Len(t, snap.Components, 1)
	assert.Equal(t, "bus-lv", snap.Components[0].BusID, "the refetched placements replace the local component set")

	assert.Len(t, recs.All(), 1, "generation-time recommendations are handed to the workflow")
	api.MockTopologyAPI.AssertExpectations(t)
	api.MockNetworkGenerator.AssertExpectations(t)
}

func TestAutoGenerateCollaboratorFailure(t *testing.T) {
	t.Parallel()
	api := new(mocks.MockGridAPI)
	store := topology.New(testProject, &api.MockTopologyAPI, zaptest.NewLogger(t))
	orch := New(store, api, nil, zaptest.NewLogger(t))

	api.MockNetworkGenerator.On("AutoGenerateNetwork", mock.Anything, testProject, mock.Anything).
		Return(nil, errors.New("generation timed out")).Once()

	_, err := orch.AutoGenerate(context.Background(), schemas.AutoGenerateOptions{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "auto-generate network")
	assert.Zero(t, store.BusCount(), "a failed generation must not touch the local graph")
}

func TestAutoGenerateRejectsInconsistentPayload(t *testing.T) {
	t.Parallel()
	api := new(mocks.MockGridAPI)
	store := topology.New(testProject, &api.MockTopologyAPI, zaptest.NewLogger(t))
	orch := New(store, api, nil, zaptest.NewLogger(t))

	// A branch referencing a bus the payload does not contain.
	broken := generatedNetwork()
	broken.Branches[0].ToBusID = "bus-missing"
	api.MockNetworkGenerator.On("AutoGenerateNetwork", mock.Anything, testProject, mock.Anything).Return(broken, nil).Once()

	_, err := orch.AutoGenerate(context.Background(), schemas.AutoGenerateOptions{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "apply generated topology")
	assert.Zero(t, store.BusCount())
}
