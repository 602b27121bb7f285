package whatif

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/splx7/gridflow-sub000/api/schemas"
	"github.com/splx7/gridflow-sub000/internal/mocks"
	"github.com/splx7/gridflow-sub000/internal/topology"
)

const testProject = "proj-1"

func testComponent(id, busID string, config string) schemas.Component {
	return schemas.Component{
		ID:        id,
		ProjectID: testProject,
		Type:      "solar_array",
		BusID:     busID,
		Config:    json.RawMessage(config),
	}
}

func testBaseline() schemas.HealthBaseline {
	return schemas.HealthBaseline{LoadSummaryKWh: 420, SolarResourceKWhM: 5.2}
}

func testHealth(estimate float64) *schemas.SystemHealth {
	return &schemas.SystemHealth{
		Estimates: []schemas.HealthEstimate{{Name: "renewable_fraction", Value: estimate, Unit: "%"}},
	}
}

func newEvaluator(t *testing.T, api schemas.HealthEvaluator) *Evaluator {
	t.Helper()
	return New(testProject, api, zaptest.NewLogger(t), Options{
		EditDebounce: 30 * time.Millisecond,
	})
}

func TestFingerprint(t *testing.T) {
	t.Parallel()
	a := testComponent("c-1", "bus-a", `{"kw":5}`)
	b := testComponent("c-2", "bus-b", `{"kw":3}`)

	assert.Equal(t, Fingerprint([]schemas.Component{a, b}), Fingerprint([]schemas.Component{b, a}),
		"fingerprint must be order independent")
	assert.Empty(t, Fingerprint(nil))

	edited := a
	edited.Config = json.RawMessage(`{"kw":7}`)
	assert.NotEqual(t, Fingerprint([]schemas.Component{a, b}), Fingerprint([]schemas.Component{edited, b}),
		"a config edit must change the fingerprint")

	moved := a
	moved.BusID = "bus-c"
	assert.NotEqual(t, Fingerprint([]schemas.Component{a}), Fingerprint([]schemas.Component{moved}),
		"re-placing a component must change the fingerprint")
}

func TestInertWithoutBaseline(t *testing.T) {
	t.Parallel()
	api := new(mocks.MockHealthEvaluator)
	e := newEvaluator(t, api)
	ctx := context.Background()

	components := []schemas.Component{testComponent("c-1", "bus-a", `{"kw":5}`)}
	e.Observe(ctx, components)
	e.PreviewEdit(ctx, components, testComponent("c-1", "bus-a", `{"kw":9}`))

	time.Sleep(100 * time.Millisecond)
	e.Wait()
	api.AssertNotCalled(t, "EvaluateSystemHealth", mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, e.HasBaseline())
	assert.Nil(t, e.Health())
}

func TestObserveFiresOncePerChange(t *testing.T) {
	t.Parallel()
	api := new(mocks.MockHealthEvaluator)
	api.On("EvaluateSystemHealth", mock.Anything, testProject, mock.Anything).Return(testHealth(35), nil).Once()

	e := newEvaluator(t, api)
	e.SetBaseline(testBaseline())
	ctx := context.Background()

	components := []schemas.Component{testComponent("c-1", "bus-a", `{"kw":5}`)}
	e.Observe(ctx, components)
	e.Observe(ctx, components)
	e.Observe(ctx, components)
	e.Wait()

	api.AssertNumberOfCalls(t, "EvaluateSystemHealth", 1)
	require.NotNil(t, e.Health())
	assert.InDelta(t, 35, e.Health().Estimates[0].Value, 0.001)
}

func TestObserveSeesConfigEdit(t *testing.T) {
	t.Parallel()
	api := new(mocks.MockHealthEvaluator)
	api.On("EvaluateSystemHealth", mock.Anything, testProject, mock.Anything).Return(testHealth(35), nil).Twice()

	e := newEvaluator(t, api)
	e.SetBaseline(testBaseline())
	ctx := context.Background()

	e.Observe(ctx, []schemas.Component{testComponent("c-1", "bus-a", `{"kw":5}`)})
	e.Observe(ctx, []schemas.Component{testComponent("c-1", "bus-a", `{"kw":8}`)})
	e.Wait()

	api.AssertNumberOfCalls(t, "EvaluateSystemHealth", 2)
}

func TestPreviewEditDebounceCollapses(t *testing.T) {
	t.Parallel()
	api := new(mocks.MockHealthEvaluator)

	var got atomic.Pointer[schemas.HealthRequest]
	api.On("EvaluateSystemHealth", mock.Anything, testProject, mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(2).(schemas.HealthRequest)
		got.Store(&req)
	}).Return(testHealth(41), nil).Once()

	e := newEvaluator(t, api)
	e.SetBaseline(testBaseline())
	ctx := context.Background()

	saved := []schemas.Component{
		testComponent("c-1", "bus-a", `{"kw":5}`),
		testComponent("c-2", "bus-b", `{"kw":3}`),
	}

	// Three keystrokes in quick succession; only the last buffer state is
	// evaluated.
	e.PreviewEdit(ctx, saved, testComponent("c-1", "bus-a", `{"kw":6}`))
	e.PreviewEdit(ctx, saved, testComponent("c-1", "bus-a", `{"kw":60}`))
	e.PreviewEdit(ctx, saved, testComponent("c-1", "bus-a", `{"kw":600}`))

	require.Eventually(t, func() bool {
		return got.Load() != nil
	}, 2*time.Second, 10*time.Millisecond)
	e.Wait()

	api.AssertNumberOfCalls(t, "EvaluateSystemHealth", 1)
	req := got.Load()
	require.Len(t, req.Components, 2, "the saved set must keep its size, with the edit substituted in")
	var substituted bool
	for _, c := range req.Components {
		if c.ID == "c-1" {
			substituted = true
			assert.JSONEq(t, `{"kw":600}`, string(c.Config))
		}
	}
	assert.True(t, substituted)
	assert.Equal(t, testBaseline(), req.Baseline)
}

func TestPreviewEditAppendsUnknownComponent(t *testing.T) {
	t.Parallel()
	api := new(mocks.MockHealthEvaluator)

	var got atomic.Pointer[schemas.HealthRequest]
	api.On("EvaluateSystemHealth", mock.Anything, testProject, mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(2).(schemas.HealthRequest)
		got.Store(&req)
	}).Return(testHealth(12), nil).Once()

	e := newEvaluator(t, api)
	e.SetBaseline(testBaseline())

	saved := []schemas.Component{testComponent("c-1", "bus-a", `{"kw":5}`)}
	e.PreviewEdit(context.Background(), saved, testComponent("c-new", "bus-b", `{"kw":2}`))

	require.Eventually(t, func() bool {
		return got.Load() != nil
	}, 2*time.Second, 10*time.Millisecond)
	e.Wait()

	assert.Len(t, got.Load().Components, 2, "an unsaved component is appended to the overlay")
}

func TestArmFromProject(t *testing.T) {
	t.Parallel()

	t.Run("fetch failure leaves the evaluator unarmed", func(t *testing.T) {
		t.Parallel()
		api := new(mocks.MockHealthEvaluator)
		api.On("FetchHealthBaseline", mock.Anything, testProject).Return(nil, errors.New("no baseline yet")).Once()

		e := newEvaluator(t, api)
		e.ArmFromProject(context.Background())
		assert.False(t, e.HasBaseline())
	})

	t.Run("successful fetch arms observe", func(t *testing.T) {
		t.Parallel()
		baseline := testBaseline()
		api := new(mocks.MockHealthEvaluator)
		api.On("FetchHealthBaseline", mock.Anything, testProject).Return(&baseline, nil).Once()
		api.On("EvaluateSystemHealth", mock.Anything, testProject, mock.Anything).Return(testHealth(22), nil).Once()

		e := newEvaluator(t, api)
		e.ArmFromProject(context.Background())
		require.True(t, e.HasBaseline())

		e.Observe(context.Background(), []schemas.Component{testComponent("c-1", "bus-a", `{"kw":5}`)})
		e.Wait()
		api.AssertNumberOfCalls(t, "EvaluateSystemHealth", 1)
	})
}

func TestRunObservesComponentMoves(t *testing.T) {
	t.Parallel()
	api := new(mocks.MockHealthEvaluator)

	var calls atomic.Int32
	api.On("EvaluateSystemHealth", mock.Anything, testProject, mock.Anything).Run(func(mock.Arguments) {
		calls.Add(1)
	}).Return(testHealth(18), nil)

	store := topology.New(testProject, new(mocks.MockTopologyAPI), zaptest.NewLogger(t))
	e := newEvaluator(t, api)
	e.SetBaseline(testBaseline())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx, store)
	}()
	// Give the loop a moment to subscribe before mutating.
	time.Sleep(20 * time.Millisecond)

	store.SetComponents([]schemas.Component{testComponent("c-1", "bus-a", `{"kw":5}`)})
	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond, "a placement change must trigger a baseline evaluation")

	// Re-publishing an identical component set keeps the fingerprint and must
	// not evaluate again.
	store.SetComponents([]schemas.Component{testComponent("c-1", "bus-a", `{"kw":5}`)})
	time.Sleep(100 * time.Millisecond)
	e.Wait()
	assert.EqualValues(t, 1, calls.Load())

	cancel()
	<-done
}

func TestStopCancelsPendingPreview(t *testing.T) {
	t.Parallel()
	api := new(mocks.MockHealthEvaluator)
	e := newEvaluator(t, api)
	e.SetBaseline(testBaseline())
	ctx := context.Background()

	saved := []schemas.Component{testComponent("c-1", "bus-a", `{"kw":5}`)}
	e.PreviewEdit(ctx, saved, testComponent("c-1", "bus-a", `{"kw":9}`))
	e.Stop()

	// Well past the debounce window; the armed timer must never fire.
	time.Sleep(150 * time.Millisecond)
	e.Wait()
	api.AssertNotCalled(t, "EvaluateSystemHealth", mock.Anything, mock.Anything, mock.Anything)

	// A stopped evaluator also refuses fresh work.
	e.Observe(ctx, saved)
	e.PreviewEdit(ctx, saved, testComponent("c-1", "bus-a", `{"kw":11}`))
	time.Sleep(100 * time.Millisecond)
	e.Wait()
	api.AssertNotCalled(t, "EvaluateSystemHealth", mock.Anything, mock.Anything, mock.Anything)
}

func TestLateHealthResponseCannotOverwriteNewerApply(t *testing.T) {
	t.Parallel()
	e := newEvaluator(t, new(mocks.MockHealthEvaluator))

	// The epoch-1 response read the counter while it still stood at 1, then
	// lost the CPU; epoch 2 dispatched, resolved, and applied in the gap.
	// When the epoch-1 goroutine resumes it must be rejected.
	e.epoch.Store(2)
	require.True(t, e.applyHealth(2, testHealth(50)))

	e.epoch.Store(1)
	assert.False(t, e.applyHealth(1, testHealth(10)), "an already-superseded response must never apply")

	require.NotNil(t, e.Health())
	assert.InDelta(t, 50, e.Health().Estimates[0].Value, 0.001)
}

func TestEvaluationFailureKeepsPreviousHealth(t *testing.T) {
	t.Parallel()
	api := new(mocks.MockHealthEvaluator)
	api.On("EvaluateSystemHealth", mock.Anything, testProject, mock.Anything).Return(testHealth(35), nil).Once()
	api.On("EvaluateSystemHealth", mock.Anything, testProject, mock.Anything).Return(nil, errors.New("upstream 503")).Once()

	e := newEvaluator(t, api)
	e.SetBaseline(testBaseline())
	ctx := context.Background()

	e.Observe(ctx, []schemas.Component{testComponent("c-1", "bus-a", `{"kw":5}`)})
	e.Wait()
	require.NotNil(t, e.Health())

	e.Observe(ctx, []schemas.Component{testComponent("c-1", "bus-a", `{"kw":9}`)})
	e.Wait()

	require.NotNil(t, e.Health(), "a failed evaluation must not clear the last good result")
	assert.InDelta(t, 35, e.Health().Estimates[0].Value, 0.001)
}
