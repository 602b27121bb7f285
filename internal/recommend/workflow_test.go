package recommend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/splx7/gridflow-sub000/api/schemas"
)

// fakeApplier records field changes and can be scripted to fail.
type fakeApplier struct {
	err     error
	applied []appliedChange
}

type appliedChange struct {
	targetID string
	field    string
	newValue interface{}
}

func (f *fakeApplier) ApplyFieldChange(_ context.Context, targetID, field string, newValue interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, appliedChange{targetID, field, newValue})
	return nil
}

type fakeRecomputer struct {
	forced int
}

func (f *fakeRecomputer) ForceRecompute() { f.forced++ }

type fakeArmer struct {
	armed int
}

func (f *fakeArmer) ArmFromProject(context.Context) { f.armed++ }

func actionableRec(code, targetID, field string, newValue interface{}) schemas.NetworkRecommendation {
	return schemas.NetworkRecommendation{
		Severity: schemas.SeverityWarning,
		Code:     code,
		Title:    "Undervoltage at " + targetID,
		Action: &schemas.RecommendedAction{
			TargetID: targetID,
			Field:    field,
			NewValue: newValue,
		},
	}
}

func infoRec(code string) schemas.NetworkRecommendation {
	return schemas.NetworkRecommendation{Severity: schemas.SeverityInfo, Code: code, Message: "for information only"}
}

func TestAcceptAppliesFieldChange(t *testing.T) {
	t.Parallel()
	applier := &fakeApplier{}
	recomputer := &fakeRecomputer{}
	w := New(applier, recomputer, zaptest.NewLogger(t))

	rec := actionableRec("UNDERVOLTAGE", "bus-a", "nominal_voltage_kv", 33.0)
	w.SetRecommendations([]schemas.NetworkRecommendation{rec, infoRec("NOTE")})
	w.Dismiss(infoRec("NOTE"))
	require.Equal(t, 1, w.DismissedCount())

	require.NoError(t, w.Accept(context.Background(), rec))

	require.Len(t, applier.applied, 1)
	assert.Equal(t, "bus-a", applier.applied[0].targetID)
	assert.Equal(t, "nominal_voltage_kv", applier.applied[0].field)
	assert.Equal(t, 33.0, applier.applied[0].newValue)

	assert.Equal(t, 1, recomputer.forced, "accept must request an immediate solve")
	assert.Equal(t, 0, w.DismissedCount(), "accept clears local dismissals")
}

func TestAcceptArmsBaseline(t *testing.T) {
	t.Parallel()
	armer := &fakeArmer{}
	w := New(&fakeApplier{}, &fakeRecomputer{}, zaptest.NewLogger(t))
	w.SetBaselineArmer(armer)

	rec := actionableRec("UNDERVOLTAGE", "bus-a", "nominal_voltage_kv", 33.0)
	require.NoError(t, w.Accept(context.Background(), rec))
	assert.Equal(t, 1, armer.armed, "a successful accept must refresh the what-if baseline")
}

func TestAcceptFailureDoesNotArmBaseline(t *testing.T) {
	t.Parallel()
	armer := &fakeArmer{}
	w := New(&fakeApplier{err: errors.New("bus not found")}, &fakeRecomputer{}, zaptest.NewLogger(t))
	w.SetBaselineArmer(armer)

	rec := actionableRec("UNDERVOLTAGE", "bus-a", "nominal_voltage_kv", 33.0)
	require.Error(t, w.Accept(context.Background(), rec))
	assert.Equal(t, 0, armer.armed)
}

func TestAcceptNotActionable(t *testing.T) {
	t.Parallel()
	applier := &fakeApplier{}
	w := New(applier, &fakeRecomputer{}, zaptest.NewLogger(t))

	err := w.Accept(context.Background(), infoRec("NOTE"))
	require.ErrorIs(t, err, ErrNotActionable)
	assert.Empty(t, applier.applied)
}

func TestAcceptFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	applier := &fakeApplier{err: errors.New("bus not found")}
	recomputer := &fakeRecomputer{}
	w := New(applier, recomputer, zaptest.NewLogger(t))

	rec := actionableRec("OVERLOAD", "tx-1", "rating_mva", 2.5)
	w.SetRecommendations([]schemas.NetworkRecommendation{rec})
	w.Dismiss(infoRec("NOTE"))

	err := w.Accept(context.Background(), rec)
	require.Error(t, err)
	assert.ErrorContains(t, err, "OVERLOAD")
	assert.Equal(t, 0, recomputer.forced)
	assert.Equal(t, 1, w.DismissedCount(), "a failed accept must not clear dismissals")
}

func TestAcceptWithoutRecomputer(t *testing.T) {
	t.Parallel()
	w := New(&fakeApplier{}, nil, zaptest.NewLogger(t))
	rec := actionableRec("UNDERVOLTAGE", "bus-a", "nominal_voltage_kv", 33.0)
	require.NoError(t, w.Accept(context.Background(), rec), "a nil recomputer is tolerated")
}

func TestDismissSurvivesReordering(t *testing.T) {
	t.Parallel()
	w := New(&fakeApplier{}, nil, zaptest.NewLogger(t))

	a := actionableRec("UNDERVOLTAGE", "bus-a", "nominal_voltage_kv", 33.0)
	b := actionableRec("OVERLOAD", "tx-1", "rating_mva", 2.5)
	w.SetRecommendations([]schemas.NetworkRecommendation{a, b})
	w.Dismiss(a)

	// The same entries arrive in reverse order. Dismissal is keyed by
	// content, not position, so the right one stays hidden.
	w.mu.Lock()
	w.recs = []schemas.NetworkRecommendation{b, a}
	w.mu.Unlock()

	visible := w.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "OVERLOAD", visible[0].Code)
	assert.Len(t, w.All(), 2, "All ignores dismissal state")
}

func TestFreshSetResetsDismissals(t *testing.T) {
	t.Parallel()
	w := New(&fakeApplier{}, nil, zaptest.NewLogger(t))

	a := actionableRec("UNDERVOLTAGE", "bus-a", "nominal_voltage_kv", 33.0)
	w.SetRecommendations([]schemas.NetworkRecommendation{a})
	w.Dismiss(a)
	require.Empty(t, w.Visible())

	// A new result regenerates the set; the old dismissal must not leak onto
	// a content-identical fresh entry.
	w.ConsumeResult(&schemas.PowerFlowResult{
		Recommendations: []schemas.NetworkRecommendation{a, infoRec("NOTE")},
	})

	assert.Len(t, w.Visible(), 2)
	assert.Equal(t, 0, w.DismissedCount())
}

func TestDistinctTargetsHashApart(t *testing.T) {
	t.Parallel()
	w := New(&fakeApplier{}, nil, zaptest.NewLogger(t))

	a := actionableRec("OVERLOAD", "tx-1", "rating_mva", 2.5)
	b := actionableRec("OVERLOAD", "tx-2", "rating_mva", 2.5)
	w.SetRecommendations([]schemas.NetworkRecommendation{a, b})
	w.Dismiss(a)

	visible := w.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "tx-2", visible[0].Action.TargetID)
}
