// Package recommend manages the solver-issued recommendation set: rendering
// state, local dismissal, and the accept path that mutates topology from a
// suggested corrective action.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/splx7/gridflow-sub000/api/schemas"
	"go.uber.org/zap"
)

var (
	// ErrNotActionable is returned when accept is attempted on a purely
	// informational recommendation.
	ErrNotActionable = errors.New("recommendation carries no actionable target")
)

// FieldApplier performs the single field-level mutation an accepted action
// asks for. The topology store satisfies this.
type FieldApplier interface {
	ApplyFieldChange(ctx context.Context, targetID, field string, newValue interface{}) error
}

// Recomputer forces an immediate solve instead of waiting out the debounce
// window. The recompute scheduler satisfies this.
type Recomputer interface {
	ForceRecompute()
}

// BaselineArmer re-fetches the project's load/solar summary after a
// recommendation was applied. The what-if evaluator satisfies this; arming is
// best effort and never fails the accept.
type BaselineArmer interface {
	ArmFromProject(ctx context.Context)
}

// Workflow holds the current recommendation set and its local-only dismissal
// state. Recommendations are ephemeral: every accepted power-flow result
// replaces the whole set, and dismissals are reset with it because entries
// cannot be correlated across regenerations.
type Workflow struct {
	applier    FieldApplier
	recomputer Recomputer
	armer      BaselineArmer
	log        *zap.Logger

	mu        sync.Mutex
	recs      []schemas.NetworkRecommendation
	dismissed map[uint64]struct{}
}

// New creates an empty workflow. The recomputer may be nil at construction
// when the scheduler is built afterwards; see SetRecomputer.
func New(applier FieldApplier, recomputer Recomputer, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		applier:    applier,
		recomputer: recomputer,
		log:        logger.Named("recommend"),
		dismissed:  make(map[uint64]struct{}),
	}
}

// SetRecomputer breaks the construction cycle between the workflow and the
// scheduler: the scheduler consumes this workflow's results, and accepts
// route forced recomputes back to the scheduler.
func (w *Workflow) SetRecomputer(recomputer Recomputer) {
	w.mu.Lock()
	w.recomputer = recomputer
	w.mu.Unlock()
}

// SetBaselineArmer wires the what-if evaluator, which only becomes active
// once a recommendation has been applied and a baseline exists to fetch.
func (w *Workflow) SetBaselineArmer(armer BaselineArmer) {
	w.mu.Lock()
	w.armer = armer
	w.mu.Unlock()
}

// dismissKey hashes the stable content of a recommendation: code, target, and
// field. Keying by content instead of array position survives reordering
// without un-dismissing or over-dismissing.
func dismissKey(rec schemas.NetworkRecommendation) uint64 {
	h := fnv.New64a()
	h.Write([]byte(rec.Code))
	h.Write([]byte{0})
	if rec.Action != nil {
		h.Write([]byte(rec.Action.TargetID))
		h.Write([]byte{0})
		h.Write([]byte(rec.Action.Field))
	}
	return h.Sum64()
}

// SetRecommendations replaces the set wholesale and resets all local
// dismissals.
func (w *Workflow) SetRecommendations(recs []schemas.NetworkRecommendation) {
	w.mu.Lock()
	w.recs = make([]schemas.NetworkRecommendation, len(recs))
	copy(w.recs, recs)
	w.dismissed = make(map[uint64]struct{})
	w.mu.Unlock()
	w.log.Debug("Recommendation set replaced", zap.Int("count", len(recs)))
}

// ConsumeResult satisfies the recompute scheduler's result consumer contract.
func (w *Workflow) ConsumeResult(result *schemas.PowerFlowResult) {
	w.SetRecommendations(result.Recommendations)
}

// All returns the full current set, dismissed entries included.
func (w *Workflow) All() []schemas.NetworkRecommendation {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]schemas.NetworkRecommendation, len(w.recs))
	copy(out, w.recs)
	return out
}

// Visible returns the set minus locally dismissed entries.
func (w *Workflow) Visible() []schemas.NetworkRecommendation {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]schemas.NetworkRecommendation, 0, len(w.recs))
	for _, rec := range w.recs {
		if _, hidden := w.dismissed[dismissKey(rec)]; hidden {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Dismiss hides a recommendation locally. No collaborator is called; the
// entry reappears whenever a fresh set arrives.
func (w *Workflow) Dismiss(rec schemas.NetworkRecommendation) {
	w.mu.Lock()
	w.dismissed[dismissKey(rec)] = struct{}{}
	w.mu.Unlock()
}

// DismissedCount reports how many entries are currently hidden.
func (w *Workflow) DismissedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dismissed)
}

// Accept applies the recommendation's corrective action: a single field-level
// update against the target bus or branch. On success all local dismissals
// are cleared, since the forced recompute will regenerate the set anyway, and
// an immediate solve is requested instead of waiting out the debounce.
// Failures propagate to the caller and leave everything untouched.
func (w *Workflow) Accept(ctx context.Context, rec schemas.NetworkRecommendation) error {
	if !rec.Actionable() {
		return ErrNotActionable
	}
	action := rec.Action

	w.log.Info("Applying recommendation",
		zap.String("code", rec.Code),
		zap.String("target_id", action.TargetID),
		zap.String("field", action.Field))

	if err := w.applier.ApplyFieldChange(ctx, action.TargetID, action.Field, action.NewValue); err != nil {
		return fmt.Errorf("apply recommendation %s: %w", rec.Code, err)
	}

	w.mu.Lock()
	w.dismissed = make(map[uint64]struct{})
	recomputer := w.recomputer
	armer := w.armer
	w.mu.Unlock()

	if recomputer != nil {
		recomputer.ForceRecompute()
	}
	if armer != nil {
		// The applied recommendation produced a load/solar summary server
		// side; pick it up so what-if previews become available.
		armer.ArmFromProject(ctx)
	}
	return nil
}
