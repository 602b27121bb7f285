// Package whatif previews the system-health impact of editing a single
// component's configuration before it is saved. Nothing here mutates
// persisted state; evaluations are hypothetical overlays.
package whatif

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/splx7/gridflow-sub000/api/schemas"
	"github.com/splx7/gridflow-sub000/internal/topology"
	"go.uber.org/zap"
)

const (
	// DefaultEditDebounce is the quiet period applied to in-progress edit
	// buffers before a hypothetical evaluation fires.
	DefaultEditDebounce = 300 * time.Millisecond
	// DefaultEvalTimeout bounds a single evaluation call.
	DefaultEvalTimeout = 15 * time.Second
)

// Options tunes an Evaluator. Zero durations fall back to the defaults.
type Options struct {
	EditDebounce time.Duration
	EvalTimeout  time.Duration
}

// Evaluator fingerprints the saved component set and debounces hypothetical
// health evaluations. The whole mechanism is inert until SetBaseline is
// called: without a load/solar baseline there is nothing to evaluate a
// hypothetical system against, so no calls are made at all.
type Evaluator struct {
	projectID string
	api       schemas.HealthEvaluator
	log       *zap.Logger

	debounce    time.Duration
	evalTimeout time.Duration

	mu              sync.Mutex
	baseline        *schemas.HealthBaseline
	lastFingerprint string
	health          *schemas.SystemHealth
	editTimer       *time.Timer
	lastApplied     uint64
	stopped         bool

	epoch    atomic.Uint64
	inFlight sync.WaitGroup
}

// New creates an evaluator for one project.
func New(projectID string, api schemas.HealthEvaluator, logger *zap.Logger, opts Options) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.EditDebounce <= 0 {
		opts.EditDebounce = DefaultEditDebounce
	}
	if opts.EvalTimeout <= 0 {
		opts.EvalTimeout = DefaultEvalTimeout
	}
	return &Evaluator{
		projectID:   projectID,
		api:         api,
		log:         logger.Named("whatif"),
		debounce:    opts.EditDebounce,
		evalTimeout: opts.EvalTimeout,
	}
}

// Fingerprint builds a stable string over the saved component set: id, type,
// and serialized config of every component, sorted by id. Equal component
// sets always produce equal fingerprints.
func Fingerprint(components []schemas.Component) string {
	entries := make([]string, 0, len(components))
	for _, c := range components {
		var b strings.Builder
		b.WriteString(c.ID)
		b.WriteByte('|')
		b.WriteString(c.Type)
		b.WriteByte('|')
		b.WriteString(c.BusID)
		b.WriteByte('|')
		b.Write(c.Config)
		entries = append(entries, b.String())
	}
	sort.Strings(entries)
	return strings.Join(entries, ";")
}

// SetBaseline arms the evaluator with the load/solar summary produced by an
// applied recommendation. Until this is called, Observe and PreviewEdit are
// no-ops.
func (e *Evaluator) SetBaseline(baseline schemas.HealthBaseline) {
	e.mu.Lock()
	e.baseline = &baseline
	e.mu.Unlock()
	e.log.Debug("Baseline set", zap.Float64("load_kwh", baseline.LoadSummaryKWh))
}

// ArmFromProject fetches the project's current load/solar summary from the
// collaborator and arms the evaluator with it. Called after a recommendation
// was applied. The fetch is best effort: on error the evaluator keeps its
// previous armed state, and no error is surfaced.
func (e *Evaluator) ArmFromProject(ctx context.Context) {
	baseline, err := e.api.FetchHealthBaseline(ctx, e.projectID)
	if err != nil {
		e.log.Debug("Baseline fetch failed, keeping previous state", zap.Error(err))
		return
	}
	e.SetBaseline(*baseline)
}

// HasBaseline reports whether the evaluator has been armed.
func (e *Evaluator) HasBaseline() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseline != nil
}

// Health returns the last accepted evaluation, or nil if none resolved yet.
// A failed evaluation never clears it; stale-but-available beats an error
// state here.
func (e *Evaluator) Health() *schemas.SystemHealth {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.health == nil {
		return nil
	}
	h := *e.health
	return &h
}

// Observe compares the saved component set against the last fingerprint and
// triggers a baseline evaluation (no edit applied) when it changed. An
// unchanged set never re-triggers a call.
func (e *Evaluator) Observe(ctx context.Context, components []schemas.Component) {
	fp := Fingerprint(components)

	e.mu.Lock()
	if e.baseline == nil || e.stopped {
		e.mu.Unlock()
		return
	}
	if fp == e.lastFingerprint {
		e.mu.Unlock()
		return
	}
	e.lastFingerprint = fp
	baseline := *e.baseline
	e.mu.Unlock()

	e.log.Debug("Component set changed, evaluating baseline health")
	e.dispatch(ctx, schemas.HealthRequest{Components: components, Baseline: baseline})
}

// Run consumes store change events until the context is canceled, feeding the
// saved component set back through Observe whenever a component placement or
// the whole graph changed. It blocks; callers run it in its own goroutine.
func (e *Evaluator) Run(ctx context.Context, store *topology.Store) {
	changes, unsubscribe := store.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			switch change.Kind {
			case topology.ChangeComponentMoved, topology.ChangeBulkReplacement:
				e.Observe(ctx, store.Snapshot().Components)
			}
		}
	}
}

// PreviewEdit schedules a short-debounced evaluation of the saved component
// set with the edited component's config substituted in. Each further edit of
// the buffer inside the window pushes the call out again.
func (e *Evaluator) PreviewEdit(ctx context.Context, components []schemas.Component, edited schemas.Component) {
	e.mu.Lock()
	if e.baseline == nil || e.stopped {
		e.mu.Unlock()
		return
	}
	baseline := *e.baseline

	overlay := make([]schemas.Component, len(components))
	copy(overlay, components)
	replaced := false
	for i, c := range overlay {
		if c.ID == edited.ID {
			overlay[i] = edited
			replaced = true
			break
		}
	}
	if !replaced {
		overlay = append(overlay, edited)
	}

	if e.editTimer != nil {
		e.editTimer.Stop()
	}
	e.editTimer = time.AfterFunc(e.debounce, func() {
		e.dispatch(ctx, schemas.HealthRequest{Components: overlay, Baseline: baseline})
	})
	e.mu.Unlock()
}

// Stop cancels any pending debounced evaluation and refuses new ones, so a
// timer armed just before shutdown cannot fire into torn-down collaborators.
// It does not wait for in-flight calls; callers follow up with Wait.
func (e *Evaluator) Stop() {
	e.mu.Lock()
	e.stopped = true
	if e.editTimer != nil {
		e.editTimer.Stop()
		e.editTimer = nil
	}
	e.mu.Unlock()
}

// Wait blocks until all in-flight evaluations have resolved. Used on
// shutdown and by tests.
func (e *Evaluator) Wait() {
	e.inFlight.Wait()
}

// dispatch fires one evaluation call. Responses carry an epoch; a response
// resolving after a newer dispatch is discarded so it cannot clobber the
// fresher health result.
func (e *Evaluator) dispatch(ctx context.Context, req schemas.HealthRequest) {
	epoch := e.epoch.Add(1)

	e.inFlight.Add(1)
	go func() {
		defer e.inFlight.Done()

		callCtx, cancel := context.WithTimeout(ctx, e.evalTimeout)
		defer cancel()

		health, err := e.api.EvaluateSystemHealth(callCtx, e.projectID, req)
		if err != nil {
			// Best effort: keep showing the previous health result.
			e.log.Debug("Health evaluation failed, keeping previous result", zap.Error(err))
			return
		}
		if !e.applyHealth(epoch, health) {
			return
		}
		e.log.Debug("Health result applied",
			zap.Int("estimates", len(health.Estimates)),
			zap.Int("warnings", len(health.Warnings)))
	}()
}

// applyHealth installs an evaluation response, or reports false when a newer
// response already won. The stale check and the write share one critical
// section so a slow response cannot clobber a fresher one between them.
func (e *Evaluator) applyHealth(epoch uint64, health *schemas.SystemHealth) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch <= e.lastApplied || e.epoch.Load() != epoch {
		e.log.Debug("Discarding stale health response",
			zap.Uint64("epoch", epoch), zap.Uint64("last_applied", e.lastApplied))
		return false
	}
	e.lastApplied = epoch
	e.health = health
	return true
}
