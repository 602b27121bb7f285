// Package recompute decides when a structural edit warrants an expensive
// external solver call, batching bursts of rapid edits into one call.
package recompute

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/splx7/gridflow-sub000/api/schemas"
	"github.com/splx7/gridflow-sub000/internal/topology"
	"go.uber.org/zap"
)

const (
	// DefaultQuietPeriod is the debounce window after the last structural
	// change before a solve fires.
	DefaultQuietPeriod = 1500 * time.Millisecond
	// DefaultSolverTimeout bounds a single solver call so a hung collaborator
	// cannot pin a loading state forever.
	DefaultSolverTimeout = 30 * time.Second
)

// ResultConsumer observes every power-flow result the scheduler accepts.
// The recommendation workflow consumes results to refresh its set.
type ResultConsumer interface {
	ConsumeResult(result *schemas.PowerFlowResult)
}

// Options tunes a Scheduler. Zero durations fall back to the defaults.
type Options struct {
	QuietPeriod   time.Duration
	SolverTimeout time.Duration
	// Archive, when set, receives accepted results best effort.
	Archive schemas.ResultArchive
	// Consumers are notified after the store result has been replaced.
	Consumers []ResultConsumer
}

// Scheduler watches the topology store for structural changes and debounces
// solver calls. Solver calls are fire-and-forget, but each carries a request
// epoch: a response that resolves after a newer call was dispatched is
// discarded instead of overwriting fresher state.
type Scheduler struct {
	store   *topology.Store
	solver  schemas.Solver
	archive schemas.ResultArchive
	log     *zap.Logger

	quietPeriod   time.Duration
	solverTimeout time.Duration
	consumers     []ResultConsumer

	epoch    atomic.Uint64
	inFlight sync.WaitGroup
	forceCh  chan struct{}

	// applyMu serializes result application. lastApplied is the epoch of the
	// newest response accepted so far; a response only applies while holding
	// applyMu and only if its epoch is newer than lastApplied, so a slow
	// response can never clobber a fresher one between check and apply.
	applyMu     sync.Mutex
	lastApplied uint64
}

// New creates a scheduler bound to a store and solver.
func New(store *topology.Store, solver schemas.Solver, logger *zap.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	if opts.SolverTimeout <= 0 {
		opts.SolverTimeout = DefaultSolverTimeout
	}
	return &Scheduler{
		store:         store,
		solver:        solver,
		archive:       opts.Archive,
		log:           logger.Named("recompute"),
		quietPeriod:   opts.QuietPeriod,
		solverTimeout: opts.SolverTimeout,
		consumers:     opts.Consumers,
		forceCh:       make(chan struct{}, 1),
	}
}

// ForceRecompute bypasses the debounce window and solves immediately. Used by
// the recommendation accept path. Multiple calls before the loop picks one up
// collapse into a single solve.
func (s *Scheduler) ForceRecompute() {
	select {
	case s.forceCh <- struct{}{}:
	default:
	}
}

// Run consumes store change events until the context is canceled. It blocks;
// callers run it in its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	changes, unsubscribe := s.store.Subscribe()
	defer unsubscribe()

	// The signature at startup is the baseline: loading an unchanged project
	// does not trigger a solve by itself.
	lastSolved := s.store.StructureSignature()

	var timer *time.Timer
	var timerC <-chan time.Time
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	s.log.Info("Recompute scheduler started",
		zap.Duration("quiet_period", s.quietPeriod),
		zap.String("signature", lastSolved))

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			s.inFlight.Wait()
			s.log.Info("Recompute scheduler stopped")
			return

		case change, ok := <-changes:
			if !ok {
				stopTimer()
				s.inFlight.Wait()
				return
			}
			if change.Signature == lastSolved {
				// Nothing worth re-solving changed.
				continue
			}
			if s.store.BusCount() == 0 {
				// An empty project never schedules, no matter what else is
				// edited. Remember the signature so re-adding the same graph
				// later still counts as a change.
				lastSolved = change.Signature
				stopTimer()
				continue
			}
			// Classic trailing-edge debounce: every further structural change
			// inside the quiet period pushes the solve out again.
			stopTimer()
			timer = time.NewTimer(s.quietPeriod)
			timerC = timer.C

		case <-timerC:
			timer = nil
			timerC = nil
			lastSolved = s.store.StructureSignature()
			s.dispatch(ctx)

		case <-s.forceCh:
			stopTimer()
			lastSolved = s.store.StructureSignature()
			s.dispatch(ctx)
		}
	}
}

// dispatch fires one solver call. The call itself runs detached; a stale
// response is dropped by the epoch guard rather than canceled.
func (s *Scheduler) dispatch(ctx context.Context) {
	if err := s.store.ValidateForPowerFlow(); err != nil {
		s.log.Warn("Skipping solve on invalid topology", zap.Error(err))
		return
	}

	epoch := s.epoch.Add(1)
	projectID := s.store.ProjectID()
	s.log.Debug("Dispatching power flow", zap.Uint64("epoch", epoch))

	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()

		callCtx, cancel := context.WithTimeout(ctx, s.solverTimeout)
		defer cancel()

		result, err := s.solver.RunPowerFlow(callCtx, projectID)
		if err != nil {
			// Background solves are best effort: a transient failure or
			// non-convergence must not block further editing.
			s.log.Warn("Power flow failed, keeping previous result", zap.Uint64("epoch", epoch), zap.Error(err))
			return
		}
		if !s.applyResult(epoch, result) {
			return
		}

		if s.archive != nil {
			archiveCtx, archiveCancel := context.WithTimeout(ctx, 10*time.Second)
			defer archiveCancel()
			if err := s.archive.ArchiveResult(archiveCtx, result); err != nil {
				s.log.Warn("Failed to archive result", zap.Error(err))
			}
		}
	}()
}

// applyResult installs a solver response in the store and notifies consumers,
// or reports false when the response lost the race to a newer one. The stale
// check and the store write share one critical section.
func (s *Scheduler) applyResult(epoch uint64, result *schemas.PowerFlowResult) bool {
	s.applyMu.Lock()
	if epoch <= s.lastApplied || s.epoch.Load() != epoch {
		newest := s.lastApplied
		s.applyMu.Unlock()
		s.log.Debug("Discarding stale power flow response",
			zap.Uint64("epoch", epoch), zap.Uint64("last_applied", newest))
		return false
	}
	s.lastApplied = epoch
	s.store.SetResult(result)
	// Consumers are notified inside the critical section so two accepted
	// results reach them in apply order.
	for _, consumer := range s.consumers {
		consumer.ConsumeResult(result)
	}
	s.applyMu.Unlock()

	s.log.Info("Power flow result applied",
		zap.Uint64("epoch", epoch),
		zap.Bool("converged", result.Converged),
		zap.Int("violations", len(result.Violations)))
	return true
}
