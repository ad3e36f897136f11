package export

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Default progression timing. These model backend processing and are
// overridable so tests can shrink them.
const (
	// DefaultProcessingDelay is how long a job stays pending before the
	// engine moves it to processing.
	DefaultProcessingDelay = 2 * time.Second

	// DefaultCompletionDelay is how long a job stays processing before the
	// engine settles it as completed or failed.
	DefaultCompletionDelay = 6 * time.Second

	// DefaultRetentionWindow is how long a completed artifact stays
	// downloadable.
	DefaultRetentionWindow = 24 * time.Hour

	// transitionMaxRetries bounds internal retries of a conflicted
	// transition before it is dropped and logged.
	transitionMaxRetries = 3
)

// FailureHook decides whether a job's processing run fails. A non-nil
// return takes the processing→failed edge with the error text as the job's
// failure reason. A nil hook means every job completes, matching the
// behaviour of the portals' mock backend.
type FailureHook func(job *Job) error

// EngineConfig holds the dependencies and tuning of the lifecycle engine.
type EngineConfig struct {
	Repository Repository
	Clock      Clock
	Logger     zerolog.Logger

	ProcessingDelay time.Duration
	CompletionDelay time.Duration
	RetentionWindow time.Duration

	// FailureHook is optional; see FailureHook.
	FailureHook FailureHook

	// IDGenerator is optional; defaults to "exp_" + a uuid fragment.
	IDGenerator func() string
}

// Engine owns the export job state machine. Submission is synchronous;
// progression is driven entirely by scheduled callbacks on the injected
// clock, one independent pair of timers per job.
type Engine struct {
	repo   Repository
	clock  Clock
	logger zerolog.Logger

	processingDelay time.Duration
	completionDelay time.Duration
	retention       time.Duration

	failureHook FailureHook
	newID       func() string

	mu     sync.Mutex
	timers map[string][]Timer
	closed bool
}

// NewEngine creates a lifecycle engine.
func NewEngine(cfg EngineConfig) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = NewSystemClock()
	}

	processingDelay := cfg.ProcessingDelay
	if processingDelay <= 0 {
		processingDelay = DefaultProcessingDelay
	}
	completionDelay := cfg.CompletionDelay
	if completionDelay <= 0 {
		completionDelay = DefaultCompletionDelay
	}
	retention := cfg.RetentionWindow
	if retention <= 0 {
		retention = DefaultRetentionWindow
	}

	newID := cfg.IDGenerator
	if newID == nil {
		newID = func() string {
			return "exp_" + uuid.New().String()[:22]
		}
	}

	return &Engine{
		repo:            cfg.Repository,
		clock:           clock,
		logger:          cfg.Logger,
		processingDelay: processingDelay,
		completionDelay: completionDelay,
		retention:       retention,
		failureHook:     cfg.FailureHook,
		newID:           newID,
		timers:          make(map[string][]Timer),
	}
}

// Submit validates the requested format against the kind, records a new
// pending job and arms its progression timer. It never blocks on the
// progression itself; callers observe state changes via subsequent reads.
func (e *Engine) Submit(ctx context.Context, kind Kind, format Format, filters Filters) (*Job, error) {
	if !kind.Valid() || !kind.Supports(format) {
		return nil, ErrInvalidFormat
	}

	job := &Job{
		ID:          e.newID(),
		Kind:        kind,
		Format:      format,
		Filters:     filters.Clone(),
		Status:      StatusPending,
		RequestedAt: e.clock.Now(),
	}

	if err := e.repo.Insert(ctx, job); err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("export_id", job.ID).
		Str("kind", string(kind)).
		Str("format", string(format)).
		Msg("export job submitted")

	e.schedule(job.ID, e.processingDelay, func() {
		e.beginProcessing(job.ID)
	})

	return job.Clone(), nil
}

// beginProcessing takes the pending→processing edge. The completion timer
// is armed only after this transition commits, so completion can never be
// observed before processing is recorded.
func (e *Engine) beginProcessing(id string) {
	now := e.clock.Now()
	committed := e.transition(id, func(job *Job) error {
		if job.Status != StatusPending {
			return ErrTransitionConflict
		}
		job.Status = StatusProcessing
		started := now
		job.StartedAt = &started
		return nil
	})
	if !committed {
		return
	}

	e.logger.Debug().Str("export_id", id).Msg("export job processing")

	e.schedule(id, e.completionDelay, func() {
		e.settle(id)
	})
}

// settle takes the processing→completed or processing→failed edge.
func (e *Engine) settle(id string) {
	now := e.clock.Now()
	var outcome Status

	committed := e.transition(id, func(job *Job) error {
		if job.Status != StatusProcessing {
			return ErrTransitionConflict
		}

		finished := now
		job.FinishedAt = &finished

		if e.failureHook != nil {
			if failErr := e.failureHook(job); failErr != nil {
				job.Status = StatusFailed
				job.ErrorMessage = failErr.Error()
				outcome = StatusFailed
				return nil
			}
		}

		job.Status = StatusCompleted
		expires := now.Add(e.retention)
		job.ExpiresAt = &expires
		outcome = StatusCompleted
		return nil
	})
	if !committed {
		return
	}

	e.logger.Debug().
		Str("export_id", id).
		Str("status", string(outcome)).
		Msg("export job settled")
}

// transition applies mutate through the repository, retrying conflicts
// with exponential backoff. Conflicts are an internal concern and never
// surface to callers; repeated ones indicate a store discipline bug and
// are logged. Reports whether the mutation committed.
func (e *Engine) transition(id string, mutate func(*Job) error) bool {
	op := func() error {
		_, err := e.repo.Update(context.Background(), id, mutate)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrTransitionConflict) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), transitionMaxRetries)
	if err := backoff.Retry(op, bo); err != nil {
		if errors.Is(err, ErrTransitionConflict) {
			e.logger.Warn().
				Str("export_id", id).
				Msg("export transition conflicted after retries, dropping")
		} else {
			e.logger.Error().
				Err(err).
				Str("export_id", id).
				Msg("export transition failed")
		}
		return false
	}
	return true
}

// schedule arms a timer for the given job and keeps its handle so Close
// can cancel in-flight progressions.
func (e *Engine) schedule(id string, d time.Duration, f func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	t := e.clock.AfterFunc(d, f)
	e.timers[id] = append(e.timers[id], t)
}

// Close stops every pending timer. Jobs caught mid-progression stay in
// their current state.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, timers := range e.timers {
		for _, t := range timers {
			t.Stop()
		}
	}
	e.timers = nil
}
