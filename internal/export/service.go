package export

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the export service.
type ServiceConfig struct {
	Repository Repository
	Clock      Clock
	Logger     zerolog.Logger

	ProcessingDelay time.Duration
	CompletionDelay time.Duration
	RetentionWindow time.Duration
	FailureHook     FailureHook
	IDGenerator     func() string

	DownloadSigningKey string
	DownloadIssuer     string
	BaseURL            string
}

// Service is the boundary consumed by the API layer. It composes the
// lifecycle engine, the query engine and the download gate over a single
// job store.
type Service struct {
	repo   Repository
	clock  Clock
	logger zerolog.Logger
	engine *Engine
	query  *Query
	gate   *Gate
}

// NewService creates an export service. A nil Repository gets a fresh
// in-memory store; a nil Clock gets the system clock.
func NewService(cfg ServiceConfig) *Service {
	repo := cfg.Repository
	if repo == nil {
		repo = NewInMemoryRepository()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = NewSystemClock()
	}

	engine := NewEngine(EngineConfig{
		Repository:      repo,
		Clock:           clock,
		Logger:          cfg.Logger,
		ProcessingDelay: cfg.ProcessingDelay,
		CompletionDelay: cfg.CompletionDelay,
		RetentionWindow: cfg.RetentionWindow,
		FailureHook:     cfg.FailureHook,
		IDGenerator:     cfg.IDGenerator,
	})

	query := NewQuery(repo, clock, cfg.Logger)

	gate := NewGate(GateConfig{
		Repository: repo,
		Clock:      clock,
		Logger:     cfg.Logger,
		SigningKey: cfg.DownloadSigningKey,
		Issuer:     cfg.DownloadIssuer,
		BaseURL:    cfg.BaseURL,
	})

	return &Service{
		repo:   repo,
		clock:  clock,
		logger: cfg.Logger,
		engine: engine,
		query:  query,
		gate:   gate,
	}
}

// Submit creates a new export job and returns it in its pending state.
// Fails with ErrInvalidFormat when the format is unsupported for the kind;
// no job is created in that case.
func (s *Service) Submit(ctx context.Context, kind Kind, format Format, filters Filters) (*Job, error) {
	return s.engine.Submit(ctx, kind, format, filters)
}

// Get retrieves a job by id. A failed job is a normal record with
// StatusFailed and a failure reason, not an error. A completed job past
// its expiry is lazily flipped to expired before it is returned, the same
// transition the listing sweep and the download gate perform.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if job.Status == StatusCompleted && job.ExpiresAt != nil && now.After(*job.ExpiresAt) {
		updated, err := s.repo.Update(ctx, id, markExpired(now))
		if err != nil {
			if errors.Is(err, errAlreadyCurrent) {
				return s.repo.Get(ctx, id)
			}
			s.logger.Warn().Err(err).Str("export_id", id).Msg("lazy expiry failed")
			return job, nil
		}
		return updated, nil
	}

	return job, nil
}

// List returns a filtered, paginated view of the job store.
func (s *Service) List(ctx context.Context, opts ListOptions) (*Page, error) {
	return s.query.List(ctx, opts)
}

// RequestDownload mints a download grant for a completed, unexpired job.
func (s *Service) RequestDownload(ctx context.Context, id string) (*Grant, error) {
	return s.gate.RequestDownload(ctx, id)
}

// VerifyDownloadToken validates a previously minted download token and
// returns the job id it grants.
func (s *Service) VerifyDownloadToken(token string) (string, error) {
	return s.gate.Verify(token)
}

// Close cancels all pending progression timers.
func (s *Service) Close() {
	s.engine.Close()
}
