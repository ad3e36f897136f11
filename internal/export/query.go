package export

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Page size bounds for listings.
const (
	DefaultPageSize = 20
	MinPageSize     = 1
	MaxPageSize     = 100
)

// ListOptions narrows and pages a listing. Zero values mean "no filter".
type ListOptions struct {
	// Search matches case-insensitive substrings of id, kind and format.
	Search string

	Status Status
	Format Format

	// From and To bound RequestedAt inclusively at day granularity. Both
	// are interpreted as UTC dates; time-of-day is ignored.
	From time.Time
	To   time.Time

	Page     int
	PageSize int
}

// Page is one page of a filtered listing.
type Page struct {
	Items    []*Job
	Total    int
	Page     int
	PageSize int
}

// Query answers paginated, filtered views over the job store for the
// listing screens. Listing first sweeps overdue completed jobs to expired,
// so a status filter never returns stale rows.
type Query struct {
	repo   Repository
	clock  Clock
	logger zerolog.Logger
}

// NewQuery creates a query engine over the given store.
func NewQuery(repo Repository, clock Clock, logger zerolog.Logger) *Query {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &Query{repo: repo, clock: clock, logger: logger}
}

// List returns the requested page of the filtered, reverse-chronological
// job set. An out-of-range page clamps to the last valid page; an empty
// result set yields Total 0 and no items.
func (q *Query) List(ctx context.Context, opts ListOptions) (*Page, error) {
	q.sweepExpired(ctx)

	jobs, err := q.repo.All(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*Job, 0, len(jobs))
	for _, job := range jobs {
		if q.matches(job, opts) {
			filtered = append(filtered, job)
		}
	}

	pageSize := clampPageSize(opts.PageSize)
	page := opts.Page
	if page < 1 {
		page = 1
	}

	total := len(filtered)
	lastPage := (total + pageSize - 1) / pageSize
	if lastPage < 1 {
		lastPage = 1
	}
	if page > lastPage {
		page = lastPage
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return &Page{
		Items:    filtered[start:end],
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// matches applies free-text, status, format and date-range filters, each
// narrowing the candidate set.
func (q *Query) matches(job *Job, opts ListOptions) bool {
	if search := strings.TrimSpace(opts.Search); search != "" {
		needle := strings.ToLower(search)
		if !strings.Contains(strings.ToLower(job.ID), needle) &&
			!strings.Contains(strings.ToLower(string(job.Kind)), needle) &&
			!strings.Contains(strings.ToLower(string(job.Format)), needle) {
			return false
		}
	}

	if opts.Status != "" && job.Status != opts.Status {
		return false
	}

	if opts.Format != "" && job.Format != opts.Format {
		return false
	}

	day := dayOf(job.RequestedAt)
	if !opts.From.IsZero() && day.Before(dayOf(opts.From)) {
		return false
	}
	if !opts.To.IsZero() && day.After(dayOf(opts.To)) {
		return false
	}

	return true
}

// sweepExpired flips overdue completed jobs to expired so listings never
// report a downloadable artifact that is already past retention. This is a
// deliberate write during a read path; the download gate performs the same
// lazy transition on lookup.
func (q *Query) sweepExpired(ctx context.Context) {
	now := q.clock.Now()

	jobs, err := q.repo.All(ctx)
	if err != nil {
		q.logger.Error().Err(err).Msg("expiry sweep: listing jobs failed")
		return
	}

	for _, job := range jobs {
		if job.Status != StatusCompleted || job.ExpiresAt == nil || !now.After(*job.ExpiresAt) {
			continue
		}
		if _, err := q.repo.Update(ctx, job.ID, markExpired(now)); err != nil && !errors.Is(err, errAlreadyCurrent) {
			q.logger.Warn().Err(err).Str("export_id", job.ID).Msg("expiry sweep: update failed")
		}
	}
}

// errAlreadyCurrent aborts an expiry mutation that raced with another
// writer and found nothing left to do.
var errAlreadyCurrent = errors.New("job no longer due for expiry")

// markExpired returns a mutation taking the completed→expired edge, or
// errAlreadyCurrent when the job raced out from under the caller.
func markExpired(now time.Time) func(*Job) error {
	return func(job *Job) error {
		if job.Status != StatusCompleted || job.ExpiresAt == nil || !now.After(*job.ExpiresAt) {
			return errAlreadyCurrent
		}
		job.Status = StatusExpired
		return nil
	}
}

func clampPageSize(size int) int {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size < MinPageSize:
		return MinPageSize
	case size > MaxPageSize:
		return MaxPageSize
	}
	return size
}

// dayOf truncates t to its UTC calendar day.
func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
