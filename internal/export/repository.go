package export

import "context"

// Repository is the single source of truth for export job records. All
// mutation goes through Insert and Update; other components never hold a
// direct reference to a stored record.
type Repository interface {
	// Insert adds a new job at the head of the ordering. Returns
	// ErrDuplicateID if a job with the same id already exists.
	Insert(ctx context.Context, job *Job) error

	// Get retrieves a job by id. Returns ErrJobNotFound if absent.
	Get(ctx context.Context, id string) (*Job, error)

	// Update applies mutate atomically to the stored record and bumps its
	// version. If mutate returns an error the record is left untouched and
	// the error is returned verbatim. Returns ErrJobNotFound if the id is
	// absent, otherwise a copy of the committed record.
	Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error)

	// All returns every job, most recent first by requested time. Callers
	// slice for pagination.
	All(ctx context.Context) ([]*Job, error)
}
