package export

import (
	"context"
	"sync"
)

// InMemoryRepository is the process-lifetime implementation of Repository.
// Jobs live only as long as the process; retention and purging are an
// external concern.
type InMemoryRepository struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string // job ids, most recent first
}

// NewInMemoryRepository creates an empty in-memory job store.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		jobs: make(map[string]*Job),
	}
}

// Insert adds a new job at the head of the ordering.
func (r *InMemoryRepository) Insert(ctx context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return ErrDuplicateID
	}

	stored := job.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	r.jobs[stored.ID] = stored
	r.order = append([]string{stored.ID}, r.order...)
	return nil
}

// Get retrieves a copy of the job with the given id.
func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// Update applies mutate atomically to the stored record. The mutation runs
// against a copy; the copy replaces the stored record only if mutate
// succeeds, so a failed mutation can never leave a half-written job.
func (r *InMemoryRepository) Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}

	updated := job.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}
	updated.Version = job.Version + 1

	r.jobs[id] = updated
	return updated.Clone(), nil
}

// All returns copies of every job, most recent first.
func (r *InMemoryRepository) All(ctx context.Context) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Job, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.jobs[id].Clone())
	}
	return out, nil
}

// Len returns the number of stored jobs.
func (r *InMemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Ensure InMemoryRepository implements Repository.
var _ Repository = (*InMemoryRepository)(nil)
