// Package memory provides an in-memory job store. It is safe for concurrent
// use and intended for unit testing and development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/id"
	"github.com/xraph/delayed/job"
	"github.com/xraph/delayed/store"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job
	now  func() time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new job.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j.ApplyDefaults(m.now())
	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return delayed.ErrJobAlreadyExists
	}
	m.jobs[key] = j.Clone()
	return nil
}

// FindAndLock selects the first matching job in reservation order and locks
// it, all under the write lock.
func (m *Store) FindAndLock(_ context.Context, f job.Filter) (id.JobID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *job.Job
	for _, j := range m.jobs {
		if !f.Matches(j) {
			continue
		}
		if best == nil || job.ReserveLess(j, best) {
			best = j
		}
	}
	if best == nil {
		return id.Nil, nil
	}

	best.Lock(f.Worker, f.Now)
	best.UpdatedAt = f.Now
	return best.ID, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, delayed.ErrJobNotFound
	}
	return j.Clone(), nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return delayed.ErrJobNotFound
	}
	j.UpdatedAt = m.now()
	m.jobs[key] = j.Clone()
	return nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return delayed.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// ClearLocks releases every lock held by worker.
func (m *Store) ClearLocks(_ context.Context, worker string) (int64, error) {
	if worker == "" {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	now := m.now()
	for _, j := range m.jobs {
		if j.LockedBy != worker {
			continue
		}
		j.Unlock()
		j.UpdatedAt = now
		n++
	}
	return n, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		if opts.Status != "" && j.Status() != opts.Status {
			continue
		}
		count++
	}
	return count, nil
}
