package job

import (
	"context"

	"github.com/xraph/delayed/id"
)

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Queue filters by queue tag. Empty means all queues.
	Queue string
	// Status filters by lifecycle status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for jobs.
type Store interface {
	// EnqueueJob persists a new job. The store assigns the ID when it is
	// nil and defaults RunAt to the creation time when it is zero.
	EnqueueJob(ctx context.Context, j *Job) error

	// FindAndLock atomically selects the first job matching f in
	// ReserveLess order and, in the same step, locks it for f.Worker at
	// f.Now. It returns id.Nil when no job matched. Implementations must
	// not split the match and the lock into separate requests.
	FindAndLock(ctx context.Context, f Filter) (id.JobID, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, j *Job) error

	// DeleteJob removes a job by ID.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// ClearLocks clears locked_at and locked_by on every job locked by
	// worker and returns how many jobs were changed.
	ClearLocks(ctx context.Context, worker string) (int64, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
