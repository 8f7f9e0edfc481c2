package job

import (
	"time"

	"github.com/xraph/delayed/id"
)

// Status summarises where a job is in its lifecycle.
type Status string

const (
	// StatusPending means the job is waiting to be reserved.
	StatusPending Status = "pending"
	// StatusLocked means a worker holds a reservation on the job.
	StatusLocked Status = "locked"
	// StatusFailed means the job failed permanently and is never reserved.
	StatusFailed Status = "failed"
)

// Job is one queued unit of work.
type Job struct {
	ID       id.JobID `json:"id"`
	Priority int      `json:"priority"`
	Attempts int      `json:"attempts"`
	Handler  []byte   `json:"handler"`

	// Queue is an optional job-class tag. Empty means untagged.
	Queue string `json:"queue,omitempty"`

	RunAt time.Time `json:"run_at"`

	// LockedAt and LockedBy describe the current reservation. Use Lock and
	// Unlock to change them so they stay consistent.
	LockedAt *time.Time `json:"locked_at,omitempty"`
	LockedBy string     `json:"locked_by,omitempty"`

	FailedAt  *time.Time `json:"failed_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an unsaved job carrying handler.
func New(handler []byte, opts ...Option) *Job {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	return &Job{
		Priority: o.Priority,
		Queue:    o.Queue,
		RunAt:    o.RunAt,
		Handler:  handler,
	}
}

// ApplyDefaults fills the fields a store assigns at creation: a fresh ID,
// run_at defaulted to now, and the timestamps.
func (j *Job) ApplyDefaults(now time.Time) {
	if j.ID.IsNil() {
		j.ID = id.NewJobID()
	}
	if j.RunAt.IsZero() {
		j.RunAt = now
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
}

// Lock records a reservation by worker at the given time.
func (j *Job) Lock(worker string, at time.Time) {
	j.LockedAt = &at
	j.LockedBy = worker
}

// Unlock clears the reservation.
func (j *Job) Unlock() {
	j.LockedAt = nil
	j.LockedBy = ""
}

// IsLocked reports whether a worker holds a reservation on the job.
func (j *Job) IsLocked() bool {
	return j.LockedAt != nil && j.LockedBy != ""
}

// IsFailed reports whether the job has failed permanently.
func (j *Job) IsFailed() bool {
	return j.FailedAt != nil
}

// MarkFailed excludes the job from any future reservation.
func (j *Job) MarkFailed(at time.Time) {
	j.FailedAt = &at
}

// Status derives the job's lifecycle status.
func (j *Job) Status() Status {
	switch {
	case j.IsFailed():
		return StatusFailed
	case j.IsLocked():
		return StatusLocked
	default:
		return StatusPending
	}
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Handler != nil {
		cp.Handler = append([]byte(nil), j.Handler...)
	}
	if j.LockedAt != nil {
		t := *j.LockedAt
		cp.LockedAt = &t
	}
	if j.FailedAt != nil {
		t := *j.FailedAt
		cp.FailedAt = &t
	}
	return &cp
}
