package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/delayed/id"
	"github.com/xraph/delayed/job"
)

// jobModel is the stored document. Lock and failure fields are written as
// BSON null when unset so that descending locked_by order puts unlocked
// jobs last.
type jobModel struct {
	ID        string     `bson:"_id"`
	Priority  int        `bson:"priority"`
	Attempts  int        `bson:"attempts"`
	Handler   []byte     `bson:"handler"`
	Queue     string     `bson:"queue"`
	RunAt     time.Time  `bson:"run_at"`
	LockedAt  *time.Time `bson:"locked_at"`
	LockedBy  *string    `bson:"locked_by"`
	FailedAt  *time.Time `bson:"failed_at"`
	LastError string     `bson:"last_error,omitempty"`
	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

func toJobModel(j *job.Job) *jobModel {
	m := &jobModel{
		ID:        j.ID.String(),
		Priority:  j.Priority,
		Attempts:  j.Attempts,
		Handler:   j.Handler,
		Queue:     j.Queue,
		RunAt:     j.RunAt,
		LockedAt:  j.LockedAt,
		FailedAt:  j.FailedAt,
		LastError: j.LastError,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if j.LockedBy != "" {
		lockedBy := j.LockedBy
		m.LockedBy = &lockedBy
	}
	return m
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("delayed/mongo: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		ID:        parsedID,
		Priority:  m.Priority,
		Attempts:  m.Attempts,
		Handler:   m.Handler,
		Queue:     m.Queue,
		RunAt:     m.RunAt.UTC(),
		LockedAt:  utcPtr(m.LockedAt),
		FailedAt:  utcPtr(m.FailedAt),
		LastError: m.LastError,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
	if m.LockedBy != nil {
		j.LockedBy = *m.LockedBy
	}
	return j, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
