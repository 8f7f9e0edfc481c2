package job

import (
	"slices"
	"time"

	"github.com/xraph/delayed"
)

// Criteria are the worker-level bounds on which jobs it accepts.
type Criteria struct {
	// MinPriority and MaxPriority are inclusive. Nil means unbounded.
	MinPriority *int
	MaxPriority *int

	// Queues lists accepted queue tags. Empty means every queue.
	Queues []string
}

// CriteriaFromConfig extracts the reservation bounds from cfg.
func CriteriaFromConfig(cfg delayed.Config) Criteria {
	return Criteria{
		MinPriority: cfg.MinPriority,
		MaxPriority: cfg.MaxPriority,
		Queues:      cfg.Queues,
	}
}

// Filter is the predicate identifying jobs a single reservation attempt may
// claim. It has no side effects; stores translate it into their query
// language.
type Filter struct {
	Criteria

	// Now is the reservation time. It is also the lock timestamp.
	Now time.Time

	// Worker is the identity requesting the reservation.
	Worker string

	// MaxRunTime is how long a lock is honoured.
	MaxRunTime time.Duration
}

// NewFilter builds the filter for one reservation attempt.
func NewFilter(now time.Time, worker string, maxRunTime time.Duration, c Criteria) Filter {
	return Filter{
		Criteria:   c,
		Now:        now,
		Worker:     worker,
		MaxRunTime: maxRunTime,
	}
}

// StaleBefore is the lock age cut-off: a lock taken at or before this
// instant is abandoned and may be reclaimed by any worker.
func (f Filter) StaleBefore() time.Time {
	return f.Now.Add(-f.MaxRunTime)
}

// Matches reports whether j may be reserved under f.
func (f Filter) Matches(j *Job) bool {
	if j.RunAt.After(f.Now) {
		return false
	}
	if j.FailedAt != nil {
		return false
	}
	if f.MinPriority != nil && j.Priority < *f.MinPriority {
		return false
	}
	if f.MaxPriority != nil && j.Priority > *f.MaxPriority {
		return false
	}
	if len(f.Queues) > 0 && !slices.Contains(f.Queues, j.Queue) {
		return false
	}
	return f.lockAvailable(j)
}

func (f Filter) lockAvailable(j *Job) bool {
	switch {
	case j.LockedBy != "" && j.LockedBy == f.Worker:
		return true
	case j.LockedAt == nil:
		return true
	default:
		return !j.LockedAt.After(f.StaleBefore())
	}
}

// ReserveLess orders reservation candidates: locked_by descending with
// unlocked jobs last, then priority ascending, then run_at ascending. The
// ID breaks remaining ties so the order is total.
func ReserveLess(a, b *Job) bool {
	if a.LockedBy != b.LockedBy {
		if a.LockedBy == "" {
			return false
		}
		if b.LockedBy == "" {
			return true
		}
		return a.LockedBy > b.LockedBy
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.RunAt.Equal(b.RunAt) {
		return a.RunAt.Before(b.RunAt)
	}
	return a.ID.Compare(b.ID) < 0
}
