package job_test

import (
	"testing"
	"time"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/id"
	"github.com/xraph/delayed/job"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func dueJob(priority int) *job.Job {
	return &job.Job{
		ID:       id.NewJobID(),
		Priority: priority,
		RunAt:    t0.Add(-time.Minute),
	}
}

func lockedBy(j *job.Job, worker string, at time.Time) *job.Job {
	j.Lock(worker, at)
	return j
}

func TestFilter_Matches(t *testing.T) {
	t.Parallel()

	const maxRunTime = time.Hour
	failedAt := t0.Add(-time.Second)

	tests := []struct {
		name     string
		criteria job.Criteria
		worker   string
		job      *job.Job
		want     bool
	}{
		{"due and unlocked", job.Criteria{}, "a", dueJob(0), true},
		{"run_at equal to now", job.Criteria{}, "a", &job.Job{RunAt: t0}, true},
		{"run_at in the future", job.Criteria{}, "a", &job.Job{RunAt: t0.Add(time.Nanosecond)}, false},
		{"failed", job.Criteria{}, "a", &job.Job{RunAt: t0.Add(-time.Hour), FailedAt: &failedAt}, false},
		{"failed and own lock", job.Criteria{}, "a",
			lockedBy(&job.Job{RunAt: t0.Add(-time.Hour), FailedAt: &failedAt}, "a", t0), false},
		{"below min priority", job.Criteria{MinPriority: intPtr(5)}, "a", dueJob(4), false},
		{"at min priority", job.Criteria{MinPriority: intPtr(5)}, "a", dueJob(5), true},
		{"above max priority", job.Criteria{MaxPriority: intPtr(5)}, "a", dueJob(6), false},
		{"at max priority", job.Criteria{MaxPriority: intPtr(5)}, "a", dueJob(5), true},
		{"negative priority inside range", job.Criteria{MinPriority: intPtr(-10), MaxPriority: intPtr(0)}, "a", dueJob(-3), true},
		{"queue accepted", job.Criteria{Queues: []string{"mail", "video"}}, "a",
			&job.Job{RunAt: t0, Queue: "video"}, true},
		{"queue rejected", job.Criteria{Queues: []string{"mail"}}, "a",
			&job.Job{RunAt: t0, Queue: "video"}, false},
		{"untagged job with queue filter", job.Criteria{Queues: []string{"mail"}}, "a",
			&job.Job{RunAt: t0}, false},
		{"any queue when unset", job.Criteria{}, "a", &job.Job{RunAt: t0, Queue: "video"}, true},
		{"fresh lock by other worker", job.Criteria{}, "b",
			lockedBy(dueJob(0), "a", t0.Add(-time.Minute)), false},
		{"own fresh lock", job.Criteria{}, "a",
			lockedBy(dueJob(0), "a", t0.Add(-time.Minute)), true},
		{"stale lock by other worker", job.Criteria{}, "b",
			lockedBy(dueJob(0), "a", t0.Add(-2*time.Hour)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := job.NewFilter(t0, tt.worker, maxRunTime, tt.criteria)
			if got := f.Matches(tt.job); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_StaleBoundary(t *testing.T) {
	t.Parallel()

	const maxRunTime = 10 * time.Minute
	lockTime := t0
	j := lockedBy(dueJob(0), "worker-a", lockTime)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"well before expiry", lockTime.Add(time.Minute), false},
		{"one nanosecond before expiry", lockTime.Add(maxRunTime - time.Nanosecond), false},
		{"exactly at expiry", lockTime.Add(maxRunTime), true},
		{"after expiry", lockTime.Add(maxRunTime + time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := job.NewFilter(tt.now, "worker-b", maxRunTime, job.Criteria{})
			if got := f.Matches(j); got != tt.want {
				t.Errorf("Matches() at lock+%s = %v, want %v", tt.now.Sub(lockTime), got, tt.want)
			}
		})
	}
}

func TestFilter_StaleBefore(t *testing.T) {
	t.Parallel()
	f := job.NewFilter(t0, "a", 4*time.Hour, job.Criteria{})
	if want := t0.Add(-4 * time.Hour); !f.StaleBefore().Equal(want) {
		t.Errorf("StaleBefore() = %v, want %v", f.StaleBefore(), want)
	}
}

func TestCriteriaFromConfig(t *testing.T) {
	t.Parallel()
	cfg := delayed.NewConfig(
		delayed.WithMinPriority(1),
		delayed.WithMaxPriority(9),
		delayed.WithQueues("mail"),
	)

	c := job.CriteriaFromConfig(cfg)
	if c.MinPriority == nil || *c.MinPriority != 1 {
		t.Errorf("MinPriority = %v, want 1", c.MinPriority)
	}
	if c.MaxPriority == nil || *c.MaxPriority != 9 {
		t.Errorf("MaxPriority = %v, want 9", c.MaxPriority)
	}
	if len(c.Queues) != 1 || c.Queues[0] != "mail" {
		t.Errorf("Queues = %v, want [mail]", c.Queues)
	}
}
