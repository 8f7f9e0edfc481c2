package job_test

import (
	"sort"
	"testing"
	"time"

	"github.com/xraph/delayed/id"
	"github.com/xraph/delayed/job"
)

func TestNew(t *testing.T) {
	t.Parallel()
	runAt := t0.Add(time.Hour)
	j := job.New([]byte("payload"), job.WithQueue("mail"), job.WithPriority(3), job.WithRunAt(runAt))

	if j.Queue != "mail" || j.Priority != 3 || !j.RunAt.Equal(runAt) {
		t.Errorf("New() = %+v", j)
	}
	if string(j.Handler) != "payload" {
		t.Errorf("Handler = %q", j.Handler)
	}
	if !j.ID.IsNil() {
		t.Error("unsaved job should not have an ID")
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	t.Run("fills run_at with creation time", func(t *testing.T) {
		j := job.New(nil)
		j.ApplyDefaults(t0)

		if j.ID.IsNil() {
			t.Fatal("expected an ID to be assigned")
		}
		if !j.RunAt.Equal(t0) {
			t.Errorf("RunAt = %v, want %v", j.RunAt, t0)
		}
		if !j.CreatedAt.Equal(t0) || !j.UpdatedAt.Equal(t0) {
			t.Errorf("timestamps = %v / %v, want %v", j.CreatedAt, j.UpdatedAt, t0)
		}
		if j.Priority != 0 || j.Attempts != 0 {
			t.Errorf("priority/attempts = %d/%d, want 0/0", j.Priority, j.Attempts)
		}
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		jobID := id.NewJobID()
		runAt := t0.Add(time.Hour)
		j := &job.Job{ID: jobID, RunAt: runAt}
		j.ApplyDefaults(t0)

		if j.ID.String() != jobID.String() {
			t.Errorf("ID changed to %s", j.ID)
		}
		if !j.RunAt.Equal(runAt) {
			t.Errorf("RunAt = %v, want %v", j.RunAt, runAt)
		}
	})
}

func TestLockUnlock(t *testing.T) {
	t.Parallel()
	j := job.New(nil)

	if j.IsLocked() || j.Status() != job.StatusPending {
		t.Fatalf("new job: locked=%v status=%s", j.IsLocked(), j.Status())
	}

	j.Lock("worker-a", t0)
	if !j.IsLocked() || j.LockedBy != "worker-a" || !j.LockedAt.Equal(t0) {
		t.Fatalf("after Lock: %+v", j)
	}
	if j.Status() != job.StatusLocked {
		t.Errorf("Status() = %s, want locked", j.Status())
	}

	j.Unlock()
	if j.IsLocked() || j.LockedAt != nil || j.LockedBy != "" {
		t.Fatalf("after Unlock: %+v", j)
	}

	j.MarkFailed(t0)
	if !j.IsFailed() || j.Status() != job.StatusFailed {
		t.Errorf("after MarkFailed: failed=%v status=%s", j.IsFailed(), j.Status())
	}
}

func TestClone(t *testing.T) {
	t.Parallel()
	j := job.New([]byte("abc"))
	j.Lock("w", t0)

	cp := j.Clone()
	cp.Handler[0] = 'x'
	*cp.LockedAt = t0.Add(time.Hour)

	if string(j.Handler) != "abc" {
		t.Error("Clone shares handler bytes")
	}
	if !j.LockedAt.Equal(t0) {
		t.Error("Clone shares LockedAt")
	}
}

func TestReserveLess(t *testing.T) {
	t.Parallel()

	mk := func(name string, lockedBy string, priority int, runAt time.Time) *job.Job {
		j := &job.Job{ID: id.NewJobID(), Priority: priority, RunAt: runAt, LastError: name}
		if lockedBy != "" {
			j.Lock(lockedBy, t0)
		}
		return j
	}

	tests := []struct {
		name string
		jobs []*job.Job
		want []string
	}{
		{
			name: "lower priority value first",
			jobs: []*job.Job{mk("J1", "", 5, t0), mk("J2", "", 1, t0)},
			want: []string{"J2", "J1"},
		},
		{
			name: "older run_at breaks priority tie",
			jobs: []*job.Job{mk("new", "", 0, t0), mk("old", "", 0, t0.Add(-time.Hour))},
			want: []string{"old", "new"},
		},
		{
			name: "locked jobs before unlocked regardless of priority",
			jobs: []*job.Job{mk("free", "", -100, t0), mk("mine", "worker-a", 100, t0)},
			want: []string{"mine", "free"},
		},
		{
			name: "locked_by descending",
			jobs: []*job.Job{mk("a", "worker-a", 0, t0), mk("c", "worker-c", 0, t0), mk("b", "worker-b", 0, t0)},
			want: []string{"c", "b", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sort.Slice(tt.jobs, func(i, k int) bool { return job.ReserveLess(tt.jobs[i], tt.jobs[k]) })
			for i, want := range tt.want {
				if got := tt.jobs[i].LastError; got != want {
					t.Errorf("position %d = %s, want %s", i, got, want)
				}
			}
		})
	}
}
