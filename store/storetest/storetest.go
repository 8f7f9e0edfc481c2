// Package storetest is a conformance suite for store.Store backends. The
// memory store runs it as a unit test; the database backends run it
// against containers under the integration build tag.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/id"
	"github.com/xraph/delayed/job"
	"github.com/xraph/delayed/store"
)

// Factory returns an empty, migrated store. It registers its own cleanup.
type Factory func(t *testing.T) store.Store

// maxRunTime is the lock lifetime used throughout the suite.
const maxRunTime = time.Hour

// Run executes every conformance test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Lifecycle", testLifecycle},
		{"EnqueueAndGet", testEnqueueAndGet},
		{"EnqueueDefaults", testEnqueueDefaults},
		{"UpdateAndDelete", testUpdateAndDelete},
		{"FindAndLockEmpty", testFindAndLockEmpty},
		{"FindAndLockLocksJob", testFindAndLockLocksJob},
		{"FindAndLockSkipsFutureAndFailed", testFindAndLockSkipsFutureAndFailed},
		{"FindAndLockPriorityOrder", testFindAndLockPriorityOrder},
		{"FindAndLockRunAtOrder", testFindAndLockRunAtOrder},
		{"FindAndLockOwnLockFirst", testFindAndLockOwnLockFirst},
		{"FindAndLockFreshLockExcluded", testFindAndLockFreshLockExcluded},
		{"FindAndLockStaleLockByteOrder", testFindAndLockStaleLockByteOrder},
		{"FindAndLockStaleBoundary", testFindAndLockStaleBoundary},
		{"FindAndLockCriteria", testFindAndLockCriteria},
		{"ClearLocks", testClearLocks},
		{"CountJobs", testCountJobs},
		{"ConcurrentReservation", testConcurrentReservation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// base is truncated to the coarsest precision of any backend so that
// timestamps compare exactly after a round trip.
func base() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func intPtr(n int) *int { return &n }

func enqueue(t *testing.T, s store.Store, j *job.Job) *job.Job {
	t.Helper()
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	return j
}

func dueJob(now time.Time, priority int) *job.Job {
	return job.New([]byte(`{"name":"noop"}`), job.WithPriority(priority), job.WithRunAt(now.Add(-time.Minute)))
}

func lockedJob(now time.Time, worker string, lockedAt time.Time) *job.Job {
	j := dueJob(now, 0)
	j.Lock(worker, lockedAt)
	return j
}

func findAndLock(t *testing.T, s store.Store, now time.Time, worker string, c job.Criteria) id.JobID {
	t.Helper()
	got, err := s.FindAndLock(context.Background(), job.NewFilter(now, worker, maxRunTime, c))
	if err != nil {
		t.Fatalf("FindAndLock: %v", err)
	}
	return got
}

func mustGet(t *testing.T, s store.Store, jobID id.JobID) *job.Job {
	t.Helper()
	j, err := s.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob(%s): %v", jobID, err)
	}
	return j
}

func assertID(t *testing.T, got, want id.JobID) {
	t.Helper()
	if got.String() != want.String() {
		t.Fatalf("reserved %q, want %q", got, want)
	}
}

func testLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func testEnqueueAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()

	j := job.New([]byte(`{"name":"send-email"}`), job.WithQueue("mail"), job.WithPriority(-3), job.WithRunAt(now))
	enqueue(t, s, j)

	got := mustGet(t, s, j.ID)
	if got.Queue != "mail" || got.Priority != -3 || !got.RunAt.Equal(now) {
		t.Errorf("got %+v", got)
	}
	if string(got.Handler) != `{"name":"send-email"}` {
		t.Errorf("Handler = %s", got.Handler)
	}
	if got.IsLocked() || got.IsFailed() {
		t.Errorf("new job: locked=%v failed=%v", got.IsLocked(), got.IsFailed())
	}

	dup := &job.Job{ID: j.ID, Handler: []byte("x"), RunAt: now}
	if err := s.EnqueueJob(ctx, dup); !errors.Is(err, delayed.ErrJobAlreadyExists) {
		t.Errorf("duplicate enqueue: expected ErrJobAlreadyExists, got %v", err)
	}

	_, err := s.GetJob(ctx, id.NewJobID())
	if !errors.Is(err, delayed.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if !errors.Is(err, delayed.ErrNotFound) {
		t.Errorf("ErrJobNotFound should match ErrNotFound, got %v", err)
	}
}

func testEnqueueDefaults(t *testing.T, s store.Store) {
	before := time.Now().UTC().Add(-time.Second)

	j := enqueue(t, s, job.New([]byte("x")))
	if j.ID.IsNil() {
		t.Fatal("expected the store to assign an ID")
	}

	got := mustGet(t, s, j.ID)
	if got.RunAt.Before(before) {
		t.Errorf("RunAt = %v, want the creation time", got.RunAt)
	}
	if got.Priority != 0 || got.Attempts != 0 {
		t.Errorf("priority/attempts = %d/%d, want 0/0", got.Priority, got.Attempts)
	}

	// A job enqueued without run_at is due immediately.
	assertID(t, findAndLock(t, s, time.Now().UTC().Add(time.Second), "w", job.Criteria{}), j.ID)
}

func testUpdateAndDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()

	j := enqueue(t, s, dueJob(now, 0))
	j.Attempts = 2
	j.LastError = "boom"
	j.RunAt = now.Add(time.Hour)
	j.MarkFailed(now)
	if err := s.UpdateJob(ctx, j); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	got := mustGet(t, s, j.ID)
	if got.Attempts != 2 || got.LastError != "boom" || !got.RunAt.Equal(now.Add(time.Hour)) {
		t.Errorf("after update: %+v", got)
	}
	if got.FailedAt == nil || !got.FailedAt.Equal(now) {
		t.Errorf("FailedAt = %v, want %v", got.FailedAt, now)
	}

	if err := s.DeleteJob(ctx, j.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if err := s.DeleteJob(ctx, j.ID); !errors.Is(err, delayed.ErrJobNotFound) {
		t.Errorf("second delete: expected ErrJobNotFound, got %v", err)
	}
	if err := s.UpdateJob(ctx, j); !errors.Is(err, delayed.ErrJobNotFound) {
		t.Errorf("update deleted: expected ErrJobNotFound, got %v", err)
	}
}

func testFindAndLockEmpty(t *testing.T, s store.Store) {
	if got := findAndLock(t, s, base(), "w", job.Criteria{}); !got.IsNil() {
		t.Fatalf("empty store reserved %s", got)
	}
}

func testFindAndLockLocksJob(t *testing.T, s store.Store) {
	now := base()
	j := enqueue(t, s, dueJob(now, 0))

	assertID(t, findAndLock(t, s, now, "worker-a", job.Criteria{}), j.ID)

	got := mustGet(t, s, j.ID)
	if got.LockedBy != "worker-a" {
		t.Errorf("LockedBy = %q, want worker-a", got.LockedBy)
	}
	if got.LockedAt == nil || !got.LockedAt.Equal(now) {
		t.Errorf("LockedAt = %v, want %v", got.LockedAt, now)
	}

	if other := findAndLock(t, s, now, "worker-b", job.Criteria{}); !other.IsNil() {
		t.Errorf("worker-b reserved a job locked by worker-a: %s", other)
	}
}

func testFindAndLockSkipsFutureAndFailed(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()

	enqueue(t, s, job.New([]byte("future"), job.WithRunAt(now.Add(time.Millisecond))))
	failed := dueJob(now, -100)
	failed.MarkFailed(now.Add(-time.Second))
	enqueue(t, s, failed)

	if got := findAndLock(t, s, now, "w", job.Criteria{}); !got.IsNil() {
		t.Fatalf("reserved %s; future and failed jobs must be skipped", got)
	}

	// A failed job is never reserved, not even by the worker holding it.
	failed.Lock("w", now)
	if err := s.UpdateJob(ctx, failed); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if got := findAndLock(t, s, now, "w", job.Criteria{}); !got.IsNil() {
		t.Fatalf("reserved failed job %s", got)
	}
}

func testFindAndLockPriorityOrder(t *testing.T, s store.Store) {
	now := base()
	j1 := enqueue(t, s, dueJob(now, 5))
	j2 := enqueue(t, s, dueJob(now, 1))

	assertID(t, findAndLock(t, s, now, "w1", job.Criteria{}), j2.ID)
	assertID(t, findAndLock(t, s, now, "w2", job.Criteria{}), j1.ID)
}

func testFindAndLockRunAtOrder(t *testing.T, s store.Store) {
	now := base()
	newer := enqueue(t, s, job.New([]byte("n"), job.WithRunAt(now.Add(-time.Minute))))
	older := enqueue(t, s, job.New([]byte("o"), job.WithRunAt(now.Add(-time.Hour))))

	assertID(t, findAndLock(t, s, now, "w1", job.Criteria{}), older.ID)
	assertID(t, findAndLock(t, s, now, "w2", job.Criteria{}), newer.ID)
}

func testFindAndLockOwnLockFirst(t *testing.T, s store.Store) {
	now := base()
	enqueue(t, s, dueJob(now, -50))
	mine := enqueue(t, s, lockedJob(now, "worker-a", now.Add(-time.Minute)))

	got := findAndLock(t, s, now, "worker-a", job.Criteria{})
	assertID(t, got, mine.ID)

	relocked := mustGet(t, s, mine.ID)
	if relocked.LockedAt == nil || !relocked.LockedAt.Equal(now) {
		t.Errorf("LockedAt = %v, want refreshed to %v", relocked.LockedAt, now)
	}
}

func testFindAndLockFreshLockExcluded(t *testing.T, s store.Store) {
	now := base()
	enqueue(t, s, lockedJob(now, "worker-a", now.Add(-time.Minute)))

	if got := findAndLock(t, s, now, "worker-b", job.Criteria{}); !got.IsNil() {
		t.Fatalf("worker-b reserved %s under worker-a's fresh lock", got)
	}
}

// Stale locks compete by locked_by in byte order: "worker-a" sorts after
// "Worker-B" because 'w' > 'W', whatever the server's collation says.
func testFindAndLockStaleLockByteOrder(t *testing.T, s store.Store) {
	now := base()
	stale := now.Add(-2 * maxRunTime)
	upper := enqueue(t, s, lockedJob(now, "Worker-B", stale))
	lower := enqueue(t, s, lockedJob(now, "worker-a", stale))

	assertID(t, findAndLock(t, s, now, "worker-c", job.Criteria{}), lower.ID)
	assertID(t, findAndLock(t, s, now, "worker-d", job.Criteria{}), upper.ID)
}

func testFindAndLockStaleBoundary(t *testing.T, s store.Store) {
	lockTime := base().Add(-2 * maxRunTime)
	j := enqueue(t, s, lockedJob(lockTime, "worker-a", lockTime))

	if got := findAndLock(t, s, lockTime.Add(maxRunTime-time.Millisecond), "worker-b", job.Criteria{}); !got.IsNil() {
		t.Fatalf("lock reclaimed before expiry: %s", got)
	}

	expiry := lockTime.Add(maxRunTime)
	assertID(t, findAndLock(t, s, expiry, "worker-b", job.Criteria{}), j.ID)

	got := mustGet(t, s, j.ID)
	if got.LockedBy != "worker-b" || !got.LockedAt.Equal(expiry) {
		t.Errorf("lock = %s@%v, want worker-b@%v", got.LockedBy, got.LockedAt, expiry)
	}
}

func testFindAndLockCriteria(t *testing.T, s store.Store) {
	now := base()
	low := enqueue(t, s, dueJob(now, 1))
	mid := enqueue(t, s, dueJob(now, 5))
	high := enqueue(t, s, dueJob(now, 9))
	mail := enqueue(t, s, job.New([]byte("m"), job.WithQueue("mail"), job.WithPriority(20), job.WithRunAt(now)))

	tests := []struct {
		name     string
		criteria job.Criteria
		want     id.JobID
	}{
		{"min priority", job.Criteria{MinPriority: intPtr(6), MaxPriority: intPtr(10)}, high.ID},
		{"max priority", job.Criteria{MaxPriority: intPtr(1)}, low.ID},
		{"priority window", job.Criteria{MinPriority: intPtr(2), MaxPriority: intPtr(8)}, mid.ID},
		{"queue", job.Criteria{Queues: []string{"video", "mail"}}, mail.ID},
		{"no match", job.Criteria{Queues: []string{"video"}}, id.Nil},
	}

	for i, tt := range tests {
		got := findAndLock(t, s, now, fmt.Sprintf("worker-%d", i), tt.criteria)
		if got.String() != tt.want.String() {
			t.Errorf("%s: reserved %q, want %q", tt.name, got, tt.want)
		}
	}
}

func testClearLocks(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()

	a1 := enqueue(t, s, lockedJob(now, "worker-a", now.Add(-time.Minute)))
	a2 := enqueue(t, s, lockedJob(now, "worker-a", now.Add(-2*maxRunTime)))
	b := enqueue(t, s, lockedJob(now, "worker-b", now.Add(-time.Minute)))

	n, err := s.ClearLocks(ctx, "worker-a")
	if err != nil {
		t.Fatalf("ClearLocks: %v", err)
	}
	if n != 2 {
		t.Errorf("cleared %d locks, want 2", n)
	}

	for _, j := range []*job.Job{a1, a2} {
		if got := mustGet(t, s, j.ID); got.IsLocked() || got.LockedAt != nil {
			t.Errorf("job %s still locked by %q", got.ID, got.LockedBy)
		}
	}
	if got := mustGet(t, s, b.ID); got.LockedBy != "worker-b" {
		t.Errorf("worker-b's lock was cleared")
	}

	n, err = s.ClearLocks(ctx, "worker-a")
	if err != nil || n != 0 {
		t.Errorf("second ClearLocks = %d, %v; want 0, nil", n, err)
	}
	if n, _ := s.ClearLocks(ctx, "nobody"); n != 0 {
		t.Errorf("ClearLocks for unknown worker cleared %d", n)
	}
}

func testCountJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()

	enqueue(t, s, job.New([]byte("a"), job.WithQueue("mail"), job.WithRunAt(now)))
	enqueue(t, s, job.New([]byte("b"), job.WithQueue("mail"), job.WithRunAt(now)))
	enqueue(t, s, lockedJob(now, "w", now))
	failed := dueJob(now, 0)
	failed.MarkFailed(now)
	enqueue(t, s, failed)

	tests := []struct {
		name string
		opts job.CountOpts
		want int64
	}{
		{"all", job.CountOpts{}, 4},
		{"queue", job.CountOpts{Queue: "mail"}, 2},
		{"pending", job.CountOpts{Status: job.StatusPending}, 2},
		{"locked", job.CountOpts{Status: job.StatusLocked}, 1},
		{"failed", job.CountOpts{Status: job.StatusFailed}, 1},
		{"pending mail", job.CountOpts{Queue: "mail", Status: job.StatusPending}, 2},
	}

	for _, tt := range tests {
		got, err := s.CountJobs(ctx, tt.opts)
		if err != nil {
			t.Fatalf("%s: CountJobs: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: count = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func testConcurrentReservation(t *testing.T, s store.Store) {
	const (
		jobs    = 40
		workers = 8
	)
	now := base()
	for i := 0; i < jobs; i++ {
		enqueue(t, s, dueJob(now, i%3))
	}

	var (
		mu      sync.Mutex
		claimed = make(map[string]string, jobs)
	)

	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		worker := fmt.Sprintf("worker-%d", w)
		g.Go(func() error {
			for {
				got, err := s.FindAndLock(ctx, job.NewFilter(now, worker, maxRunTime, job.Criteria{}))
				if err != nil {
					return err
				}
				if got.IsNil() {
					return nil
				}
				mu.Lock()
				prev, dup := claimed[got.String()]
				claimed[got.String()] = worker
				mu.Unlock()
				if dup {
					return fmt.Errorf("job %s claimed by both %s and %s", got, prev, worker)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if len(claimed) != jobs {
		t.Fatalf("claimed %d jobs, want %d", len(claimed), jobs)
	}
}
