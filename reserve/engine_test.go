package reserve_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/job"
	"github.com/xraph/delayed/reserve"
	"github.com/xraph/delayed/store/memory"
)

const maxRunTime = time.Hour

func newEngine(s job.Store, c *clock, opts ...reserve.Option) *reserve.Engine {
	return reserve.NewEngine(s, append([]reserve.Option{reserve.WithClock(c.Now)}, opts...)...)
}

func TestReserve_LocksJob(t *testing.T) {
	s := memory.New()
	c := &clock{now: t0}
	j := enqueue(t, s, dueJob(0))

	got, err := newEngine(s, c).Reserve(context.Background(), "worker-a", maxRunTime)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got == nil || got.ID.String() != j.ID.String() {
		t.Fatalf("Reserve = %v, want %s", got, j.ID)
	}
	if got.LockedBy != "worker-a" || got.LockedAt == nil || !got.LockedAt.Equal(t0) {
		t.Errorf("lock = %q@%v, want worker-a@%v", got.LockedBy, got.LockedAt, t0)
	}
	if string(got.Handler) != `{"name":"noop"}` {
		t.Errorf("Handler = %s; expected the full record", got.Handler)
	}
}

func TestReserve_Empty(t *testing.T) {
	got, err := newEngine(memory.New(), &clock{now: t0}).Reserve(context.Background(), "w", maxRunTime)
	if err != nil || got != nil {
		t.Fatalf("Reserve = %v, %v; want nil, nil", got, err)
	}
}

func TestReserve_NeverSelectsFailedOrFuture(t *testing.T) {
	s := memory.New()
	c := &clock{now: t0}

	failedAt := t0.Add(-time.Hour)
	failed := dueJob(-100)
	failed.FailedAt = &failedAt
	failed.Lock("w", t0.Add(-time.Minute))
	enqueue(t, s, failed)
	enqueue(t, s, job.New(nil, job.WithPriority(-100), job.WithRunAt(t0.Add(time.Second))))

	got, err := newEngine(s, c).Reserve(context.Background(), "w", maxRunTime)
	if err != nil || got != nil {
		t.Fatalf("Reserve = %v, %v; want nil, nil", got, err)
	}
}

func TestReserve_PriorityTieBreak(t *testing.T) {
	s := memory.New()
	e := newEngine(s, &clock{now: t0})

	j1 := enqueue(t, s, job.New(nil, job.WithPriority(5), job.WithRunAt(t0)))
	j2 := enqueue(t, s, job.New(nil, job.WithPriority(1), job.WithRunAt(t0)))

	first, err := e.Reserve(context.Background(), "w1", maxRunTime)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	second, err := e.Reserve(context.Background(), "w2", maxRunTime)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if first.ID.String() != j2.ID.String() || second.ID.String() != j1.ID.String() {
		t.Errorf("order = %s, %s; want J2 (%s) then J1 (%s)", first.ID, second.ID, j2.ID, j1.ID)
	}
}

func TestReserve_RunAtDefaultsToCreation(t *testing.T) {
	s := memory.New()
	j := enqueue(t, s, job.New(nil))

	stored, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if !stored.RunAt.Equal(stored.CreatedAt) {
		t.Errorf("RunAt = %v, want creation time %v", stored.RunAt, stored.CreatedAt)
	}

	got, err := reserve.NewEngine(s).Reserve(context.Background(), "w", maxRunTime)
	if err != nil || got == nil {
		t.Fatalf("Reserve = %v, %v; a job without run_at is due at once", got, err)
	}
}

func TestReserve_StaleLockBoundary(t *testing.T) {
	s := memory.New()
	c := &clock{now: t0}
	e := newEngine(s, c)
	ctx := context.Background()

	j := enqueue(t, s, dueJob(0))
	if got, _ := e.Reserve(ctx, "worker-a", maxRunTime); got == nil {
		t.Fatal("worker-a could not reserve")
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"fresh", t0.Add(time.Minute), false},
		{"just before expiry", t0.Add(maxRunTime - time.Nanosecond), false},
		{"at expiry", t0.Add(maxRunTime), true},
	}
	for _, tt := range tests {
		c.now = tt.at
		got, err := e.Reserve(ctx, "worker-b", maxRunTime)
		if err != nil {
			t.Fatalf("%s: Reserve: %v", tt.name, err)
		}
		if (got != nil) != tt.want {
			t.Fatalf("%s: reserved = %v, want %v", tt.name, got != nil, tt.want)
		}
		if got != nil && got.ID.String() != j.ID.String() {
			t.Fatalf("%s: reserved %s, want %s", tt.name, got.ID, j.ID)
		}
	}
}

func TestReserve_OwnLockReacquired(t *testing.T) {
	s := memory.New()
	c := &clock{now: t0}
	e := newEngine(s, c)
	ctx := context.Background()

	j := enqueue(t, s, dueJob(10))
	if _, err := e.Reserve(ctx, "worker-a", maxRunTime); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	enqueue(t, s, dueJob(-10))

	c.now = t0.Add(time.Minute)
	got, err := e.Reserve(ctx, "worker-a", maxRunTime)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got.ID.String() != j.ID.String() {
		t.Fatalf("reserved %s, want own locked job %s first", got.ID, j.ID)
	}
	if !got.LockedAt.Equal(c.now) {
		t.Errorf("LockedAt = %v, want refreshed to %v", got.LockedAt, c.now)
	}
}

func TestReserve_Criteria(t *testing.T) {
	s := memory.New()
	enqueue(t, s, dueJob(1))
	mail := enqueue(t, s, job.New(nil, job.WithQueue("mail"), job.WithPriority(7), job.WithRunAt(t0)))

	cfg := delayed.NewConfig(delayed.WithMinPriority(5), delayed.WithQueues("mail"))
	e := newEngine(s, &clock{now: t0}, reserve.WithCriteria(job.CriteriaFromConfig(cfg)))

	got, err := e.Reserve(context.Background(), "w", maxRunTime)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got == nil || got.ID.String() != mail.ID.String() {
		t.Fatalf("Reserve = %v, want %s", got, mail.ID)
	}
	if again, _ := e.Reserve(context.Background(), "w2", maxRunTime); again != nil {
		t.Fatalf("reserved %s outside criteria", again.ID)
	}
}

func TestReserve_StoreErrorSwallowed(t *testing.T) {
	sr, tracer := setupTestTracer()
	reader, mp := setupTestMeter()
	s := &faultyStore{Store: memory.New(), findErr: errors.New("connection reset")}

	e := newEngine(s, &clock{now: t0}, reserve.WithTracer(tracer), reserve.WithMeter(mp.Meter("test")))
	got, err := e.Reserve(context.Background(), "w", maxRunTime)
	if err != nil || got != nil {
		t.Fatalf("Reserve = %v, %v; want nil, nil", got, err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status().Code)
	}
	if n := counterValues(t, reader, "delayed.reserve.attempts", "outcome")[reserve.OutcomeStoreError]; n != 1 {
		t.Errorf("store_error count = %d, want 1", n)
	}
}

func TestReserve_SurfaceStoreErrors(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name  string
		store *faultyStore
	}{
		{"find and lock", &faultyStore{Store: memory.New(), findErr: cause}},
		{"re-read", &faultyStore{Store: memory.New(), getErr: cause}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enqueue(t, tt.store.Store, dueJob(0))
			e := newEngine(tt.store, &clock{now: t0}, reserve.WithSurfaceStoreErrors())

			_, err := e.Reserve(context.Background(), "w", maxRunTime)
			if !errors.Is(err, delayed.ErrStoreUnavailable) {
				t.Errorf("expected ErrStoreUnavailable, got %v", err)
			}
			if !errors.Is(err, cause) {
				t.Errorf("expected the cause to be wrapped, got %v", err)
			}
		})
	}
}

func TestReserve_RecordVanished(t *testing.T) {
	reader, mp := setupTestMeter()
	s := &faultyStore{Store: memory.New(), deleteAfterLock: true}
	j := enqueue(t, s, dueJob(0))

	e := newEngine(s, &clock{now: t0}, reserve.WithMeter(mp.Meter("test")))
	got, err := e.Reserve(context.Background(), "w", maxRunTime)
	if !errors.Is(err, delayed.ErrRecordVanished) {
		t.Fatalf("expected ErrRecordVanished, got %v, %v", got, err)
	}
	if got != nil {
		t.Errorf("expected no job, got %s", got.ID)
	}
	if want := j.ID.String(); !strings.Contains(err.Error(), want) {
		t.Errorf("error %q should name job %s", err, want)
	}
	if n := counterValues(t, reader, "delayed.reserve.attempts", "outcome")[reserve.OutcomeVanished]; n != 1 {
		t.Errorf("vanished count = %d, want 1", n)
	}
}

func TestReserve_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &faultyStore{Store: memory.New(), findErr: context.Canceled}
	_, err := newEngine(s, &clock{now: t0}).Reserve(ctx, "w", maxRunTime)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReserve_RequiresWorkerAndStore(t *testing.T) {
	if _, err := reserve.NewEngine(memory.New()).Reserve(context.Background(), "", maxRunTime); !errors.Is(err, reserve.ErrNoWorker) {
		t.Errorf("empty worker: expected ErrNoWorker, got %v", err)
	}
	if _, err := reserve.NewEngine(nil).Reserve(context.Background(), "w", maxRunTime); !errors.Is(err, delayed.ErrNoStore) {
		t.Errorf("nil store: expected ErrNoStore, got %v", err)
	}
}

func TestReserve_SpanAndMetrics(t *testing.T) {
	sr, tracer := setupTestTracer()
	reader, mp := setupTestMeter()
	s := memory.New()
	j := enqueue(t, s, job.New(nil, job.WithQueue("mail"), job.WithPriority(3), job.WithRunAt(t0)))

	e := newEngine(s, &clock{now: t0}, reserve.WithTracer(tracer), reserve.WithMeter(mp.Meter("test")))
	ctx := context.Background()
	if _, err := e.Reserve(ctx, "worker-a", maxRunTime); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := e.Reserve(ctx, "worker-b", maxRunTime); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "delayed.job.reserve" {
		t.Errorf("span name = %q", spans[0].Name())
	}

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	expected := map[string]interface{}{
		"delayed.worker":       "worker-a",
		"delayed.job.id":       j.ID.String(),
		"delayed.queue":        "mail",
		"delayed.job.priority": int64(3),
	}
	for k, want := range expected {
		v, ok := attrs[attribute.Key(k)]
		if !ok {
			t.Errorf("missing attribute %s", k)
			continue
		}
		if got := v.AsInterface(); got != want {
			t.Errorf("attribute %s = %v, want %v", k, got, want)
		}
	}

	counts := counterValues(t, reader, "delayed.reserve.attempts", "outcome")
	if counts[reserve.OutcomeReserved] != 1 || counts[reserve.OutcomeEmpty] != 1 {
		t.Errorf("outcome counts = %v, want reserved=1 empty=1", counts)
	}
}

func TestReserve_ConcurrentWorkersNeverShareAJob(t *testing.T) {
	const (
		jobs    = 50
		workers = 10
	)
	s := memory.New()
	for i := 0; i < jobs; i++ {
		enqueue(t, s, dueJob(i%5))
	}
	e := newEngine(s, &clock{now: t0})

	var (
		mu      sync.Mutex
		claimed = map[string]string{}
	)
	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		worker := fmt.Sprintf("worker-%d", w)
		g.Go(func() error {
			for {
				j, err := e.Reserve(ctx, worker, maxRunTime)
				if err != nil {
					return err
				}
				if j == nil {
					return nil
				}
				mu.Lock()
				prev, dup := claimed[j.ID.String()]
				claimed[j.ID.String()] = worker
				mu.Unlock()
				if dup {
					return fmt.Errorf("job %s reserved by %s and %s", j.ID, prev, worker)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if len(claimed) != jobs {
		t.Fatalf("reserved %d jobs, want %d", len(claimed), jobs)
	}
}
