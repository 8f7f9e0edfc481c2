package reserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/id"
	"github.com/xraph/delayed/job"
)

// Reservation outcomes, recorded as the outcome attribute of
// delayed.reserve.attempts.
const (
	OutcomeReserved   = "reserved"
	OutcomeEmpty      = "empty"
	OutcomeVanished   = "vanished"
	OutcomeStoreError = "store_error"
)

// ErrNoWorker is returned when Reserve is called without a worker identity.
var ErrNoWorker = errors.New("delayed/reserve: worker identity is required")

// Engine atomically selects and locks one eligible job per call.
// It is safe for concurrent use.
type Engine struct {
	store    job.Store
	opts     options
	attempts metric.Int64Counter
}

// NewEngine creates an Engine on s.
func NewEngine(s job.Store, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	attempts, aErr := o.meter.Int64Counter(
		"delayed.reserve.attempts",
		metric.WithDescription("Reservation attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	_ = aErr // noop fallback guaranteed by OTel API contract

	return &Engine{
		store:    s,
		opts:     o,
		attempts: attempts,
	}
}

// Criteria returns the bounds the engine reserves within.
func (e *Engine) Criteria() job.Criteria { return e.opts.criteria }

// Reserve claims the first eligible job for worker and returns it locked.
// A lock older than maxRunTime is treated as abandoned.
//
// It returns nil, nil when no job is eligible, and an error wrapping
// delayed.ErrRecordVanished when the locked job disappeared before it could
// be read back. Context cancellation is returned as ctx.Err().
func (e *Engine) Reserve(ctx context.Context, worker string, maxRunTime time.Duration) (*job.Job, error) {
	if e.store == nil {
		return nil, delayed.ErrNoStore
	}
	if worker == "" {
		return nil, ErrNoWorker
	}

	ctx, span := e.opts.tracer.Start(ctx, "delayed.job.reserve",
		trace.WithAttributes(
			attribute.String("delayed.worker", worker),
			attribute.String("delayed.max_run_time", maxRunTime.String()),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	f := job.NewFilter(e.opts.clock(), worker, maxRunTime, e.opts.criteria)

	jobID, err := e.store.FindAndLock(ctx, f)
	if err != nil {
		return nil, e.storeFailure(ctx, span, worker, "find and lock", err)
	}
	if jobID.IsNil() {
		e.record(ctx, OutcomeEmpty)
		span.SetStatus(codes.Ok, "")
		return nil, nil
	}

	span.SetAttributes(attribute.String("delayed.job.id", jobID.String()))

	j, err := e.store.GetJob(ctx, jobID)
	switch {
	case errors.Is(err, delayed.ErrNotFound):
		return nil, e.vanished(ctx, span, worker, jobID)
	case err != nil:
		return nil, e.storeFailure(ctx, span, worker, "read reserved job", err)
	case j == nil:
		return nil, e.vanished(ctx, span, worker, jobID)
	}

	e.record(ctx, OutcomeReserved)
	span.SetAttributes(
		attribute.Int("delayed.job.priority", j.Priority),
		attribute.Int("delayed.job.attempts", j.Attempts),
		attribute.String("delayed.queue", j.Queue),
	)
	span.SetStatus(codes.Ok, "")

	e.opts.logger.Debug("job reserved",
		slog.String("job_id", j.ID.String()),
		slog.String("worker", worker),
		slog.Int("priority", j.Priority),
		slog.String("queue", j.Queue),
	)
	return j, nil
}

func (e *Engine) vanished(ctx context.Context, span trace.Span, worker string, jobID id.JobID) error {
	e.record(ctx, OutcomeVanished)
	err := fmt.Errorf("%w: %s", delayed.ErrRecordVanished, jobID)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	e.opts.logger.Warn("reserved job vanished before it could be read",
		slog.String("job_id", jobID.String()),
		slog.String("worker", worker),
	)
	return err
}

// storeFailure records a failed store call and decides what the caller sees.
func (e *Engine) storeFailure(ctx context.Context, span trace.Span, worker, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	e.record(ctx, OutcomeStoreError)
	e.opts.logger.Warn("reservation store failure",
		slog.String("op", op),
		slog.String("worker", worker),
		slog.String("error", err.Error()),
	)

	if e.opts.surfaceErrors {
		return fmt.Errorf("delayed/reserve: %s: %w: %w", op, delayed.ErrStoreUnavailable, err)
	}
	return nil
}

func (e *Engine) record(ctx context.Context, outcome string) {
	e.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
