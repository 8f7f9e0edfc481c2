package reserve

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/job"
)

// LockManager releases the reservations held by a worker identity.
type LockManager struct {
	store   job.Store
	opts    options
	cleared metric.Int64Counter
}

// NewLockManager creates a LockManager on s. Only the logger, tracer and
// meter options apply.
func NewLockManager(s job.Store, opts ...Option) *LockManager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cleared, cErr := o.meter.Int64Counter(
		"delayed.locks.cleared",
		metric.WithDescription("Locks released by worker shutdown"),
		metric.WithUnit("{lock}"),
	)
	_ = cErr // noop fallback guaranteed by OTel API contract

	return &LockManager{
		store:   s,
		opts:    o,
		cleared: cleared,
	}
}

// ClearLocks releases every lock held by worker and returns how many jobs
// were changed. Zero is a normal result, and calling it again is harmless.
func (m *LockManager) ClearLocks(ctx context.Context, worker string) (int64, error) {
	if m.store == nil {
		return 0, delayed.ErrNoStore
	}

	ctx, span := m.opts.tracer.Start(ctx, "delayed.locks.clear",
		trace.WithAttributes(attribute.String("delayed.worker", worker)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	n, err := m.store.ClearLocks(ctx, worker)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("delayed/reserve: clear locks for %q: %w", worker, err)
	}

	span.SetAttributes(attribute.Int64("delayed.locks.cleared", n))
	span.SetStatus(codes.Ok, "")
	m.cleared.Add(ctx, n)

	if n > 0 {
		m.opts.logger.Info("cleared worker locks",
			slog.String("worker", worker),
			slog.Int64("count", n),
		)
	}
	return n, nil
}
