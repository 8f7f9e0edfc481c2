package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/delayed/ext"
	"github.com/xraph/delayed/job"
)

const meterName = "github.com/xraph/delayed/observability"

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobReserved  = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.JobRetrying  = (*MetricsExtension)(nil)
	_ ext.LocksCleared = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics as OTel counters.
// Register it with an ext.Registry to track reservation, completion,
// retry and failure rates.
//
// Instruments:
//   - delayed.job.reserved (attributes: queue, worker)
//   - delayed.job.completed (attributes: queue)
//   - delayed.job.retried (attributes: queue)
//   - delayed.job.failed (attributes: queue)
//   - delayed.locks.released (attributes: worker), incremented by the
//     number of locks released
type MetricsExtension struct {
	JobReserved   metric.Int64Counter
	JobCompleted  metric.Int64Counter
	JobRetried    metric.Int64Counter
	JobFailed     metric.Int64Counter
	LocksReleased metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Use an sdk/metric ManualReader-backed meter for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	return &MetricsExtension{
		JobReserved:   counter(meter, "delayed.job.reserved", "Jobs locked by a worker"),
		JobCompleted:  counter(meter, "delayed.job.completed", "Jobs that finished successfully"),
		JobRetried:    counter(meter, "delayed.job.retried", "Failed runs that were rescheduled"),
		JobFailed:     counter(meter, "delayed.job.failed", "Jobs that failed permanently"),
		LocksReleased: counter(meter, "delayed.locks.released", "Locks released when a worker stopped"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		otel.Handle(err)
	}
	return c
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobReserved implements ext.JobReserved.
func (m *MetricsExtension) OnJobReserved(ctx context.Context, j *job.Job, worker string) error {
	m.JobReserved.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", j.Queue),
		attribute.String("worker", worker),
	))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.JobCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", j.Queue)))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.JobFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", j.Queue)))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.JobRetried.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", j.Queue)))
	return nil
}

// ── Worker hooks ────────────────────────────────────

// OnLocksCleared implements ext.LocksCleared.
func (m *MetricsExtension) OnLocksCleared(ctx context.Context, worker string, cleared int64) error {
	if cleared <= 0 {
		return nil
	}
	m.LocksReleased.Add(ctx, cleared, metric.WithAttributes(attribute.String("worker", worker)))
	return nil
}
