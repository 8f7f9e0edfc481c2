package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for delayed metrics.
const meterName = "github.com/xraph/delayed"

// Metrics returns middleware that records execution metrics on the global
// MeterProvider. Without a configured provider the instruments are noops.
//
// Instruments, all with attributes job_name and queue:
//   - delayed.job.duration (histogram, s): run time, plus status
//   - delayed.job.executions (counter): runs, plus status ("ok", "error")
//   - delayed.job.lag (histogram, s): start time minus run_at
//   - delayed.job.overruns (counter): runs that outlived MaxRunTime, after
//     which the lock was stale and the job could be reserved again
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	duration, err := meter.Float64Histogram("delayed.job.duration",
		metric.WithDescription("Duration of job execution"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
	}
	executions, err := meter.Int64Counter("delayed.job.executions",
		metric.WithDescription("Job executions by outcome"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		otel.Handle(err)
	}
	lag, err := meter.Float64Histogram("delayed.job.lag",
		metric.WithDescription("Delay between a job's run_at and the start of its execution"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
	}
	overruns, err := meter.Int64Counter("delayed.job.overruns",
		metric.WithDescription("Executions that exceeded the max run time"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		otel.Handle(err)
	}

	return func(ctx context.Context, r *Run, next Handler) error {
		base := []attribute.KeyValue{
			attribute.String("job_name", r.Name),
			attribute.String("queue", r.Job.Queue),
		}

		start := time.Now()
		if !r.Job.RunAt.IsZero() {
			lag.Record(ctx, max(start.Sub(r.Job.RunAt).Seconds(), 0),
				metric.WithAttributes(base...))
		}

		err := next(ctx)
		elapsed := time.Since(start)

		status := "ok"
		if err != nil {
			status = "error"
		}
		withStatus := metric.WithAttributes(append(base, attribute.String("status", status))...)
		duration.Record(ctx, elapsed.Seconds(), withStatus)
		executions.Add(ctx, 1, withStatus)

		if r.MaxRunTime > 0 && elapsed > r.MaxRunTime {
			overruns.Add(ctx, 1, metric.WithAttributes(base...))
		}

		return err
	}
}
