package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for delayed tracing.
const tracerName = "github.com/xraph/delayed"

// Tracing returns middleware that wraps job execution in a span named
// delayed.job.execute on the global TracerProvider.
//
// Span attributes: delayed.job.id, delayed.job.name, delayed.queue,
// delayed.job.priority, delayed.job.attempts, delayed.worker and, for a
// locked job with a bounded run time, delayed.lock.stale_at (RFC 3339), the
// moment other workers may reserve the job again.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, r *Run, next Handler) error {
		attrs := []attribute.KeyValue{
			attribute.String("delayed.job.id", r.Job.ID.String()),
			attribute.String("delayed.job.name", r.Name),
			attribute.String("delayed.queue", r.Job.Queue),
			attribute.Int("delayed.job.priority", r.Job.Priority),
			attribute.Int("delayed.job.attempts", r.Job.Attempts),
			attribute.String("delayed.worker", r.Worker),
		}
		if r.Job.LockedAt != nil && r.MaxRunTime > 0 {
			staleAt := r.Job.LockedAt.Add(r.MaxRunTime).UTC()
			attrs = append(attrs, attribute.String("delayed.lock.stale_at", staleAt.Format(time.RFC3339)))
		}

		ctx, span := tracer.Start(ctx, "delayed.job.execute",
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
