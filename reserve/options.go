package reserve

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/delayed/job"
)

// instrumentationName is the scope name for tracers and meters.
const instrumentationName = "github.com/xraph/delayed"

type options struct {
	logger        *slog.Logger
	clock         func() time.Time
	criteria      job.Criteria
	tracer        trace.Tracer
	meter         metric.Meter
	surfaceErrors bool
}

func defaultOptions() options {
	return options{
		logger: slog.Default(),
		clock:  func() time.Time { return time.Now().UTC() },
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
}

// Option configures an Engine or a LockManager.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the time source. The clock's value is both the
// eligibility cut-off and the lock timestamp.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithCriteria restricts reservation to jobs within the given priority
// bounds and queues.
func WithCriteria(c job.Criteria) Option {
	return func(o *options) { o.criteria = c }
}

// WithTracer sets the tracer. The global tracer provider is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMeter sets the meter. The global meter provider is used otherwise.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithSurfaceStoreErrors makes Reserve return store failures, wrapped in
// delayed.ErrStoreUnavailable, instead of reporting them as no job.
func WithSurfaceStoreErrors() Option {
	return func(o *options) { o.surfaceErrors = true }
}
