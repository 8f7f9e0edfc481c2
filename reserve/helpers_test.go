package reserve_test

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/delayed/id"
	"github.com/xraph/delayed/job"
	"github.com/xraph/delayed/store/memory"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// clock is a settable time source.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

// counterValues sums a counter's data points by the value of attrKey.
func counterValues(t *testing.T, reader *sdkmetric.ManualReader, name, attrKey string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key(attrKey))
				out[v.AsString()] += dp.Value
			}
		}
	}
	return out
}

// faultyStore wraps the memory store with injectable failures.
type faultyStore struct {
	*memory.Store
	findErr         error
	getErr          error
	deleteAfterLock bool
}

func (s *faultyStore) FindAndLock(ctx context.Context, f job.Filter) (id.JobID, error) {
	if s.findErr != nil {
		return id.Nil, s.findErr
	}
	jobID, err := s.Store.FindAndLock(ctx, f)
	if err == nil && !jobID.IsNil() && s.deleteAfterLock {
		_ = s.Store.DeleteJob(ctx, jobID)
	}
	return jobID, err
}

func (s *faultyStore) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.GetJob(ctx, jobID)
}

func (s *faultyStore) ClearLocks(ctx context.Context, worker string) (int64, error) {
	if s.findErr != nil {
		return 0, s.findErr
	}
	return s.Store.ClearLocks(ctx, worker)
}

func enqueue(t *testing.T, s job.Store, j *job.Job) *job.Job {
	t.Helper()
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	return j
}

func dueJob(priority int) *job.Job {
	return job.New([]byte(`{"name":"noop"}`), job.WithPriority(priority), job.WithRunAt(t0.Add(-time.Minute)))
}
