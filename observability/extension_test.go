package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/delayed/ext"
	"github.com/xraph/delayed/id"
	"github.com/xraph/delayed/job"
	"github.com/xraph/delayed/observability"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:    id.NewJobID(),
		Queue: "default",
	}
}

// sumOf returns the total of an Int64 sum metric, or -1 if it was not recorded.
func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return -1
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Hooks(t *testing.T) {
	tests := []struct {
		name   string
		metric string
		want   int64
		emit   func(context.Context, *observability.MetricsExtension) error
	}{
		{"reserved", "delayed.job.reserved", 1, func(ctx context.Context, e *observability.MetricsExtension) error {
			return e.OnJobReserved(ctx, newTestJob(), "worker-a")
		}},
		{"completed", "delayed.job.completed", 1, func(ctx context.Context, e *observability.MetricsExtension) error {
			return e.OnJobCompleted(ctx, newTestJob(), 100*time.Millisecond)
		}},
		{"failed", "delayed.job.failed", 1, func(ctx context.Context, e *observability.MetricsExtension) error {
			return e.OnJobFailed(ctx, newTestJob(), errors.New("boom"))
		}},
		{"retrying", "delayed.job.retried", 1, func(ctx context.Context, e *observability.MetricsExtension) error {
			return e.OnJobRetrying(ctx, newTestJob(), 1, time.Now().Add(time.Minute))
		}},
		{"locks cleared", "delayed.locks.released", 3, func(ctx context.Context, e *observability.MetricsExtension) error {
			return e.OnLocksCleared(ctx, "worker-a", 3)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, reader := newTestExtension()
			if err := tt.emit(context.Background(), e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := sumOf(t, reader, tt.metric); got != tt.want {
				t.Errorf("%s: want %d, got %d", tt.metric, tt.want, got)
			}
		})
	}
}

func TestMetricsExtension_NoLocksClearedRecordsNothing(t *testing.T) {
	e, reader := newTestExtension()
	if err := e.OnLocksCleared(context.Background(), "worker-a", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sumOf(t, reader, "delayed.locks.released"); got != -1 {
		t.Errorf("expected no data points, got total %d", got)
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e, reader := newTestExtension()

	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)

	ctx := context.Background()
	j := newTestJob()

	reg.EmitJobReserved(ctx, j, "worker-a")
	reg.EmitJobCompleted(ctx, j, 50*time.Millisecond)
	reg.EmitJobFailed(ctx, j, errors.New("fail"))
	reg.EmitJobRetrying(ctx, j, 1, time.Now())
	reg.EmitLocksCleared(ctx, "worker-a", 1)

	for _, name := range []string{
		"delayed.job.reserved",
		"delayed.job.completed",
		"delayed.job.failed",
		"delayed.job.retried",
		"delayed.locks.released",
	} {
		if got := sumOf(t, reader, name); got != 1 {
			t.Errorf("%s: want 1, got %d", name, got)
		}
	}
}
