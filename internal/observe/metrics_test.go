package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the data point whose attribute key equals value.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordTurn(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTurn(ctx, "Sage", "accepted", 1200*time.Millisecond)
	m.RecordTurn(ctx, "Sage", "accepted", 800*time.Millisecond)
	m.RecordTurn(ctx, "Sage", "suppressed", time.Second)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "narrator.turns", "outcome", "accepted"); got != 2 {
		t.Errorf("accepted turns = %d, want 2", got)
	}

	met := findMetric(rm, "narrator.turn.duration")
	if met == nil {
		t.Fatal("turn duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("turn duration samples = %d, want 3", total)
	}
}

func TestRecordRetry(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRetry(ctx, "malformed output")
	m.RecordRetry(ctx, "repetitive")
	m.RecordRetry(ctx, "repetitive")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "narrator.retries", "reason", "repetitive"); got != 2 {
		t.Errorf("repetitive retries = %d, want 2", got)
	}
}

func TestRecordUsage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUsage(ctx, "main", 120, 30)
	m.RecordUsage(ctx, "main", 80, 0)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "narrator.usage.chars", "direction", "sent"); got != 200 {
		t.Errorf("sent = %d, want 200", got)
	}
	if got := sumWhere(t, rm, "narrator.usage.chars", "direction", "received"); got != 30 {
		t.Errorf("received = %d, want 30", got)
	}
}

func TestRecordLLMCall_Errors(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLLMCall(ctx, "main", 300*time.Millisecond, false)
	m.RecordLLMCall(ctx, "main", 2*time.Second, true)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "narrator.provider.errors", "profile", "main"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
	if findMetric(rm, "narrator.llm.duration") == nil {
		t.Error("llm duration metric not found")
	}
}

func TestRecordPenaltyAndCondensation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPenalty(ctx, "Sage", 2.0)
	m.RecordPenalty(ctx, "Sage", 0.4)
	m.RecordCondensation(ctx, "ok")

	rm := collect(t, reader)
	met := findMetric(rm, "narrator.penalty")
	if met == nil {
		t.Fatal("penalty metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Errorf("penalty data points = %+v, want one point with count 2", hist.DataPoints)
	}
	if got := sumWhere(t, rm, "narrator.condensations", "status", "ok"); got != 1 {
		t.Errorf("condensations = %d, want 1", got)
	}
}

func TestFeedInstruments(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FeedConnections.Add(ctx, 1)
	m.FeedConnections.Add(ctx, 1)
	m.FeedConnections.Add(ctx, -1)
	m.RecordFeedMessage(ctx, "observation")

	rm := collect(t, reader)
	met := findMetric(rm, "narrator.feed.connections")
	if met == nil {
		t.Fatal("feed connections metric not found")
	}
	sum := met.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != 1 {
		t.Errorf("feed connections = %+v, want 1", sum.DataPoints)
	}
	if got := sumWhere(t, rm, "narrator.feed.messages", "type", "observation"); got != 1 {
		t.Errorf("feed messages = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
