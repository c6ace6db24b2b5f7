// Package observe provides application-wide observability primitives for
// the narrator: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all narrator metrics.
const meterName = "github.com/MrWong99/narrator"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks the wall time of a full narration turn including
	// retries and condensation.
	TurnDuration metric.Float64Histogram

	// LLMDuration tracks a single transport call.
	LLMDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts finished turns. Use with attributes:
	//   attribute.String("persona", ...), attribute.String("outcome", ...)
	Turns metric.Int64Counter

	// Retries counts retried attempts. Use with attribute:
	//   attribute.String("reason", ...)
	Retries metric.Int64Counter

	// Condensations counts history condensation sub-calls. Use with attribute:
	//   attribute.String("status", ...)
	Condensations metric.Int64Counter

	// UsageChars counts characters exchanged with backends. Use with attributes:
	//   attribute.String("profile", ...), attribute.String("direction", ...)
	UsageChars metric.Int64Counter

	// ProviderErrors counts transport errors. Use with attribute:
	//   attribute.String("profile", ...)
	ProviderErrors metric.Int64Counter

	// FeedMessages counts messages received on the game feed. Use with attribute:
	//   attribute.String("type", ...)
	FeedMessages metric.Int64Counter

	// --- Distributions ---

	// Penalty records every computed repetition penalty.
	Penalty metric.Float64Histogram

	// --- Gauges ---

	// FeedConnections tracks the number of connected game feed clients.
	FeedConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// chat-completion round trips.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// penaltyBuckets covers the [0, 2] penalty range.
var penaltyBuckets = []float64{
	0, 0.25, 0.5, 0.75, 1, 1.25, 1.5, 1.75, 2,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("narrator.turn.duration",
		metric.WithDescription("Latency of a full narration turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("narrator.llm.duration",
		metric.WithDescription("Latency of a single LLM completion call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Penalty, err = m.Float64Histogram("narrator.penalty",
		metric.WithDescription("Computed repetition penalty per accepted or vetoed candidate."),
		metric.WithExplicitBucketBoundaries(penaltyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("narrator.turns",
		metric.WithDescription("Total narration turns by persona and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Retries, err = m.Int64Counter("narrator.retries",
		metric.WithDescription("Total retried attempts by reason."),
	); err != nil {
		return nil, err
	}
	if met.Condensations, err = m.Int64Counter("narrator.condensations",
		metric.WithDescription("Total history condensations by status."),
	); err != nil {
		return nil, err
	}
	if met.UsageChars, err = m.Int64Counter("narrator.usage.chars",
		metric.WithDescription("Characters exchanged with LLM backends by profile and direction."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("narrator.provider.errors",
		metric.WithDescription("Total transport errors by profile."),
	); err != nil {
		return nil, err
	}
	if met.FeedMessages, err = m.Int64Counter("narrator.feed.messages",
		metric.WithDescription("Total game feed messages by type."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.FeedConnections, err = m.Int64UpDownCounter("narrator.feed.connections",
		metric.WithDescription("Number of connected game feed clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("narrator.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurn records a finished turn and its duration.
func (m *Metrics) RecordTurn(ctx context.Context, persona, outcome string, d time.Duration) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("persona", persona),
		attribute.String("outcome", outcome),
	))
	m.TurnDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordRetry records one retried attempt.
func (m *Metrics) RecordRetry(ctx context.Context, reason string) {
	m.Retries.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordLLMCall records the latency of one transport call and, when failed,
// a provider error.
func (m *Metrics) RecordLLMCall(ctx context.Context, profile string, d time.Duration, failed bool) {
	m.LLMDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("profile", profile)))
	if failed {
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("profile", profile)))
	}
}

// RecordUsage records characters sent to and received from a backend.
func (m *Metrics) RecordUsage(ctx context.Context, profile string, sent, received int) {
	if sent > 0 {
		m.UsageChars.Add(ctx, int64(sent), metric.WithAttributes(
			attribute.String("profile", profile),
			attribute.String("direction", "sent"),
		))
	}
	if received > 0 {
		m.UsageChars.Add(ctx, int64(received), metric.WithAttributes(
			attribute.String("profile", profile),
			attribute.String("direction", "received"),
		))
	}
}

// RecordPenalty records a computed repetition penalty.
func (m *Metrics) RecordPenalty(ctx context.Context, persona string, penalty float64) {
	m.Penalty.Record(ctx, penalty, metric.WithAttributes(attribute.String("persona", persona)))
}

// RecordCondensation records a history condensation sub-call.
func (m *Metrics) RecordCondensation(ctx context.Context, status string) {
	m.Condensations.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordFeedMessage records one message received on the game feed.
func (m *Metrics) RecordFeedMessage(ctx context.Context, kind string) {
	m.FeedMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("type", kind)))
}
