package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the narrator tracer.
const tracerName = "github.com/MrWong99/narrator"

// Span names of the narration pipeline.
const (
	SpanTurn     = "narration.turn"
	SpanAttempt  = "narration.attempt"
	SpanCondense = "narration.condense"
)

// Attribute keys shared by narration spans and log records.
const (
	AttrPersona  = attribute.Key("persona")
	AttrTurnID   = attribute.Key("turn_id")
	AttrAttempt  = attribute.Key("attempt")
	AttrAttempts = attribute.Key("attempts")
	AttrOutcome  = attribute.Key("outcome")
	AttrModel    = attribute.Key("model")
)

// Tracer returns the narrator [trace.Tracer] from the globally registered
// [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartTurn starts the root span of one narration turn. The returned logger
// carries the trace and span ids plus the persona and turn id, so every
// record of the turn can be joined with its trace. Finish with [EndTurn].
func StartTurn(ctx context.Context, persona, turnID string) (context.Context, trace.Span, *slog.Logger) {
	ctx, span := StartSpan(ctx, SpanTurn, trace.WithAttributes(
		AttrPersona.String(persona),
		AttrTurnID.String(turnID),
	))
	log := Logger(ctx).With(string(AttrPersona), persona, string(AttrTurnID), turnID)
	return ctx, span, log
}

// EndTurn records the turn outcome on span and ends it. A non-nil err marks
// the span as failed.
func EndTurn(span trace.Span, outcome string, attempts int, err error) {
	span.SetAttributes(
		AttrOutcome.String(outcome),
		AttrAttempts.Int(attempts),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
// The feed middleware echoes it to clients.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default [slog.Logger] with trace_id and span_id from the
// span in ctx. Without an active span it is the plain default logger.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
