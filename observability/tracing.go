package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/nexlead/prism"

// Tracer provides OpenTelemetry tracing for Prism.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Prism tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartCycleSpan starts a span for one projector cycle.
func (t *Tracer) StartCycleSpan(ctx context.Context, cycleID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "prism.projector.cycle",
		trace.WithAttributes(
			attribute.String("prism.cycle_id", cycleID),
		),
	)
}

// EndCycleSpan ends a cycle span with its result counts.
func (t *Tracer) EndCycleSpan(span trace.Span, reclaimed int64, claimed, processed, failed int, err string) {
	span.SetAttributes(
		attribute.Int64("prism.reclaimed", reclaimed),
		attribute.Int("prism.claimed", claimed),
		attribute.Int("prism.processed", processed),
		attribute.Int("prism.failed", failed),
	)
	if err != "" {
		span.SetAttributes(attribute.String("prism.error", err))
	}
	span.End()
}

// StartApplySpan starts a span for applying one claimed event.
func (t *Tracer) StartApplySpan(ctx context.Context, eventID, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "prism.projector.apply",
		trace.WithAttributes(
			attribute.String("prism.event_id", eventID),
			attribute.String("prism.event_type", eventType),
		),
	)
}

// EndApplySpan ends an apply span with the outcome status.
func (t *Tracer) EndApplySpan(span trace.Span, status string, err string) {
	span.SetAttributes(attribute.String("prism.status", status))
	if err != "" {
		span.SetAttributes(attribute.String("prism.error", err))
	}
	span.End()
}
