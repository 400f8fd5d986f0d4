package telemetry

import (
	"context"

	"github.com/pario-ai/orchestra/pkg/aierr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName identifies spans created by this module.
const InstrumentationName = "github.com/pario-ai/orchestra"

// Tracer starts one span per orchestration operation and one child span per
// provider attempt.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer from tp. A nil tp uses the global provider.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(InstrumentationName)}
}

// NoopTracer returns a Tracer that records nothing.
func NoopTracer() *Tracer {
	return &Tracer{tracer: tracenoop.NewTracerProvider().Tracer(InstrumentationName)}
}

// SpanName returns the span name for an operation.
func SpanName(operation string) string {
	return "orchestra." + operation
}

// StartOperation starts the span for one public operation.
func (t *Tracer) StartOperation(ctx context.Context, operation, callerPrefix string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, SpanName(operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("orchestra.operation", operation),
			attribute.String("orchestra.caller_prefix", callerPrefix),
		),
	)
}

// StartCall starts the span for one provider attempt.
func (t *Tracer) StartCall(ctx context.Context, provider, endpoint string, attempt int) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "orchestra.provider."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("orchestra.provider", provider),
			attribute.String("orchestra.endpoint", endpoint),
			attribute.Int("orchestra.attempt", attempt),
		),
	)
}

// End finishes span, recording err and its kind.
func End(span trace.Span, err error) {
	if err != nil {
		e := aierr.As(err)
		span.SetAttributes(attribute.String("orchestra.error_kind", string(e.Kind)))
		if e.CorrelationID != "" {
			span.SetAttributes(attribute.String("orchestra.correlation_id", e.CorrelationID))
		}
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
