package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	attrCycleID   = attribute.Key("crankprom.cycle.id")
	attrCycleLast = attribute.Key("crankprom.cycle.final")
	attrTestLabel = attribute.Key("crankprom.test_label")
	attrMethod    = attribute.Key("http.request.method")
)

// StartCycleSpan starts the span covering one publish cycle.
func StartCycleSpan(ctx context.Context, tracer trace.Tracer, cycleID string, final bool) (context.Context, trace.Span) {
	name := "publish cycle"
	if final {
		name = "final publish cycle"
	}
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrCycleID.String(cycleID), attrCycleLast.Bool(final)),
	)
}

// StartRequestSpan starts a client span named after the method and test label of one
// load producer request.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, method, label string) (context.Context, trace.Span) {
	name := "HTTP " + method
	attrs := []attribute.KeyValue{attrMethod.String(method)}
	if label != "" {
		name += " " + label
		attrs = append(attrs, attrTestLabel.String(label))
	}
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders writes the trace context of ctx into headers using the global
// propagator.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
