package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartGuestSpan starts a span named "guest.invoke" wrapping one guest
// handler invocation. Callers must call span.End().
func StartGuestSpan(ctx context.Context, tracer trace.Tracer, route string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "guest.invoke", trace.WithAttributes(attribute.String("corvid.route", route)))
}

// RecordFault annotates span with a guest fault: exception.escaped is set
// only for faults that escaped guest code uncaught.
func RecordFault(span trace.Span, err any, escaped bool) {
	if span == nil || !span.SpanContext().IsValid() {
		return
	}

	span.SetStatus(codes.Error, "guest fault")
	span.SetAttributes(
		attribute.Bool("exception.escaped", escaped),
		attribute.String("exception.type", fmt.Sprintf("%T", err)),
		attribute.String("exception.message", fmt.Sprintf("%v", err)),
	)

	if actualErr, ok := err.(error); ok {
		span.RecordError(actualErr)
	}
}
