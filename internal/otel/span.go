// Package otel provides OpenTelemetry span helpers shared by the ledger and the connection
// state machine.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for job context, shared so traces use the same names everywhere.
const (
	AttrConnectionID  = attribute.Key("connection.id")
	AttrJobID         = attribute.Key("job.id")
	AttrAttemptNumber = attribute.Key("job.attempt")
	AttrConfigType    = attribute.Key("job.config_type")
	AttrJobStatus     = attribute.Key("job.status")
	AttrResultCount   = attribute.Key("result.count")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records an error on a span and sets the span status to error.
// The status description stays generic so SQL text and connection strings never reach it;
// the error itself is kept on the span event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
