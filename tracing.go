// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddlewareID is the ID of the middleware returned by [NewTracingMiddleware].
const TracingMiddlewareID = "Tracing"

// tracerName is the instrumentation name of the default tracer.
const tracerName = "github.com/bassosimone/opstack"

// DefaultTracer returns the tracer of the global OpenTelemetry provider.
func DefaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// NewTracingMiddleware returns a [Middleware] wrapping the rest of the
// chain in a client span named after the operation.
//
// The span carries the operation name, the invocation ID and the
// [Outcome]. Failures are recorded on the span and set its status.
func NewTracingMiddleware[In, Out any](tracer trace.Tracer) Middleware[In, Out] {
	return MiddlewareFunc(TracingMiddlewareID, func(ctx context.Context, input In, next Handler[In, Out]) (Out, error) {
		oc := OperationContextFrom(ctx)
		invocationID, _ := InvocationIDKey.Get(oc)
		name := operationLabel(ctx)
		ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
			attribute.String("opstack.operation", name),
			attribute.String("opstack.invocation_id", invocationID),
		))
		defer span.End()

		out, err := next.Handle(ctx, input)
		span.SetAttributes(attribute.String("opstack.outcome", Outcome(err)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	})
}
