package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/ferry/job"
)

// tracerName is the instrumentation scope name for ferry tracing.
const tracerName = "github.com/xraph/ferry"

// Tracing returns middleware that wraps handler execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through.
//
// Span attributes include: ferry.job.type, ferry.job.entry,
// ferry.attempts, ferry.config, ferry.queue.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, env *job.Envelope, next Handler) (job.Result, error) {
		attrs := []attribute.KeyValue{
			attribute.String("ferry.job.type", env.Target.Type),
			attribute.String("ferry.job.entry", env.Target.Entry),
			attribute.Int("ferry.attempts", env.Attempts),
		}
		if ro := env.RequeueOptions; ro != nil {
			attrs = append(attrs,
				attribute.String("ferry.config", ro.Config),
				attribute.String("ferry.queue", ro.Queue),
			)
		}

		ctx, span := tracer.Start(ctx, "ferry.job.execute",
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		res, err := next(ctx)
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		default:
			span.SetAttributes(attribute.String("ferry.result", status(res, nil)))
			span.SetStatus(codes.Ok, "")
		}

		return res, err
	}
}
