package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/ferry/broker"
	"github.com/xraph/ferry/ext"
	"github.com/xraph/ferry/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.MessageSeen       = (*MetricsExtension)(nil)
	_ ext.MessageInvalid    = (*MetricsExtension)(nil)
	_ ext.MessageException  = (*MetricsExtension)(nil)
	_ ext.MessageSucceeded  = (*MetricsExtension)(nil)
	_ ext.MessageRejected   = (*MetricsExtension)(nil)
	_ ext.MessageFailed     = (*MetricsExtension)(nil)
	_ ext.MessageRetried    = (*MetricsExtension)(nil)
	_ ext.AttemptsExhausted = (*MetricsExtension)(nil)
	_ ext.LoopInterrupted   = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/ferry/observability"

// MetricsExtension records consumer-wide lifecycle counters through an
// OTel meter. Register it on a consumer's extension registry to track
// receive volume, outcomes, retries, and exhausted messages.
type MetricsExtension struct {
	Seen        metric.Int64Counter
	Invalid     metric.Int64Counter
	Exceptions  metric.Int64Counter
	Succeeded   metric.Int64Counter
	Rejected    metric.Int64Counter
	Failed      metric.Int64Counter
	Retried     metric.Int64Counter
	Exhausted   metric.Int64Counter
	Interrupted metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. Instruments that fail to register fall back to noop.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{message}"))
		return c
	}
	return &MetricsExtension{
		Seen:        counter("ferry.message.seen", "Messages received from a broker"),
		Invalid:     counter("ferry.message.invalid", "Messages that could not be decoded or resolved"),
		Exceptions:  counter("ferry.message.exceptions", "Handler faults"),
		Succeeded:   counter("ferry.message.succeeded", "Messages handled successfully"),
		Rejected:    counter("ferry.message.rejected", "Messages rejected by their handler"),
		Failed:      counter("ferry.message.failed", "Messages handled with a failure result"),
		Retried:     counter("ferry.message.retried", "Copies republished with an incremented attempt count"),
		Exhausted:   counter("ferry.message.exhausted", "Messages that reached their attempt limit"),
		Interrupted: counter("ferry.consumer.interrupted", "Consumer loops stopped by a budget"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func typeAttr(env *job.Envelope) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_type", env.Target.Type))
}

// ── Processor hooks ─────────────────────────────────

// OnMessageSeen implements ext.MessageSeen.
func (m *MetricsExtension) OnMessageSeen(ctx context.Context, msg *broker.Message) error {
	m.Seen.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", msg.Queue)))
	return nil
}

// OnMessageInvalid implements ext.MessageInvalid.
func (m *MetricsExtension) OnMessageInvalid(ctx context.Context, msg *broker.Message, _ error) error {
	m.Invalid.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", msg.Queue)))
	return nil
}

// OnMessageException implements ext.MessageException.
func (m *MetricsExtension) OnMessageException(ctx context.Context, env *job.Envelope, _ error) error {
	m.Exceptions.Add(ctx, 1, typeAttr(env))
	return nil
}

// OnMessageSucceeded implements ext.MessageSucceeded.
func (m *MetricsExtension) OnMessageSucceeded(ctx context.Context, env *job.Envelope, _ time.Duration) error {
	m.Succeeded.Add(ctx, 1, typeAttr(env))
	return nil
}

// OnMessageRejected implements ext.MessageRejected.
func (m *MetricsExtension) OnMessageRejected(ctx context.Context, env *job.Envelope) error {
	m.Rejected.Add(ctx, 1, typeAttr(env))
	return nil
}

// OnMessageFailed implements ext.MessageFailed.
func (m *MetricsExtension) OnMessageFailed(ctx context.Context, env *job.Envelope) error {
	m.Failed.Add(ctx, 1, typeAttr(env))
	return nil
}

// ── Retry hooks ─────────────────────────────────────

// OnMessageRetried implements ext.MessageRetried.
func (m *MetricsExtension) OnMessageRetried(ctx context.Context, env *job.Envelope, _, _ int) error {
	m.Retried.Add(ctx, 1, typeAttr(env))
	return nil
}

// OnAttemptsExhausted implements ext.AttemptsExhausted.
func (m *MetricsExtension) OnAttemptsExhausted(ctx context.Context, f *ext.Failure) error {
	m.Exhausted.Add(ctx, 1, typeAttr(f.Envelope))
	return nil
}

// ── Loop hooks ──────────────────────────────────────

// OnLoopInterrupted implements ext.LoopInterrupted.
func (m *MetricsExtension) OnLoopInterrupted(ctx context.Context, reason string) error {
	m.Interrupted.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	return nil
}
