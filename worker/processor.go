package worker

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/ferry/broker"
	"github.com/xraph/ferry/ext"
	"github.com/xraph/ferry/job"
	"github.com/xraph/ferry/middleware"
)

// Processor decodes deliveries, runs the resolved handler and maps its
// outcome to a Result. Lifecycle events go to the processor's own
// extension registry.
type Processor struct {
	handlers   *job.Registry
	extensions *ext.Registry
	mw         middleware.Middleware
	logger     *slog.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*processorConfig)

type processorConfig struct {
	logger *slog.Logger
	mws    []middleware.Middleware
	tracer trace.Tracer
	meter  metric.Meter
}

// WithMiddleware appends user middleware. They run inside the built-in
// recover, tracing, metrics and logging layers.
func WithMiddleware(mws ...middleware.Middleware) ProcessorOption {
	return func(c *processorConfig) { c.mws = append(c.mws, mws...) }
}

// WithProcessorLogger sets the logger for panics and handler debug lines.
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(c *processorConfig) { c.logger = l }
}

// WithTracer sets the tracer for handler spans. The global provider is
// used otherwise.
func WithTracer(t trace.Tracer) ProcessorOption {
	return func(c *processorConfig) { c.tracer = t }
}

// WithMeter sets the meter for handler metrics. The global provider is
// used otherwise.
func WithMeter(m metric.Meter) ProcessorOption {
	return func(c *processorConfig) { c.meter = m }
}

// NewProcessor creates a Processor resolving handlers from handlers. A nil
// extensions registry gets an empty one.
func NewProcessor(handlers *job.Registry, extensions *ext.Registry, opts ...ProcessorOption) *Processor {
	cfg := processorConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if extensions == nil {
		extensions = ext.NewRegistry(cfg.logger)
	}

	tracing := middleware.Tracing()
	if cfg.tracer != nil {
		tracing = middleware.TracingWithTracer(cfg.tracer)
	}
	metrics := middleware.Metrics()
	if cfg.meter != nil {
		metrics = middleware.MetricsWithMeter(cfg.meter)
	}

	chain := []middleware.Middleware{
		middleware.Recover(cfg.logger),
		tracing,
		metrics,
		middleware.Logging(cfg.logger),
	}
	chain = append(chain, cfg.mws...)

	return &Processor{
		handlers:   handlers,
		extensions: extensions,
		mw:         middleware.Chain(chain...),
		logger:     cfg.logger,
	}
}

// Extensions returns the processor's extension registry.
func (p *Processor) Extensions() *ext.Registry { return p.extensions }

// Handlers returns the handler registry.
func (p *Processor) Handlers() *job.Registry { return p.handlers }

// Process handles one delivery. Messages that cannot be decoded or that
// name an unknown handler are rejected. A handler error or panic yields
// Requeue with the detail stored in the jobException property.
func (p *Processor) Process(ctx context.Context, msg *broker.Message) Result {
	res, _ := p.process(ctx, msg)
	return res
}

func (p *Processor) process(ctx context.Context, msg *broker.Message) (Result, *job.Envelope) {
	p.extensions.EmitMessageSeen(ctx, msg)

	env, err := job.Decode(msg.Body)
	if err != nil {
		p.extensions.EmitMessageInvalid(ctx, msg, err)
		return rejectResult(err.Error()), nil
	}
	env.Attempts = msg.IntProperty(job.AttemptsProperty, 0)

	handler, _, err := p.handlers.Resolve(env.Target)
	if err != nil {
		p.extensions.EmitMessageInvalid(ctx, msg, err)
		return rejectResult(err.Error()), env
	}

	p.extensions.EmitMessageStarted(ctx, env)

	start := time.Now()
	out, err := p.mw(ctx, env, func(ctx context.Context) (job.Result, error) {
		return handler.Handle(ctx, env)
	})
	elapsed := time.Since(start)

	if err != nil {
		msg.SetProperty(job.ExceptionProperty, err.Error())
		p.extensions.EmitMessageException(ctx, env, err)
		return requeueResult("exception: " + err.Error()), env
	}

	switch out {
	case "", job.Ack:
		p.extensions.EmitMessageSucceeded(ctx, env, elapsed)
		return ackResult(), env
	case job.Reject:
		p.extensions.EmitMessageRejected(ctx, env)
		return rejectResult(""), env
	default:
		p.extensions.EmitMessageFailed(ctx, env)
		return requeueResult("unrecognized result"), env
	}
}
