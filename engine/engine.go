package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/archive"
	"github.com/xraph/ferry/broker"
	"github.com/xraph/ferry/ext"
	"github.com/xraph/ferry/job"
	"github.com/xraph/ferry/middleware"
	"github.com/xraph/ferry/observability"
	"github.com/xraph/ferry/queue"
	"github.com/xraph/ferry/worker"
)

// DefaultConfig is the queue config used when a push names none.
const DefaultConfig = "default"

const instrumentationName = "github.com/xraph/ferry"

// Engine owns the handler registry, the queue configs and the failure
// archive, and builds producers and consumers over them.
type Engine struct {
	handlers   *job.Registry
	queues     *queue.Registry
	extensions *ext.Registry
	archive    archive.Store
	service    *archive.Service
	mws        []middleware.Middleware
	logger     *slog.Logger

	pending []ext.Extension

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithHandlers sets the handler registry. A new one is created otherwise.
func WithHandlers(r *job.Registry) Option {
	return func(eng *Engine) { eng.handlers = r }
}

// WithQueues sets the queue config registry. A new one is created
// otherwise.
func WithQueues(r *queue.Registry) Option {
	return func(eng *Engine) { eng.queues = r }
}

// WithArchive sets the failed job store. Without it, exhausted messages
// are dropped and Archive returns ferry.ErrNoArchive.
func WithArchive(s archive.Store) Option {
	return func(eng *Engine) { eng.archive = s }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.pending = append(eng.pending, e) }
}

// WithMiddleware adds middleware around every handler invocation.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, mws...) }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithTracerProvider sets a custom OTel TracerProvider for handler spans.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. Both the metrics
// middleware and the observability extension use it.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	eng := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.handlers == nil {
		eng.handlers = job.NewRegistry()
	}
	if eng.queues == nil {
		eng.queues = queue.NewRegistry(queue.WithDefaultLogger(eng.logger))
	}

	eng.extensions = ext.NewRegistry(eng.logger)
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter(instrumentationName + "/observability")
		eng.extensions.Register(observability.NewMetricsExtensionWithMeter(meter))
	} else {
		eng.extensions.Register(observability.NewMetricsExtension())
	}
	if eng.archive != nil {
		eng.extensions.Register(archive.NewListener(eng.archive, eng.queues))
		eng.service = archive.NewService(eng.archive, eng, archive.WithLogger(eng.logger))
	}
	for _, e := range eng.pending {
		eng.extensions.Register(e)
	}
	eng.pending = nil

	return eng
}

// Handlers returns the handler registry.
func (eng *Engine) Handlers() *job.Registry { return eng.handlers }

// Queues returns the queue config registry.
func (eng *Engine) Queues() *queue.Registry { return eng.queues }

// Extensions returns the extension registry shared by all consumers.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Archive returns the failed job service.
func (eng *Engine) Archive() (*archive.Service, error) {
	if eng.service == nil {
		return nil, ferry.ErrNoArchive
	}
	return eng.service, nil
}

// SetConfig registers a queue config.
func (eng *Engine) SetConfig(cfg queue.Config) error {
	return eng.queues.SetConfig(cfg)
}

// Register registers h for typ at the default entry point.
func (eng *Engine) Register(typ string, h job.Handler, opts ...job.Option) {
	eng.handlers.Register(typ, h, opts...)
}

// RegisterDefinition registers a typed handler definition with the engine.
func RegisterDefinition[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.handlers, def)
}

// ──────────────────────────────────────────────────
// Producer
// ──────────────────────────────────────────────────

type pushOptions struct {
	config   string
	queue    string
	priority *int
}

// PushOption configures a push.
type PushOption func(*pushOptions)

// WithConfig selects the queue config. The default is DefaultConfig.
func WithConfig(name string) PushOption {
	return func(o *pushOptions) {
		if name != "" {
			o.config = name
		}
	}
}

// WithQueue overrides the config's default queue.
func WithQueue(name string) PushOption {
	return func(o *pushOptions) { o.queue = name }
}

// WithPriority sets the message priority.
func WithPriority(p int) PushOption {
	return func(o *pushOptions) { o.priority = &p }
}

// Push publishes an envelope for target with data. It reports false with
// a nil error when target's handler is unique and an identical push is
// still on the queue. Unique handlers need a config with a unique cache;
// otherwise the error wraps ferry.ErrUniqueCacheMissing.
func (eng *Engine) Push(ctx context.Context, target job.Target, data map[string]any, opts ...PushOption) (bool, error) {
	o := pushOptions{config: DefaultConfig}
	for _, opt := range opts {
		opt(&o)
	}
	if data == nil {
		data = map[string]any{}
	}

	br, cfg, err := eng.queues.Bind(o.config)
	if err != nil {
		return false, fmt.Errorf("ferry/engine: push %s: %w", target, err)
	}
	dest := o.queue
	if dest == "" {
		dest = cfg.Queue
	}

	body, err := job.Encode(&job.Envelope{
		Target: target,
		Data:   data,
		Args:   []any{data},
		RequeueOptions: &job.RequeueOptions{
			Config:   o.config,
			Priority: o.priority,
			Queue:    dest,
		},
	})
	if err != nil {
		return false, fmt.Errorf("ferry/engine: push %s: %w", target, err)
	}
	msg := broker.NewMessage(body)
	msg.Priority = o.priority

	publish := func(ctx context.Context) error {
		if err := br.Publish(ctx, dest, msg); err != nil {
			return fmt.Errorf("ferry/engine: publish %s: %w", target, err)
		}
		return nil
	}

	if desc, ok := eng.handlers.Descriptor(target); !ok || !desc.Unique {
		if err := publish(ctx); err != nil {
			return false, err
		}
		return true, nil
	}

	guard, err := eng.queues.Guard(o.config)
	if err != nil {
		return false, fmt.Errorf("ferry/engine: push %s: %w", target, err)
	}
	return guard.Publish(ctx, target, data, publish)
}

// Enqueue pushes a typed payload for def. The payload is converted to an
// argument mapping through its JSON form.
func Enqueue[T any](ctx context.Context, eng *Engine, def *job.Definition[T], args T, opts ...PushOption) (bool, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return false, fmt.Errorf("ferry/engine: marshal arguments for %q: %w", def.Name, err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return false, fmt.Errorf("ferry/engine: arguments for %q must encode as an object: %w", def.Name, err)
	}
	return eng.Push(ctx, def.Target(), data, opts...)
}

// Republish pushes an archived record back with its original target,
// data, config, priority and queue. It implements archive.Publisher.
func (eng *Engine) Republish(ctx context.Context, r *archive.Record) error {
	data, err := r.Arguments()
	if err != nil {
		return err
	}
	opts := []PushOption{WithConfig(r.Config), WithQueue(r.Queue)}
	if r.Priority != nil {
		opts = append(opts, WithPriority(*r.Priority))
	}
	_, err = eng.Push(ctx, r.Target(), data, opts...)
	return err
}

var _ archive.Publisher = (*Engine)(nil)

// ──────────────────────────────────────────────────
// Consumer
// ──────────────────────────────────────────────────

type consumerOptions struct {
	queue       string
	limits      *worker.Limits
	maxAttempts int
	logger      *slog.Logger
	hooks       []worker.ResultHook
}

// ConsumerOption configures a consumer built by NewConsumer.
type ConsumerOption func(*consumerOptions)

// ConsumeQueue overrides the config's default queue.
func ConsumeQueue(name string) ConsumerOption {
	return func(o *consumerOptions) { o.queue = name }
}

// WithLimits sets the loop budgets. The default is unlimited.
func WithLimits(l *worker.Limits) ConsumerOption {
	return func(o *consumerOptions) { o.limits = l }
}

// WithMaxAttempts sets the attempt limit for handlers that declare none.
// Zero means unlimited.
func WithMaxAttempts(n int) ConsumerOption {
	return func(o *consumerOptions) { o.maxAttempts = n }
}

// WithConsumerLogger sets the logger handed to result hooks and the
// failed job listener. The config's named logger is used otherwise.
func WithConsumerLogger(l *slog.Logger) ConsumerOption {
	return func(o *consumerOptions) { o.logger = l }
}

// WithResultHooks appends hooks that run after the built-in ones.
func WithResultHooks(hooks ...worker.ResultHook) ConsumerOption {
	return func(o *consumerOptions) { o.hooks = append(o.hooks, hooks...) }
}

// NewConsumer builds a consumer for the named config. Its result hooks
// are the attempt limiter followed by the unique marker release.
func (eng *Engine) NewConsumer(config string, opts ...ConsumerOption) (*worker.Consumer, error) {
	if config == "" {
		config = DefaultConfig
	}
	var o consumerOptions
	for _, opt := range opts {
		opt(&o)
	}

	br, cfg, err := eng.queues.Bind(config)
	if err != nil {
		return nil, fmt.Errorf("ferry/engine: consumer: %w", err)
	}
	logger := o.logger
	if logger == nil {
		logger = eng.queues.Logger(cfg.Logger)
	}

	popts := []worker.ProcessorOption{
		worker.WithProcessorLogger(logger),
		worker.WithMiddleware(eng.mws...),
	}
	if eng.tracerProvider != nil {
		popts = append(popts, worker.WithTracer(eng.tracerProvider.Tracer(instrumentationName)))
	}
	if eng.meterProvider != nil {
		popts = append(popts, worker.WithMeter(eng.meterProvider.Meter(instrumentationName)))
	}
	p := worker.NewProcessor(eng.handlers, eng.extensions, popts...)

	hooks := []worker.ResultHook{
		worker.NewAttemptLimiter(eng.handlers, eng.extensions, worker.WithDefaultMaxAttempts(o.maxAttempts)),
		worker.NewUniqueRelease(eng.handlers, eng.queues),
	}
	hooks = append(hooks, o.hooks...)

	copts := []worker.ConsumerOption{
		worker.WithQueue(o.queue),
		worker.WithLimits(o.limits),
		worker.WithResultHooks(hooks...),
		worker.WithConsumerLogger(logger),
	}
	if lim := eng.queues.Limiter(config); lim != nil {
		copts = append(copts, worker.WithRateLimiter(lim))
	}
	return worker.NewConsumer(br, cfg, p, copts...), nil
}

// Close closes the broker clients, the caches the engine opened and the
// archive store.
func (eng *Engine) Close() error {
	var g errgroup.Group
	var queuesErr, archiveErr error
	g.Go(func() error {
		queuesErr = eng.queues.Close()
		return nil
	})
	if c, ok := eng.archive.(io.Closer); ok {
		g.Go(func() error {
			archiveErr = c.Close()
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(queuesErr, archiveErr)
}
