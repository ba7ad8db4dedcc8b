package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/ferry/broker"
	"github.com/xraph/ferry/queue"
)

// Consumer runs the receive loop for one queue of one config. It is
// single-threaded: one message is processed and finalized before the
// next receive. Several consumers may share a queue.
type Consumer struct {
	broker    broker.Broker
	config    queue.Config
	queue     string
	processor *Processor
	limits    *Limits
	hooks     []ResultHook
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    *slog.Logger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithQueue overrides the config's default queue.
func WithQueue(name string) ConsumerOption {
	return func(c *Consumer) {
		if name != "" {
			c.queue = name
		}
	}
}

// WithLimits sets the loop budgets. The default is unlimited.
func WithLimits(l *Limits) ConsumerOption {
	return func(c *Consumer) { c.limits = l }
}

// WithResultHooks appends result hooks. They run in order.
func WithResultHooks(hooks ...ResultHook) ConsumerOption {
	return func(c *Consumer) { c.hooks = append(c.hooks, hooks...) }
}

// WithRateLimiter throttles receives.
func WithRateLimiter(l *rate.Limiter) ConsumerOption {
	return func(c *Consumer) { c.limiter = l }
}

// WithReceiveTimeout overrides the config's receive timeout.
func WithReceiveTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithConsumerLogger sets the loop logger. Result hooks see it as
// ResultContext.Logger.
func WithConsumerLogger(l *slog.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = l }
}

// NewConsumer creates a Consumer receiving from br with cfg.
func NewConsumer(br broker.Broker, cfg queue.Config, p *Processor, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		broker:    br,
		config:    cfg,
		queue:     cfg.Queue,
		processor: p,
		timeout:   cfg.ReceiveTimeout,
	}
	if c.queue == "" {
		c.queue = queue.DefaultQueue
	}
	if c.timeout <= 0 {
		c.timeout = queue.DefaultReceiveTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limits == nil {
		c.limits = Unlimited()
	}
	return c
}

// Queue returns the queue the consumer receives from.
func (c *Consumer) Queue() string { return c.queue }

// Limits returns the loop budgets.
func (c *Consumer) Limits() *Limits { return c.limits }

// Run receives and processes messages until a budget is spent or ctx is
// done, both of which return nil. Receive failures and result hook
// errors stop the loop and are returned.
func (c *Consumer) Run(ctx context.Context) error {
	extensions := c.processor.Extensions()
	defer extensions.EmitShutdown(context.WithoutCancel(ctx))

	c.log(slog.LevelInfo, "consumer starting",
		slog.String("config", c.config.Name),
		slog.String("queue", c.queue),
	)

	for {
		if reason, stop := c.limits.OnPreReceive(); stop {
			return c.interrupt(ctx, reason)
		}
		if ctx.Err() != nil {
			return nil
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("ferry/worker: rate limit: %w", err)
			}
		}

		msg, err := c.broker.Receive(ctx, c.queue, c.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ferry/worker: receive: %w", err)
		}
		if msg == nil {
			continue
		}

		res, hookErr := c.handle(ctx, msg)
		if hookErr != nil {
			return hookErr
		}

		if reason, stop := c.limits.OnPostMessage(res); stop {
			return c.interrupt(ctx, reason)
		}
	}
}

// handle processes msg, runs the result hooks and finalizes the delivery.
// Once received, a message is carried through to its verdict even if ctx
// is cancelled meanwhile; cancellation is only observed between messages.
// Every hook runs and the delivery is finalized even when a hook fails.
func (c *Consumer) handle(ctx context.Context, msg *broker.Message) (Result, error) {
	hctx := context.WithoutCancel(ctx)
	res, env := c.processor.process(hctx, msg)

	rc := &ResultContext{
		Message:  msg,
		Envelope: env,
		Result:   res,
		Broker:   c.broker,
		Config:   c.config,
		Queue:    c.queue,
		Logger:   c.logger,
	}

	var hookErrs []error
	for _, h := range c.hooks {
		if err := h.OnResult(hctx, rc); err != nil {
			hookErrs = append(hookErrs, err)
		}
	}

	if err := c.finalize(hctx, msg, rc.Result); err != nil {
		c.log(slog.LevelError, "could not finalize delivery",
			slog.String("message_id", msg.ID),
			slog.String("verdict", string(rc.Result.Verdict)),
			slog.String("error", err.Error()),
		)
	}

	return rc.Result, errors.Join(hookErrs...)
}

func (c *Consumer) finalize(ctx context.Context, msg *broker.Message, res Result) error {
	switch res.Verdict {
	case Ack:
		return c.broker.Ack(ctx, msg)
	case Reject:
		return c.broker.Reject(ctx, msg, false)
	default:
		return c.broker.Reject(ctx, msg, true)
	}
}

func (c *Consumer) interrupt(ctx context.Context, reason string) error {
	c.log(slog.LevelInfo, "consumer interrupted",
		slog.String("reason", reason),
		slog.Int("processed", c.limits.Iterations()),
	)
	c.processor.Extensions().EmitLoopInterrupted(ctx, reason)
	return nil
}

func (c *Consumer) log(level slog.Level, msg string, attrs ...slog.Attr) {
	if c.logger == nil {
		return
	}
	c.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
