package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/ferry/broker"
	"github.com/xraph/ferry/ext"
	"github.com/xraph/ferry/job"
)

// RetryMessage returns a copy of msg for republishing with the attempt
// count set to attempt. The fault detail of the current delivery is not
// carried over.
func RetryMessage(msg *broker.Message, attempt int) *broker.Message {
	c := msg.Clone()
	c.SetProperty(job.AttemptsProperty, strconv.Itoa(attempt))
	delete(c.Properties, job.ExceptionProperty)
	return c
}

// AttemptLimiter is the result hook that owns the attempt count. It acts
// only on Requeue: the delivery is either replaced by a republished copy
// with attempts+1, or rejected for good once the limit is reached.
type AttemptLimiter struct {
	handlers    *job.Registry
	extensions  *ext.Registry
	maxAttempts int
}

var _ ResultHook = (*AttemptLimiter)(nil)

// LimiterOption configures an AttemptLimiter.
type LimiterOption func(*AttemptLimiter)

// WithDefaultMaxAttempts sets the limit for handlers that declare none.
// Zero or less means unlimited.
func WithDefaultMaxAttempts(n int) LimiterOption {
	return func(l *AttemptLimiter) { l.maxAttempts = n }
}

// NewAttemptLimiter creates an AttemptLimiter reading handler limits from
// handlers and emitting retry events to extensions.
func NewAttemptLimiter(handlers *job.Registry, extensions *ext.Registry, opts ...LimiterOption) *AttemptLimiter {
	l := &AttemptLimiter{handlers: handlers, extensions: extensions}
	for _, opt := range opts {
		opt(l)
	}
	if l.extensions == nil {
		l.extensions = ext.NewRegistry(nil)
	}
	return l
}

// MaxAttempts returns the limit in effect for target, zero when unlimited.
func (l *AttemptLimiter) MaxAttempts(target job.Target) int {
	if n, ok := l.handlers.MaxAttempts(target); ok {
		return n
	}
	if l.maxAttempts > 0 {
		return l.maxAttempts
	}
	return 0
}

// OnResult implements ResultHook.
func (l *AttemptLimiter) OnResult(ctx context.Context, rc *ResultContext) error {
	if rc.Result.Verdict != Requeue || rc.Envelope == nil {
		return nil
	}

	env := rc.Envelope
	limit := l.MaxAttempts(env.Target)
	next := rc.Message.IntProperty(job.AttemptsProperty, 0) + 1

	if limit > 0 && next >= limit {
		rc.Result = rejectResult(fmt.Sprintf("The maximum number of %d allowed attempts was reached.", limit))
		return l.extensions.EmitAttemptsExhausted(ctx, &ext.Failure{
			Envelope:    env,
			Message:     rc.Message,
			Config:      rc.Config.Name,
			MaxAttempts: limit,
			Exception:   rc.Message.Property(job.ExceptionProperty, ""),
			Logger:      rc.Logger,
		})
	}

	dest := rc.Message.Queue
	if dest == "" {
		dest = rc.Queue
	}
	if err := rc.Broker.Publish(ctx, dest, RetryMessage(rc.Message, next)); err != nil {
		// The delivery stays Requeue so the broker redelivers it.
		if rc.Logger != nil {
			rc.Logger.Error("could not republish message",
				slog.String("target", env.Target.String()),
				slog.Int("attempt", next),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	rc.Result = Result{
		Verdict: Reject,
		Reason:  "A copy of the message was sent with an incremented attempt count.",
		Retry:   &Retry{Attempt: next, MaxAttempts: limit},
	}
	l.extensions.EmitMessageRetried(ctx, env, next, limit)
	return nil
}
