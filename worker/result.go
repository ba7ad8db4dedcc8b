package worker

import (
	"context"
	"log/slog"

	"github.com/xraph/ferry/broker"
	"github.com/xraph/ferry/job"
	"github.com/xraph/ferry/queue"
)

// Verdict is the outcome of one delivery.
type Verdict string

const (
	// Ack acknowledges the delivery.
	Ack Verdict = "ack"
	// Reject drops the delivery.
	Reject Verdict = "reject"
	// Requeue hands the delivery back to the broker.
	Requeue Verdict = "requeue"
)

// Retry marks a Reject that was paired with a republished copy.
type Retry struct {
	// Attempt is the attempt count carried by the copy.
	Attempt int
	// MaxAttempts is the limit in effect, zero when unlimited.
	MaxAttempts int
}

// Result is the processing outcome of one delivery.
type Result struct {
	Verdict Verdict
	Reason  string
	Retry   *Retry
}

// Terminal reports whether the result finishes the message for good:
// Ack, or a Reject that was not paired with a retry copy.
func (r Result) Terminal() bool {
	switch r.Verdict {
	case Ack:
		return true
	case Reject:
		return r.Retry == nil
	default:
		return false
	}
}

// Bounded reports whether the result is a retry under a finite limit.
func (r Result) Bounded() bool {
	return r.Retry != nil && r.Retry.MaxAttempts > 0
}

func ackResult() Result { return Result{Verdict: Ack} }

func rejectResult(reason string) Result { return Result{Verdict: Reject, Reason: reason} }

func requeueResult(reason string) Result { return Result{Verdict: Requeue, Reason: reason} }

// ResultContext is handed to result hooks. Hooks may replace Result.
type ResultContext struct {
	Message *broker.Message

	// Envelope is nil when the message could not be decoded.
	Envelope *job.Envelope

	Result Result

	// Broker is the client the delivery came from.
	Broker broker.Broker

	// Config is the queue config the consumer runs against.
	Config queue.Config

	// Queue is the queue the consumer receives from.
	Queue string

	// Logger is the consumer logger, nil when the consumer has none.
	Logger *slog.Logger
}

// ResultHook observes a processing result before the delivery is
// finalized. A returned error stops the consumer.
type ResultHook interface {
	OnResult(ctx context.Context, rc *ResultContext) error
}

// ResultHookFunc adapts a function to ResultHook.
type ResultHookFunc func(ctx context.Context, rc *ResultContext) error

// OnResult implements ResultHook.
func (f ResultHookFunc) OnResult(ctx context.Context, rc *ResultContext) error { return f(ctx, rc) }
