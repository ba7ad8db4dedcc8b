// Package ext defines the observer system for ferry.
// Extensions are notified of message lifecycle events (seen, started,
// succeeded, attempts exhausted, etc.) and can react to them: logging,
// metrics, archiving.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/broker"
	"github.com/xraph/ferry/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Processor hooks
// ──────────────────────────────────────────────────

// MessageSeen is called for every received message before it is decoded.
type MessageSeen interface {
	OnMessageSeen(ctx context.Context, msg *broker.Message) error
}

// MessageInvalid is called when a message cannot be decoded or names a
// handler that is not registered.
type MessageInvalid interface {
	OnMessageInvalid(ctx context.Context, msg *broker.Message, err error) error
}

// MessageStarted is called right before the handler runs.
type MessageStarted interface {
	OnMessageStarted(ctx context.Context, env *job.Envelope) error
}

// MessageException is called when the handler returns an error or panics.
type MessageException interface {
	OnMessageException(ctx context.Context, env *job.Envelope, err error) error
}

// MessageSucceeded is called when the handler result maps to Ack.
type MessageSucceeded interface {
	OnMessageSucceeded(ctx context.Context, env *job.Envelope, elapsed time.Duration) error
}

// MessageRejected is called when the handler result maps to Reject.
type MessageRejected interface {
	OnMessageRejected(ctx context.Context, env *job.Envelope) error
}

// MessageFailed is called when the handler result maps to Requeue.
type MessageFailed interface {
	OnMessageFailed(ctx context.Context, env *job.Envelope) error
}

// ──────────────────────────────────────────────────
// Retry hooks
// ──────────────────────────────────────────────────

// MessageRetried is called after a copy of a message was published with
// an incremented attempt count. maxAttempts is zero when unlimited.
type MessageRetried interface {
	OnMessageRetried(ctx context.Context, env *job.Envelope, attempt, maxAttempts int) error
}

// Failure describes a message whose attempts are exhausted.
type Failure struct {
	Envelope *job.Envelope
	Message  *broker.Message

	// Config is the queue config the consumer runs against.
	Config string

	// MaxAttempts is the limit that was reached.
	MaxAttempts int

	// Exception is the detail of the last handler fault.
	Exception string

	// Logger is the consumer's logger. Nil when the consumer has none.
	Logger *slog.Logger
}

// Err describes the failure as an error wrapping ferry.ErrAttemptsExhausted.
func (f *Failure) Err() error {
	target := "unknown"
	if f.Envelope != nil {
		target = f.Envelope.Target.String()
	}
	if f.Exception == "" {
		return fmt.Errorf("%w: %s after %d attempts", ferry.ErrAttemptsExhausted, target, f.MaxAttempts)
	}
	return fmt.Errorf("%w: %s after %d attempts: %s", ferry.ErrAttemptsExhausted, target, f.MaxAttempts, f.Exception)
}

// AttemptsExhausted is called once when a message reaches its attempt
// limit. Unlike other hooks, its errors are returned to the consumer.
type AttemptsExhausted interface {
	OnAttemptsExhausted(ctx context.Context, f *Failure) error
}

// ──────────────────────────────────────────────────
// Loop hooks
// ──────────────────────────────────────────────────

// LoopInterrupted is called when a loop budget stops the consumer.
// reason is "maxRuntime" or "maxIterations".
type LoopInterrupted interface {
	OnLoopInterrupted(ctx context.Context, reason string) error
}

// Shutdown is called when the consumer returns.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
