package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/ferry/broker"
	"github.com/xraph/ferry/job"
)

// Logging writes a debug line for every lifecycle event. The worker
// registers it only when verbose output is requested.
type Logging struct {
	logger *slog.Logger
}

// NewLogging returns a logging extension writing to l.
func NewLogging(l *slog.Logger) *Logging {
	return &Logging{logger: l}
}

// Name implements Extension.
func (l *Logging) Name() string { return "logging" }

// OnMessageSeen implements MessageSeen.
func (l *Logging) OnMessageSeen(_ context.Context, msg *broker.Message) error {
	l.logger.Debug("message seen",
		slog.String("message_id", msg.ID),
		slog.String("queue", msg.Queue),
	)
	return nil
}

// OnMessageInvalid implements MessageInvalid.
func (l *Logging) OnMessageInvalid(_ context.Context, msg *broker.Message, err error) error {
	l.logger.Debug("invalid callable for message, rejecting message from queue",
		slog.String("message_id", msg.ID),
		slog.String("error", err.Error()),
	)
	return nil
}

// OnMessageStarted implements MessageStarted.
func (l *Logging) OnMessageStarted(_ context.Context, env *job.Envelope) error {
	l.logger.Debug("message started",
		slog.String("target", env.Target.String()),
		slog.Int("attempts", env.Attempts),
	)
	return nil
}

// OnMessageException implements MessageException.
func (l *Logging) OnMessageException(_ context.Context, env *job.Envelope, err error) error {
	l.logger.Debug("message encountered exception",
		slog.String("target", env.Target.String()),
		slog.String("error", err.Error()),
	)
	return nil
}

// OnMessageSucceeded implements MessageSucceeded.
func (l *Logging) OnMessageSucceeded(_ context.Context, env *job.Envelope, elapsed time.Duration) error {
	l.logger.Debug("message processed successfully",
		slog.String("target", env.Target.String()),
		slog.Duration("elapsed", elapsed),
	)
	return nil
}

// OnMessageRejected implements MessageRejected.
func (l *Logging) OnMessageRejected(_ context.Context, env *job.Envelope) error {
	l.logger.Debug("message processed with rejection",
		slog.String("target", env.Target.String()),
	)
	return nil
}

// OnMessageFailed implements MessageFailed.
func (l *Logging) OnMessageFailed(_ context.Context, env *job.Envelope) error {
	l.logger.Debug("message processed with failure, requeuing",
		slog.String("target", env.Target.String()),
	)
	return nil
}

// OnMessageRetried implements MessageRetried.
func (l *Logging) OnMessageRetried(_ context.Context, env *job.Envelope, attempt, maxAttempts int) error {
	l.logger.Debug("a copy of the message was sent with an incremented attempt count",
		slog.String("target", env.Target.String()),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", maxAttempts),
	)
	return nil
}

// OnAttemptsExhausted implements AttemptsExhausted.
func (l *Logging) OnAttemptsExhausted(_ context.Context, f *Failure) error {
	l.logger.Debug("maximum attempts reached",
		slog.Int("max_attempts", f.MaxAttempts),
		slog.String("error", f.Err().Error()),
	)
	return nil
}

// OnLoopInterrupted implements LoopInterrupted.
func (l *Logging) OnLoopInterrupted(_ context.Context, reason string) error {
	l.logger.Debug("consumer interrupted", slog.String("reason", reason))
	return nil
}
