package ext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/ferry/broker"
	"github.com/xraph/ferry/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type messageSeenEntry struct {
	name string
	hook MessageSeen
}

type messageInvalidEntry struct {
	name string
	hook MessageInvalid
}

type messageStartedEntry struct {
	name string
	hook MessageStarted
}

type messageExceptionEntry struct {
	name string
	hook MessageException
}

type messageSucceededEntry struct {
	name string
	hook MessageSucceeded
}

type messageRejectedEntry struct {
	name string
	hook MessageRejected
}

type messageFailedEntry struct {
	name string
	hook MessageFailed
}

type messageRetriedEntry struct {
	name string
	hook MessageRetried
}

type attemptsExhaustedEntry struct {
	name string
	hook AttemptsExhausted
}

type loopInterruptedEntry struct {
	name string
	hook LoopInterrupted
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// An engine shares one Registry across all of its consumers. It is safe
// for concurrent use, and extensions may be registered while events are
// being emitted; they see events emitted after Register returns.
type Registry struct {
	mu         sync.RWMutex
	extensions []Extension
	logger     *slog.Logger

	messageSeen       []messageSeenEntry
	messageInvalid    []messageInvalidEntry
	messageStarted    []messageStartedEntry
	messageException  []messageExceptionEntry
	messageSucceeded  []messageSucceededEntry
	messageRejected   []messageRejectedEntry
	messageFailed     []messageFailedEntry
	messageRetried    []messageRetriedEntry
	attemptsExhausted []attemptsExhaustedEntry
	loopInterrupted   []loopInterruptedEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(MessageSeen); ok {
		r.messageSeen = append(r.messageSeen, messageSeenEntry{name, h})
	}
	if h, ok := e.(MessageInvalid); ok {
		r.messageInvalid = append(r.messageInvalid, messageInvalidEntry{name, h})
	}
	if h, ok := e.(MessageStarted); ok {
		r.messageStarted = append(r.messageStarted, messageStartedEntry{name, h})
	}
	if h, ok := e.(MessageException); ok {
		r.messageException = append(r.messageException, messageExceptionEntry{name, h})
	}
	if h, ok := e.(MessageSucceeded); ok {
		r.messageSucceeded = append(r.messageSucceeded, messageSucceededEntry{name, h})
	}
	if h, ok := e.(MessageRejected); ok {
		r.messageRejected = append(r.messageRejected, messageRejectedEntry{name, h})
	}
	if h, ok := e.(MessageFailed); ok {
		r.messageFailed = append(r.messageFailed, messageFailedEntry{name, h})
	}
	if h, ok := e.(MessageRetried); ok {
		r.messageRetried = append(r.messageRetried, messageRetriedEntry{name, h})
	}
	if h, ok := e.(AttemptsExhausted); ok {
		r.attemptsExhausted = append(r.attemptsExhausted, attemptsExhaustedEntry{name, h})
	}
	if h, ok := e.(LoopInterrupted); ok {
		r.loopInterrupted = append(r.loopInterrupted, loopInterruptedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Extension(nil), r.extensions...)
}

// hooks reads a hook cache under the read lock. Caches are append-only,
// so the returned slice stays valid after the lock is released.
func hooks[T any](r *Registry, cache *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *cache
}

// ──────────────────────────────────────────────────
// Processor event emitters
// ──────────────────────────────────────────────────

// EmitMessageSeen notifies all extensions that implement MessageSeen.
func (r *Registry) EmitMessageSeen(ctx context.Context, msg *broker.Message) {
	for _, e := range hooks(r, &r.messageSeen) {
		if err := e.hook.OnMessageSeen(ctx, msg); err != nil {
			r.logHookError("OnMessageSeen", e.name, err)
		}
	}
}

// EmitMessageInvalid notifies all extensions that implement MessageInvalid.
func (r *Registry) EmitMessageInvalid(ctx context.Context, msg *broker.Message, cause error) {
	for _, e := range hooks(r, &r.messageInvalid) {
		if err := e.hook.OnMessageInvalid(ctx, msg, cause); err != nil {
			r.logHookError("OnMessageInvalid", e.name, err)
		}
	}
}

// EmitMessageStarted notifies all extensions that implement MessageStarted.
func (r *Registry) EmitMessageStarted(ctx context.Context, env *job.Envelope) {
	for _, e := range hooks(r, &r.messageStarted) {
		if err := e.hook.OnMessageStarted(ctx, env); err != nil {
			r.logHookError("OnMessageStarted", e.name, err)
		}
	}
}

// EmitMessageException notifies all extensions that implement MessageException.
func (r *Registry) EmitMessageException(ctx context.Context, env *job.Envelope, fault error) {
	for _, e := range hooks(r, &r.messageException) {
		if err := e.hook.OnMessageException(ctx, env, fault); err != nil {
			r.logHookError("OnMessageException", e.name, err)
		}
	}
}

// EmitMessageSucceeded notifies all extensions that implement MessageSucceeded.
func (r *Registry) EmitMessageSucceeded(ctx context.Context, env *job.Envelope, elapsed time.Duration) {
	for _, e := range hooks(r, &r.messageSucceeded) {
		if err := e.hook.OnMessageSucceeded(ctx, env, elapsed); err != nil {
			r.logHookError("OnMessageSucceeded", e.name, err)
		}
	}
}

// EmitMessageRejected notifies all extensions that implement MessageRejected.
func (r *Registry) EmitMessageRejected(ctx context.Context, env *job.Envelope) {
	for _, e := range hooks(r, &r.messageRejected) {
		if err := e.hook.OnMessageRejected(ctx, env); err != nil {
			r.logHookError("OnMessageRejected", e.name, err)
		}
	}
}

// EmitMessageFailed notifies all extensions that implement MessageFailed.
func (r *Registry) EmitMessageFailed(ctx context.Context, env *job.Envelope) {
	for _, e := range hooks(r, &r.messageFailed) {
		if err := e.hook.OnMessageFailed(ctx, env); err != nil {
			r.logHookError("OnMessageFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Retry event emitters
// ──────────────────────────────────────────────────

// EmitMessageRetried notifies all extensions that implement MessageRetried.
func (r *Registry) EmitMessageRetried(ctx context.Context, env *job.Envelope, attempt, maxAttempts int) {
	for _, e := range hooks(r, &r.messageRetried) {
		if err := e.hook.OnMessageRetried(ctx, env, attempt, maxAttempts); err != nil {
			r.logHookError("OnMessageRetried", e.name, err)
		}
	}
}

// EmitAttemptsExhausted notifies all extensions that implement
// AttemptsExhausted. Every hook runs; their errors are joined and returned.
func (r *Registry) EmitAttemptsExhausted(ctx context.Context, f *Failure) error {
	var errs []error
	for _, e := range hooks(r, &r.attemptsExhausted) {
		if err := e.hook.OnAttemptsExhausted(ctx, f); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}

// ──────────────────────────────────────────────────
// Loop event emitters
// ──────────────────────────────────────────────────

// EmitLoopInterrupted notifies all extensions that implement LoopInterrupted.
func (r *Registry) EmitLoopInterrupted(ctx context.Context, reason string) {
	for _, e := range hooks(r, &r.loopInterrupted) {
		if err := e.hook.OnLoopInterrupted(ctx, reason); err != nil {
			r.logHookError("OnLoopInterrupted", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range hooks(r, &r.shutdown) {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from these hooks are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
