package worker

import (
	"context"
	"log/slog"

	"github.com/xraph/ferry/job"
	"github.com/xraph/ferry/unique"
)

// GuardSource resolves the dedup guard of a queue config.
// *queue.Registry implements it.
type GuardSource interface {
	Guard(name string) (*unique.Guard, error)
}

// UniqueRelease is the result hook that deletes the dedup marker of a
// unique handler once its message is processed for good. Markers stay in
// place while a retry copy is on the queue.
type UniqueRelease struct {
	handlers *job.Registry
	guards   GuardSource
}

var _ ResultHook = (*UniqueRelease)(nil)

// NewUniqueRelease creates a UniqueRelease hook.
func NewUniqueRelease(handlers *job.Registry, guards GuardSource) *UniqueRelease {
	return &UniqueRelease{handlers: handlers, guards: guards}
}

// OnResult implements ResultHook.
func (u *UniqueRelease) OnResult(ctx context.Context, rc *ResultContext) error {
	if rc.Envelope == nil || !rc.Result.Terminal() {
		return nil
	}
	desc, ok := u.handlers.Descriptor(rc.Envelope.Target)
	if !ok || !desc.Unique {
		return nil
	}

	name := rc.Config.Name
	if ro := rc.Envelope.RequeueOptions; ro != nil && ro.Config != "" {
		name = ro.Config
	}

	guard, err := u.guards.Guard(name)
	if err == nil {
		err = guard.Release(ctx, rc.Envelope.Target, rc.Envelope.Arguments())
	}
	if err != nil && rc.Logger != nil {
		rc.Logger.Warn("could not release unique marker",
			slog.String("target", rc.Envelope.Target.String()),
			slog.String("config", name),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
