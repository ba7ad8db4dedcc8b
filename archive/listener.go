package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/ext"
	"github.com/xraph/ferry/queue"
)

// ConfigSource looks up queue configs. *queue.Registry implements it.
type ConfigSource interface {
	Config(name string) (queue.Config, error)
}

// Listener stores a record for every message whose attempts are
// exhausted, when the config it was pushed with has StoreFailedJobs.
type Listener struct {
	store   Store
	configs ConfigSource
}

var (
	_ ext.Extension         = (*Listener)(nil)
	_ ext.AttemptsExhausted = (*Listener)(nil)
)

// NewListener creates a Listener writing to store.
func NewListener(store Store, configs ConfigSource) *Listener {
	return &Listener{store: store, configs: configs}
}

// Name implements ext.Extension.
func (l *Listener) Name() string { return "failed-jobs" }

// OnAttemptsExhausted implements ext.AttemptsExhausted. A failed insert
// is logged when the notification carries a logger and returned as
// ferry.ErrArchivePersistence otherwise.
func (l *Listener) OnAttemptsExhausted(ctx context.Context, f *ext.Failure) error {
	if f.Envelope == nil {
		return nil
	}

	name := f.Config
	if ro := f.Envelope.RequeueOptions; ro != nil && ro.Config != "" {
		name = ro.Config
	}
	cfg, err := l.configs.Config(name)
	if err != nil || !cfg.StoreFailedJobs {
		return nil
	}

	queueName := cfg.Queue
	if f.Message != nil && f.Message.Queue != "" {
		queueName = f.Message.Queue
	}

	rec, err := NewRecord(f.Envelope, name, queueName, f.Exception)
	if err == nil {
		err = l.store.Insert(ctx, rec)
	}
	if err == nil {
		return nil
	}

	if f.Logger == nil {
		return fmt.Errorf("%w: %w", ferry.ErrArchivePersistence, err)
	}
	f.Logger.Error("could not store failed job",
		slog.String("target", f.Envelope.Target.String()),
		slog.String("config", name),
		slog.String("error", err.Error()),
	)
	return nil
}
