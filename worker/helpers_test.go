package worker_test

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/xraph/ferry/broker"
	"github.com/xraph/ferry/ext"
	"github.com/xraph/ferry/job"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is an extension that records every lifecycle event.
type recorder struct {
	mu        sync.Mutex
	events    []string
	retried   []int
	failures  []*ext.Failure
	exhausted error
	reasons   []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) OnMessageSeen(context.Context, *broker.Message) error { r.add("seen"); return nil }

func (r *recorder) OnMessageInvalid(context.Context, *broker.Message, error) error {
	r.add("invalid")
	return nil
}

func (r *recorder) OnMessageStarted(context.Context, *job.Envelope) error { r.add("start"); return nil }

func (r *recorder) OnMessageException(context.Context, *job.Envelope, error) error {
	r.add("exception")
	return nil
}

func (r *recorder) OnMessageSucceeded(context.Context, *job.Envelope, time.Duration) error {
	r.add("success")
	return nil
}

func (r *recorder) OnMessageRejected(context.Context, *job.Envelope) error { r.add("reject"); return nil }

func (r *recorder) OnMessageFailed(context.Context, *job.Envelope) error { r.add("failure"); return nil }

func (r *recorder) OnMessageRetried(_ context.Context, _ *job.Envelope, attempt, _ int) error {
	r.mu.Lock()
	r.retried = append(r.retried, attempt)
	r.mu.Unlock()
	r.add("retried")
	return nil
}

func (r *recorder) OnAttemptsExhausted(_ context.Context, f *ext.Failure) error {
	r.mu.Lock()
	r.failures = append(r.failures, f)
	r.mu.Unlock()
	r.add("exhausted")
	return r.exhausted
}

func (r *recorder) OnLoopInterrupted(_ context.Context, reason string) error {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
	r.add("interrupted")
	return nil
}

func (r *recorder) count(ev string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == ev {
			n++
		}
	}
	return n
}

func newRecorderRegistry() (*ext.Registry, *recorder) {
	rec := &recorder{}
	reg := ext.NewRegistry(discardLogger())
	reg.Register(rec)
	return reg, rec
}

func newMessage(t *testing.T, typ string, data map[string]any, attempts int) *broker.Message {
	t.Helper()
	body, err := job.Encode(&job.Envelope{Target: job.NewTarget(typ, ""), Data: data})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg := broker.NewMessage(body)
	if attempts > 0 {
		msg.SetProperty(job.AttemptsProperty, strconv.Itoa(attempts))
	}
	return msg
}
