package worker_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/broker"
	"github.com/xraph/ferry/job"
	"github.com/xraph/ferry/worker"
)

func newProcessor(t *testing.T, h job.Handler, opts ...job.Option) (*worker.Processor, *recorder) {
	t.Helper()
	handlers := job.NewRegistry()
	handlers.Register("task", h, opts...)
	extensions, rec := newRecorderRegistry()
	return worker.NewProcessor(handlers, extensions, worker.WithProcessorLogger(discardLogger())), rec
}

func TestProcessor_ResultMapping(t *testing.T) {
	tests := []struct {
		name    string
		out     job.Result
		verdict worker.Verdict
		reason  string
		event   string
	}{
		{"empty is success", "", worker.Ack, "", "success"},
		{"ack", job.Ack, worker.Ack, "", "success"},
		{"reject", job.Reject, worker.Reject, "", "reject"},
		{"requeue", job.Requeue, worker.Requeue, "unrecognized result", "failure"},
		{"unknown", job.Result("later"), worker.Requeue, "unrecognized result", "failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, rec := newProcessor(t, job.HandlerFunc(func(context.Context, *job.Envelope) (job.Result, error) {
				return tt.out, nil
			}))

			res := p.Process(context.Background(), newMessage(t, "task", map[string]any{}, 0))
			if res.Verdict != tt.verdict {
				t.Errorf("verdict = %q, want %q", res.Verdict, tt.verdict)
			}
			if res.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", res.Reason, tt.reason)
			}
			for _, ev := range []string{"seen", "start", tt.event} {
				if rec.count(ev) != 1 {
					t.Errorf("expected one %q event, got %d", ev, rec.count(ev))
				}
			}
		})
	}
}

func TestProcessor_MalformedIsRejected(t *testing.T) {
	p, rec := newProcessor(t, job.HandlerFunc(func(context.Context, *job.Envelope) (job.Result, error) {
		t.Fatal("handler must not run")
		return "", nil
	}))

	res := p.Process(context.Background(), broker.NewMessage([]byte(`{"data":{}}`)))
	if res.Verdict != worker.Reject {
		t.Fatalf("verdict = %q, want reject", res.Verdict)
	}
	if rec.count("invalid") != 1 || rec.count("start") != 0 {
		t.Errorf("unexpected events: %v", rec.events)
	}
}

func TestProcessor_UnknownHandlerIsRejected(t *testing.T) {
	p, rec := newProcessor(t, job.HandlerFunc(func(context.Context, *job.Envelope) (job.Result, error) {
		return "", nil
	}))

	res := p.Process(context.Background(), newMessage(t, "missing", map[string]any{}, 0))
	if res.Verdict != worker.Reject {
		t.Fatalf("verdict = %q, want reject", res.Verdict)
	}
	if !strings.Contains(res.Reason, ferry.ErrUnresolvableHandler.Error()) {
		t.Errorf("reason = %q", res.Reason)
	}
	if rec.count("invalid") != 1 {
		t.Errorf("expected invalid event")
	}
}

func TestProcessor_ExceptionRequeues(t *testing.T) {
	p, rec := newProcessor(t, job.HandlerFunc(func(context.Context, *job.Envelope) (job.Result, error) {
		return "", errors.New("boom")
	}))

	msg := newMessage(t, "task", map[string]any{}, 0)
	res := p.Process(context.Background(), msg)

	if res.Verdict != worker.Requeue || res.Reason != "exception: boom" {
		t.Fatalf("result = %+v", res)
	}
	if got := msg.Property(job.ExceptionProperty, ""); got != "boom" {
		t.Errorf("jobException = %q, want boom", got)
	}
	if rec.count("exception") != 1 {
		t.Errorf("expected exception event")
	}
	for _, ev := range []string{"success", "reject", "failure"} {
		if rec.count(ev) != 0 {
			t.Errorf("unexpected %q event after exception", ev)
		}
	}
}

func TestProcessor_PanicRequeues(t *testing.T) {
	p, _ := newProcessor(t, job.HandlerFunc(func(context.Context, *job.Envelope) (job.Result, error) {
		panic("kaboom")
	}))

	msg := newMessage(t, "task", map[string]any{}, 0)
	res := p.Process(context.Background(), msg)
	if res.Verdict != worker.Requeue {
		t.Fatalf("verdict = %q, want requeue", res.Verdict)
	}
	if !strings.Contains(msg.Property(job.ExceptionProperty, ""), "kaboom") {
		t.Errorf("jobException = %q", msg.Property(job.ExceptionProperty, ""))
	}
}

func TestProcessor_AttemptsFromProperty(t *testing.T) {
	var seen int
	p, _ := newProcessor(t, job.HandlerFunc(func(_ context.Context, env *job.Envelope) (job.Result, error) {
		seen = env.Attempts
		return "", nil
	}))

	p.Process(context.Background(), newMessage(t, "task", map[string]any{}, 4))
	if seen != 4 {
		t.Errorf("attempts = %d, want 4", seen)
	}
}
