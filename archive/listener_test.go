package archive_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/archive"
	"github.com/xraph/ferry/broker"
	"github.com/xraph/ferry/ext"
	"github.com/xraph/ferry/job"
	"github.com/xraph/ferry/queue"
	"github.com/xraph/ferry/store/memory"
)

// failingStore rejects every insert.
type failingStore struct {
	archive.Store
}

func (failingStore) Insert(context.Context, *archive.Record) error {
	return errors.New("disk full")
}

func newConfigs(t *testing.T) *queue.Registry {
	t.Helper()
	reg := queue.NewRegistry()
	for _, cfg := range []queue.Config{
		{Name: "default", URL: "memory://", StoreFailedJobs: true},
		{Name: "volatile", URL: "memory://"},
	} {
		if err := reg.SetConfig(cfg); err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func newFailure(config string) *ext.Failure {
	p := 5
	return &ext.Failure{
		Envelope: &job.Envelope{
			Target: job.NewTarget("send-email", "execute"),
			Data:   map[string]any{"to": "a@b.c"},
			RequeueOptions: &job.RequeueOptions{
				Config:   config,
				Priority: &p,
				Queue:    "mail",
			},
			Attempts: 3,
		},
		Message:     &broker.Message{Queue: "mail"},
		Config:      "default",
		MaxAttempts: 3,
		Exception:   "smtp timeout",
	}
}

func TestListener_StoresRecord(t *testing.T) {
	s := memory.New()
	l := archive.NewListener(s, newConfigs(t))

	if err := l.OnAttemptsExhausted(context.Background(), newFailure("default")); err != nil {
		t.Fatal(err)
	}

	recs, err := s.Find(context.Background(), archive.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	r := recs[0]
	if r.Type != "send-email" || r.Entry != "execute" || r.Config != "default" || r.Queue != "mail" {
		t.Errorf("unexpected record %+v", r)
	}
	if r.Priority == nil || *r.Priority != 5 {
		t.Errorf("priority = %v, want 5", r.Priority)
	}
	if r.Exception != "smtp timeout" || r.Data != `{"to":"a@b.c"}` {
		t.Errorf("exception = %q, data = %q", r.Exception, r.Data)
	}
}

func TestListener_SkipsConfigWithoutArchive(t *testing.T) {
	s := memory.New()
	l := archive.NewListener(s, newConfigs(t))

	if err := l.OnAttemptsExhausted(context.Background(), newFailure("volatile")); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Errorf("records = %d, want 0", s.Len())
	}
}

func TestListener_FallsBackToConsumerConfig(t *testing.T) {
	s := memory.New()
	l := archive.NewListener(s, newConfigs(t))

	f := newFailure("")
	f.Envelope.RequeueOptions = nil
	if err := l.OnAttemptsExhausted(context.Background(), f); err != nil {
		t.Fatal(err)
	}
	recs, _ := s.Find(context.Background(), archive.Filter{Config: "default"})
	if len(recs) != 1 || recs[0].Queue != "mail" || recs[0].Priority != nil {
		t.Errorf("records = %+v", recs)
	}
}

func TestListener_PersistenceErrorWithoutLogger(t *testing.T) {
	l := archive.NewListener(failingStore{memory.New()}, newConfigs(t))

	err := l.OnAttemptsExhausted(context.Background(), newFailure("default"))
	if !errors.Is(err, ferry.ErrArchivePersistence) {
		t.Errorf("expected ErrArchivePersistence, got %v", err)
	}
}

func TestListener_PersistenceErrorLogged(t *testing.T) {
	var buf bytes.Buffer
	l := archive.NewListener(failingStore{memory.New()}, newConfigs(t))

	f := newFailure("default")
	f.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	if err := l.OnAttemptsExhausted(context.Background(), f); err != nil {
		t.Errorf("expected nil with logger, got %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("could not store failed job")) {
		t.Errorf("log output = %q", buf.String())
	}
}

func TestListener_Name(t *testing.T) {
	l := archive.NewListener(memory.New(), queue.NewRegistry())
	if l.Name() != "failed-jobs" {
		t.Errorf("name = %q", l.Name())
	}
}
