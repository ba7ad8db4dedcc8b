package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/job"
	"github.com/xraph/ferry/middleware"
)

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *job.Envelope, next middleware.Handler) (job.Result, error) {
		order = append(order, "mw1-before")
		res, err := next(ctx)
		order = append(order, "mw1-after")
		return res, err
	}

	mw2 := func(ctx context.Context, _ *job.Envelope, next middleware.Handler) (job.Result, error) {
		order = append(order, "mw2-before")
		res, err := next(ctx)
		order = append(order, "mw2-after")
		return res, err
	}

	chain := middleware.Chain(mw1, mw2)
	handler := func(_ context.Context) (job.Result, error) {
		order = append(order, "handler")
		return job.Ack, nil
	}

	res, err := chain(context.Background(), newTestEnvelope(), handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != job.Ack {
		t.Errorf("result = %q, want ack", res)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	handler := func(_ context.Context) (job.Result, error) {
		called = true
		return "", nil
	}

	if _, err := chain(context.Background(), newTestEnvelope(), handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	pass := func(ctx context.Context, _ *job.Envelope, next middleware.Handler) (job.Result, error) {
		return next(ctx)
	}
	chain := middleware.Chain(pass)
	want := errors.New("handler error")

	_, err := chain(context.Background(), newTestEnvelope(), func(_ context.Context) (job.Result, error) {
		return "", want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	res, err := mw(context.Background(), newTestEnvelope(), func(_ context.Context) (job.Result, error) {
		panic("test panic")
	})
	if !errors.Is(err, ferry.ErrHandlerFault) {
		t.Fatalf("expected ErrHandlerFault, got %v", err)
	}
	if !strings.Contains(err.Error(), "panic in send-email::execute: test panic") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
	if res != "" {
		t.Errorf("result = %q, want empty", res)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	called := false
	res, err := mw(context.Background(), newTestEnvelope(), func(_ context.Context) (job.Result, error) {
		called = true
		return job.Reject, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
	if res != job.Reject {
		t.Errorf("result = %q, want reject", res)
	}
}

func TestLogging_Success(t *testing.T) {
	mw := middleware.Logging(slog.Default())

	called := false
	_, err := mw(context.Background(), newTestEnvelope(), func(_ context.Context) (job.Result, error) {
		called = true
		return "", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_Error(t *testing.T) {
	mw := middleware.Logging(slog.Default())
	want := errors.New("fail")

	_, err := mw(context.Background(), newTestEnvelope(), func(_ context.Context) (job.Result, error) {
		return "", want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
