package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/broker"
	"github.com/xraph/ferry/broker/memory"
)

func TestBroker_PublishReceiveAck(t *testing.T) {
	ctx := context.Background()
	b := memory.New()

	msg := broker.NewMessage([]byte("hello"))
	msg.SetProperty("attempts", "2")
	if err := b.Publish(ctx, "default", msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if b.Len("default") != 1 {
		t.Fatalf("Len = %d, want 1", b.Len("default"))
	}

	got, err := b.Receive(ctx, "default", time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got.Body) != "hello" || got.Property("attempts", "") != "2" {
		t.Fatalf("unexpected message: %+v", got)
	}
	if got.Queue != "default" {
		t.Errorf("Queue = %q, want default", got.Queue)
	}
	if b.InFlight() != 1 {
		t.Errorf("InFlight = %d, want 1", b.InFlight())
	}

	if err := b.Ack(ctx, got); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if b.InFlight() != 0 || b.Len("default") != 0 {
		t.Errorf("expected empty broker, inflight=%d len=%d", b.InFlight(), b.Len("default"))
	}
	if err := b.Ack(ctx, got); err == nil {
		t.Error("expected error acking a settled message")
	}
}

func TestBroker_ReceiveTimeout(t *testing.T) {
	b := memory.New()
	start := time.Now()
	msg, err := b.Receive(context.Background(), "empty", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil message on timeout, got %+v", msg)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Receive returned before the timeout")
	}
}

func TestBroker_ReceiveWakesOnPublish(t *testing.T) {
	ctx := context.Background()
	b := memory.New()

	done := make(chan *broker.Message, 1)
	go func() {
		m, _ := b.Receive(ctx, "q", 5*time.Second)
		done <- m
	}()

	time.Sleep(10 * time.Millisecond)
	if err := b.Publish(ctx, "q", broker.NewMessage([]byte("x"))); err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-done:
		if m == nil || string(m.Body) != "x" {
			t.Fatalf("unexpected message %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receiver was not woken by publish")
	}
}

func TestBroker_Priority(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	hi := 5
	_ = b.Publish(ctx, "q", broker.NewMessage([]byte("low-1")))
	m := broker.NewMessage([]byte("high"))
	m.Priority = &hi
	_ = b.Publish(ctx, "q", m)
	_ = b.Publish(ctx, "q", broker.NewMessage([]byte("low-2")))

	want := []string{"high", "low-1", "low-2"}
	for _, w := range want {
		got, err := b.Receive(ctx, "q", time.Second)
		if err != nil || got == nil {
			t.Fatalf("Receive: %v", err)
		}
		if string(got.Body) != w {
			t.Errorf("got %q, want %q", got.Body, w)
		}
		_ = b.Ack(ctx, got)
	}
}

func TestBroker_Reject(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	_ = b.Publish(ctx, "q", broker.NewMessage([]byte("x")))

	got, _ := b.Receive(ctx, "q", time.Second)
	if err := b.Reject(ctx, got, true); err != nil {
		t.Fatalf("Reject(requeue): %v", err)
	}
	if b.Len("q") != 1 {
		t.Fatalf("requeued message missing, len=%d", b.Len("q"))
	}

	got, _ = b.Receive(ctx, "q", time.Second)
	if err := b.Reject(ctx, got, false); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if b.Len("q") != 0 || b.InFlight() != 0 {
		t.Fatal("rejected message was not dropped")
	}
}

func TestBroker_Closed(t *testing.T) {
	b := memory.New()
	_ = b.Close()
	err := b.Publish(context.Background(), "q", broker.NewMessage(nil))
	if !errors.Is(err, ferry.ErrBrokerClosed) {
		t.Fatalf("expected ErrBrokerClosed, got %v", err)
	}
	_, err = b.Receive(context.Background(), "q", time.Millisecond)
	if !errors.Is(err, ferry.ErrBrokerClosed) {
		t.Fatalf("expected ErrBrokerClosed from Receive, got %v", err)
	}
}
