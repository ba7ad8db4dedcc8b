package memory_test

import (
	"context"
	"testing"

	"github.com/xraph/ferry/archive"
	"github.com/xraph/ferry/archive/archivetest"
	"github.com/xraph/ferry/store/memory"
)

func TestStore_Conformance(t *testing.T) {
	archivetest.Run(t, func(*testing.T) archive.Store { return memory.New() })
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	r := archivetest.NewRecord("mail", "default", "default", 0)
	if err := s.Insert(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	*got.Priority = 9
	got.Type = "changed"

	again, _ := s.Get(ctx, r.ID)
	if again.Type != "mail" || *again.Priority != 2 {
		t.Errorf("stored record was mutated: %+v", again)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}

func TestStore_Lifecycle(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}
