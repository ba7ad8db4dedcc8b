package pebblestore_test

import (
	"context"
	"testing"

	"github.com/xraph/ferry/archive"
	"github.com/xraph/ferry/archive/archivetest"
	pebblestore "github.com/xraph/ferry/store/pebble"
)

func openStore(t *testing.T, dir string) *pebblestore.Store {
	t.Helper()
	s, err := pebblestore.Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestStore_Conformance(t *testing.T) {
	archivetest.Run(t, func(t *testing.T) archive.Store {
		s := openStore(t, t.TempDir())
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openStore(t, dir)
	r := archivetest.NewRecord("mail", "default", "default", 0)
	if err := s.Insert(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s = openStore(t, dir)
	defer s.Close()
	got, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Type != "mail" {
		t.Errorf("type = %q", got.Type)
	}
}

func TestOpen_RequiresDirectory(t *testing.T) {
	if _, err := pebblestore.Open(""); err == nil {
		t.Fatal("expected error for empty directory")
	}
}
