// Package archivetest is a conformance suite for archive.Store
// implementations.
package archivetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/archive"
	"github.com/xraph/ferry/id"
)

// NewRecord returns a record with a fresh ID created at the given offset
// from a fixed base time.
func NewRecord(typ, queue, config string, offset time.Duration) *archive.Record {
	p := 2
	return &archive.Record{
		ID:        id.NewFailedJobID(),
		Type:      typ,
		Entry:     "execute",
		Data:      `{"n":1}`,
		Config:    config,
		Priority:  &p,
		Queue:     queue,
		Exception: "boom",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Add(offset),
	}
}

// Run exercises s. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) archive.Store) {
	t.Helper()

	t.Run("InsertGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := NewRecord("mail", "default", "default", 0)
		if err := s.Insert(ctx, r); err != nil {
			t.Fatalf("insert: %v", err)
		}

		got, err := s.Get(ctx, r.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.ID != r.ID || got.Type != r.Type || got.Entry != r.Entry || got.Data != r.Data {
			t.Errorf("got %+v, want %+v", got, r)
		}
		if got.Config != r.Config || got.Queue != r.Queue || got.Exception != r.Exception {
			t.Errorf("got %+v, want %+v", got, r)
		}
		if got.Priority == nil || *got.Priority != 2 {
			t.Errorf("priority = %v, want 2", got.Priority)
		}
		if !got.CreatedAt.Equal(r.CreatedAt) {
			t.Errorf("created = %v, want %v", got.CreatedAt, r.CreatedAt)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), id.NewFailedJobID())
		if !errors.Is(err, ferry.ErrFailedJobNotFound) {
			t.Errorf("expected ErrFailedJobNotFound, got %v", err)
		}
	})

	t.Run("NilPriority", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := NewRecord("mail", "default", "default", 0)
		r.Priority = nil
		r.Exception = ""
		if err := s.Insert(ctx, r); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, r.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Priority != nil || got.Exception != "" {
			t.Errorf("got priority %v exception %q", got.Priority, got.Exception)
		}
	})

	t.Run("FindByFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := NewRecord("mail", "default", "default", 0)
		b := NewRecord("mail", "slow", "default", time.Second)
		c := NewRecord("report", "default", "other", 2*time.Second)
		for _, r := range []*archive.Record{c, a, b} {
			if err := s.Insert(ctx, r); err != nil {
				t.Fatal(err)
			}
		}

		tests := []struct {
			name   string
			filter archive.Filter
			want   []id.FailedJobID
		}{
			{"all oldest first", archive.Filter{}, []id.FailedJobID{a.ID, b.ID, c.ID}},
			{"type", archive.Filter{Type: "mail"}, []id.FailedJobID{a.ID, b.ID}},
			{"queue", archive.Filter{Queue: "default"}, []id.FailedJobID{a.ID, c.ID}},
			{"config", archive.Filter{Config: "other"}, []id.FailedJobID{c.ID}},
			{"ids", archive.Filter{IDs: []id.FailedJobID{c.ID, a.ID}}, []id.FailedJobID{a.ID, c.ID}},
			{"and", archive.Filter{Type: "mail", Queue: "slow"}, []id.FailedJobID{b.ID}},
			{"none", archive.Filter{Type: "missing"}, nil},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.Find(ctx, tt.filter)
				if err != nil {
					t.Fatal(err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("found %d records, want %d", len(got), len(tt.want))
				}
				for i := range got {
					if got[i].ID != tt.want[i] {
						t.Errorf("record %d = %s, want %s", i, got[i].ID, tt.want[i])
					}
				}
			})
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := NewRecord("mail", "default", "default", 0)
		b := NewRecord("mail", "default", "default", time.Second)
		for _, r := range []*archive.Record{a, b} {
			if err := s.Insert(ctx, r); err != nil {
				t.Fatal(err)
			}
		}

		n, err := s.Delete(ctx, a.ID, id.NewFailedJobID())
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("deleted %d, want 1", n)
		}
		if _, err := s.Get(ctx, a.ID); !errors.Is(err, ferry.ErrFailedJobNotFound) {
			t.Errorf("deleted record still present: %v", err)
		}
		if _, err := s.Get(ctx, b.ID); err != nil {
			t.Errorf("other record gone: %v", err)
		}

		if n, err := s.Delete(ctx); err != nil || n != 0 {
			t.Errorf("empty delete = (%d, %v)", n, err)
		}
	})
}
