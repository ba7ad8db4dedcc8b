package memory

import (
	"context"
	"sync"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/archive"
	"github.com/xraph/ferry/id"
)

var _ archive.Store = (*Store)(nil)

// Store is an in-memory archive store. Safe for concurrent access.
// Intended for unit testing and development.
type Store struct {
	mu      sync.RWMutex
	records map[string]*archive.Record
}

// New returns a new empty Store.
func New() *Store {
	return &Store{records: make(map[string]*archive.Record)}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Archive Store
// ──────────────────────────────────────────────────

// Insert persists a copy of r.
func (m *Store) Insert(_ context.Context, r *archive.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID.String()] = copyRecord(r)
	return nil
}

// Get returns the record with the given ID.
func (m *Store) Get(_ context.Context, recordID id.FailedJobID) (*archive.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[recordID.String()]
	if !ok {
		return nil, ferry.ErrFailedJobNotFound
	}
	return copyRecord(r), nil
}

// Find returns records matching the filter fields, oldest first.
func (m *Store) Find(_ context.Context, f archive.Filter) ([]*archive.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*archive.Record
	for _, r := range m.records {
		if f.MatchFields(r) {
			out = append(out, copyRecord(r))
		}
	}
	archive.SortRecords(out)
	return out, nil
}

// Delete removes the given records and returns how many existed.
func (m *Store) Delete(_ context.Context, ids ...id.FailedJobID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, recordID := range ids {
		key := recordID.String()
		if _, ok := m.records[key]; ok {
			delete(m.records, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (m *Store) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func copyRecord(r *archive.Record) *archive.Record {
	c := *r
	if r.Priority != nil {
		p := *r.Priority
		c.Priority = &p
	}
	return &c
}
