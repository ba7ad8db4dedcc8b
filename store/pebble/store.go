// Package pebblestore provides an embedded archive store on CockroachDB's
// Pebble key-value engine. Records are JSON values under the
// "failed_job/" key prefix, so a single-node worker can keep its archive
// without a database server.
package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/pebble"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/archive"
	"github.com/xraph/ferry/id"
)

const keyPrefix = "failed_job/"

var _ archive.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithSync makes every write wait for a WAL fsync.
func WithSync() Option {
	return func(s *Store) { s.sync = pebble.Sync }
}

// Store is a Pebble-backed archive store.
type Store struct {
	db     *pebble.DB
	sync   *pebble.WriteOptions
	logger *slog.Logger
}

// Open creates or opens the database in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("ferry/pebble: directory is required")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("ferry/pebble: open %s: %w", dir, err)
	}
	s := &Store{db: db, sync: pebble.NoSync, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Migrate is a no-op for Pebble.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the database is open.
func (s *Store) Ping(_ context.Context) error {
	if s.db == nil {
		return errors.New("ferry/pebble: closed")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Insert persists a new record.
func (s *Store) Insert(_ context.Context, r *archive.Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("ferry/pebble: encode failed job: %w", err)
	}
	if err := s.db.Set(recordKey(r.ID), raw, s.sync); err != nil {
		return fmt.Errorf("ferry/pebble: insert failed job: %w", err)
	}
	return nil
}

// Get returns the record with the given ID.
func (s *Store) Get(_ context.Context, recordID id.FailedJobID) (*archive.Record, error) {
	val, closer, err := s.db.Get(recordKey(recordID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ferry.ErrFailedJobNotFound
		}
		return nil, fmt.Errorf("ferry/pebble: get failed job: %w", err)
	}
	defer closer.Close()
	return decodeRecord(val)
}

// Find returns records matching the filter fields, oldest first.
func (s *Store) Find(_ context.Context, f archive.Filter) ([]*archive.Record, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: prefixEnd([]byte(keyPrefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("ferry/pebble: iterate failed jobs: %w", err)
	}
	defer iter.Close()

	var out []*archive.Record
	for iter.First(); iter.Valid(); iter.Next() {
		r, decErr := decodeRecord(iter.Value())
		if decErr != nil {
			s.logger.Warn("skipping undecodable failed job",
				slog.String("key", string(iter.Key())),
				slog.String("error", decErr.Error()),
			)
			continue
		}
		if f.MatchFields(r) {
			out = append(out, r)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("ferry/pebble: iterate failed jobs: %w", err)
	}
	archive.SortRecords(out)
	return out, nil
}

// Delete removes the given records and returns how many existed.
func (s *Store) Delete(ctx context.Context, ids ...id.FailedJobID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	b := s.db.NewBatch()
	defer b.Close()

	var n int64
	for _, recordID := range ids {
		key := recordKey(recordID)
		_, closer, err := s.db.Get(key)
		if errors.Is(err, pebble.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("ferry/pebble: delete failed job: %w", err)
		}
		closer.Close()
		if err := b.Delete(key, nil); err != nil {
			return 0, fmt.Errorf("ferry/pebble: delete failed job: %w", err)
		}
		n++
	}
	if err := b.Commit(s.sync); err != nil {
		return 0, fmt.Errorf("ferry/pebble: commit delete: %w", err)
	}
	return n, nil
}

func recordKey(recordID id.FailedJobID) []byte {
	return []byte(keyPrefix + recordID.String())
}

// prefixEnd returns the smallest key greater than every key with prefix p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func decodeRecord(raw []byte) (*archive.Record, error) {
	var r archive.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("ferry/pebble: decode failed job: %w", err)
	}
	return &r, nil
}
