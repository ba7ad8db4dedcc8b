package archive

import (
	"context"
	"sort"

	"github.com/xraph/ferry/id"
)

// Store defines the persistence contract for failed job records.
type Store interface {
	// Insert persists a new record.
	Insert(ctx context.Context, r *Record) error

	// Get returns the record with the given ID, or
	// ferry.ErrFailedJobNotFound.
	Get(ctx context.Context, recordID id.FailedJobID) (*Record, error)

	// Find returns records matching the filter's IDs, Type, Queue and
	// Config fields, oldest first. Where is evaluated by the caller.
	Find(ctx context.Context, f Filter) ([]*Record, error)

	// Delete removes the given records and returns how many existed.
	Delete(ctx context.Context, ids ...id.FailedJobID) (int64, error)
}

// SortRecords orders recs oldest first, ties broken by ID.
func SortRecords(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID.String() < recs[j].ID.String()
	})
}
