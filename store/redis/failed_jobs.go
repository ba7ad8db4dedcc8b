package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/archive"
	"github.com/xraph/ferry/id"
)

// record is the msgpack representation of archive.Record.
type record struct {
	ID        string    `msgpack:"id"`
	Type      string    `msgpack:"type"`
	Entry     string    `msgpack:"entry"`
	Data      string    `msgpack:"data"`
	Config    string    `msgpack:"config"`
	Priority  *int      `msgpack:"priority,omitempty"`
	Queue     string    `msgpack:"queue"`
	Exception string    `msgpack:"exception,omitempty"`
	CreatedAt time.Time `msgpack:"created_at"`
}

// Insert persists a new record.
func (s *Store) Insert(ctx context.Context, r *archive.Record) error {
	raw, err := msgpack.Marshal(&record{
		ID:        r.ID.String(),
		Type:      r.Type,
		Entry:     r.Entry,
		Data:      r.Data,
		Config:    r.Config,
		Priority:  r.Priority,
		Queue:     r.Queue,
		Exception: r.Exception,
		CreatedAt: r.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("ferry/redis: encode failed job: %w", err)
	}

	rID := r.ID.String()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKey(rID), raw, 0)
	pipe.SAdd(ctx, recordIDsKey, rID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ferry/redis: insert failed job: %w", err)
	}
	return nil
}

// Get returns the record with the given ID.
func (s *Store) Get(ctx context.Context, recordID id.FailedJobID) (*archive.Record, error) {
	raw, err := s.client.Get(ctx, recordKey(recordID.String())).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ferry.ErrFailedJobNotFound
		}
		return nil, fmt.Errorf("ferry/redis: get failed job: %w", err)
	}
	return decodeRecord(raw)
}

// Find returns records matching the filter fields, oldest first.
func (s *Store) Find(ctx context.Context, f archive.Filter) ([]*archive.Record, error) {
	ids, err := s.client.SMembers(ctx, recordIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: list failed jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, rID := range ids {
		keys[i] = recordKey(rID)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: load failed jobs: %w", err)
	}

	var out []*archive.Record
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		r, decErr := decodeRecord([]byte(str))
		if decErr != nil {
			s.logger.Warn("skipping undecodable failed job",
				slog.String("failed_job_id", ids[i]),
				slog.String("error", decErr.Error()),
			)
			continue
		}
		if f.MatchFields(r) {
			out = append(out, r)
		}
	}
	archive.SortRecords(out)
	return out, nil
}

// Delete removes the given records and returns how many existed.
func (s *Store) Delete(ctx context.Context, ids ...id.FailedJobID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	members := make([]interface{}, len(ids))
	for i, v := range ids {
		keys[i] = recordKey(v.String())
		members[i] = v.String()
	}

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, keys...)
	pipe.SRem(ctx, recordIDsKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("ferry/redis: delete failed jobs: %w", err)
	}
	return del.Val(), nil
}

func decodeRecord(raw []byte) (*archive.Record, error) {
	var w record
	if err := msgpack.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("ferry/redis: decode failed job: %w", err)
	}
	parsed, err := id.ParseFailedJobID(w.ID)
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: parse failed job id %q: %w", w.ID, err)
	}
	return &archive.Record{
		ID:        parsed,
		Type:      w.Type,
		Entry:     w.Entry,
		Data:      w.Data,
		Config:    w.Config,
		Priority:  w.Priority,
		Queue:     w.Queue,
		Exception: w.Exception,
		CreatedAt: w.CreatedAt.UTC(),
	}, nil
}
