package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/archive"
	"github.com/xraph/ferry/id"
)

const selectColumns = `
		SELECT id, class, method, data, config, priority, queue, exception, created
		FROM queue_failed_jobs`

// Insert persists a new record.
func (s *Store) Insert(ctx context.Context, r *archive.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO queue_failed_jobs (
			id, class, method, data, config, priority, queue, exception, created
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID.String(), r.Type, r.Entry, r.Data, r.Config,
		r.Priority, r.Queue, nullString(r.Exception), r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("ferry/postgres: insert failed job %s: duplicate id", r.ID)
		}
		return fmt.Errorf("ferry/postgres: insert failed job: %w", err)
	}
	return nil
}

// Get returns the record with the given ID.
func (s *Store) Get(ctx context.Context, recordID id.FailedJobID) (*archive.Record, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, recordID.String())
	r, err := scanRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ferry.ErrFailedJobNotFound
		}
		return nil, fmt.Errorf("ferry/postgres: get failed job: %w", err)
	}
	return r, nil
}

// Find returns records matching the filter fields, oldest first.
func (s *Store) Find(ctx context.Context, f archive.Filter) ([]*archive.Record, error) {
	query := selectColumns + ` WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if len(f.IDs) > 0 {
		ids := make([]string, len(f.IDs))
		for i, v := range f.IDs {
			ids[i] = v.String()
		}
		query += fmt.Sprintf(" AND id = ANY($%d)", argIdx)
		args = append(args, ids)
		argIdx++
	}
	if f.Type != "" {
		query += fmt.Sprintf(" AND class = $%d", argIdx)
		args = append(args, f.Type)
		argIdx++
	}
	if f.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, f.Queue)
		argIdx++
	}
	if f.Config != "" {
		query += fmt.Sprintf(" AND config = $%d", argIdx)
		args = append(args, f.Config)
	}

	query += " ORDER BY created ASC, id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ferry/postgres: find failed jobs: %w", err)
	}
	defer rows.Close()

	var out []*archive.Record
	for rows.Next() {
		r, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("ferry/postgres: scan failed job row: %w", scanErr)
		}
		out = append(out, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ferry/postgres: iterate failed job rows: %w", err)
	}
	return out, nil
}

// Delete removes the given records and returns how many existed.
func (s *Store) Delete(ctx context.Context, ids ...id.FailedJobID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	strs := make([]string, len(ids))
	for i, v := range ids {
		strs[i] = v.String()
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM queue_failed_jobs WHERE id = ANY($1)`, strs)
	if err != nil {
		return 0, fmt.Errorf("ferry/postgres: delete failed jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (*archive.Record, error) {
	var (
		r         archive.Record
		idStr     string
		exception *string
	)
	err := row.Scan(
		&idStr, &r.Type, &r.Entry, &r.Data, &r.Config,
		&r.Priority, &r.Queue, &exception, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, parseErr := id.ParseFailedJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("ferry/postgres: parse failed job id %q: %w", idStr, parseErr)
	}
	r.ID = parsed
	if exception != nil {
		r.Exception = *exception
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}
