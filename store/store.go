package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/ferry/archive"
	"github.com/xraph/ferry/store/memory"
	pebblestore "github.com/xraph/ferry/store/pebble"
	"github.com/xraph/ferry/store/postgres"
	redisstore "github.com/xraph/ferry/store/redis"
)

// Store is the aggregate persistence interface. Every backend implements
// the archive contract plus lifecycle methods.
type Store interface {
	archive.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverPebble   = "pebble"
)

// Compile-time interface checks.
var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*postgres.Store)(nil)
	_ Store = (*redisstore.Store)(nil)
	_ Store = (*pebblestore.Store)(nil)
)

// Open connects the backend named by driver and runs its migrations.
// dsn is a connection URL for postgres and redis and a directory for
// pebble; memory ignores it.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		s   Store
		err error
	)
	switch driver {
	case DriverMemory, "":
		s = memory.New()
	case DriverPostgres:
		s, err = postgres.New(ctx, dsn, postgres.WithLogger(logger))
	case DriverRedis:
		s, err = redisstore.Open(dsn, redisstore.WithLogger(logger))
	case DriverPebble:
		s, err = pebblestore.Open(dsn, pebblestore.WithLogger(logger))
	default:
		return nil, fmt.Errorf("ferry/store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("ferry/store: open %s: %w", driver, err)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ferry/store: migrate %s: %w", driver, err)
	}
	return s, nil
}
