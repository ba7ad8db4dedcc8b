// Package redis implements the archive store on Redis. Each record is a
// msgpack-encoded string value; a Set tracks the IDs for enumeration.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/ferry/archive"
)

var _ archive.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithOwnedClient makes Close close the client.
func WithOwnedClient() Option {
	return func(s *Store) { s.owned = true }
}

// Store implements archive.Store backed by Redis.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
	owned  bool
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle unless WithOwnedClient is given.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open connects to the Redis server at url and returns a store that owns
// the client.
func Open(url string, opts ...Option) (*Store, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return New(redis.NewClient(o), append(opts, WithOwnedClient())...), nil
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.UniversalClient { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client when the store owns it.
func (s *Store) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}
