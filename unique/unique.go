package unique

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/ferry/job"
)

// DefaultTTL is how long a marker lives when the config names no duration.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "ferry:unique:"

// Cache stores presence markers.
type Cache interface {
	// Has reports whether key is present.
	Has(ctx context.Context, key string) (bool, error)
	// Set records key for ttl.
	Set(ctx context.Context, key string, ttl time.Duration) error
	// Delete removes key.
	Delete(ctx context.Context, key string) error
}

// Adder is implemented by caches that can record a key only if it is
// absent, atomically.
type Adder interface {
	// Add records key for ttl and reports whether it was absent.
	Add(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// ID returns the content hash for target and data: the hex MD5 of the
// type, the entry point and the canonical JSON of data.
func ID(target job.Target, data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	canonical, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("ferry/unique: canonicalize data: %w", err)
	}
	h := md5.New() //nolint:gosec // see import
	h.Write([]byte(target.Type))
	h.Write([]byte(target.Entry))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Option configures a Guard.
type Option func(*Guard)

// WithNamespace scopes the markers, usually to a queue config name.
func WithNamespace(ns string) Option {
	return func(g *Guard) { g.namespace = ns }
}

// WithTTL sets the marker expiry.
func WithTTL(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.ttl = d
		}
	}
}

// WithLogger sets the logger used for suppression notices.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// Guard suppresses duplicate pushes for unique handlers.
type Guard struct {
	cache     Cache
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
}

// NewGuard returns a guard storing markers in cache.
func NewGuard(cache Cache, opts ...Option) *Guard {
	g := &Guard{
		cache:  cache,
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Key returns the cache key for target and data.
func (g *Guard) Key(target job.Target, data map[string]any) (string, error) {
	id, err := ID(target, data)
	if err != nil {
		return "", err
	}
	return keyPrefix + g.namespace + ":" + id, nil
}

// TTL returns the marker expiry.
func (g *Guard) TTL() time.Duration { return g.ttl }

// Publish calls publish unless an identical push is already on the queue.
// It reports whether publish ran and succeeded.
func (g *Guard) Publish(ctx context.Context, target job.Target, data map[string]any, publish func(context.Context) error) (bool, error) {
	key, err := g.Key(target, data)
	if err != nil {
		return false, err
	}

	if adder, ok := g.cache.(Adder); ok {
		added, addErr := adder.Add(ctx, key, g.ttl)
		if addErr != nil {
			return false, fmt.Errorf("ferry/unique: add marker: %w", addErr)
		}
		if !added {
			g.suppressed(target, key)
			return false, nil
		}
		if pubErr := publish(ctx); pubErr != nil {
			if delErr := g.cache.Delete(ctx, key); delErr != nil {
				g.logger.Warn("unique: could not remove marker after failed publish",
					slog.String("key", key),
					slog.String("error", delErr.Error()),
				)
			}
			return false, pubErr
		}
		return true, nil
	}

	present, err := g.cache.Has(ctx, key)
	if err != nil {
		return false, fmt.Errorf("ferry/unique: check marker: %w", err)
	}
	if present {
		g.suppressed(target, key)
		return false, nil
	}
	if err := publish(ctx); err != nil {
		return false, err
	}
	if err := g.cache.Set(ctx, key, g.ttl); err != nil {
		return true, fmt.Errorf("ferry/unique: set marker: %w", err)
	}
	return true, nil
}

// Release deletes the marker for target and data.
func (g *Guard) Release(ctx context.Context, target job.Target, data map[string]any) error {
	key, err := g.Key(target, data)
	if err != nil {
		return err
	}
	if err := g.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("ferry/unique: delete marker: %w", err)
	}
	return nil
}

func (g *Guard) suppressed(target job.Target, key string) {
	g.logger.Info(fmt.Sprintf("An identical instance of %s already exists on the queue. This push will be ignored.", target.Type),
		slog.String("target", target.String()),
		slog.String("key", key),
	)
}
