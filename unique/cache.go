package unique

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var (
	_ Cache = (*MemoryCache)(nil)
	_ Adder = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
	_ Adder = (*RedisCache)(nil)
)

// MemoryCache is an in-process Cache. Safe for concurrent use.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]time.Time
	now   func() time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]time.Time), now: time.Now}
}

// Has reports whether key is present and not expired.
func (c *MemoryCache) Has(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live(key), nil
}

// Set records key for ttl.
func (c *MemoryCache) Set(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = c.now().Add(ttl)
	return nil
}

// Add records key unless it is present.
func (c *MemoryCache) Add(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live(key) {
		return false, nil
	}
	c.items[key] = c.now().Add(ttl)
	return true, nil
}

// Delete removes key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// Len returns the number of live markers.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.items {
		if c.live(k) {
			n++
		}
	}
	return n
}

// live reports whether key is present, evicting it when expired.
// Caller holds mu.
func (c *MemoryCache) live(key string) bool {
	exp, ok := c.items[key]
	if !ok {
		return false
	}
	if !c.now().Before(exp) {
		delete(c.items, key)
		return false
	}
	return true
}

// RedisCache stores markers as Redis keys with a TTL.
type RedisCache struct {
	client goredis.UniversalClient
	owned  bool
}

// NewRedisCache returns a cache on client. The caller owns the client.
func NewRedisCache(client goredis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// OpenRedisCache parses a redis:// URL and returns a cache owning its
// client.
func OpenRedisCache(url string) (*RedisCache, error) {
	o, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ferry/unique: parse url: %w", err)
	}
	return &RedisCache{client: goredis.NewClient(o), owned: true}, nil
}

// Has reports whether key exists.
func (c *RedisCache) Has(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Set writes key with ttl.
func (c *RedisCache) Set(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Set(ctx, key, "1", ttl).Err()
}

// Add writes key with ttl only if it does not exist (SET NX PX).
func (c *RedisCache) Add(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, "1", ttl).Result()
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Close closes the client when the cache owns it.
func (c *RedisCache) Close() error {
	if c.owned {
		return c.client.Close()
	}
	return nil
}
