package queue

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/ferry"
)

// DefaultQueue is the queue name used when a config names none.
const DefaultQueue = "default"

// DefaultReceiveTimeout bounds each blocking receive when a config names
// no timeout.
const DefaultReceiveTimeout = 10 * time.Second

// UniqueCache enables the dedup guard for a config.
type UniqueCache struct {
	// Engine names the cache: a name registered with WithCache, "memory",
	// or a redis:// URL.
	Engine string

	// Duration is how long a marker lives. Zero means 24 hours.
	Duration time.Duration
}

// Config describes one named broker connection and the behaviour of the
// queues reached through it.
type Config struct {
	// Name identifies the config. It cannot be reconfigured once set.
	Name string

	// URL is the broker descriptor. Its scheme selects the adapter.
	URL string

	// Queue is the default queue for pushes and workers.
	Queue string

	// Logger names a logger registered with WithLogger.
	Logger string

	// ReceiveTimeout bounds each blocking receive.
	ReceiveTimeout time.Duration

	// UniqueCache enables the dedup guard. Nil disables it.
	UniqueCache *UniqueCache

	// StoreFailedJobs archives envelopes whose attempts are exhausted.
	StoreFailedJobs bool

	// RateLimit is the maximum sustained receives per second. Zero
	// disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Name == "" {
		return ferry.ErrMissingName
	}
	if c.URL == "" {
		return ferry.ErrMissingURL
	}
	return nil
}

// withDefaults fills unset optional fields.
func (c Config) withDefaults() Config {
	if c.Queue == "" {
		c.Queue = DefaultQueue
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = DefaultReceiveTimeout
	}
	if c.UniqueCache != nil {
		uc := *c.UniqueCache
		if uc.Duration <= 0 {
			uc.Duration = 24 * time.Hour
		}
		c.UniqueCache = &uc
	}
	return c
}

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
}
