package queue

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/broker"
	amqpbroker "github.com/xraph/ferry/broker/amqp"
	"github.com/xraph/ferry/broker/memory"
	redisbroker "github.com/xraph/ferry/broker/redis"
	"github.com/xraph/ferry/unique"
)

// Dialer opens a broker for cfg. consumer names this process on brokers
// that track consumers.
type Dialer func(cfg Config, consumer string, logger *slog.Logger) (broker.Broker, error)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger registers a named logger that configs can reference.
func WithLogger(name string, l *slog.Logger) Option {
	return func(r *Registry) { r.loggers[name] = l }
}

// WithDefaultLogger sets the logger used when a config names none.
func WithDefaultLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithDialer registers a dialer for a URL scheme, replacing any default.
func WithDialer(scheme string, d Dialer) Option {
	return func(r *Registry) { r.dialers[scheme] = d }
}

// WithCache registers a named dedup cache.
func WithCache(name string, c unique.Cache) Option {
	return func(r *Registry) { r.caches[name] = c }
}

// WithConsumerName sets the name this process uses on the broker.
func WithConsumerName(name string) Option {
	return func(r *Registry) { r.consumer = name }
}

type binding struct {
	config  Config
	broker  broker.Broker
	guard   *unique.Guard
	limiter *rate.Limiter
}

// Registry holds named queue configs and the clients bound to them.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	bindings map[string]*binding
	loggers  map[string]*slog.Logger
	dialers  map[string]Dialer
	caches   map[string]unique.Cache
	owned    []io.Closer
	logger   *slog.Logger
	consumer string
}

// NewRegistry returns an empty registry with dialers for memory://,
// redis:// and amqp://.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		bindings: make(map[string]*binding),
		loggers:  make(map[string]*slog.Logger),
		caches:   make(map[string]unique.Cache),
		logger:   slog.Default(),
		dialers: map[string]Dialer{
			"memory": dialMemory,
			"redis":  dialRedis,
			"rediss": dialRedis,
			"amqp":   dialAMQP,
			"amqps":  dialAMQP,
		},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetConfig registers cfg. It fails with ferry.ErrConfigExists when the
// name is taken and ferry.ErrMissingURL when no URL is given.
func (r *Registry) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := r.dialer(cfg.URL); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bindings[cfg.Name]; exists {
		return fmt.Errorf("%w: %q", ferry.ErrConfigExists, cfg.Name)
	}
	r.bindings[cfg.Name] = &binding{config: cfg, limiter: newLimiter(cfg)}
	return nil
}

// Config returns the config registered under name.
func (r *Registry) Config(name string) (Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ferry.ErrConfigNotFound, name)
	}
	return b.config, nil
}

// Names returns the registered config names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.bindings))
	for n := range r.bindings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Drop removes the config and closes its cached broker client.
func (r *Registry) Drop(name string) error {
	r.mu.Lock()
	b, ok := r.bindings[name]
	delete(r.bindings, name)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ferry.ErrConfigNotFound, name)
	}
	if b.broker != nil {
		if err := b.broker.Close(); err != nil {
			return fmt.Errorf("ferry/queue: close broker %q: %w", name, err)
		}
	}
	return nil
}

// Broker returns the broker client for the config, dialling it on first use.
func (r *Registry) Broker(name string) (broker.Broker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ferry.ErrConfigNotFound, name)
	}
	if b.broker != nil {
		return b.broker, nil
	}

	dial, err := r.dialer(b.config.URL)
	if err != nil {
		return nil, err
	}
	br, err := dial(b.config, r.consumer, r.loggerFor(b.config))
	if err != nil {
		return nil, fmt.Errorf("ferry/queue: dial %q: %w", name, err)
	}
	b.broker = br
	r.logger.Debug("broker connected",
		slog.String("config", name),
		slog.String("scheme", scheme(b.config.URL)),
	)
	return br, nil
}

// Guard returns the dedup guard for the config. It fails with
// ferry.ErrUniqueCacheMissing when the config has no unique cache.
func (r *Registry) Guard(name string) (*unique.Guard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ferry.ErrConfigNotFound, name)
	}
	if b.guard != nil {
		return b.guard, nil
	}
	if b.config.UniqueCache == nil {
		return nil, fmt.Errorf("%w: config %q", ferry.ErrUniqueCacheMissing, name)
	}

	cache, err := r.cache(b.config.UniqueCache.Engine)
	if err != nil {
		return nil, err
	}
	b.guard = unique.NewGuard(cache,
		unique.WithNamespace(name),
		unique.WithTTL(b.config.UniqueCache.Duration),
		unique.WithLogger(r.loggerFor(b.config)),
	)
	return b.guard, nil
}

// Limiter returns the receive rate limiter for the config, or nil when
// the config is not rate limited.
func (r *Registry) Limiter(name string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bindings[name]; ok {
		return b.limiter
	}
	return nil
}

// Logger resolves a logger name. An empty or unknown name yields the
// default logger.
func (r *Registry) Logger(name string) *slog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loggers[name]; ok {
		return l
	}
	return r.logger
}

// HasLogger reports whether a logger is registered under name.
func (r *Registry) HasLogger(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.loggers[name]
	return ok
}

// Close closes every cached broker client and every cache the registry
// opened.
func (r *Registry) Close() error {
	r.mu.Lock()
	closers := make([]io.Closer, 0, len(r.bindings)+len(r.owned))
	for _, b := range r.bindings {
		if b.broker != nil {
			closers = append(closers, b.broker)
			b.broker = nil
		}
		b.guard = nil
	}
	closers = append(closers, r.owned...)
	r.owned = nil
	r.mu.Unlock()

	var g errgroup.Group
	errs := make([]error, len(closers))
	for i, c := range closers {
		g.Go(func() error {
			errs[i] = c.Close()
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// loggerFor resolves the config's logger. Caller holds mu.
func (r *Registry) loggerFor(cfg Config) *slog.Logger {
	if l, ok := r.loggers[cfg.Logger]; ok {
		return l
	}
	return r.logger
}

// cache resolves a cache engine. Caller holds mu.
func (r *Registry) cache(engine string) (unique.Cache, error) {
	if c, ok := r.caches[engine]; ok {
		return c, nil
	}
	var (
		c   unique.Cache
		err error
	)
	switch {
	case engine == "memory" || engine == "":
		c = unique.NewMemoryCache()
	case strings.HasPrefix(engine, "redis://"), strings.HasPrefix(engine, "rediss://"):
		var rc *unique.RedisCache
		rc, err = unique.OpenRedisCache(engine)
		if err == nil {
			r.owned = append(r.owned, rc)
			c = rc
		}
	default:
		return nil, fmt.Errorf("%w: %q", ferry.ErrUnknownCache, engine)
	}
	if err != nil {
		return nil, err
	}
	r.caches[engine] = c
	return c, nil
}

func (r *Registry) dialer(rawURL string) (Dialer, error) {
	d, ok := r.dialers[scheme(rawURL)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ferry.ErrUnknownScheme, scheme(rawURL))
	}
	return d, nil
}

func scheme(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme
}

func dialMemory(Config, string, *slog.Logger) (broker.Broker, error) {
	return memory.New(), nil
}

func dialRedis(cfg Config, consumer string, logger *slog.Logger) (broker.Broker, error) {
	return redisbroker.Open(cfg.URL,
		redisbroker.WithConsumer(consumer),
		redisbroker.WithLogger(logger),
	)
}

func dialAMQP(cfg Config, consumer string, logger *slog.Logger) (broker.Broker, error) {
	return amqpbroker.Dial(cfg.URL,
		amqpbroker.WithConsumerTag(consumer),
		amqpbroker.WithLogger(logger),
	)
}

// Bind returns the config registered under name together with its
// broker client.
func (r *Registry) Bind(name string) (broker.Broker, Config, error) {
	cfg, err := r.Config(name)
	if err != nil {
		return nil, Config{}, err
	}
	br, err := r.Broker(name)
	if err != nil {
		return nil, Config{}, err
	}
	return br, cfg, nil
}
