package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/xraph/ferry/queue"
	"github.com/xraph/ferry/store"
)

// Config is the file configuration of the ferry binary.
type Config struct {
	Queues  map[string]QueueConfig `json:"queues"`
	Archive ArchiveConfig          `json:"archive"`
	Log     LogConfig              `json:"log"`
}

// QueueConfig is one named queue config.
type QueueConfig struct {
	URL             string             `json:"url"`
	Queue           string             `json:"queue"`
	Logger          string             `json:"logger"`
	ReceiveTimeout  Duration           `json:"receiveTimeout"`
	UniqueCache     *UniqueCacheConfig `json:"uniqueCache,omitempty"`
	StoreFailedJobs bool               `json:"storeFailedJobs"`
	RateLimit       float64            `json:"rateLimit"`
	RateBurst       int                `json:"rateBurst"`
}

// UniqueCacheConfig enables the dedup guard for a queue config.
type UniqueCacheConfig struct {
	Engine   string   `json:"engine"`
	Duration Duration `json:"duration"`
}

// ArchiveConfig selects the failed job store.
type ArchiveConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Duration accepts a Go duration string ("90s", "24h") or a number of
// seconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	secs, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("duration %s: %w", b, err)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// ParseDuration parses a Go duration string or a plain number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Default returns built-in defaults: one in-memory "default" config and
// an in-memory archive.
func Default() Config {
	return Config{
		Queues: map[string]QueueConfig{
			"default": {URL: "memory://", StoreFailedJobs: true},
		},
		Archive: ArchiveConfig{Driver: store.DriverMemory},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults. Queues named in the file replace the default queues.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	cfg.Queues = nil
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Queues == nil {
		cfg.Queues = Default().Queues
	}
	return cfg, nil
}

// FromEnv overlays FERRY_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FERRY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FERRY_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("FERRY_ARCHIVE_DRIVER"); v != "" {
		cfg.Archive.Driver = v
	}
	if v := os.Getenv("FERRY_ARCHIVE_DSN"); v != "" {
		cfg.Archive.DSN = v
	}
}

// QueueConfigs returns the queue configs sorted by name.
func (c Config) QueueConfigs() []queue.Config {
	names := make([]string, 0, len(c.Queues))
	for name := range c.Queues {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]queue.Config, 0, len(names))
	for _, name := range names {
		q := c.Queues[name]
		qc := queue.Config{
			Name:            name,
			URL:             q.URL,
			Queue:           q.Queue,
			Logger:          q.Logger,
			ReceiveTimeout:  time.Duration(q.ReceiveTimeout),
			StoreFailedJobs: q.StoreFailedJobs,
			RateLimit:       q.RateLimit,
			RateBurst:       q.RateBurst,
		}
		if q.UniqueCache != nil {
			qc.UniqueCache = &queue.UniqueCache{
				Engine:   q.UniqueCache.Engine,
				Duration: time.Duration(q.UniqueCache.Duration),
			}
		}
		out = append(out, qc)
	}
	return out
}
