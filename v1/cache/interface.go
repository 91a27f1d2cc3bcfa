package cache

import (
	"context"
	"time"

	"github.com/polystore/polystore/v1/adapter"
)

// Client is the result-cache contract consumed by the model layer.
//
// Values are row slices as returned by an adapter query. A stored empty
// slice and an absent key are both misses: callers cannot tell them apart,
// which is deliberate, since an empty result is cheap to recompute and
// caching it would complicate invalidation for no gain.
type Client interface {
	// Get returns the payload stored under key and whether it was found.
	Get(ctx context.Context, key string) ([]adapter.Row, bool, error)

	// Set stores rows under key with the given tags and ttl. A non-positive
	// ttl uses the client's default.
	Set(ctx context.Context, key string, rows []adapter.Row, tags []string, ttl time.Duration) error

	// DeleteByTags drops every entry carrying at least one of the tags.
	DeleteByTags(ctx context.Context, tags ...string) error

	// Flush drops everything.
	Flush(ctx context.Context) error

	// Status reports counters for monitoring.
	Status() Status

	// Close releases the client's resources. A closed client rejects
	// further operations.
	Close() error
}

// Status is a point-in-time snapshot of cache counters.
type Status struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Config carries the knobs shared by both implementations plus the Redis
// connection settings.
type Config struct {
	// DefaultTTL applies when Set is called with a non-positive ttl.
	DefaultTTL time.Duration

	// CleanupInterval is how often the in-memory janitor sweeps expired
	// entries. Ignored by the Redis client, which lets the server expire.
	CleanupInterval time.Duration

	Redis RedisConfig
}

// RedisConfig is the connection half for the Redis-backed client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Defaults applied by withDefaults.
const (
	DefaultTTL             = 5 * time.Minute
	DefaultCleanupInterval = time.Minute
)

func (c Config) withDefaults() Config {
	if c.DefaultTTL == 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	return c
}
