package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/polystore/polystore/v1/adapter"
)

// tagKeyPrefix namespaces the per-tag key sets next to the payload keys.
const tagKeyPrefix = "cachetag:"

// Redis is the shared cache. Payloads are stored as JSON with a server-side
// TTL; tag membership lives in Redis sets so invalidation is one SMEMBERS
// plus a bulk DEL.
type Redis struct {
	client     *redis.Client
	defaultTTL time.Duration
	closed     atomic.Bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

var _ Client = (*Redis)(nil)

// NewRedis builds the Redis-backed cache and verifies the connection.
func NewRedis(ctx context.Context, cfg Config) (*Redis, error) {
	cfg = cfg.withDefaults()
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("cache: redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}
	return &Redis{client: client, defaultTTL: cfg.DefaultTTL}, nil
}

// Get returns the payload under key.
func (r *Redis) Get(ctx context.Context, key string) ([]adapter.Row, bool, error) {
	if r.closed.Load() {
		return nil, false, fmt.Errorf("cache: client is closed")
	}

	payload, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		r.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: redis get: %w", err)
	}

	var rows []adapter.Row
	if err := json.Unmarshal(payload, &rows); err != nil {
		// A corrupt payload is treated as a miss; the next Set overwrites it.
		r.misses.Add(1)
		return nil, false, nil
	}
	r.hits.Add(1)
	return rows, true, nil
}

// Set stores rows under key and registers it with every tag set.
func (r *Redis) Set(ctx context.Context, key string, rows []adapter.Row, tags []string, ttl time.Duration) error {
	if r.closed.Load() {
		return fmt.Errorf("cache: client is closed")
	}
	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("cache: marshal payload: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, payload, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, tagKeyPrefix+tag, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// DeleteByTags drops every entry carrying at least one of the tags.
func (r *Redis) DeleteByTags(ctx context.Context, tags ...string) error {
	if r.closed.Load() {
		return fmt.Errorf("cache: client is closed")
	}

	for _, tag := range tags {
		tagKey := tagKeyPrefix + tag
		keys, err := r.client.SMembers(ctx, tagKey).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("cache: redis smembers: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache: redis del: %w", err)
			}
			r.evictions.Add(uint64(len(keys)))
		}
		if err := r.client.Del(ctx, tagKey).Err(); err != nil {
			return fmt.Errorf("cache: redis del tag: %w", err)
		}
	}
	return nil
}

// Flush drops the whole logical database.
func (r *Redis) Flush(ctx context.Context) error {
	if r.closed.Load() {
		return fmt.Errorf("cache: client is closed")
	}
	if err := r.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("cache: redis flushdb: %w", err)
	}
	return nil
}

// Status snapshots the local counters. Entries is the server's key count,
// best-effort: a failing DBSIZE reports zero entries rather than an error.
func (r *Redis) Status() Status {
	var entries int
	if !r.closed.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if size, err := r.client.DBSize(ctx).Result(); err == nil {
			entries = int(size)
		}
		cancel()
	}
	return Status{
		Entries:   entries,
		Hits:      r.hits.Load(),
		Misses:    r.misses.Load(),
		Evictions: r.evictions.Load(),
	}
}

// Close releases the native client.
func (r *Redis) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.client.Close()
}
