package cache

import (
	"context"

	"go.uber.org/fx"
)

// FXModule provides the in-process cache client. Applications that want the
// shared Redis cache use RedisFXModule instead; both expose the same Client
// interface.
var FXModule = fx.Module("cache",
	fx.Provide(
		fx.Annotate(
			NewMemoryWithDI,
			fx.As(new(Client)),
		),
	),
	fx.Invoke(RegisterCacheLifecycle),
)

// RedisFXModule provides the Redis-backed cache client.
var RedisFXModule = fx.Module("cache-redis",
	fx.Provide(
		fx.Annotate(
			NewRedisWithDI,
			fx.As(new(Client)),
		),
	),
	fx.Invoke(RegisterCacheLifecycle),
)

// CacheParams groups the dependencies needed to create a cache client.
type CacheParams struct {
	fx.In

	Config Config
}

// NewMemoryWithDI creates the in-process cache for dependency injection.
func NewMemoryWithDI(params CacheParams) *Memory {
	return NewMemory(params.Config)
}

// NewRedisWithDI creates the Redis cache for dependency injection.
func NewRedisWithDI(params CacheParams) (*Redis, error) {
	return NewRedis(context.Background(), params.Config)
}

// CacheLifecycleParams groups the lifecycle dependencies.
type CacheLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Client    Client
}

// RegisterCacheLifecycle closes the cache client on shutdown.
func RegisterCacheLifecycle(params CacheLifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return params.Client.Close()
		},
	})
}
