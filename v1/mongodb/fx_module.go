package mongodb

import (
	"context"

	"go.uber.org/fx"

	"github.com/polystore/polystore/v1/adapter"
)

// FXModule is an fx module that provides the MongoDB storage adapter and
// wires its connect/close into the application lifecycle.
//
// This module exposes the adapter.Adapter interface, not the concrete type.
var FXModule = fx.Module("mongodb",
	fx.Provide(
		NewMongoDBWithDI,
		fx.Annotate(
			ProvideAdapter,
			fx.As(new(adapter.Adapter)),
		),
	),
	fx.Invoke(RegisterMongoDBLifecycle),
)

// ProvideAdapter wraps the concrete *MongoDB as the backend-agnostic adapter
// interface.
func ProvideAdapter(m *MongoDB) adapter.Adapter {
	return m
}

// MongoDBParams groups the dependencies needed to create the adapter.
type MongoDBParams struct {
	fx.In

	Config adapter.Config
	Logger adapter.QueryLogger `optional:"true"`
}

// NewMongoDBWithDI creates the adapter for dependency injection. The
// connection is established by the lifecycle hook.
func NewMongoDBWithDI(params MongoDBParams) *MongoDB {
	m := NewMongoDB()
	if params.Logger != nil {
		m.SetQueryLogger(params.Logger)
	}
	return m
}

// MongoDBLifecycleParams groups the lifecycle dependencies.
type MongoDBLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Adapter   *MongoDB
	Config    adapter.Config
}

// RegisterMongoDBLifecycle connects on start and closes on shutdown.
func RegisterMongoDBLifecycle(params MongoDBLifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return params.Adapter.Connect(ctx, params.Config)
		},
		OnStop: func(ctx context.Context) error {
			return params.Adapter.Close(ctx)
		},
	})
}
