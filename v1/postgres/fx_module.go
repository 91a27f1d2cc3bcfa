package postgres

import (
	"context"

	"go.uber.org/fx"

	"github.com/polystore/polystore/v1/adapter"
)

// FXModule is an fx module that provides the PostgreSQL storage adapter.
// It registers the adapter constructor for dependency injection and sets up
// lifecycle hooks to connect on start and disconnect on shutdown.
//
// This module exposes the adapter.Adapter interface, not the concrete type.
var FXModule = fx.Module("postgres",
	fx.Provide(
		NewPostgresWithDI,
		fx.Annotate(
			ProvideAdapter,
			fx.As(new(adapter.Adapter)),
		),
	),
	fx.Invoke(RegisterPostgresLifecycle),
)

// ProvideAdapter wraps the concrete *Postgres as the backend-agnostic
// adapter interface so applications depend on the contract, not the engine.
func ProvideAdapter(p *Postgres) adapter.Adapter {
	return p
}

// PostgresParams groups the dependencies needed to create the adapter.
type PostgresParams struct {
	fx.In

	Config adapter.Config
	Logger adapter.QueryLogger `optional:"true"`
}

// NewPostgresWithDI creates the adapter for dependency injection. The
// connection itself is established by the lifecycle hook, not here, so a
// misconfigured database surfaces at application start rather than at
// construction.
func NewPostgresWithDI(params PostgresParams) *Postgres {
	p := NewPostgres()
	if params.Logger != nil {
		p.SetQueryLogger(params.Logger)
	}
	return p
}

// PostgresLifecycleParams groups the lifecycle dependencies.
type PostgresLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Adapter   *Postgres
	Config    adapter.Config
}

// RegisterPostgresLifecycle connects the adapter on application start and
// closes it on shutdown.
func RegisterPostgresLifecycle(params PostgresLifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return params.Adapter.Connect(ctx, params.Config)
		},
		OnStop: func(ctx context.Context) error {
			return params.Adapter.Close(ctx)
		},
	})
}
