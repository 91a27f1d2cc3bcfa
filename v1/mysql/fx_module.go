package mysql

import (
	"context"

	"go.uber.org/fx"

	"github.com/polystore/polystore/v1/adapter"
)

// FXModule is an fx module that provides the MySQL storage adapter and wires
// its connect/close into the application lifecycle.
//
// This module exposes the adapter.Adapter interface, not the concrete type.
var FXModule = fx.Module("mysql",
	fx.Provide(
		NewMySQLWithDI,
		fx.Annotate(
			ProvideAdapter,
			fx.As(new(adapter.Adapter)),
		),
	),
	fx.Invoke(RegisterMySQLLifecycle),
)

// ProvideAdapter wraps the concrete *MySQL as the backend-agnostic adapter
// interface.
func ProvideAdapter(m *MySQL) adapter.Adapter {
	return m
}

// MySQLParams groups the dependencies needed to create the adapter.
type MySQLParams struct {
	fx.In

	Config adapter.Config
	Logger adapter.QueryLogger `optional:"true"`
}

// NewMySQLWithDI creates the adapter for dependency injection. Connection is
// established by the lifecycle hook.
func NewMySQLWithDI(params MySQLParams) *MySQL {
	m := NewMySQL()
	if params.Logger != nil {
		m.SetQueryLogger(params.Logger)
	}
	return m
}

// MySQLLifecycleParams groups the lifecycle dependencies.
type MySQLLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Adapter   *MySQL
	Config    adapter.Config
}

// RegisterMySQLLifecycle connects on start and closes on shutdown.
func RegisterMySQLLifecycle(params MySQLLifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return params.Adapter.Connect(ctx, params.Config)
		},
		OnStop: func(ctx context.Context) error {
			return params.Adapter.Close(ctx)
		},
	})
}
