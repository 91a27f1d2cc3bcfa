package sqlite

import (
	"context"

	"go.uber.org/fx"

	"github.com/polystore/polystore/v1/adapter"
)

// FXModule is an fx module that provides the SQLite storage adapter and
// wires its connect/close into the application lifecycle.
//
// This module exposes the adapter.Adapter interface, not the concrete type.
var FXModule = fx.Module("sqlite",
	fx.Provide(
		NewSQLiteWithDI,
		fx.Annotate(
			ProvideAdapter,
			fx.As(new(adapter.Adapter)),
		),
	),
	fx.Invoke(RegisterSQLiteLifecycle),
)

// ProvideAdapter wraps the concrete *SQLite as the backend-agnostic adapter
// interface.
func ProvideAdapter(s *SQLite) adapter.Adapter {
	return s
}

// SQLiteParams groups the dependencies needed to create the adapter.
type SQLiteParams struct {
	fx.In

	Config adapter.Config
	Logger adapter.QueryLogger `optional:"true"`
}

// NewSQLiteWithDI creates the adapter for dependency injection. The file is
// opened by the lifecycle hook.
func NewSQLiteWithDI(params SQLiteParams) *SQLite {
	s := NewSQLite()
	if params.Logger != nil {
		s.SetQueryLogger(params.Logger)
	}
	return s
}

// SQLiteLifecycleParams groups the lifecycle dependencies.
type SQLiteLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Adapter   *SQLite
	Config    adapter.Config
}

// RegisterSQLiteLifecycle connects on start and closes on shutdown.
func RegisterSQLiteLifecycle(params SQLiteLifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return params.Adapter.Connect(ctx, params.Config)
		},
		OnStop: func(ctx context.Context) error {
			return params.Adapter.Close(ctx)
		},
	})
}
