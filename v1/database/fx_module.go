package database

import (
	"context"

	"go.uber.org/fx"

	"github.com/polystore/polystore/v1/adapter"
)

// FXModule provides a backend-selected adapter.Adapter. Requires an
// adapter.Config in the container; the connection is established by the
// lifecycle hook so a misconfigured backend surfaces at application start.
var FXModule = fx.Module("database",
	fx.Provide(NewAdapterWithDI),
	fx.Invoke(RegisterDatabaseLifecycle),
)

// AdapterParams groups the dependencies needed to build the adapter.
type AdapterParams struct {
	fx.In

	Config adapter.Config
	Logger adapter.QueryLogger `optional:"true"`
}

// NewAdapterWithDI selects the backend from the config kind and attaches the
// query logger when one is available.
func NewAdapterWithDI(params AdapterParams) (adapter.Adapter, error) {
	db, err := ForKind(params.Config.Kind)
	if err != nil {
		return nil, err
	}
	if params.Logger != nil {
		db.SetQueryLogger(params.Logger)
	}
	return db, nil
}

// DatabaseLifecycleParams groups the lifecycle dependencies.
type DatabaseLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Adapter   adapter.Adapter
	Config    adapter.Config
}

// RegisterDatabaseLifecycle connects on application start and closes on
// shutdown.
func RegisterDatabaseLifecycle(params DatabaseLifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return params.Adapter.Connect(ctx, params.Config)
		},
		OnStop: func(ctx context.Context) error {
			return params.Adapter.Close(ctx)
		},
	})
}
