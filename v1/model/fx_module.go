package model

import (
	"go.uber.org/fx"

	"github.com/polystore/polystore/v1/adapter"
	"github.com/polystore/polystore/v1/cache"
	"github.com/polystore/polystore/v1/logger"
)

// RegistryParams declares the registry's dependencies for fx. The cache
// client and logger are optional; a registry without a cache simply reads
// through to storage.
type RegistryParams struct {
	fx.In

	DB    adapter.Adapter
	Cache cache.Client   `optional:"true"`
	Log   *logger.Logger `optional:"true"`
}

// NewRegistryFX is the fx constructor form of NewRegistry.
func NewRegistryFX(p RegistryParams) *Registry {
	return NewRegistry(p.DB, p.Cache, p.Log)
}

// FXModule provides the model registry. Requires an adapter.Adapter in the
// container; pair it with a database module and optionally a cache module.
var FXModule = fx.Module("model",
	fx.Provide(
		NewRegistryFX,
	),
)
