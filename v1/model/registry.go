package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/polystore/polystore/v1/adapter"
	"github.com/polystore/polystore/v1/cache"
	"github.com/polystore/polystore/v1/logger"
)

// Registry owns the model definitions and the shared plumbing behind them:
// one storage adapter, an optional result cache and a logger. Models are
// memoized per definition, so repeated lookups return the same handle.
type Registry struct {
	db    adapter.Adapter
	cache cache.Client
	log   *logger.Logger

	mu     sync.RWMutex
	defs   map[string]*Definition
	models map[string]*Model

	keys *keyMemo

	// txBound marks a registry handed to a Transaction callback. Reads on a
	// tx-bound registry bypass the cache so uncommitted data never gets
	// cached; writes still invalidate, which at worst recomputes a result.
	txBound bool
}

// NewRegistry builds a registry over db. cacheClient and log may be nil; a
// nil cache disables result caching entirely.
func NewRegistry(db adapter.Adapter, cacheClient cache.Client, log *logger.Logger) *Registry {
	return &Registry{
		db:     db,
		cache:  cacheClient,
		log:    log,
		defs:   make(map[string]*Definition),
		models: make(map[string]*Model),
		keys:   newKeyMemo(0),
	}
}

// Register adds a definition under its collection name. Conventional field
// names are filled in first. Registering the same collection twice is an
// error.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return fmt.Errorf("model: nil definition")
	}
	def.withDefaults()
	if err := def.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.defs[def.Collection]; dup {
		return fmt.Errorf("model: %s already registered", def.Collection)
	}
	r.defs[def.Collection] = def
	return nil
}

// Model returns the handle for a registered collection.
func (r *Registry) Model(name string) (*Model, error) {
	r.mu.RLock()
	if m, ok := r.models[name]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	def, ok := r.defs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.models[name]; ok {
		return m, nil
	}
	m := &Model{reg: r, def: def}
	r.models[name] = m
	return m, nil
}

// MustModel is Model for registrations known at startup. It panics on an
// unregistered name.
func (r *Registry) MustModel(name string) *Model {
	m, err := r.Model(name)
	if err != nil {
		panic(err)
	}
	return m
}

// Transaction runs fn with a registry whose every operation goes through one
// storage transaction. The definitions are shared with the parent, so
// register models before opening transactions; the transactional registry is
// only valid inside fn.
func (r *Registry) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Registry) error) error {
	return r.db.Transaction(ctx, func(ctx context.Context, tx adapter.Adapter) error {
		bound := &Registry{
			db:      tx,
			cache:   r.cache,
			log:     r.log,
			defs:    r.defs,
			models:  make(map[string]*Model),
			keys:    r.keys,
			txBound: true,
		}
		return fn(ctx, bound)
	})
}

// Adapter exposes the underlying storage adapter for callers that need raw
// access alongside the model layer.
func (r *Registry) Adapter() adapter.Adapter {
	return r.db
}

func (r *Registry) debugf(msg string, fields map[string]any) {
	if r.log != nil {
		r.log.Debug(msg, nil, fields)
	}
}

func (r *Registry) warnf(msg string, err error, fields map[string]any) {
	if r.log != nil {
		r.log.Warn(msg, err, fields)
	}
}
