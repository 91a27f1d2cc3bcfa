package database

import (
	"context"
	"fmt"

	"github.com/polystore/polystore/v1/adapter"
	"github.com/polystore/polystore/v1/mongodb"
	"github.com/polystore/polystore/v1/mysql"
	"github.com/polystore/polystore/v1/postgres"
	"github.com/polystore/polystore/v1/sqlite"
)

// ForKind builds a disconnected adapter for the given backend kind.
func ForKind(kind adapter.Kind) (adapter.Adapter, error) {
	switch kind {
	case adapter.KindPostgres:
		return postgres.NewPostgres(), nil
	case adapter.KindMySQL:
		return mysql.NewMySQL(), nil
	case adapter.KindSQLite:
		return sqlite.NewSQLite(), nil
	case adapter.KindMongoDB:
		return mongodb.NewMongoDB(), nil
	default:
		return nil, adapter.NewError(adapter.CodeInvalidConfig, "select-backend", "",
			fmt.Errorf("unsupported backend kind %q", kind))
	}
}

// New builds the adapter for cfg.Kind and connects it. The returned adapter
// is ready for use; callers own its Close.
func New(ctx context.Context, cfg adapter.Config) (adapter.Adapter, error) {
	db, err := ForKind(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx, cfg); err != nil {
		return nil, err
	}
	return db, nil
}
