// Package database selects and builds a storage adapter from configuration.
//
// Applications that know their backend at compile time can use the engine
// packages (postgres, mysql, sqlite, mongodb) directly; this package serves
// the common case where the backend is a deployment decision:
//
//	db, err := database.New(ctx, adapter.Config{
//		Kind: adapter.KindPostgres,
//		Connection: adapter.Connection{
//			Host: "localhost", Port: 5432, Database: "app",
//			Username: "app", Password: "secret",
//		},
//	})
//
// With fx, include FXModule and provide an adapter.Config; the module wires
// a connected adapter.Adapter with lifecycle hooks and attaches an optional
// adapter.QueryLogger from the container.
package database
