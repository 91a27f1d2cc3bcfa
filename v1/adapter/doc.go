// Package adapter defines the backend-agnostic database contract shared by
// every storage engine supported by polystore.
//
// The central type is the Adapter interface: a uniform surface for
// connecting, querying, executing writes, running transactions (with
// savepoint-based nesting on engines that support it) and probing pool
// health. Each backend package (v1/postgres, v1/mysql, v1/sqlite,
// v1/mongodb) implements Adapter once over its native driver; application
// code depends only on this package.
//
// Filters are expressed as a small tagged-union expression tree (Expr).
// Backends compile the tree to their native filter representation with an
// exhaustive switch, so a filter built once works against any engine.
//
// # Usage
//
//	cfg := adapter.Config{
//	    Kind: adapter.KindPostgres,
//	    Connection: adapter.Connection{
//	        Host:     "localhost",
//	        Port:     5432,
//	        Database: "app",
//	        Username: "app",
//	        Password: "secret",
//	    },
//	}
//
//	db, err := database.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer db.Close(ctx)
//
//	rows, err := db.Query(ctx, "users", adapter.Eq{Field: "email", Value: addr}, nil)
//
// # Transactions
//
//	err := db.Transaction(ctx, func(ctx context.Context, tx adapter.Adapter) error {
//	    if _, err := tx.Execute(ctx, adapter.OpInsert, "users", row, nil); err != nil {
//	        return err
//	    }
//	    // Nested calls are emulated with savepoints on relational engines.
//	    return tx.Transaction(ctx, func(ctx context.Context, inner adapter.Adapter) error {
//	        _, err := inner.Execute(ctx, adapter.OpInsert, "audit", entry, nil)
//	        return err
//	    })
//	})
//
// Errors carry numeric codes grouped by category (1xxx connection, 2xxx
// query, 3xxx execute, 4xxx transaction, 5xxx configuration); see Error.
package adapter
