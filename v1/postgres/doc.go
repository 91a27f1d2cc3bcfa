// Package postgres implements the storage adapter contract on top of
// PostgreSQL via pgx. It supports pooled connections with automatic
// reconnection, full transactions and savepoint-based nested transactions.
package postgres
