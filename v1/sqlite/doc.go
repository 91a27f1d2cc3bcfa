// Package sqlite implements the storage adapter contract for embedded
// SQLite database files through database/sql and the cgo sqlite3 driver.
// It supports full transactions and savepoint-based nested transactions;
// writes serialize on the file, so the pool is kept deliberately small.
package sqlite
