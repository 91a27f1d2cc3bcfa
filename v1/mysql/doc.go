// Package mysql implements the storage adapter contract for MySQL and
// MariaDB through database/sql and the go-sql-driver. It supports pooled
// connections with automatic reconnection, full transactions and
// savepoint-based nested transactions.
package mysql
