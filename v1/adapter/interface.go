package adapter

import (
	"context"
	"time"
)

// Row is a single record returned by a backend, keyed by column or document
// field name.
type Row map[string]any

// Op identifies the kind of write executed through Execute.
type Op string

const (
	// OpInsert inserts one record.
	OpInsert Op = "insert"
	// OpUpdate updates every record matching the filter.
	OpUpdate Op = "update"
	// OpDelete removes every record matching the filter.
	OpDelete Op = "delete"
)

// SortField describes one ordering term of a query.
type SortField struct {
	Field string
	Desc  bool
}

// QueryOptions carries the optional shaping of a read: projection, ordering
// and windowing. A nil *QueryOptions means "all fields, natural order".
type QueryOptions struct {
	// Projection restricts the returned fields. Empty means all fields.
	Projection []string

	// Sort is applied in order; later terms break ties of earlier ones.
	Sort []SortField

	// Skip and Limit window the result set. Zero values are ignored.
	Skip  int64
	Limit int64
}

// ExecResult reports the outcome of an Execute call.
type ExecResult struct {
	// Affected is the number of records the operation changed. For inserts
	// it is the number of inserted records.
	Affected int64

	// InsertedID holds the primary key generated or supplied for an insert,
	// when the backend can report it. Nil otherwise.
	InsertedID any
}

// HealthStatus is the structured result of a health probe. HealthCheck
// never fails with an error for "not connected"; it reports an unhealthy
// status instead, because probes are used from monitoring paths that must
// not themselves fault.
type HealthStatus struct {
	Healthy   bool
	Latency   time.Duration
	Err       string
	Timestamp time.Time
}

// PoolStatus is a point-in-time snapshot of the backend connection pool.
// A disconnected adapter reports the zero value.
type PoolStatus struct {
	// Total is the number of physical connections currently open.
	Total int
	// Active is the number of connections checked out by callers.
	Active int
	// Idle is the number of open connections waiting for work.
	Idle int
	// Waiting counts acquisitions that had to wait for a free connection.
	Waiting int
}

// LogEntry is handed to a QueryLogger after every adapter operation.
type LogEntry struct {
	// Kind is "query" or "execute".
	Kind string
	// Backend names the engine, e.g. "postgres".
	Backend string
	// Target is the table or collection operated on.
	Target string
	// Params are the rendered statement parameters, when available.
	Params []any
	// Duration is the wall-clock time of the native call.
	Duration time.Duration
	// Err is the failure, if any.
	Err error
}

// QueryLogger receives one entry per adapter operation. Implementations must
// be safe for concurrent use and must not block; the adapter calls Log on
// the operation's own goroutine.
type QueryLogger interface {
	Log(entry LogEntry)
}

// Adapter is the uniform contract implemented by every storage backend.
//
// Lifecycle: an adapter starts disconnected, becomes connected through
// Connect, and returns to disconnected through Close. Connect may be called
// again on the same instance after Close.
//
// Transaction-bound adapters (the value passed to the Transaction callback)
// implement the same interface but reject Connect and Close, since the pool,
// not the transaction, owns the underlying connection.
type Adapter interface {
	// Connect validates cfg, builds the native pool with bounded defaults,
	// probes one connection and marks the adapter connected. On failure it
	// tears down any partially built pool and retries with linear backoff
	// before surfacing a connection error wrapping the last native cause.
	Connect(ctx context.Context, cfg Config) error

	// Query runs a read against target with the given filter. A nil filter
	// matches everything.
	Query(ctx context.Context, target string, filter Expr, opts *QueryOptions) ([]Row, error)

	// Execute runs a write. data carries the record (insert) or the changed
	// fields (update); filter scopes updates and deletes and is ignored for
	// inserts.
	Execute(ctx context.Context, op Op, target string, data map[string]any, filter Expr) (ExecResult, error)

	// Transaction runs fn inside a transaction bound to one checked-out
	// connection or session. fn receives an Adapter funneling every call
	// through that connection. The transaction commits when fn returns nil
	// and rolls back otherwise; a rollback failure is logged and swallowed
	// so the original error always propagates.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Adapter) error) error

	// CreateSavepoint, RollbackToSavepoint and ReleaseSavepoint manage named
	// savepoints inside an open transaction. Backends without savepoint
	// support reject all three with CodeSavepointsNotSupported. When a name
	// was used more than once, resolution targets the most recently created
	// matching savepoint.
	CreateSavepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error

	// Close disconnects. It clears local state immediately and bounds the
	// native close with a backend-specific timeout; a timeout or native
	// error at that point is logged and swallowed. Closing an already
	// disconnected adapter is an error.
	Close(ctx context.Context) error

	// HealthCheck probes the backend and reports a structured result. It
	// never returns a Go error; failures are carried in the status.
	HealthCheck(ctx context.Context) HealthStatus

	// PoolStatus reports pool counters, zeroed when disconnected.
	PoolStatus() PoolStatus

	// IsConnected reports whether Connect has succeeded and Close has not
	// been called since.
	IsConnected() bool

	// SetQueryLogger attaches a logger receiving one entry per operation.
	// Passing nil detaches the current logger.
	SetQueryLogger(logger QueryLogger)
}
