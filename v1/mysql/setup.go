package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/polystore/polystore/v1/adapter"
	"github.com/polystore/polystore/v1/sqlgen"
)

const (
	backendName  = "mysql"
	closeTimeout = 5 * time.Second
	pingTimeout  = 5 * time.Second
)

// MySQL implements the adapter contract over a database/sql pool.
//
// Concurrency: the db handle is guarded by a mutex and swapped whole during
// reconnects; database/sql itself serializes access to the pool.
type MySQL struct {
	state adapter.ConnState

	mu sync.RWMutex
	db *sql.DB

	logMu  sync.RWMutex
	logger adapter.QueryLogger
}

// NewMySQL returns a disconnected adapter; Connect establishes the pool.
func NewMySQL() *MySQL {
	return &MySQL{}
}

var _ adapter.Adapter = (*MySQL)(nil)

// Connect validates cfg, opens the pool and verifies it with a ping,
// retrying with linear backoff per the pool's retry policy.
func (m *MySQL) Connect(ctx context.Context, cfg adapter.Config) error {
	if cfg.Kind != adapter.KindMySQL {
		return adapter.NewError(adapter.CodeInvalidConfig, "connect", "",
			fmt.Errorf("mysql adapter got config kind %q", cfg.Kind))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.WithDefaults()

	dsn := buildDSN(cfg)

	var db *sql.DB
	err := adapter.Retry(ctx, cfg.Pool.MaxRetries, cfg.Pool.RetryDelay, func(ctx context.Context) error {
		candidate, err := sql.Open("mysql", dsn)
		if err != nil {
			return err
		}
		candidate.SetMaxOpenConns(cfg.Pool.Max)
		candidate.SetMaxIdleConns(cfg.Pool.Min)
		candidate.SetConnMaxIdleTime(cfg.Pool.IdleTimeout)

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := candidate.PingContext(pingCtx); err != nil {
			_ = candidate.Close()
			return err
		}
		db = candidate
		return nil
	})
	if err != nil {
		return adapter.NewError(adapter.CodeConnectionFailed, "connect", cfg.Connection.Addr(), err)
	}

	m.mu.Lock()
	if m.db != nil {
		_ = m.db.Close()
	}
	m.db = db
	m.mu.Unlock()
	m.state.MarkConnected(cfg)
	return nil
}

// buildDSN renders the driver DSN through the driver's own config type, so
// escaping rules stay the driver's problem.
func buildDSN(cfg adapter.Config) string {
	c := gomysql.NewConfig()
	c.User = cfg.Connection.Username
	c.Passwd = cfg.Connection.Password
	c.Net = "tcp"
	c.Addr = cfg.Connection.Addr()
	c.DBName = cfg.Connection.Database
	c.ParseTime = true
	if len(cfg.MySQL.Params) > 0 {
		c.Params = make(map[string]string, len(cfg.MySQL.Params))
		for k, v := range cfg.MySQL.Params {
			c.Params[k] = v
		}
	}
	return c.FormatDSN()
}

// ensureConnection hands back a usable handle, reconnecting from the last
// config when the adapter was closed or a throttled health probe fails.
func (m *MySQL) ensureConnection(ctx context.Context) (*sql.DB, error) {
	if !m.state.Connected() {
		cfg, ok := m.state.LastConfig()
		if !ok {
			return nil, adapter.NewError(adapter.CodeNotConnected, "ensure-connection", "",
				fmt.Errorf("adapter was never connected"))
		}
		if err := m.Connect(ctx, cfg); err != nil {
			return nil, err
		}
	}

	m.mu.RLock()
	db := m.db
	m.mu.RUnlock()
	if db == nil {
		return nil, adapter.NewError(adapter.CodeNotConnected, "ensure-connection", "",
			fmt.Errorf("connection pool is not initialized"))
	}

	if m.state.ShouldProbe() {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := db.PingContext(pingCtx)
		cancel()
		if err != nil {
			cfg, _ := m.state.LastConfig()
			if err := m.Connect(ctx, cfg); err != nil {
				return nil, err
			}
			m.mu.RLock()
			db = m.db
			m.mu.RUnlock()
		}
	}
	return db, nil
}

// queryer is the read surface shared by the pool and an open tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// runner is the write surface shared by the pool and an open tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Query compiles the filter to SQL and scans every row into a generic map.
func (m *MySQL) Query(ctx context.Context, target string, filter adapter.Expr, opts *adapter.QueryOptions) ([]adapter.Row, error) {
	db, err := m.ensureConnection(ctx)
	if err != nil {
		return nil, err
	}
	return queryOn(ctx, db, m, target, filter, opts)
}

func queryOn(ctx context.Context, q queryer, obs observer, target string, filter adapter.Expr, opts *adapter.QueryOptions) ([]adapter.Row, error) {
	stmt, err := sqlgen.BuildSelect(sqlgen.MySQL, target, filter, opts)
	if err != nil {
		return nil, adapter.NewError(adapter.CodeQueryFailed, "query", target, err)
	}

	start := time.Now()
	rows, err := q.QueryContext(ctx, stmt.SQL, stmt.Args...)
	obs.observe("query", target, stmt.Args, start, err)
	if err != nil {
		return nil, adapter.NewError(adapter.CodeQueryFailed, "query", target, err).WithParams(stmt.Args...)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, adapter.NewError(adapter.CodeQueryFailed, "query", target, err)
	}
	return result, nil
}

// scanRows materializes a *sql.Rows into generic maps. The driver hands
// string columns back as []byte; those are folded to string so callers see
// uniform values across backends.
func scanRows(rows *sql.Rows) ([]adapter.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []adapter.Row
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(adapter.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Execute runs a write through the pool.
func (m *MySQL) Execute(ctx context.Context, op adapter.Op, target string, data map[string]any, filter adapter.Expr) (adapter.ExecResult, error) {
	db, err := m.ensureConnection(ctx)
	if err != nil {
		return adapter.ExecResult{}, err
	}
	return executeOn(ctx, db, m, op, target, data, filter)
}

func executeOn(ctx context.Context, r runner, obs observer, op adapter.Op, target string, data map[string]any, filter adapter.Expr) (adapter.ExecResult, error) {
	var stmt sqlgen.Statement
	var err error
	switch op {
	case adapter.OpInsert:
		stmt, err = sqlgen.BuildInsert(sqlgen.MySQL, target, data)
	case adapter.OpUpdate:
		stmt, err = sqlgen.BuildUpdate(sqlgen.MySQL, target, data, filter)
	case adapter.OpDelete:
		stmt, err = sqlgen.BuildDelete(sqlgen.MySQL, target, filter)
	default:
		err = fmt.Errorf("unsupported operation %q", op)
	}
	if err != nil {
		return adapter.ExecResult{}, adapter.NewError(adapter.CodeExecuteFailed, "execute", target, err)
	}

	start := time.Now()
	res, err := r.ExecContext(ctx, stmt.SQL, stmt.Args...)
	obs.observe("execute", target, stmt.Args, start, err)
	if err != nil {
		return adapter.ExecResult{}, adapter.NewError(adapter.CodeExecuteFailed, "execute", target, err).WithParams(stmt.Args...)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return adapter.ExecResult{}, adapter.NewError(adapter.CodeExecuteFailed, "execute", target, err)
	}
	result := adapter.ExecResult{Affected: affected}
	if op == adapter.OpInsert {
		if id, ok := data["id"]; ok {
			result.InsertedID = id
		} else if lastID, err := res.LastInsertId(); err == nil && lastID != 0 {
			result.InsertedID = lastID
		}
	}
	return result, nil
}

// CreateSavepoint is rejected outside a transaction.
func (m *MySQL) CreateSavepoint(ctx context.Context, name string) error {
	return notInTransaction("create-savepoint")
}

// RollbackToSavepoint is rejected outside a transaction.
func (m *MySQL) RollbackToSavepoint(ctx context.Context, name string) error {
	return notInTransaction("rollback-savepoint")
}

// ReleaseSavepoint is rejected outside a transaction.
func (m *MySQL) ReleaseSavepoint(ctx context.Context, name string) error {
	return notInTransaction("release-savepoint")
}

func notInTransaction(op string) error {
	return adapter.NewError(adapter.CodeNotInTransaction, op, "",
		fmt.Errorf("savepoints require an open transaction"))
}

// Close clears local state first and bounds the native close.
func (m *MySQL) Close(ctx context.Context) error {
	if !m.state.Connected() {
		return adapter.NewError(adapter.CodeAlreadyDisconnected, "close", "",
			fmt.Errorf("adapter is not connected"))
	}

	m.mu.Lock()
	db := m.db
	m.db = nil
	m.mu.Unlock()
	m.state.MarkClosed()

	if db != nil {
		_ = adapter.WaitTimeout(closeTimeout, db.Close)
	}
	return nil
}

// HealthCheck pings the pool and reports a structured status.
func (m *MySQL) HealthCheck(ctx context.Context) adapter.HealthStatus {
	status := adapter.HealthStatus{Timestamp: time.Now()}

	m.mu.RLock()
	db := m.db
	m.mu.RUnlock()
	if !m.state.Connected() || db == nil {
		status.Err = "not connected"
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	start := time.Now()
	err := db.PingContext(pingCtx)
	status.Latency = time.Since(start)
	if err != nil {
		status.Err = err.Error()
		return status
	}
	status.Healthy = true
	return status
}

// PoolStatus snapshots the database/sql pool counters.
func (m *MySQL) PoolStatus() adapter.PoolStatus {
	m.mu.RLock()
	db := m.db
	m.mu.RUnlock()
	if db == nil {
		return adapter.PoolStatus{}
	}
	stats := db.Stats()
	return adapter.PoolStatus{
		Total:   stats.OpenConnections,
		Active:  stats.InUse,
		Idle:    stats.Idle,
		Waiting: int(stats.WaitCount),
	}
}

// IsConnected reports the connection flag.
func (m *MySQL) IsConnected() bool {
	return m.state.Connected()
}

// SetQueryLogger attaches or detaches the per-operation logger.
func (m *MySQL) SetQueryLogger(logger adapter.QueryLogger) {
	m.logMu.Lock()
	m.logger = logger
	m.logMu.Unlock()
}

type observer interface {
	observe(kind, target string, params []any, start time.Time, err error)
}

func (m *MySQL) observe(kind, target string, params []any, start time.Time, err error) {
	m.logMu.RLock()
	logger := m.logger
	m.logMu.RUnlock()
	if logger == nil {
		return
	}
	logger.Log(adapter.LogEntry{
		Kind:     kind,
		Backend:  backendName,
		Target:   target,
		Params:   params,
		Duration: time.Since(start),
		Err:      err,
	})
}
