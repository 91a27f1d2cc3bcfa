package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/polystore/polystore/v1/adapter"
	"github.com/polystore/polystore/v1/sqlgen"
)

const (
	backendName  = "sqlite"
	closeTimeout = 5 * time.Second
	pingTimeout  = 5 * time.Second
)

// SQLite implements the adapter contract over an embedded database file.
type SQLite struct {
	state adapter.ConnState

	mu sync.RWMutex
	db *sql.DB

	logMu  sync.RWMutex
	logger adapter.QueryLogger
}

// NewSQLite returns a disconnected adapter; Connect opens the file.
func NewSQLite() *SQLite {
	return &SQLite{}
}

var _ adapter.Adapter = (*SQLite)(nil)

// Connect validates cfg and opens the database file. The retry policy still
// applies; a locked file can make the open-and-ping fail transiently.
func (s *SQLite) Connect(ctx context.Context, cfg adapter.Config) error {
	if cfg.Kind != adapter.KindSQLite {
		return adapter.NewError(adapter.CodeInvalidConfig, "connect", "",
			fmt.Errorf("sqlite adapter got config kind %q", cfg.Kind))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.WithDefaults()

	dsn := buildDSN(cfg)

	var db *sql.DB
	err := adapter.Retry(ctx, cfg.Pool.MaxRetries, cfg.Pool.RetryDelay, func(ctx context.Context) error {
		candidate, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return err
		}
		// SQLite serializes writes on the file; more connections only add
		// lock contention.
		candidate.SetMaxOpenConns(1)
		candidate.SetMaxIdleConns(1)
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
		return adapter.NewError(adapter.CodeConnectionFailed, "connect", cfg.Connection.Filename, err)
	}

	s.mu.Lock()
	if s.db != nil {
		_ = s.db.Close()
	}
	s.db = db
	s.mu.Unlock()
	s.state.MarkConnected(cfg)
	return nil
}

// buildDSN renders the file DSN with driver pragmas as query parameters.
func buildDSN(cfg adapter.Config) string {
	params := url.Values{}
	if cfg.SQLite.BusyTimeout > 0 {
		params.Set("_busy_timeout", fmt.Sprintf("%d", cfg.SQLite.BusyTimeout.Milliseconds()))
	}
	if cfg.SQLite.JournalMode != "" {
		params.Set("_journal_mode", cfg.SQLite.JournalMode)
	}
	dsn := cfg.Connection.Filename
	if encoded := params.Encode(); encoded != "" {
		dsn += "?" + encoded
	}
	return dsn
}

func (s *SQLite) ensureConnection(ctx context.Context) (*sql.DB, error) {
	if !s.state.Connected() {
		cfg, ok := s.state.LastConfig()
		if !ok {
			return nil, adapter.NewError(adapter.CodeNotConnected, "ensure-connection", "",
				fmt.Errorf("adapter was never connected"))
		}
		if err := s.Connect(ctx, cfg); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return nil, adapter.NewError(adapter.CodeNotConnected, "ensure-connection", "",
			fmt.Errorf("database handle is not initialized"))
	}
	return db, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Query compiles the filter to SQL and scans every row into a generic map.
func (s *SQLite) Query(ctx context.Context, target string, filter adapter.Expr, opts *adapter.QueryOptions) ([]adapter.Row, error) {
	db, err := s.ensureConnection(ctx)
	if err != nil {
		return nil, err
	}
	return queryOn(ctx, db, s, target, filter, opts)
}

func queryOn(ctx context.Context, q queryer, obs observer, target string, filter adapter.Expr, opts *adapter.QueryOptions) ([]adapter.Row, error) {
	stmt, err := sqlgen.BuildSelect(sqlgen.SQLite, target, filter, opts)
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

// Execute runs a write against the file.
func (s *SQLite) Execute(ctx context.Context, op adapter.Op, target string, data map[string]any, filter adapter.Expr) (adapter.ExecResult, error) {
	db, err := s.ensureConnection(ctx)
	if err != nil {
		return adapter.ExecResult{}, err
	}
	return executeOn(ctx, db, s, op, target, data, filter)
}

func executeOn(ctx context.Context, r runner, obs observer, op adapter.Op, target string, data map[string]any, filter adapter.Expr) (adapter.ExecResult, error) {
	var stmt sqlgen.Statement
	var err error
	switch op {
	case adapter.OpInsert:
		stmt, err = sqlgen.BuildInsert(sqlgen.SQLite, target, data)
	case adapter.OpUpdate:
		stmt, err = sqlgen.BuildUpdate(sqlgen.SQLite, target, data, filter)
	case adapter.OpDelete:
		stmt, err = sqlgen.BuildDelete(sqlgen.SQLite, target, filter)
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
func (s *SQLite) CreateSavepoint(ctx context.Context, name string) error {
	return notInTransaction("create-savepoint")
}

// RollbackToSavepoint is rejected outside a transaction.
func (s *SQLite) RollbackToSavepoint(ctx context.Context, name string) error {
	return notInTransaction("rollback-savepoint")
}

// ReleaseSavepoint is rejected outside a transaction.
func (s *SQLite) ReleaseSavepoint(ctx context.Context, name string) error {
	return notInTransaction("release-savepoint")
}

func notInTransaction(op string) error {
	return adapter.NewError(adapter.CodeNotInTransaction, op, "",
		fmt.Errorf("savepoints require an open transaction"))
}

// Close clears local state first and bounds the native close.
func (s *SQLite) Close(ctx context.Context) error {
	if !s.state.Connected() {
		return adapter.NewError(adapter.CodeAlreadyDisconnected, "close", "",
			fmt.Errorf("adapter is not connected"))
	}

	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	s.state.MarkClosed()

	if db != nil {
		_ = adapter.WaitTimeout(closeTimeout, db.Close)
	}
	return nil
}

// HealthCheck pings the file handle and reports a structured status.
func (s *SQLite) HealthCheck(ctx context.Context) adapter.HealthStatus {
	status := adapter.HealthStatus{Timestamp: time.Now()}

	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if !s.state.Connected() || db == nil {
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

// PoolStatus snapshots the handle counters. For the embedded engine this is
// at most one connection.
func (s *SQLite) PoolStatus() adapter.PoolStatus {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
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
func (s *SQLite) IsConnected() bool {
	return s.state.Connected()
}

// SetQueryLogger attaches or detaches the per-operation logger.
func (s *SQLite) SetQueryLogger(logger adapter.QueryLogger) {
	s.logMu.Lock()
	s.logger = logger
	s.logMu.Unlock()
}

type observer interface {
	observe(kind, target string, params []any, start time.Time, err error)
}

func (s *SQLite) observe(kind, target string, params []any, start time.Time, err error) {
	s.logMu.RLock()
	logger := s.logger
	s.logMu.RUnlock()
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
