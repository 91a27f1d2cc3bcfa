package postgres

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polystore/polystore/v1/adapter"
	"github.com/polystore/polystore/v1/sqlgen"
)

const (
	backendName  = "postgres"
	closeTimeout = 5 * time.Second
	pingTimeout  = 5 * time.Second
)

// Postgres implements the adapter contract over a pgx connection pool.
//
// Concurrency: the pool pointer is guarded by a mutex and swapped whole
// during reconnects; in-flight queries keep using the pool they acquired.
type Postgres struct {
	state adapter.ConnState

	mu   sync.RWMutex
	pool *pgxpool.Pool

	logMu  sync.RWMutex
	logger adapter.QueryLogger
}

// NewPostgres returns a disconnected adapter. Callers connect explicitly, so
// construction never touches the network.
//
// Returns the concrete type (accept interfaces, return structs).
func NewPostgres() *Postgres {
	return &Postgres{}
}

var _ adapter.Adapter = (*Postgres)(nil)

// Connect validates cfg, builds the pool and verifies it with a ping,
// retrying with linear backoff per the pool's retry policy.
func (p *Postgres) Connect(ctx context.Context, cfg adapter.Config) error {
	if cfg.Kind != adapter.KindPostgres {
		return adapter.NewError(adapter.CodeInvalidConfig, "connect", "",
			fmt.Errorf("postgres adapter got config kind %q", cfg.Kind))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.WithDefaults()

	poolCfg, err := buildPoolConfig(cfg)
	if err != nil {
		return adapter.NewError(adapter.CodeInvalidConfig, "connect", "", err)
	}

	var pool *pgxpool.Pool
	err = adapter.Retry(ctx, cfg.Pool.MaxRetries, cfg.Pool.RetryDelay, func(ctx context.Context) error {
		candidate, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := candidate.Ping(pingCtx); err != nil {
			candidate.Close()
			return err
		}
		pool = candidate
		return nil
	})
	if err != nil {
		return adapter.NewError(adapter.CodeConnectionFailed, "connect", cfg.Connection.Addr(), err)
	}

	p.mu.Lock()
	if p.pool != nil {
		p.pool.Close()
	}
	p.pool = pool
	p.mu.Unlock()
	p.state.MarkConnected(cfg)
	return nil
}

func buildPoolConfig(cfg adapter.Config) (*pgxpool.Config, error) {
	sslMode := cfg.Postgres.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		url.QueryEscape(cfg.Connection.Username),
		url.QueryEscape(cfg.Connection.Password),
		cfg.Connection.Addr(),
		url.PathEscape(cfg.Connection.Database),
		url.QueryEscape(sslMode))

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = int32(cfg.Pool.Max)
	poolCfg.MinConns = int32(cfg.Pool.Min)
	poolCfg.MaxConnIdleTime = cfg.Pool.IdleTimeout
	return poolCfg, nil
}

// ensureConnection hands back a usable pool, reconnecting from the last
// config when the adapter was closed or a throttled health probe fails.
func (p *Postgres) ensureConnection(ctx context.Context) (*pgxpool.Pool, error) {
	if !p.state.Connected() {
		cfg, ok := p.state.LastConfig()
		if !ok {
			return nil, adapter.NewError(adapter.CodeNotConnected, "ensure-connection", "",
				fmt.Errorf("adapter was never connected"))
		}
		if err := p.Connect(ctx, cfg); err != nil {
			return nil, err
		}
	}

	p.mu.RLock()
	pool := p.pool
	p.mu.RUnlock()
	if pool == nil {
		return nil, adapter.NewError(adapter.CodeNotConnected, "ensure-connection", "",
			fmt.Errorf("connection pool is not initialized"))
	}

	if p.state.ShouldProbe() {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := pool.Ping(pingCtx)
		cancel()
		if err != nil {
			cfg, _ := p.state.LastConfig()
			if err := p.Connect(ctx, cfg); err != nil {
				return nil, err
			}
			p.mu.RLock()
			pool = p.pool
			p.mu.RUnlock()
		}
	}
	return pool, nil
}

// Query compiles the filter to SQL and scans every row into a generic map.
func (p *Postgres) Query(ctx context.Context, target string, filter adapter.Expr, opts *adapter.QueryOptions) ([]adapter.Row, error) {
	pool, err := p.ensureConnection(ctx)
	if err != nil {
		return nil, err
	}

	stmt, err := sqlgen.BuildSelect(sqlgen.Postgres, target, filter, opts)
	if err != nil {
		return nil, adapter.NewError(adapter.CodeQueryFailed, "query", target, err)
	}

	start := time.Now()
	rows, err := pool.Query(ctx, stmt.SQL, stmt.Args...)
	p.observe("query", target, stmt.Args, start, err)
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

func scanRows(rows pgx.Rows) ([]adapter.Row, error) {
	fields := rows.FieldDescriptions()
	var out []adapter.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(adapter.Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Execute runs a write through the pool.
func (p *Postgres) Execute(ctx context.Context, op adapter.Op, target string, data map[string]any, filter adapter.Expr) (adapter.ExecResult, error) {
	pool, err := p.ensureConnection(ctx)
	if err != nil {
		return adapter.ExecResult{}, err
	}
	return executeOn(ctx, pool, p, op, target, data, filter)
}

// execer is the Exec surface shared by a pool and an open tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func executeOn(ctx context.Context, ex execer, obs observer, op adapter.Op, target string, data map[string]any, filter adapter.Expr) (adapter.ExecResult, error) {
	var stmt sqlgen.Statement
	var err error
	switch op {
	case adapter.OpInsert:
		stmt, err = sqlgen.BuildInsert(sqlgen.Postgres, target, data)
	case adapter.OpUpdate:
		stmt, err = sqlgen.BuildUpdate(sqlgen.Postgres, target, data, filter)
	case adapter.OpDelete:
		stmt, err = sqlgen.BuildDelete(sqlgen.Postgres, target, filter)
	default:
		err = fmt.Errorf("unsupported operation %q", op)
	}
	if err != nil {
		return adapter.ExecResult{}, adapter.NewError(adapter.CodeExecuteFailed, "execute", target, err)
	}

	start := time.Now()
	tag, err := ex.Exec(ctx, stmt.SQL, stmt.Args...)
	obs.observe("execute", target, stmt.Args, start, err)
	if err != nil {
		return adapter.ExecResult{}, adapter.NewError(adapter.CodeExecuteFailed, "execute", target, err).WithParams(stmt.Args...)
	}

	result := adapter.ExecResult{Affected: tag.RowsAffected()}
	if op == adapter.OpInsert {
		// The model layer assigns primary keys before insert, so the id is
		// already in the record when present.
		if id, ok := data["id"]; ok {
			result.InsertedID = id
		}
	}
	return result, nil
}

// CreateSavepoint is rejected outside a transaction; savepoints only exist
// inside one.
func (p *Postgres) CreateSavepoint(ctx context.Context, name string) error {
	return notInTransaction("create-savepoint")
}

// RollbackToSavepoint is rejected outside a transaction.
func (p *Postgres) RollbackToSavepoint(ctx context.Context, name string) error {
	return notInTransaction("rollback-savepoint")
}

// ReleaseSavepoint is rejected outside a transaction.
func (p *Postgres) ReleaseSavepoint(ctx context.Context, name string) error {
	return notInTransaction("release-savepoint")
}

func notInTransaction(op string) error {
	return adapter.NewError(adapter.CodeNotInTransaction, op, "",
		fmt.Errorf("savepoints require an open transaction"))
}

// Close clears local state first and bounds the native pool close, so a
// hanging drain cannot leave the adapter half-closed.
func (p *Postgres) Close(ctx context.Context) error {
	if !p.state.Connected() {
		return adapter.NewError(adapter.CodeAlreadyDisconnected, "close", "",
			fmt.Errorf("adapter is not connected"))
	}

	p.mu.Lock()
	pool := p.pool
	p.pool = nil
	p.mu.Unlock()
	p.state.MarkClosed()

	if pool != nil {
		// pgxpool.Close blocks until acquired connections return; bound it.
		_ = adapter.WaitTimeout(closeTimeout, func() error {
			pool.Close()
			return nil
		})
	}
	return nil
}

// HealthCheck pings the pool and reports a structured status.
func (p *Postgres) HealthCheck(ctx context.Context) adapter.HealthStatus {
	status := adapter.HealthStatus{Timestamp: time.Now()}

	p.mu.RLock()
	pool := p.pool
	p.mu.RUnlock()
	if !p.state.Connected() || pool == nil {
		status.Err = "not connected"
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	start := time.Now()
	err := pool.Ping(pingCtx)
	status.Latency = time.Since(start)
	if err != nil {
		status.Err = err.Error()
		return status
	}
	status.Healthy = true
	return status
}

// PoolStatus snapshots the pgx pool counters.
func (p *Postgres) PoolStatus() adapter.PoolStatus {
	p.mu.RLock()
	pool := p.pool
	p.mu.RUnlock()
	if pool == nil {
		return adapter.PoolStatus{}
	}
	stat := pool.Stat()
	return adapter.PoolStatus{
		Total:   int(stat.TotalConns()),
		Active:  int(stat.AcquiredConns()),
		Idle:    int(stat.IdleConns()),
		Waiting: int(stat.EmptyAcquireCount()),
	}
}

// IsConnected reports the connection flag.
func (p *Postgres) IsConnected() bool {
	return p.state.Connected()
}

// SetQueryLogger attaches or detaches the per-operation logger.
func (p *Postgres) SetQueryLogger(logger adapter.QueryLogger) {
	p.logMu.Lock()
	p.logger = logger
	p.logMu.Unlock()
}

type observer interface {
	observe(kind, target string, params []any, start time.Time, err error)
}

func (p *Postgres) observe(kind, target string, params []any, start time.Time, err error) {
	p.logMu.RLock()
	logger := p.logger
	p.logMu.RUnlock()
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
