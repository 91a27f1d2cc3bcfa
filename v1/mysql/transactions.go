package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/polystore/polystore/v1/adapter"
	"github.com/polystore/polystore/v1/sqlgen"
)

// Transaction runs fn on a transaction bound to one pooled connection.
// Nested Transaction calls on the callback's adapter are emulated with
// savepoints.
func (m *MySQL) Transaction(ctx context.Context, fn func(ctx context.Context, tx adapter.Adapter) error) error {
	db, err := m.ensureConnection(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return adapter.NewError(adapter.CodeTransactionFailed, "begin", "", err)
	}

	txa := &txAdapter{parent: m, tx: tx, savepoints: &adapter.SavepointStack{}}
	if err := fn(ctx, txa); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			m.observe("execute", "", nil, time.Now(), rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return adapter.NewError(adapter.CodeTransactionFailed, "commit", "", err)
	}
	return nil
}

// txAdapter is the transaction-bound view of the adapter. The pool, not the
// transaction, owns connection lifecycle.
type txAdapter struct {
	parent     *MySQL
	tx         *sql.Tx
	savepoints *adapter.SavepointStack
	depth      int
}

var _ adapter.Adapter = (*txAdapter)(nil)

func (t *txAdapter) Connect(context.Context, adapter.Config) error {
	return adapter.NewError(adapter.CodeTransactionOwnsLifecycle, "connect", "",
		fmt.Errorf("cannot connect inside a transaction"))
}

func (t *txAdapter) Close(context.Context) error {
	return adapter.NewError(adapter.CodeTransactionOwnsLifecycle, "close", "",
		fmt.Errorf("cannot close inside a transaction"))
}

func (t *txAdapter) Query(ctx context.Context, target string, filter adapter.Expr, opts *adapter.QueryOptions) ([]adapter.Row, error) {
	return queryOn(ctx, t.tx, t, target, filter, opts)
}

func (t *txAdapter) Execute(ctx context.Context, op adapter.Op, target string, data map[string]any, filter adapter.Expr) (adapter.ExecResult, error) {
	return executeOn(ctx, t.tx, t, op, target, data, filter)
}

// Transaction nests via a savepoint scoping the callback.
func (t *txAdapter) Transaction(ctx context.Context, fn func(ctx context.Context, tx adapter.Adapter) error) error {
	sp, err := t.savepoints.Push(fmt.Sprintf("nested_tx_%d", t.depth+1))
	if err != nil {
		return err
	}
	if err := t.execSavepoint(ctx, "SAVEPOINT", sp.StackName); err != nil {
		return adapter.NewError(adapter.CodeTransactionFailed, "begin-nested", "", err)
	}

	// The nested scope works on a copy of the stack: savepoints it creates
	// die with it and never leak into the parent's bookkeeping.
	nested := &txAdapter{parent: t.parent, tx: t.tx, savepoints: t.savepoints.Clone(), depth: t.depth + 1}
	if err := fn(ctx, nested); err != nil {
		if rbErr := t.execSavepoint(ctx, "ROLLBACK TO SAVEPOINT", sp.StackName); rbErr != nil {
			t.observe("execute", "", nil, time.Now(), rbErr)
		}
		if _, index, ok := t.savepoints.Resolve(sp.UserName); ok {
			t.savepoints.TruncateThrough(index)
		}
		return err
	}

	if err := t.execSavepoint(ctx, "RELEASE SAVEPOINT", sp.StackName); err != nil {
		return adapter.NewError(adapter.CodeTransactionFailed, "commit-nested", "", err)
	}
	if _, index, ok := t.savepoints.Resolve(sp.UserName); ok {
		t.savepoints.RemoveAt(index)
	}
	return nil
}

// CreateSavepoint issues a new savepoint under the user-facing name.
func (t *txAdapter) CreateSavepoint(ctx context.Context, name string) error {
	sp, err := t.savepoints.Push(name)
	if err != nil {
		return err
	}
	if err := t.execSavepoint(ctx, "SAVEPOINT", sp.StackName); err != nil {
		t.savepoints.RemoveAt(t.savepoints.Len() - 1)
		return adapter.NewError(adapter.CodeTransactionFailed, "create-savepoint", "", err)
	}
	return nil
}

// RollbackToSavepoint rolls back to the most recent savepoint created under
// name and discards it together with everything created after it.
func (t *txAdapter) RollbackToSavepoint(ctx context.Context, name string) error {
	sp, index, ok := t.savepoints.Resolve(name)
	if !ok {
		return adapter.NewError(adapter.CodeSavepointNotFound, "rollback-savepoint", "",
			fmt.Errorf("savepoint %q not found", name))
	}
	if err := t.execSavepoint(ctx, "ROLLBACK TO SAVEPOINT", sp.StackName); err != nil {
		return adapter.NewError(adapter.CodeTransactionFailed, "rollback-savepoint", "", err)
	}
	t.savepoints.TruncateThrough(index)
	return nil
}

// ReleaseSavepoint releases the most recent savepoint created under name,
// leaving later savepoints intact.
func (t *txAdapter) ReleaseSavepoint(ctx context.Context, name string) error {
	sp, index, ok := t.savepoints.Resolve(name)
	if !ok {
		return adapter.NewError(adapter.CodeSavepointNotFound, "release-savepoint", "",
			fmt.Errorf("savepoint %q not found", name))
	}
	if err := t.execSavepoint(ctx, "RELEASE SAVEPOINT", sp.StackName); err != nil {
		return adapter.NewError(adapter.CodeTransactionFailed, "release-savepoint", "", err)
	}
	t.savepoints.RemoveAt(index)
	return nil
}

func (t *txAdapter) execSavepoint(ctx context.Context, verb, stackName string) error {
	quoted, err := sqlgen.QuoteQualified(sqlgen.MySQL, stackName)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, verb+" "+quoted)
	return err
}

func (t *txAdapter) HealthCheck(ctx context.Context) adapter.HealthStatus {
	return t.parent.HealthCheck(ctx)
}

func (t *txAdapter) PoolStatus() adapter.PoolStatus {
	return t.parent.PoolStatus()
}

func (t *txAdapter) IsConnected() bool {
	return t.parent.IsConnected()
}

func (t *txAdapter) SetQueryLogger(logger adapter.QueryLogger) {
	t.parent.SetQueryLogger(logger)
}

func (t *txAdapter) observe(kind, target string, params []any, start time.Time, err error) {
	t.parent.observe(kind, target, params, start, err)
}
