package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/polystore/polystore/v1/adapter"
)

// supportsTransactions probes the deployment topology once per connection.
// Server sessions only support transactions on replica sets and sharded
// clusters; a standalone server rejects them at commit time with a confusing
// native error, so the probe fails fast instead.
func (m *MongoDB) supportsTransactions(ctx context.Context, client *mongo.Client) (bool, error) {
	m.topoMu.Lock()
	defer m.topoMu.Unlock()
	if m.topoProbed {
		return m.txSupported, nil
	}

	admin := client.Database("admin")

	// Replica set member?
	var result bson.M
	err := admin.RunCommand(ctx, bson.D{{Key: "replSetGetStatus", Value: 1}}).Decode(&result)
	if err == nil {
		m.topoProbed = true
		m.txSupported = true
		return true, nil
	}

	// Mongos in front of a sharded cluster?
	err = admin.RunCommand(ctx, bson.D{{Key: "listShards", Value: 1}}).Decode(&result)
	if err == nil {
		m.topoProbed = true
		m.txSupported = true
		return true, nil
	}

	m.topoProbed = true
	m.txSupported = false
	return false, nil
}

// Transaction runs fn on a server session. The deployment must be a replica
// set or sharded cluster; standalone servers are rejected up front.
func (m *MongoDB) Transaction(ctx context.Context, fn func(ctx context.Context, tx adapter.Adapter) error) error {
	client, err := m.ensureConnection(ctx)
	if err != nil {
		return err
	}

	supported, err := m.supportsTransactions(ctx, client)
	if err != nil {
		return adapter.NewError(adapter.CodeTransactionFailed, "begin", "", err)
	}
	if !supported {
		return adapter.NewError(adapter.CodeTransactionsNotSupported, "begin", "",
			fmt.Errorf("transactions require a replica set or sharded cluster"))
	}

	session, err := client.StartSession()
	if err != nil {
		return adapter.NewError(adapter.CodeTransactionFailed, "begin", "", err)
	}
	defer session.EndSession(ctx)

	sessAdapter := &sessionAdapter{parent: m, client: client}
	var fnErr error
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		fnErr = fn(sc, sessAdapter)
		return nil, fnErr
	})
	return wrapTxOutcome(err, fnErr)
}

// wrapTxOutcome maps a WithTransaction result onto the adapter error codes.
// The callback's own error propagates unchanged; anything else came from the
// driver's commit or abort path.
func wrapTxOutcome(err, fnErr error) error {
	if err != nil && err != fnErr {
		return adapter.NewError(adapter.CodeTransactionFailed, "commit", "", err)
	}
	return err
}

// sessionAdapter is the transaction-bound view of the adapter. Operations
// ride on the session carried in the callback context; the session, not this
// value, holds the transactional state.
type sessionAdapter struct {
	parent *MongoDB
	client *mongo.Client
}

var _ adapter.Adapter = (*sessionAdapter)(nil)

func (s *sessionAdapter) Connect(context.Context, adapter.Config) error {
	return adapter.NewError(adapter.CodeTransactionOwnsLifecycle, "connect", "",
		fmt.Errorf("cannot connect inside a transaction"))
}

func (s *sessionAdapter) Close(context.Context) error {
	return adapter.NewError(adapter.CodeTransactionOwnsLifecycle, "close", "",
		fmt.Errorf("cannot close inside a transaction"))
}

func (s *sessionAdapter) Query(ctx context.Context, target string, filter adapter.Expr, opts *adapter.QueryOptions) ([]adapter.Row, error) {
	return s.parent.queryOn(ctx, s.parent.collection(s.client, target), target, filter, opts)
}

func (s *sessionAdapter) Execute(ctx context.Context, op adapter.Op, target string, data map[string]any, filter adapter.Expr) (adapter.ExecResult, error) {
	return s.parent.executeOn(ctx, s.parent.collection(s.client, target), op, target, data, filter)
}

// Transaction re-enters the open session transaction. The engine has no
// nested transactions, so the callback joins the current one: an inner
// failure aborts the whole transaction rather than an inner scope.
func (s *sessionAdapter) Transaction(ctx context.Context, fn func(ctx context.Context, tx adapter.Adapter) error) error {
	return fn(ctx, s)
}

// CreateSavepoint is rejected; the engine has no savepoint equivalent.
func (s *sessionAdapter) CreateSavepoint(ctx context.Context, name string) error {
	return savepointsNotSupported("create-savepoint")
}

// RollbackToSavepoint is rejected; the engine has no savepoint equivalent.
func (s *sessionAdapter) RollbackToSavepoint(ctx context.Context, name string) error {
	return savepointsNotSupported("rollback-savepoint")
}

// ReleaseSavepoint is rejected; the engine has no savepoint equivalent.
func (s *sessionAdapter) ReleaseSavepoint(ctx context.Context, name string) error {
	return savepointsNotSupported("release-savepoint")
}

func (s *sessionAdapter) HealthCheck(ctx context.Context) adapter.HealthStatus {
	return s.parent.HealthCheck(ctx)
}

func (s *sessionAdapter) PoolStatus() adapter.PoolStatus {
	return s.parent.PoolStatus()
}

func (s *sessionAdapter) IsConnected() bool {
	return s.parent.IsConnected()
}

func (s *sessionAdapter) SetQueryLogger(logger adapter.QueryLogger) {
	s.parent.SetQueryLogger(logger)
}

// observe is kept on the session adapter for symmetry with the relational
// backends' tx adapters.
func (s *sessionAdapter) observe(kind, target string, params []any, start time.Time, err error) {
	s.parent.observe(kind, target, params, start, err)
}
