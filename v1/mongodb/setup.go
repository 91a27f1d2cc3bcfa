package mongodb

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/polystore/polystore/v1/adapter"
)

const (
	backendName  = "mongodb"
	closeTimeout = 5 * time.Second
	pingTimeout  = 5 * time.Second
)

// MongoDB implements the adapter contract over the official driver.
//
// Concurrency: the client pointer is guarded by a mutex and swapped whole
// during reconnects. The transaction-support probe result is cached for the
// lifetime of the connection since topology does not change under us.
type MongoDB struct {
	state adapter.ConnState

	mu       sync.RWMutex
	client   *mongo.Client
	database string

	topoMu      sync.Mutex
	topoProbed  bool
	txSupported bool

	logMu  sync.RWMutex
	logger adapter.QueryLogger
}

// NewMongoDB returns a disconnected adapter; Connect establishes the client.
func NewMongoDB() *MongoDB {
	return &MongoDB{}
}

var _ adapter.Adapter = (*MongoDB)(nil)

// Connect validates cfg, builds the client and verifies it with a ping,
// retrying with linear backoff per the pool's retry policy.
func (m *MongoDB) Connect(ctx context.Context, cfg adapter.Config) error {
	if cfg.Kind != adapter.KindMongoDB {
		return adapter.NewError(adapter.CodeInvalidConfig, "connect", "",
			fmt.Errorf("mongodb adapter got config kind %q", cfg.Kind))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.WithDefaults()

	opts := buildClientOptions(cfg)

	var client *mongo.Client
	err := adapter.Retry(ctx, cfg.Pool.MaxRetries, cfg.Pool.RetryDelay, func(ctx context.Context) error {
		candidate, err := mongo.Connect(ctx, opts)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := candidate.Ping(pingCtx, readpref.Primary()); err != nil {
			_ = candidate.Disconnect(ctx)
			return err
		}
		client = candidate
		return nil
	})
	if err != nil {
		return adapter.NewError(adapter.CodeConnectionFailed, "connect", connTarget(cfg), err)
	}

	m.mu.Lock()
	if m.client != nil {
		_ = m.client.Disconnect(ctx)
	}
	m.client = client
	m.database = cfg.Connection.Database
	m.mu.Unlock()

	m.topoMu.Lock()
	m.topoProbed = false
	m.txSupported = false
	m.topoMu.Unlock()

	m.state.MarkConnected(cfg)
	return nil
}

func connTarget(cfg adapter.Config) string {
	if cfg.Connection.URI != "" {
		return cfg.Connection.Database
	}
	return cfg.Connection.Addr()
}

func buildClientOptions(cfg adapter.Config) *options.ClientOptions {
	uri := cfg.Connection.URI
	if uri == "" {
		var creds string
		if cfg.Connection.Username != "" {
			creds = fmt.Sprintf("%s:%s@",
				url.QueryEscape(cfg.Connection.Username),
				url.QueryEscape(cfg.Connection.Password))
		}
		uri = fmt.Sprintf("mongodb://%s%s", creds, cfg.Connection.Addr())
	}

	opts := options.Client().ApplyURI(uri)
	opts.SetMaxPoolSize(uint64(cfg.Pool.Max))
	opts.SetMinPoolSize(uint64(cfg.Pool.Min))
	opts.SetMaxConnIdleTime(cfg.Pool.IdleTimeout)
	if cfg.Mongo.ReplicaSet != "" {
		opts.SetReplicaSet(cfg.Mongo.ReplicaSet)
	}
	if cfg.Mongo.DirectConnection {
		opts.SetDirect(true)
	}
	return opts
}

// ensureConnection hands back a usable client, reconnecting from the last
// config when the adapter was closed or a throttled health probe fails.
func (m *MongoDB) ensureConnection(ctx context.Context) (*mongo.Client, error) {
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
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return nil, adapter.NewError(adapter.CodeNotConnected, "ensure-connection", "",
			fmt.Errorf("client is not initialized"))
	}

	if m.state.ShouldProbe() {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := client.Ping(pingCtx, readpref.Primary())
		cancel()
		if err != nil {
			cfg, _ := m.state.LastConfig()
			if err := m.Connect(ctx, cfg); err != nil {
				return nil, err
			}
			m.mu.RLock()
			client = m.client
			m.mu.RUnlock()
		}
	}
	return client, nil
}

func (m *MongoDB) collection(client *mongo.Client, target string) *mongo.Collection {
	m.mu.RLock()
	database := m.database
	m.mu.RUnlock()
	return client.Database(database).Collection(target)
}

// Query compiles the filter to a bson document and runs a Find.
func (m *MongoDB) Query(ctx context.Context, target string, filter adapter.Expr, opts *adapter.QueryOptions) ([]adapter.Row, error) {
	client, err := m.ensureConnection(ctx)
	if err != nil {
		return nil, err
	}
	return m.queryOn(ctx, m.collection(client, target), target, filter, opts)
}

func (m *MongoDB) queryOn(ctx context.Context, coll *mongo.Collection, target string, filter adapter.Expr, opts *adapter.QueryOptions) ([]adapter.Row, error) {
	nativeFilter, err := buildFilter(filter)
	if err != nil {
		return nil, adapter.NewError(adapter.CodeQueryFailed, "query", target, err)
	}
	findOpts := buildFindOptions(opts)

	start := time.Now()
	cursor, err := coll.Find(ctx, nativeFilter, findOpts)
	m.observe("query", target, []any{nativeFilter}, start, err)
	if err != nil {
		return nil, adapter.NewError(adapter.CodeQueryFailed, "query", target, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, adapter.NewError(adapter.CodeQueryFailed, "query", target, err)
	}

	out := make([]adapter.Row, len(docs))
	for i, doc := range docs {
		out[i] = adapter.Row(doc)
	}
	return out, nil
}

func buildFindOptions(opts *adapter.QueryOptions) *options.FindOptions {
	findOpts := options.Find()
	if opts == nil {
		return findOpts
	}
	if len(opts.Projection) > 0 {
		projection := bson.D{}
		for _, field := range opts.Projection {
			projection = append(projection, bson.E{Key: field, Value: 1})
		}
		findOpts.SetProjection(projection)
	}
	if len(opts.Sort) > 0 {
		sort := bson.D{}
		for _, sf := range opts.Sort {
			direction := 1
			if sf.Desc {
				direction = -1
			}
			sort = append(sort, bson.E{Key: sf.Field, Value: direction})
		}
		findOpts.SetSort(sort)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	return findOpts
}

// Execute runs a write against the collection.
func (m *MongoDB) Execute(ctx context.Context, op adapter.Op, target string, data map[string]any, filter adapter.Expr) (adapter.ExecResult, error) {
	client, err := m.ensureConnection(ctx)
	if err != nil {
		return adapter.ExecResult{}, err
	}
	return m.executeOn(ctx, m.collection(client, target), op, target, data, filter)
}

func (m *MongoDB) executeOn(ctx context.Context, coll *mongo.Collection, op adapter.Op, target string, data map[string]any, filter adapter.Expr) (adapter.ExecResult, error) {
	nativeFilter, err := buildFilter(filter)
	if err != nil {
		return adapter.ExecResult{}, adapter.NewError(adapter.CodeExecuteFailed, "execute", target, err)
	}

	start := time.Now()
	var result adapter.ExecResult
	switch op {
	case adapter.OpInsert:
		res, insertErr := coll.InsertOne(ctx, bson.M(data))
		err = insertErr
		if err == nil {
			result = adapter.ExecResult{Affected: 1, InsertedID: res.InsertedID}
			if id, ok := data["id"]; ok {
				result.InsertedID = id
			}
		}
	case adapter.OpUpdate:
		res, updateErr := coll.UpdateMany(ctx, nativeFilter, bson.M{"$set": bson.M(data)})
		err = updateErr
		if err == nil {
			result = adapter.ExecResult{Affected: res.ModifiedCount}
		}
	case adapter.OpDelete:
		res, deleteErr := coll.DeleteMany(ctx, nativeFilter)
		err = deleteErr
		if err == nil {
			result = adapter.ExecResult{Affected: res.DeletedCount}
		}
	default:
		err = fmt.Errorf("unsupported operation %q", op)
	}
	m.observe("execute", target, []any{nativeFilter}, start, err)
	if err != nil {
		return adapter.ExecResult{}, adapter.NewError(adapter.CodeExecuteFailed, "execute", target, err)
	}
	return result, nil
}

// CreateSavepoint is rejected; the engine has no savepoint equivalent.
func (m *MongoDB) CreateSavepoint(ctx context.Context, name string) error {
	return savepointsNotSupported("create-savepoint")
}

// RollbackToSavepoint is rejected; the engine has no savepoint equivalent.
func (m *MongoDB) RollbackToSavepoint(ctx context.Context, name string) error {
	return savepointsNotSupported("rollback-savepoint")
}

// ReleaseSavepoint is rejected; the engine has no savepoint equivalent.
func (m *MongoDB) ReleaseSavepoint(ctx context.Context, name string) error {
	return savepointsNotSupported("release-savepoint")
}

func savepointsNotSupported(op string) error {
	return adapter.NewError(adapter.CodeSavepointsNotSupported, op, "",
		fmt.Errorf("mongodb does not support savepoints"))
}

// Close clears local state first and bounds the native disconnect.
func (m *MongoDB) Close(ctx context.Context) error {
	if !m.state.Connected() {
		return adapter.NewError(adapter.CodeAlreadyDisconnected, "close", "",
			fmt.Errorf("adapter is not connected"))
	}

	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()
	m.state.MarkClosed()

	if client != nil {
		_ = adapter.WaitTimeout(closeTimeout, func() error {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			return client.Disconnect(disconnectCtx)
		})
	}
	return nil
}

// HealthCheck pings the deployment and reports a structured status.
func (m *MongoDB) HealthCheck(ctx context.Context) adapter.HealthStatus {
	status := adapter.HealthStatus{Timestamp: time.Now()}

	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if !m.state.Connected() || client == nil {
		status.Err = "not connected"
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	start := time.Now()
	err := client.Ping(pingCtx, readpref.Primary())
	status.Latency = time.Since(start)
	if err != nil {
		status.Err = err.Error()
		return status
	}
	status.Healthy = true
	return status
}

// PoolStatus is a best-effort snapshot. The driver does not expose pool
// counters on the client, so only the configured bound is reported.
func (m *MongoDB) PoolStatus() adapter.PoolStatus {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return adapter.PoolStatus{}
	}
	cfg, ok := m.state.LastConfig()
	if !ok {
		return adapter.PoolStatus{}
	}
	return adapter.PoolStatus{Total: cfg.Pool.Max}
}

// IsConnected reports the connection flag.
func (m *MongoDB) IsConnected() bool {
	return m.state.Connected()
}

// SetQueryLogger attaches or detaches the per-operation logger.
func (m *MongoDB) SetQueryLogger(logger adapter.QueryLogger) {
	m.logMu.Lock()
	m.logger = logger
	m.logMu.Unlock()
}

func (m *MongoDB) observe(kind, target string, params []any, start time.Time, err error) {
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
