package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polystore/polystore/v1/adapter"
)

func testConfig(t *testing.T) adapter.Config {
	t.Helper()
	return adapter.Config{
		Kind: adapter.KindSQLite,
		Connection: adapter.Connection{
			Filename: filepath.Join(t.TempDir(), "test.db"),
		},
		SQLite: adapter.SQLiteOptions{BusyTimeout: time.Second},
	}
}

func connectedAdapter(t *testing.T) (*SQLite, context.Context) {
	t.Helper()
	ctx := context.Background()

	s := NewSQLite()
	require.NoError(t, s.Connect(ctx, testConfig(t)))
	t.Cleanup(func() {
		if s.IsConnected() {
			_ = s.Close(ctx)
		}
	})

	db, err := s.ensureConnection(ctx)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		age INTEGER NOT NULL DEFAULT 0,
		deleted_at TIMESTAMP
	)`)
	require.NoError(t, err)
	return s, ctx
}

func TestConnect_RejectsWrongKind(t *testing.T) {
	s := NewSQLite()
	cfg := testConfig(t)
	cfg.Kind = adapter.KindPostgres

	err := s.Connect(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, adapter.CodeInvalidConfig, adapter.CodeOf(err))
}

func TestConnect_RejectsMissingFilename(t *testing.T) {
	s := NewSQLite()

	err := s.Connect(context.Background(), adapter.Config{Kind: adapter.KindSQLite})
	require.Error(t, err)
	assert.Equal(t, adapter.CodeInvalidConfig, adapter.CodeOf(err))
}

func TestQuery_NeverConnected(t *testing.T) {
	s := NewSQLite()

	_, err := s.Query(context.Background(), "users", nil, nil)
	require.Error(t, err)
	assert.Equal(t, adapter.CodeNotConnected, adapter.CodeOf(err))
}

func TestInsertQueryUpdateDelete(t *testing.T) {
	s, ctx := connectedAdapter(t)

	res, err := s.Execute(ctx, adapter.OpInsert, "users",
		map[string]any{"id": "u1", "name": "ada", "age": 36}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)
	assert.Equal(t, "u1", res.InsertedID)

	rows, err := s.Query(ctx, "users", adapter.Eq{Field: "id", Value: "u1"}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ada", rows[0]["name"])
	assert.Equal(t, int64(36), rows[0]["age"])

	res, err = s.Execute(ctx, adapter.OpUpdate, "users",
		map[string]any{"age": 37}, adapter.Eq{Field: "id", Value: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)

	res, err = s.Execute(ctx, adapter.OpDelete, "users", nil, adapter.Eq{Field: "id", Value: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)
}

func TestQuery_OptionsShapeResults(t *testing.T) {
	s, ctx := connectedAdapter(t)

	for i := 0; i < 5; i++ {
		_, err := s.Execute(ctx, adapter.OpInsert, "users",
			map[string]any{"id": fmt.Sprintf("u%d", i), "name": fmt.Sprintf("user%d", i), "age": 20 + i}, nil)
		require.NoError(t, err)
	}

	rows, err := s.Query(ctx, "users", adapter.Gte{Field: "age", Value: 21}, &adapter.QueryOptions{
		Projection: []string{"id", "age"},
		Sort:       []adapter.SortField{{Field: "age", Desc: true}},
		Skip:       1,
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "u3", rows[0]["id"])
	assert.Equal(t, "u2", rows[1]["id"])
	_, hasName := rows[0]["name"]
	assert.False(t, hasName)
}

func TestQuery_LikePattern(t *testing.T) {
	s, ctx := connectedAdapter(t)

	for _, name := range []string{"ada", "alan", "grace"} {
		_, err := s.Execute(ctx, adapter.OpInsert, "users",
			map[string]any{"id": name, "name": name}, nil)
		require.NoError(t, err)
	}

	rows, err := s.Query(ctx, "users", adapter.Like{Field: "name", Pattern: "a%"}, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	s, ctx := connectedAdapter(t)

	boom := fmt.Errorf("boom")
	err := s.Transaction(ctx, func(ctx context.Context, tx adapter.Adapter) error {
		_, err := tx.Execute(ctx, adapter.OpInsert, "users",
			map[string]any{"id": "u1", "name": "ada"}, nil)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := s.Query(ctx, "users", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTransaction_NestedRollsBackInnerOnly(t *testing.T) {
	s, ctx := connectedAdapter(t)

	err := s.Transaction(ctx, func(ctx context.Context, tx adapter.Adapter) error {
		if _, err := tx.Execute(ctx, adapter.OpInsert, "users",
			map[string]any{"id": "outer", "name": "kept"}, nil); err != nil {
			return err
		}

		inner := tx.Transaction(ctx, func(ctx context.Context, tx adapter.Adapter) error {
			if _, err := tx.Execute(ctx, adapter.OpInsert, "users",
				map[string]any{"id": "inner", "name": "dropped"}, nil); err != nil {
				return err
			}
			return fmt.Errorf("inner failure")
		})
		require.Error(t, inner)
		return nil
	})
	require.NoError(t, err)

	rows, err := s.Query(ctx, "users", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "outer", rows[0]["id"])
}

func TestTransaction_NestedSavepointsStayScoped(t *testing.T) {
	s, ctx := connectedAdapter(t)

	err := s.Transaction(ctx, func(ctx context.Context, tx adapter.Adapter) error {
		require.NoError(t, tx.Transaction(ctx, func(ctx context.Context, tx adapter.Adapter) error {
			return tx.CreateSavepoint(ctx, "inner_mark")
		}))

		// The inner scope ended, so its savepoint must be gone from the
		// outer adapter's bookkeeping rather than resolvable to a name the
		// engine no longer knows.
		err := tx.RollbackToSavepoint(ctx, "inner_mark")
		require.Error(t, err)
		assert.Equal(t, adapter.CodeSavepointNotFound, adapter.CodeOf(err))
		return nil
	})
	require.NoError(t, err)
}

func TestTransaction_SavepointReuseResolvesMostRecent(t *testing.T) {
	s, ctx := connectedAdapter(t)

	err := s.Transaction(ctx, func(ctx context.Context, tx adapter.Adapter) error {
		insert := func(id string) {
			_, err := tx.Execute(ctx, adapter.OpInsert, "users",
				map[string]any{"id": id, "name": id}, nil)
			require.NoError(t, err)
		}

		insert("a")
		require.NoError(t, tx.CreateSavepoint(ctx, "mark"))
		insert("b")
		require.NoError(t, tx.CreateSavepoint(ctx, "mark"))
		insert("c")

		require.NoError(t, tx.RollbackToSavepoint(ctx, "mark"))
		require.NoError(t, tx.RollbackToSavepoint(ctx, "mark"))
		return nil
	})
	require.NoError(t, err)

	rows, err := s.Query(ctx, "users", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0]["id"])
}

func TestTransaction_ReleaseKeepsChanges(t *testing.T) {
	s, ctx := connectedAdapter(t)

	err := s.Transaction(ctx, func(ctx context.Context, tx adapter.Adapter) error {
		require.NoError(t, tx.CreateSavepoint(ctx, "mark"))
		if _, err := tx.Execute(ctx, adapter.OpInsert, "users",
			map[string]any{"id": "u1", "name": "ada"}, nil); err != nil {
			return err
		}
		require.NoError(t, tx.ReleaseSavepoint(ctx, "mark"))

		err := tx.RollbackToSavepoint(ctx, "mark")
		assert.True(t, adapter.IsSavepointNotFound(err))
		return nil
	})
	require.NoError(t, err)

	rows, err := s.Query(ctx, "users", nil, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestClose_ThenReconnectOnQuery(t *testing.T) {
	s, ctx := connectedAdapter(t)

	require.NoError(t, s.Close(ctx))
	assert.False(t, s.IsConnected())

	err := s.Close(ctx)
	require.Error(t, err)
	assert.Equal(t, adapter.CodeAlreadyDisconnected, adapter.CodeOf(err))

	rows, err := s.Query(ctx, "users", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.True(t, s.IsConnected())
}

func TestHealthCheck(t *testing.T) {
	s, ctx := connectedAdapter(t)

	status := s.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.Empty(t, status.Err)
	assert.False(t, status.Timestamp.IsZero())
}

func TestBuildDSN(t *testing.T) {
	cfg := adapter.Config{
		Kind:       adapter.KindSQLite,
		Connection: adapter.Connection{Filename: "/tmp/app.db"},
		SQLite: adapter.SQLiteOptions{
			BusyTimeout: 2 * time.Second,
			JournalMode: "WAL",
		},
	}
	dsn := buildDSN(cfg)
	assert.Contains(t, dsn, "/tmp/app.db?")
	assert.Contains(t, dsn, "_busy_timeout=2000")
	assert.Contains(t, dsn, "_journal_mode=WAL")
}
