package mysql

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polystore/polystore/v1/adapter"
)

func testConfig() adapter.Config {
	return adapter.Config{
		Kind: adapter.KindMySQL,
		Connection: adapter.Connection{
			Host:     "localhost",
			Port:     3306,
			Database: "app",
			Username: "app",
			Password: "secret",
		},
	}
}

func TestConnect_RejectsWrongKind(t *testing.T) {
	m := NewMySQL()
	cfg := testConfig()
	cfg.Kind = adapter.KindSQLite

	err := m.Connect(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, adapter.CodeInvalidConfig, adapter.CodeOf(err))
}

func TestQuery_NeverConnected(t *testing.T) {
	m := NewMySQL()

	_, err := m.Query(context.Background(), "users", nil, nil)
	require.Error(t, err)
	assert.Equal(t, adapter.CodeNotConnected, adapter.CodeOf(err))
}

func TestClose_NotConnected(t *testing.T) {
	m := NewMySQL()

	err := m.Close(context.Background())
	require.Error(t, err)
	assert.Equal(t, adapter.CodeAlreadyDisconnected, adapter.CodeOf(err))
}

func TestSavepoints_RejectedOutsideTransaction(t *testing.T) {
	m := NewMySQL()
	ctx := context.Background()

	for _, err := range []error{
		m.CreateSavepoint(ctx, "sp"),
		m.RollbackToSavepoint(ctx, "sp"),
		m.ReleaseSavepoint(ctx, "sp"),
	} {
		require.Error(t, err)
		assert.Equal(t, adapter.CodeNotInTransaction, adapter.CodeOf(err))
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	m := NewMySQL()

	status := m.HealthCheck(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "not connected", status.Err)
}

func TestBuildDSN(t *testing.T) {
	cfg := testConfig()
	cfg.MySQL.Params = map[string]string{"charset": "utf8mb4"}

	dsn := buildDSN(cfg)
	assert.True(t, strings.HasPrefix(dsn, "app:secret@tcp(localhost:3306)/app"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}
