package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ValidatePerKind(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "missing kind",
			cfg:     Config{},
			wantErr: true,
		},
		{
			name:    "unsupported kind",
			cfg:     Config{Kind: "oracle"},
			wantErr: true,
		},
		{
			name: "postgres ok",
			cfg: Config{
				Kind:       KindPostgres,
				Connection: Connection{Host: "localhost", Port: 5432, Database: "app"},
			},
		},
		{
			name:    "postgres missing host",
			cfg:     Config{Kind: KindPostgres, Connection: Connection{Database: "app"}},
			wantErr: true,
		},
		{
			name:    "mysql missing database",
			cfg:     Config{Kind: KindMySQL, Connection: Connection{Host: "localhost"}},
			wantErr: true,
		},
		{
			name: "sqlite ok",
			cfg:  Config{Kind: KindSQLite, Connection: Connection{Filename: "/tmp/app.db"}},
		},
		{
			name:    "sqlite missing filename",
			cfg:     Config{Kind: KindSQLite},
			wantErr: true,
		},
		{
			name: "mongodb via uri",
			cfg: Config{
				Kind:       KindMongoDB,
				Connection: Connection{URI: "mongodb://localhost:27017", Database: "app"},
			},
		},
		{
			name:    "mongodb missing database",
			cfg:     Config{Kind: KindMongoDB, Connection: Connection{Host: "localhost"}},
			wantErr: true,
		},
		{
			name: "pool min above max",
			cfg: Config{
				Kind:       KindPostgres,
				Connection: Connection{Host: "localhost", Database: "app"},
				Pool:       Pool{Min: 20, Max: 5},
			},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, CodeInvalidConfig, CodeOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	got := Config{Kind: KindPostgres}.WithDefaults()

	assert.Equal(t, DefaultPoolMax, got.Pool.Max)
	assert.Equal(t, DefaultPoolMin, got.Pool.Min)
	assert.Equal(t, DefaultIdleTimeout, got.Pool.IdleTimeout)
	assert.Equal(t, DefaultMaxRetries, got.Pool.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, got.Pool.RetryDelay)
	assert.Equal(t, DefaultHealthCheckInterval, got.HealthCheckInterval)
}

func TestConfig_WithDefaultsKeepsExplicitValues(t *testing.T) {
	in := Config{
		Kind: KindMySQL,
		Pool: Pool{Max: 3, Min: 1, IdleTimeout: time.Minute, MaxRetries: 1, RetryDelay: time.Second},
	}
	got := in.WithDefaults()
	assert.Equal(t, in.Pool, got.Pool)
}

func TestConnection_Addr(t *testing.T) {
	c := Connection{Host: "db.internal", Port: 5432}
	assert.Equal(t, "db.internal:5432", c.Addr())
}
