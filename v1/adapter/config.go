package adapter

import (
	"fmt"
	"time"
)

// Kind identifies a storage backend.
type Kind string

const (
	KindPostgres Kind = "postgres"
	KindMySQL    Kind = "mysql"
	KindSQLite   Kind = "sqlite"
	KindMongoDB  Kind = "mongodb"
)

// Connection is the target half of a Config. Networked engines use
// Host/Port/Database plus credentials; the embedded engine uses Filename;
// the document engine may alternatively take a full URI.
type Connection struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	// Filename is the database file path for the embedded engine.
	Filename string

	// URI overrides host/port for the document engine when set.
	URI string
}

// Pool bounds the native connection pool and the connect retry policy.
// Zero values are replaced by bounded defaults deliberately smaller than
// the native drivers', since oversized pools are the usual source of
// connection leaks.
type Pool struct {
	Max         int
	Min         int
	IdleTimeout time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

// PostgresOptions carries engine-specific knobs for the postgres backend.
type PostgresOptions struct {
	SSLMode string
}

// MySQLOptions carries engine-specific knobs for the mysql backend.
type MySQLOptions struct {
	// Params are appended to the DSN, e.g. {"parseTime": "true"}.
	Params map[string]string
}

// SQLiteOptions carries engine-specific knobs for the embedded backend.
type SQLiteOptions struct {
	// BusyTimeout is passed through as _busy_timeout.
	BusyTimeout time.Duration
	// JournalMode is passed through as _journal_mode (e.g. "WAL").
	JournalMode string
}

// MongoOptions carries engine-specific knobs for the document backend.
type MongoOptions struct {
	ReplicaSet       string
	DirectConnection bool
}

// Config is the immutable input to Connect.
type Config struct {
	Kind       Kind
	Connection Connection
	Pool       Pool

	// HealthCheckInterval throttles the opportunistic probe performed by
	// query paths. Zero means the default.
	HealthCheckInterval time.Duration

	Postgres PostgresOptions
	MySQL    MySQLOptions
	SQLite   SQLiteOptions
	Mongo    MongoOptions
}

// Defaults applied by WithDefaults. Pool sizes and idle timeouts are kept
// below the native drivers' defaults on purpose.
const (
	DefaultPoolMax             = 10
	DefaultPoolMin             = 2
	DefaultIdleTimeout         = 5 * time.Minute
	DefaultMaxRetries          = 3
	DefaultRetryDelay          = 500 * time.Millisecond
	DefaultHealthCheckInterval = 30 * time.Second
)

// Validate checks the config shape for its backend kind. It does not touch
// the network.
func (c Config) Validate() error {
	switch c.Kind {
	case KindSQLite:
		if c.Connection.Filename == "" {
			return NewError(CodeInvalidConfig, "validate-config", "",
				fmt.Errorf("sqlite requires connection.filename"))
		}
	case KindPostgres, KindMySQL:
		if c.Connection.Host == "" || c.Connection.Database == "" {
			return NewError(CodeInvalidConfig, "validate-config", "",
				fmt.Errorf("%s requires connection.host and connection.database", c.Kind))
		}
	case KindMongoDB:
		if c.Connection.URI == "" && c.Connection.Host == "" {
			return NewError(CodeInvalidConfig, "validate-config", "",
				fmt.Errorf("mongodb requires connection.uri or connection.host"))
		}
		if c.Connection.Database == "" {
			return NewError(CodeInvalidConfig, "validate-config", "",
				fmt.Errorf("mongodb requires connection.database"))
		}
	case "":
		return NewError(CodeInvalidConfig, "validate-config", "",
			fmt.Errorf("config.kind is required"))
	default:
		return NewError(CodeInvalidConfig, "validate-config", "",
			fmt.Errorf("unsupported backend kind %q", c.Kind))
	}
	if c.Pool.Max < 0 || c.Pool.Min < 0 || c.Pool.Min > c.Pool.Max && c.Pool.Max != 0 {
		return NewError(CodeInvalidConfig, "validate-config", "",
			fmt.Errorf("invalid pool bounds: min %d, max %d", c.Pool.Min, c.Pool.Max))
	}
	return nil
}

// WithDefaults returns a copy of the config with zero-valued pool and retry
// fields replaced by the package defaults.
func (c Config) WithDefaults() Config {
	if c.Pool.Max == 0 {
		c.Pool.Max = DefaultPoolMax
	}
	if c.Pool.Min == 0 {
		c.Pool.Min = DefaultPoolMin
	}
	if c.Pool.IdleTimeout == 0 {
		c.Pool.IdleTimeout = DefaultIdleTimeout
	}
	if c.Pool.MaxRetries == 0 {
		c.Pool.MaxRetries = DefaultMaxRetries
	}
	if c.Pool.RetryDelay == 0 {
		c.Pool.RetryDelay = DefaultRetryDelay
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}
	return c
}

// Addr renders host:port for networked engines.
func (c Connection) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
