package sqlgen

import (
	"fmt"
	"strings"
)

// Dialect captures what differs between the relational engines: placeholder
// rendering, identifier quoting and the limit/offset clause shape.
type Dialect interface {
	Name() string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder(n int) string
	// QuoteIdent quotes a single already-validated identifier part.
	QuoteIdent(part string) string
	// LimitOffset renders the paging clause, empty when neither bound is set.
	LimitOffset(limit, skip int64) string
}

// Postgres uses $n placeholders and double-quoted identifiers.
var Postgres Dialect = postgresDialect{}

// MySQL uses ? placeholders and backtick identifiers.
var MySQL Dialect = mysqlDialect{}

// SQLite uses ? placeholders and double-quoted identifiers.
var SQLite Dialect = sqliteDialect{}

type postgresDialect struct{}

func (postgresDialect) Name() string             { return "postgres" }
func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (postgresDialect) QuoteIdent(part string) string {
	return `"` + part + `"`
}
func (postgresDialect) LimitOffset(limit, skip int64) string {
	var b strings.Builder
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if skip > 0 {
		fmt.Fprintf(&b, " OFFSET %d", skip)
	}
	return b.String()
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string             { return "mysql" }
func (mysqlDialect) Placeholder(int) string   { return "?" }
func (mysqlDialect) QuoteIdent(part string) string {
	return "`" + part + "`"
}
func (mysqlDialect) LimitOffset(limit, skip int64) string {
	// MySQL has no bare OFFSET; an offset without a limit needs the
	// documented all-rows sentinel.
	switch {
	case limit > 0 && skip > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, skip)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case skip > 0:
		return fmt.Sprintf(" LIMIT 18446744073709551615 OFFSET %d", skip)
	default:
		return ""
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string             { return "sqlite" }
func (sqliteDialect) Placeholder(int) string   { return "?" }
func (sqliteDialect) QuoteIdent(part string) string {
	return `"` + part + `"`
}
func (sqliteDialect) LimitOffset(limit, skip int64) string {
	switch {
	case limit > 0 && skip > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, skip)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case skip > 0:
		// SQLite accepts a negative limit as "no limit".
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", skip)
	default:
		return ""
	}
}
