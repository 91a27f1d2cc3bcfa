package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/polystore/polystore/v1/adapter"
)

// Statement is a fully rendered SQL statement with its bind arguments.
type Statement struct {
	SQL  string
	Args []any
}

// sortedKeys gives deterministic column order for map-shaped values; map
// iteration order would otherwise make identical writes render differently.
func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildSelect renders a SELECT over table applying filter and options.
// An empty projection selects *.
func BuildSelect(d Dialect, table string, filter adapter.Expr, opts *adapter.QueryOptions) (Statement, error) {
	quotedTable, err := QuoteQualified(d, table)
	if err != nil {
		return Statement{}, err
	}

	columns := "*"
	if opts != nil && len(opts.Projection) > 0 {
		quoted := make([]string, len(opts.Projection))
		for i, col := range opts.Projection {
			q, err := QuoteQualified(d, col)
			if err != nil {
				return Statement{}, err
			}
			quoted[i] = q
		}
		columns = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", columns, quotedTable)

	predicate, args, err := Compile(d, filter)
	if err != nil {
		return Statement{}, err
	}
	if predicate != "" {
		b.WriteString(" WHERE ")
		b.WriteString(predicate)
	}

	if opts != nil && len(opts.Sort) > 0 {
		b.WriteString(" ORDER BY ")
		for i, sf := range opts.Sort {
			if i > 0 {
				b.WriteString(", ")
			}
			q, err := QuoteQualified(d, sf.Field)
			if err != nil {
				return Statement{}, err
			}
			b.WriteString(q)
			if sf.Desc {
				b.WriteString(" DESC")
			} else {
				b.WriteString(" ASC")
			}
		}
	}

	if opts != nil {
		b.WriteString(d.LimitOffset(opts.Limit, opts.Skip))
	}

	return Statement{SQL: b.String(), Args: args}, nil
}

// BuildInsert renders an INSERT of one row. Columns appear in sorted order.
func BuildInsert(d Dialect, table string, values map[string]any) (Statement, error) {
	if len(values) == 0 {
		return Statement{}, fmt.Errorf("sqlgen: insert with no values")
	}
	quotedTable, err := QuoteQualified(d, table)
	if err != nil {
		return Statement{}, err
	}

	keys := sortedKeys(values)
	columns := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		q, err := QuoteQualified(d, k)
		if err != nil {
			return Statement{}, err
		}
		columns[i] = q
		placeholders[i] = d.Placeholder(i + 1)
		args[i] = values[k]
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quotedTable, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	return Statement{SQL: sql, Args: args}, nil
}

// BuildUpdate renders an UPDATE of the columns in values, filtered. SET
// arguments come first, filter arguments after, in one placeholder sequence.
func BuildUpdate(d Dialect, table string, values map[string]any, filter adapter.Expr) (Statement, error) {
	if len(values) == 0 {
		return Statement{}, fmt.Errorf("sqlgen: update with no values")
	}
	quotedTable, err := QuoteQualified(d, table)
	if err != nil {
		return Statement{}, err
	}

	keys := sortedKeys(values)
	assignments := make([]string, len(keys))
	args := make([]any, 0, len(keys))
	for i, k := range keys {
		q, err := QuoteQualified(d, k)
		if err != nil {
			return Statement{}, err
		}
		args = append(args, values[k])
		assignments[i] = fmt.Sprintf("%s = %s", q, d.Placeholder(len(args)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET %s", quotedTable, strings.Join(assignments, ", "))

	if filter != nil {
		c := &compiler{dialect: d, args: args}
		if err := c.walk(filter); err != nil {
			return Statement{}, err
		}
		b.WriteString(" WHERE ")
		b.WriteString(c.sb.String())
		args = c.args
	}

	return Statement{SQL: b.String(), Args: args}, nil
}

// BuildDelete renders a DELETE, filtered. A nil filter deletes every row;
// callers guard against that where it matters.
func BuildDelete(d Dialect, table string, filter adapter.Expr) (Statement, error) {
	quotedTable, err := QuoteQualified(d, table)
	if err != nil {
		return Statement{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "DELETE FROM %s", quotedTable)

	predicate, args, err := Compile(d, filter)
	if err != nil {
		return Statement{}, err
	}
	if predicate != "" {
		b.WriteString(" WHERE ")
		b.WriteString(predicate)
	}

	return Statement{SQL: b.String(), Args: args}, nil
}
