package sqlgen

import (
	"fmt"
	"strings"

	"github.com/polystore/polystore/v1/adapter"
)

// compiler accumulates SQL text and bind arguments while walking an
// expression tree. Placeholder numbering follows argument append order.
type compiler struct {
	dialect Dialect
	sb      strings.Builder
	args    []any
}

// Compile renders a filter expression to a SQL predicate (no leading WHERE)
// plus its bind arguments. A nil expression compiles to an empty predicate.
func Compile(d Dialect, expr adapter.Expr) (string, []any, error) {
	if expr == nil {
		return "", nil, nil
	}
	c := &compiler{dialect: d}
	if err := c.walk(expr); err != nil {
		return "", nil, err
	}
	return c.sb.String(), c.args, nil
}

func (c *compiler) bind(v any) string {
	c.args = append(c.args, v)
	return c.dialect.Placeholder(len(c.args))
}

func (c *compiler) field(name string) (string, error) {
	return QuoteQualified(c.dialect, name)
}

func (c *compiler) walk(expr adapter.Expr) error {
	switch e := expr.(type) {
	case adapter.Eq:
		return c.comparison(e.Field, "=", e.Value)
	case adapter.Ne:
		return c.comparison(e.Field, "<>", e.Value)
	case adapter.Gt:
		return c.comparison(e.Field, ">", e.Value)
	case adapter.Gte:
		return c.comparison(e.Field, ">=", e.Value)
	case adapter.Lt:
		return c.comparison(e.Field, "<", e.Value)
	case adapter.Lte:
		return c.comparison(e.Field, "<=", e.Value)
	case adapter.In:
		return c.in(e)
	case adapter.Like:
		f, err := c.field(e.Field)
		if err != nil {
			return err
		}
		c.sb.WriteString(f)
		c.sb.WriteString(" LIKE ")
		c.sb.WriteString(c.bind(e.Pattern))
		return nil
	case adapter.IsNull:
		f, err := c.field(e.Field)
		if err != nil {
			return err
		}
		c.sb.WriteString(f)
		c.sb.WriteString(" IS NULL")
		return nil
	case adapter.NotNull:
		f, err := c.field(e.Field)
		if err != nil {
			return err
		}
		c.sb.WriteString(f)
		c.sb.WriteString(" IS NOT NULL")
		return nil
	case adapter.And:
		return c.composite(e.Exprs, " AND ")
	case adapter.Or:
		return c.composite(e.Exprs, " OR ")
	case adapter.Not:
		if e.Expr == nil {
			return fmt.Errorf("sqlgen: NOT with no child expression")
		}
		c.sb.WriteString("NOT (")
		if err := c.walk(e.Expr); err != nil {
			return err
		}
		c.sb.WriteString(")")
		return nil
	case adapter.Raw:
		return c.raw(e)
	default:
		return fmt.Errorf("sqlgen: unsupported expression node %T", expr)
	}
}

func (c *compiler) comparison(field, op string, value any) error {
	f, err := c.field(field)
	if err != nil {
		return err
	}
	c.sb.WriteString(f)
	c.sb.WriteString(" ")
	c.sb.WriteString(op)
	c.sb.WriteString(" ")
	c.sb.WriteString(c.bind(value))
	return nil
}

func (c *compiler) in(e adapter.In) error {
	f, err := c.field(e.Field)
	if err != nil {
		return err
	}
	if len(e.Values) == 0 {
		// IN () is a syntax error everywhere; an empty set matches nothing.
		c.sb.WriteString("1 = 0")
		return nil
	}
	c.sb.WriteString(f)
	c.sb.WriteString(" IN (")
	for i, v := range e.Values {
		if i > 0 {
			c.sb.WriteString(", ")
		}
		c.sb.WriteString(c.bind(v))
	}
	c.sb.WriteString(")")
	return nil
}

func (c *compiler) composite(children []adapter.Expr, sep string) error {
	if len(children) == 0 {
		return fmt.Errorf("sqlgen: composite node with no children")
	}
	if len(children) == 1 {
		return c.walk(children[0])
	}
	c.sb.WriteString("(")
	for i, child := range children {
		if i > 0 {
			c.sb.WriteString(sep)
		}
		if err := c.walk(child); err != nil {
			return err
		}
	}
	c.sb.WriteString(")")
	return nil
}

// raw splices a native SQL fragment. The fragment uses '?' for its bind
// slots regardless of dialect; they are rewritten to the dialect's
// placeholders at the correct ordinals here.
func (c *compiler) raw(e adapter.Raw) error {
	fragment, ok := e.Predicate.(string)
	if !ok {
		return fmt.Errorf("sqlgen: raw predicate must be a SQL string, got %T", e.Predicate)
	}
	slots := strings.Count(fragment, "?")
	if slots != len(e.Args) {
		return fmt.Errorf("sqlgen: raw fragment has %d placeholders but %d args", slots, len(e.Args))
	}
	next := 0
	c.sb.WriteString("(")
	for _, r := range fragment {
		if r == '?' {
			c.sb.WriteString(c.bind(e.Args[next]))
			next++
			continue
		}
		c.sb.WriteRune(r)
	}
	c.sb.WriteString(")")
	return nil
}
