package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/polystore/polystore/v1/adapter"
)

// condKind tags one builder item. Order of items is semantic: compilation
// is a pure function of the ordered list.
type condKind int

const (
	condWhere condKind = iota
	condAnd
	condOr
)

type condItem struct {
	kind      condKind
	predicate any
}

// likePattern marks a predicate value as a wildcard pattern ('%' any run,
// '_' one character). Produced by the Like builder variants.
type likePattern struct {
	pattern string
}

// compileCondition turns the ordered builder items into one filter
// expression.
//
// With no or-items every predicate is pure AND: predicates merge by shallow
// key union unless two share a key, in which case the result is an explicit
// AND-list so neither constraint is silently overwritten. With or-items the
// list is grouped into runs: where/and items extend the current run, an or
// item closes it as a branch and starts the next one; the branches become an
// OR-list, collapsed when only one exists.
func compileCondition(items []condItem, primaryKey string) (adapter.Expr, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if len(items) == 1 && items[0].kind == condWhere {
		return predicateExpr(items[0].predicate, primaryKey)
	}

	hasOr := false
	for _, item := range items {
		if item.kind == condOr {
			hasOr = true
			break
		}
	}

	if !hasOr {
		preds := make([]any, len(items))
		for i, item := range items {
			preds[i] = item.predicate
		}
		return mergeRun(preds, primaryKey)
	}

	var branches []adapter.Expr
	var run []any
	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		branch, err := mergeRun(run, primaryKey)
		if err != nil {
			return err
		}
		branches = append(branches, branch)
		run = nil
		return nil
	}
	for _, item := range items {
		if item.kind == condOr {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		run = append(run, item.predicate)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if len(branches) == 1 {
		return branches[0], nil
	}
	return adapter.Or{Exprs: branches}, nil
}

// mergeRun folds the predicates of one AND run. Predicates merge by key
// union; a key collision falls back to an AND-list preserving every
// constraint.
func mergeRun(preds []any, primaryKey string) (adapter.Expr, error) {
	if len(preds) == 1 {
		return predicateExpr(preds[0], primaryKey)
	}

	merged := make(map[string]any)
	collision := false
	for _, pred := range preds {
		m, ok := predicateMap(pred, primaryKey)
		if !ok {
			collision = true
			break
		}
		for k, v := range m {
			if _, dup := merged[k]; dup {
				collision = true
			}
			merged[k] = v
		}
	}

	if collision {
		exprs := make([]adapter.Expr, 0, len(preds))
		for _, pred := range preds {
			e, err := predicateExpr(pred, primaryKey)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, e)
		}
		return adapter.And{Exprs: exprs}, nil
	}
	return predicateExpr(merged, primaryKey)
}

// predicateMap views a predicate as a flat map when possible. Scalars view
// as a primary-key equality.
func predicateMap(pred any, primaryKey string) (map[string]any, bool) {
	switch p := pred.(type) {
	case map[string]any:
		return p, true
	case adapter.Expr:
		return nil, false
	default:
		return map[string]any{primaryKey: p}, true
	}
}

// predicateExpr compiles one predicate. A bare scalar is a primary-key
// equality; a map compiles key by key in sorted order so the result is
// deterministic regardless of map iteration; a prebuilt expression passes
// through; a map containing engine-reserved '$'-prefixed keys passes through
// as a raw native filter.
func predicateExpr(pred any, primaryKey string) (adapter.Expr, error) {
	switch p := pred.(type) {
	case nil:
		return nil, fmt.Errorf("model: nil predicate")
	case adapter.Expr:
		return p, nil
	case map[string]any:
		return mapExpr(p)
	default:
		return adapter.Eq{Field: primaryKey, Value: p}, nil
	}
}

func mapExpr(m map[string]any) (adapter.Expr, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("model: empty predicate")
	}
	for key := range m {
		if strings.HasPrefix(key, "$") {
			// Engine-reserved operator at the top level: hand the whole
			// document to the backend untouched.
			return adapter.Raw{Predicate: m}, nil
		}
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var exprs []adapter.Expr
	for _, key := range keys {
		nodes, err := fieldExpr(key, m[key])
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, nodes...)
	}
	if len(exprs) == 1 {
		return exprs[0], nil
	}
	return adapter.And{Exprs: exprs}, nil
}

// fieldExpr compiles one key/value pair. A nested map is an operator
// object; anything else is an equality.
func fieldExpr(field string, value any) ([]adapter.Expr, error) {
	switch v := value.(type) {
	case likePattern:
		return []adapter.Expr{adapter.Like{Field: field, Pattern: v.pattern}}, nil
	case map[string]any:
		return operatorExpr(field, v)
	case nil:
		return []adapter.Expr{adapter.IsNull{Field: field}}, nil
	default:
		return []adapter.Expr{adapter.Eq{Field: field, Value: value}}, nil
	}
}

func operatorExpr(field string, ops map[string]any) ([]adapter.Expr, error) {
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	exprs := make([]adapter.Expr, 0, len(keys))
	for _, op := range keys {
		v := ops[op]
		switch op {
		case "$eq":
			exprs = append(exprs, adapter.Eq{Field: field, Value: v})
		case "$ne":
			exprs = append(exprs, adapter.Ne{Field: field, Value: v})
		case "$gt":
			exprs = append(exprs, adapter.Gt{Field: field, Value: v})
		case "$gte":
			exprs = append(exprs, adapter.Gte{Field: field, Value: v})
		case "$lt":
			exprs = append(exprs, adapter.Lt{Field: field, Value: v})
		case "$lte":
			exprs = append(exprs, adapter.Lte{Field: field, Value: v})
		case "$in":
			values, err := toAnySlice(v)
			if err != nil {
				return nil, fmt.Errorf("model: %s %s: %w", field, op, err)
			}
			exprs = append(exprs, adapter.In{Field: field, Values: values})
		case "$like":
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("model: %s $like wants a string pattern, got %T", field, v)
			}
			exprs = append(exprs, adapter.Like{Field: field, Pattern: s})
		case "$null":
			isNull, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("model: %s $null wants a bool, got %T", field, v)
			}
			if isNull {
				exprs = append(exprs, adapter.IsNull{Field: field})
			} else {
				exprs = append(exprs, adapter.NotNull{Field: field})
			}
		default:
			return nil, fmt.Errorf("model: unsupported operator %q on %s", op, field)
		}
	}
	return exprs, nil
}

func toAnySlice(v any) ([]any, error) {
	switch s := v.(type) {
	case []any:
		return s, nil
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, nil
	case []int:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, nil
	default:
		return nil, fmt.Errorf("wants a slice, got %T", v)
	}
}
