package model

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/polystore/polystore/v1/adapter"
)

// fakeAdapter is an in-memory adapter.Adapter evaluating filter expressions
// against stored rows. It backs the package tests so the engine's behavior
// can be asserted without a server.
type fakeAdapter struct {
	mu          sync.Mutex
	collections map[string][]adapter.Row

	queries int
	writes  int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{collections: make(map[string][]adapter.Row)}
}

func (f *fakeAdapter) seed(collection string, rows ...adapter.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		f.collections[collection] = append(f.collections[collection], cloneRow(row))
	}
}

func (f *fakeAdapter) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

func cloneRow(row adapter.Row) adapter.Row {
	out := make(adapter.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func (f *fakeAdapter) Connect(ctx context.Context, cfg adapter.Config) error { return nil }
func (f *fakeAdapter) Close(ctx context.Context) error                       { return nil }
func (f *fakeAdapter) IsConnected() bool                                     { return true }
func (f *fakeAdapter) SetQueryLogger(logger adapter.QueryLogger)             {}
func (f *fakeAdapter) PoolStatus() adapter.PoolStatus                        { return adapter.PoolStatus{} }

func (f *fakeAdapter) HealthCheck(ctx context.Context) adapter.HealthStatus {
	return adapter.HealthStatus{Healthy: true}
}

func (f *fakeAdapter) CreateSavepoint(ctx context.Context, name string) error {
	return adapter.NewError(adapter.CodeSavepointsNotSupported, "savepoint", "", nil)
}

func (f *fakeAdapter) RollbackToSavepoint(ctx context.Context, name string) error {
	return adapter.NewError(adapter.CodeSavepointsNotSupported, "savepoint", "", nil)
}

func (f *fakeAdapter) ReleaseSavepoint(ctx context.Context, name string) error {
	return adapter.NewError(adapter.CodeSavepointsNotSupported, "savepoint", "", nil)
}

func (f *fakeAdapter) Transaction(ctx context.Context, fn func(ctx context.Context, tx adapter.Adapter) error) error {
	return fn(ctx, f)
}

func (f *fakeAdapter) Query(ctx context.Context, target string, filter adapter.Expr, opts *adapter.QueryOptions) ([]adapter.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++

	var matched []adapter.Row
	for _, row := range f.collections[target] {
		ok, err := evalExpr(row, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, cloneRow(row))
		}
	}

	if opts != nil {
		if len(opts.Sort) > 0 {
			sort.SliceStable(matched, func(i, j int) bool {
				for _, term := range opts.Sort {
					cmp := compareAny(matched[i][term.Field], matched[j][term.Field])
					if cmp == 0 {
						continue
					}
					if term.Desc {
						return cmp > 0
					}
					return cmp < 0
				}
				return false
			})
		}
		if opts.Skip > 0 {
			if opts.Skip >= int64(len(matched)) {
				matched = nil
			} else {
				matched = matched[opts.Skip:]
			}
		}
		if opts.Limit > 0 && opts.Limit < int64(len(matched)) {
			matched = matched[:opts.Limit]
		}
		if len(opts.Projection) > 0 {
			projected := make([]adapter.Row, len(matched))
			for i, row := range matched {
				p := make(adapter.Row, len(opts.Projection))
				for _, field := range opts.Projection {
					if v, ok := row[field]; ok {
						p[field] = v
					}
				}
				projected[i] = p
			}
			matched = projected
		}
	}
	return matched, nil
}

func (f *fakeAdapter) Execute(ctx context.Context, op adapter.Op, target string, data map[string]any, filter adapter.Expr) (adapter.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++

	switch op {
	case adapter.OpInsert:
		row := cloneRow(adapter.Row(data))
		f.collections[target] = append(f.collections[target], row)
		return adapter.ExecResult{Affected: 1, InsertedID: row["id"]}, nil

	case adapter.OpUpdate:
		var affected int64
		for _, row := range f.collections[target] {
			ok, err := evalExpr(row, filter)
			if err != nil {
				return adapter.ExecResult{}, err
			}
			if !ok {
				continue
			}
			for k, v := range data {
				if v == nil {
					delete(row, k)
				} else {
					row[k] = v
				}
			}
			affected++
		}
		return adapter.ExecResult{Affected: affected}, nil

	case adapter.OpDelete:
		kept := f.collections[target][:0]
		var affected int64
		for _, row := range f.collections[target] {
			ok, err := evalExpr(row, filter)
			if err != nil {
				return adapter.ExecResult{}, err
			}
			if ok {
				affected++
				continue
			}
			kept = append(kept, row)
		}
		f.collections[target] = kept
		return adapter.ExecResult{Affected: affected}, nil
	}
	return adapter.ExecResult{}, fmt.Errorf("fake: unknown op %q", op)
}

// evalExpr decides whether a row matches a filter. nil matches everything.
func evalExpr(row adapter.Row, e adapter.Expr) (bool, error) {
	switch x := e.(type) {
	case nil:
		return true, nil
	case adapter.Eq:
		return looseEqual(row[x.Field], x.Value), nil
	case adapter.Ne:
		return !looseEqual(row[x.Field], x.Value), nil
	case adapter.Gt:
		return compareAny(row[x.Field], x.Value) > 0, nil
	case adapter.Gte:
		return compareAny(row[x.Field], x.Value) >= 0, nil
	case adapter.Lt:
		return compareAny(row[x.Field], x.Value) < 0, nil
	case adapter.Lte:
		return compareAny(row[x.Field], x.Value) <= 0, nil
	case adapter.In:
		for _, candidate := range x.Values {
			if looseEqual(row[x.Field], candidate) {
				return true, nil
			}
		}
		return false, nil
	case adapter.Like:
		s, ok := row[x.Field].(string)
		if !ok {
			return false, nil
		}
		return likeMatch(x.Pattern, s), nil
	case adapter.IsNull:
		return row[x.Field] == nil, nil
	case adapter.NotNull:
		return row[x.Field] != nil, nil
	case adapter.And:
		for _, child := range x.Exprs {
			ok, err := evalExpr(row, child)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case adapter.Or:
		for _, child := range x.Exprs {
			ok, err := evalExpr(row, child)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case adapter.Not:
		ok, err := evalExpr(row, x.Expr)
		return !ok, err
	default:
		return false, fmt.Errorf("fake: unsupported expression %T", e)
	}
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok1 := toFloat(a); ok1 {
		if bf, ok2 := toFloat(b); ok2 {
			return af == bf
		}
	}
	return a == b
}

func compareAny(a, b any) int {
	if af, ok1 := toFloat(a); ok1 {
		if bf, ok2 := toFloat(b); ok2 {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	return strings.Compare(as, bs)
}

func likeMatch(pattern, s string) bool {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
