package model

import (
	"context"
	"fmt"

	"github.com/polystore/polystore/v1/adapter"
)

// Query accumulates conditions and shaping for one read, then runs it with
// Get, All or Count. A Query is single-use and not safe for concurrent use;
// build one per read.
//
// Conditions chain in three flavors: Where and AndWhere both AND onto the
// current group, OrWhere closes the current group as a branch and starts a
// new one. A predicate is a map of field constraints, a prebuilt
// adapter.Expr, or a bare value meaning primary-key equality.
type Query struct {
	model *Model

	items []condItem
	mode  TrashedMode

	projection []string
	sort       []adapter.SortField
	skip       int64
	limit      int64

	noCache bool
	err     error
}

// Where ANDs a predicate onto the current condition group.
func (q *Query) Where(pred any) *Query {
	q.items = append(q.items, condItem{kind: condWhere, predicate: pred})
	return q
}

// AndWhere is Where under a different name, for call sites that read better
// with the conjunction spelled out.
func (q *Query) AndWhere(pred any) *Query {
	q.items = append(q.items, condItem{kind: condAnd, predicate: pred})
	return q
}

// OrWhere closes the current condition group and starts a new branch with
// pred.
func (q *Query) OrWhere(pred any) *Query {
	q.items = append(q.items, condItem{kind: condOr, predicate: pred})
	return q
}

// Like ANDs a wildcard match ('%' any run, '_' one character) on field.
func (q *Query) Like(field, pattern string) *Query {
	return q.Where(map[string]any{field: likePattern{pattern: pattern}})
}

// AndLike is Like via AndWhere.
func (q *Query) AndLike(field, pattern string) *Query {
	return q.AndWhere(map[string]any{field: likePattern{pattern: pattern}})
}

// OrLike is Like via OrWhere.
func (q *Query) OrLike(field, pattern string) *Query {
	return q.OrWhere(map[string]any{field: likePattern{pattern: pattern}})
}

// Select restricts the returned fields.
func (q *Query) Select(fields ...string) *Query {
	q.projection = append(q.projection, fields...)
	return q
}

// OrderBy appends an ordering term. Later terms break ties of earlier ones.
func (q *Query) OrderBy(field string, desc bool) *Query {
	q.sort = append(q.sort, adapter.SortField{Field: field, Desc: desc})
	return q
}

// Skip offsets the result window.
func (q *Query) Skip(n int64) *Query {
	q.skip = n
	return q
}

// Limit caps the result window.
func (q *Query) Limit(n int64) *Query {
	q.limit = n
	return q
}

// WithTrashed includes soft-deleted records.
func (q *Query) WithTrashed() *Query {
	q.mode = TrashedInclude
	return q
}

// OnlyTrashed returns only soft-deleted records.
func (q *Query) OnlyTrashed() *Query {
	q.mode = TrashedOnly
	return q
}

// NoCache bypasses the result cache for this read, both lookup and store.
func (q *Query) NoCache() *Query {
	q.noCache = true
	return q
}

// compile folds the accumulated conditions and the soft-delete filter into
// the final expression.
func (q *Query) compile() (adapter.Expr, error) {
	if q.err != nil {
		return nil, q.err
	}
	expr, err := compileCondition(q.items, q.model.def.PrimaryKey)
	if err != nil {
		return nil, err
	}
	if marker := softDeleteFilter(q.model.def, q.mode); marker != nil {
		if expr == nil {
			expr = marker
		} else {
			expr = adapter.And{Exprs: []adapter.Expr{expr, marker}}
		}
	}
	return expr, nil
}

func (q *Query) options() *adapter.QueryOptions {
	if len(q.projection) == 0 && len(q.sort) == 0 && q.skip == 0 && q.limit == 0 {
		return nil
	}
	return &adapter.QueryOptions{
		Projection: q.projection,
		Sort:       q.sort,
		Skip:       q.skip,
		Limit:      q.limit,
	}
}

// All runs the query and materializes every matching record.
func (q *Query) All(ctx context.Context) ([]*Instance, error) {
	rows, err := q.fetch(ctx, q.options())
	if err != nil {
		return nil, err
	}
	out := make([]*Instance, len(rows))
	for i, row := range rows {
		out[i] = materialize(q.model.def, row)
	}
	return out, nil
}

// Get runs the query capped at one record and returns it, or
// ErrRecordNotFound when nothing matches.
func (q *Query) Get(ctx context.Context) (*Instance, error) {
	opts := q.options()
	if opts == nil {
		opts = &adapter.QueryOptions{}
	}
	opts.Limit = 1
	rows, err := q.fetch(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, q.model.def.Collection)
	}
	return materialize(q.model.def, rows[0]), nil
}

// Count runs the query projected down to the primary key and reports the
// match count.
func (q *Query) Count(ctx context.Context) (int64, error) {
	opts := q.options()
	if opts == nil {
		opts = &adapter.QueryOptions{}
	}
	opts.Projection = []string{q.model.def.PrimaryKey}
	rows, err := q.fetch(ctx, opts)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// fetch is the shared read path: compile, consult the cache, fall through to
// the adapter, store the result. Cache reads never fail the query; a broken
// cache degrades to a storage read.
func (q *Query) fetch(ctx context.Context, opts *adapter.QueryOptions) ([]adapter.Row, error) {
	reg := q.model.reg
	def := q.model.def

	expr, err := q.compile()
	if err != nil {
		return nil, err
	}

	useCache := reg.cache != nil && !q.noCache && !reg.txBound
	var key string
	if useCache {
		rendered := renderKey(def.Collection, expr, opts, q.mode)
		var memoized bool
		if key, memoized = reg.keys.get(rendered); !memoized {
			key = hashKey(def.Collection, rendered)
			reg.keys.put(rendered, key)
		}
		rows, hit, cerr := reg.cache.Get(ctx, key)
		if cerr != nil {
			reg.warnf("cache lookup failed", cerr, map[string]any{"collection": def.Collection})
		} else if hit {
			reg.debugf("cache hit", map[string]any{"collection": def.Collection, "key": key})
			return rows, nil
		}
	}

	rows, err := reg.db.Query(ctx, def.Collection, expr, opts)
	if err != nil {
		return nil, err
	}

	if useCache && len(rows) > 0 {
		if cerr := reg.cache.Set(ctx, key, rows, []string{cacheTag(def.Collection)}, def.CacheTTL); cerr != nil {
			reg.warnf("cache store failed", cerr, map[string]any{"collection": def.Collection})
		}
	}
	return rows, nil
}
