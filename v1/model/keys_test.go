package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polystore/polystore/v1/adapter"
)

func TestRenderKeyStable(t *testing.T) {
	expr := adapter.And{Exprs: []adapter.Expr{
		adapter.Eq{Field: "status", Value: "open"},
		adapter.Gt{Field: "age", Value: 21},
	}}
	opts := &adapter.QueryOptions{Projection: []string{"id", "name"}, Limit: 10}

	first := renderKey("users", expr, opts, TrashedExclude)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, renderKey("users", expr, opts, TrashedExclude))
	}
}

func TestRenderKeyProjectionOrderInsensitive(t *testing.T) {
	expr := adapter.Eq{Field: "status", Value: "open"}
	a := renderKey("users", expr, &adapter.QueryOptions{Projection: []string{"name", "id"}}, TrashedExclude)
	b := renderKey("users", expr, &adapter.QueryOptions{Projection: []string{"id", "name"}}, TrashedExclude)
	assert.Equal(t, a, b)
}

func TestRenderKeySplitsOnInputs(t *testing.T) {
	base := renderKey("users", adapter.Eq{Field: "a", Value: 1}, nil, TrashedExclude)

	assert.NotEqual(t, base, renderKey("orders", adapter.Eq{Field: "a", Value: 1}, nil, TrashedExclude))
	assert.NotEqual(t, base, renderKey("users", adapter.Eq{Field: "a", Value: 2}, nil, TrashedExclude))
	assert.NotEqual(t, base, renderKey("users", adapter.Eq{Field: "a", Value: 1}, nil, TrashedOnly))
	assert.NotEqual(t, base, renderKey("users", adapter.Eq{Field: "a", Value: 1},
		&adapter.QueryOptions{Limit: 5}, TrashedExclude))
}

func TestRenderKeyRawPredicateSortsMapKeys(t *testing.T) {
	m := map[string]any{"b": 2, "a": 1, "c": map[string]any{"y": 2, "x": 1}}
	first := renderKey("users", adapter.Raw{Predicate: m}, nil, TrashedExclude)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, renderKey("users", adapter.Raw{Predicate: m}, nil, TrashedExclude))
	}
}

func TestHashKeyPrefixedWithCollection(t *testing.T) {
	key := hashKey("users", "users|eq(a,1)||0|0|active")
	assert.Regexp(t, `^users:[0-9a-f]{32}$`, key)
}

func TestKeyMemoCapResets(t *testing.T) {
	memo := newKeyMemo(4)
	for i := 0; i < 4; i++ {
		memo.put(fmt.Sprintf("raw-%d", i), fmt.Sprintf("key-%d", i))
	}
	_, ok := memo.get("raw-0")
	require.True(t, ok)

	// The fifth entry trips the cap and the memo starts over.
	memo.put("raw-4", "key-4")
	_, ok = memo.get("raw-0")
	assert.False(t, ok)
	got, ok := memo.get("raw-4")
	require.True(t, ok)
	assert.Equal(t, "key-4", got)
}
