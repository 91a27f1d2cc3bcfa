package mongodb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/polystore/polystore/v1/adapter"
)

func TestBuildFilter_Nil(t *testing.T) {
	filter, err := buildFilter(nil)
	require.NoError(t, err)
	assert.Equal(t, bson.M{}, filter)
}

func TestBuildFilter_Leaves(t *testing.T) {
	cases := []struct {
		name string
		expr adapter.Expr
		want bson.M
	}{
		{"eq", adapter.Eq{Field: "age", Value: 30}, bson.M{"age": 30}},
		{"ne", adapter.Ne{Field: "age", Value: 30}, bson.M{"age": bson.M{"$ne": 30}}},
		{"gt", adapter.Gt{Field: "age", Value: 30}, bson.M{"age": bson.M{"$gt": 30}}},
		{"gte", adapter.Gte{Field: "age", Value: 30}, bson.M{"age": bson.M{"$gte": 30}}},
		{"lt", adapter.Lt{Field: "age", Value: 30}, bson.M{"age": bson.M{"$lt": 30}}},
		{"lte", adapter.Lte{Field: "age", Value: 30}, bson.M{"age": bson.M{"$lte": 30}}},
		{"in", adapter.In{Field: "s", Values: []any{"a", "b"}}, bson.M{"s": bson.M{"$in": []any{"a", "b"}}}},
		{"is null", adapter.IsNull{Field: "d"}, bson.M{"d": nil}},
		{"not null", adapter.NotNull{Field: "d"}, bson.M{"d": bson.M{"$ne": nil}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := buildFilter(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuildFilter_Composites(t *testing.T) {
	expr := adapter.Or{Exprs: []adapter.Expr{
		adapter.Eq{Field: "a", Value: 1},
		adapter.And{Exprs: []adapter.Expr{
			adapter.Eq{Field: "b", Value: 2},
			adapter.Eq{Field: "c", Value: 3},
		}},
	}}

	got, err := buildFilter(expr)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$or": bson.A{
		bson.M{"a": 1},
		bson.M{"$and": bson.A{bson.M{"b": 2}, bson.M{"c": 3}}},
	}}, got)
}

func TestBuildFilter_SingleChildCompositeUnwraps(t *testing.T) {
	got, err := buildFilter(adapter.And{Exprs: []adapter.Expr{adapter.Eq{Field: "a", Value: 1}}})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"a": 1}, got)
}

func TestBuildFilter_Not(t *testing.T) {
	got, err := buildFilter(adapter.Not{Expr: adapter.Eq{Field: "a", Value: 1}})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$nor": bson.A{bson.M{"a": 1}}}, got)
}

func TestBuildFilter_Like(t *testing.T) {
	got, err := buildFilter(adapter.Like{Field: "name", Pattern: "jo%"})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"name": primitive.Regex{Pattern: "^jo.*$"}}, got)
}

func TestBuildFilter_Raw(t *testing.T) {
	native := bson.M{"a": bson.M{"$exists": true}}
	got, err := buildFilter(adapter.Raw{Predicate: native})
	require.NoError(t, err)
	assert.Equal(t, native, got)

	got, err = buildFilter(adapter.Raw{Predicate: map[string]any{"b": 1}})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"b": 1}, got)

	_, err = buildFilter(adapter.Raw{Predicate: "a = 1"})
	assert.Error(t, err)
}

func TestLikeToRegex(t *testing.T) {
	cases := []struct {
		pattern string
		want    string
	}{
		{"jo%", "^jo.*$"},
		{"%son", "^.*son$"},
		{"j_n", "^j.n$"},
		{"a.b", `^a\.b$`},
		{"100%", `^100.*$`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, likeToRegex(tc.pattern), tc.pattern)
	}
}
