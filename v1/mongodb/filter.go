package mongodb

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/polystore/polystore/v1/adapter"
)

// buildFilter compiles a backend-agnostic expression to a bson document.
// A nil expression compiles to the match-everything filter.
func buildFilter(expr adapter.Expr) (bson.M, error) {
	if expr == nil {
		return bson.M{}, nil
	}
	switch e := expr.(type) {
	case adapter.Eq:
		return bson.M{e.Field: e.Value}, nil
	case adapter.Ne:
		return bson.M{e.Field: bson.M{"$ne": e.Value}}, nil
	case adapter.Gt:
		return bson.M{e.Field: bson.M{"$gt": e.Value}}, nil
	case adapter.Gte:
		return bson.M{e.Field: bson.M{"$gte": e.Value}}, nil
	case adapter.Lt:
		return bson.M{e.Field: bson.M{"$lt": e.Value}}, nil
	case adapter.Lte:
		return bson.M{e.Field: bson.M{"$lte": e.Value}}, nil
	case adapter.In:
		values := e.Values
		if values == nil {
			values = []any{}
		}
		return bson.M{e.Field: bson.M{"$in": values}}, nil
	case adapter.Like:
		return bson.M{e.Field: primitive.Regex{Pattern: likeToRegex(e.Pattern)}}, nil
	case adapter.IsNull:
		// Matches both explicit null and absent fields.
		return bson.M{e.Field: nil}, nil
	case adapter.NotNull:
		return bson.M{e.Field: bson.M{"$ne": nil}}, nil
	case adapter.And:
		return composite("$and", e.Exprs)
	case adapter.Or:
		return composite("$or", e.Exprs)
	case adapter.Not:
		if e.Expr == nil {
			return nil, fmt.Errorf("mongodb: NOT with no child expression")
		}
		child, err := buildFilter(e.Expr)
		if err != nil {
			return nil, err
		}
		return bson.M{"$nor": bson.A{child}}, nil
	case adapter.Raw:
		return rawFilter(e)
	default:
		return nil, fmt.Errorf("mongodb: unsupported expression node %T", expr)
	}
}

func composite(op string, children []adapter.Expr) (bson.M, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("mongodb: composite node with no children")
	}
	if len(children) == 1 {
		return buildFilter(children[0])
	}
	parts := make(bson.A, 0, len(children))
	for _, child := range children {
		part, err := buildFilter(child)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return bson.M{op: parts}, nil
}

// rawFilter passes a native document through verbatim.
func rawFilter(e adapter.Raw) (bson.M, error) {
	switch p := e.Predicate.(type) {
	case bson.M:
		return p, nil
	case map[string]any:
		return bson.M(p), nil
	default:
		return nil, fmt.Errorf("mongodb: raw predicate must be a bson document, got %T", e.Predicate)
	}
}

// likeToRegex rewrites a SQL LIKE pattern to an anchored regular expression:
// '%' becomes '.*', '_' becomes '.', everything else is quoted literally.
func likeToRegex(pattern string) string {
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
	return b.String()
}
