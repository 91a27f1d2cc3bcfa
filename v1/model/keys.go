package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/polystore/polystore/v1/adapter"
)

// renderKey builds the canonical textual form of one read: collection,
// filter, shaping and trashed mode. The same logical read always renders the
// same string, which is what makes caching by it sound.
func renderKey(collection string, filter adapter.Expr, opts *adapter.QueryOptions, mode TrashedMode) string {
	var b strings.Builder
	b.WriteString(collection)
	b.WriteByte('|')
	canonicalExpr(&b, filter)
	b.WriteByte('|')
	if opts != nil {
		// Projection order is irrelevant to the result, so it must not split
		// the key space.
		projection := append([]string(nil), opts.Projection...)
		sort.Strings(projection)
		b.WriteString(strings.Join(projection, ","))
		b.WriteByte('|')
		for i, s := range opts.Sort {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(s.Field)
			if s.Desc {
				b.WriteString(":desc")
			}
		}
		fmt.Fprintf(&b, "|%d|%d", opts.Skip, opts.Limit)
	} else {
		b.WriteString("|||0|0")
	}
	b.WriteByte('|')
	b.WriteString(mode.String())
	return b.String()
}

// hashKey turns a rendered read into the stored cache key, prefixed with the
// collection so keys stay human-groupable in a cache dump.
func hashKey(collection, rendered string) string {
	sum := md5.Sum([]byte(rendered))
	return collection + ":" + hex.EncodeToString(sum[:])
}

// cacheTag is the invalidation tag shared by every cached read of a
// collection. Writes invalidate by this tag.
func cacheTag(collection string) string {
	return "model:" + collection
}

// canonicalExpr renders a filter expression into a stable textual form. Map
// payloads render with sorted keys so the same logical filter always yields
// the same key.
func canonicalExpr(b *strings.Builder, e adapter.Expr) {
	switch x := e.(type) {
	case nil:
		b.WriteString("nil")
	case adapter.Eq:
		fmt.Fprintf(b, "eq(%s,%v)", x.Field, x.Value)
	case adapter.Ne:
		fmt.Fprintf(b, "ne(%s,%v)", x.Field, x.Value)
	case adapter.Gt:
		fmt.Fprintf(b, "gt(%s,%v)", x.Field, x.Value)
	case adapter.Gte:
		fmt.Fprintf(b, "gte(%s,%v)", x.Field, x.Value)
	case adapter.Lt:
		fmt.Fprintf(b, "lt(%s,%v)", x.Field, x.Value)
	case adapter.Lte:
		fmt.Fprintf(b, "lte(%s,%v)", x.Field, x.Value)
	case adapter.In:
		fmt.Fprintf(b, "in(%s,%v)", x.Field, x.Values)
	case adapter.Like:
		fmt.Fprintf(b, "like(%s,%s)", x.Field, x.Pattern)
	case adapter.IsNull:
		fmt.Fprintf(b, "null(%s)", x.Field)
	case adapter.NotNull:
		fmt.Fprintf(b, "notnull(%s)", x.Field)
	case adapter.And:
		b.WriteString("and(")
		for i, child := range x.Exprs {
			if i > 0 {
				b.WriteByte(',')
			}
			canonicalExpr(b, child)
		}
		b.WriteByte(')')
	case adapter.Or:
		b.WriteString("or(")
		for i, child := range x.Exprs {
			if i > 0 {
				b.WriteByte(',')
			}
			canonicalExpr(b, child)
		}
		b.WriteByte(')')
	case adapter.Not:
		b.WriteString("not(")
		canonicalExpr(b, x.Expr)
		b.WriteByte(')')
	case adapter.Raw:
		b.WriteString("raw(")
		canonicalValue(b, x.Predicate)
		b.WriteByte(')')
	default:
		fmt.Fprintf(b, "%#v", e)
	}
}

// canonicalValue renders raw predicate payloads with sorted map keys.
func canonicalValue(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte(':')
			canonicalValue(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			canonicalValue(b, e)
		}
		b.WriteByte(']')
	default:
		fmt.Fprintf(b, "%v", v)
	}
}

// keyMemo caches rendered cache keys per logical read. Key derivation is a
// render plus an md5, cheap but hot on read-heavy models; the memo is capped
// and reset wholesale when full rather than carrying an eviction policy.
type keyMemo struct {
	mu    sync.Mutex
	limit int
	keys  map[string]string
}

func newKeyMemo(limit int) *keyMemo {
	if limit <= 0 {
		limit = 1024
	}
	return &keyMemo{limit: limit, keys: make(map[string]string)}
}

func (m *keyMemo) get(raw string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[raw]
	return key, ok
}

func (m *keyMemo) put(raw, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.keys) >= m.limit {
		m.keys = make(map[string]string, m.limit)
	}
	m.keys[raw] = key
}
