// Package cache provides the tag-invalidated result cache used by the model
// layer. Entries hold query result payloads under deterministic keys and are
// grouped by tags; invalidating a tag drops every entry carrying it.
//
// Two implementations are provided: an in-process store with TTL expiry and
// a background janitor, and a Redis-backed store for sharing hits across
// processes. Both satisfy the same Client interface, so the model layer does
// not care which one it gets.
package cache
