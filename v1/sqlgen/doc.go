// Package sqlgen compiles backend-agnostic filter expressions and statement
// shapes into SQL for the relational adapters. Each adapter owns a Dialect
// describing its placeholder style and identifier quoting; everything else
// (expression walking, column ordering, clause assembly) is shared here so
// the three relational backends cannot drift apart.
//
// Compilation is deterministic: the same expression always produces the same
// SQL text and argument order, which the caching layer relies on.
package sqlgen
