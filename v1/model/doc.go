// Package model is the object-mapping layer on top of the storage adapter
// contract. A Registry owns model definitions and their memoized metadata
// plus the attached adapter, cache client and logger; a Model is the CRUD
// and query facade for one definition.
//
// Reads flow through the chained condition builder, the soft-delete filter
// and the tag-invalidated result cache. Writes run the validation pipeline
// (synchronous rules in declaration order, then DB-backed rules
// concurrently), dispatch lifecycle hooks with change detection, and
// invalidate the collection's cache tag when at least one record changed.
//
//	reg := model.NewRegistry(db, cacheClient, log)
//	reg.Register(userDef)
//	users, _ := reg.Model("users")
//	u, err := users.Create(ctx, map[string]any{"name": "ada"})
//	rows, err := users.Query().Where(map[string]any{"age": 36}).All(ctx)
package model
