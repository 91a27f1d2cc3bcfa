package model

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/polystore/polystore/v1/adapter"
)

// Model is the façade over one registered definition. It is cheap to copy
// around and safe for concurrent use; per-call state lives in the Query.
type Model struct {
	reg *Registry
	def *Definition
}

// Definition returns the model's definition.
func (m *Model) Definition() *Definition {
	return m.def
}

// Query starts a new read.
func (m *Model) Query() *Query {
	return &Query{model: m}
}

// Find returns the record with the given primary key, or ErrRecordNotFound.
// Soft-deleted records are excluded; go through Query for trashed modes.
func (m *Model) Find(ctx context.Context, id any) (*Instance, error) {
	return m.Query().Where(id).Get(ctx)
}

// Count reports how many records match pred, which may be nil for all.
func (m *Model) Count(ctx context.Context, pred any) (int64, error) {
	q := m.Query()
	if pred != nil {
		q.Where(pred)
	}
	return q.Count(ctx)
}

// Create validates and inserts one record. Absent fields take their declared
// defaults, an absent primary key is filled with a fresh UUID, and
// timestamp fields are stamped when the schema declares them. The returned
// instance reflects the record as written, including hook mutations.
func (m *Model) Create(ctx context.Context, data map[string]any) (*Instance, error) {
	def := m.def

	inst := newInstance(def, nil)
	for k, v := range data {
		inst.Set(k, v)
	}
	for _, f := range def.Fields {
		if _, present := inst.data[f.Name]; present {
			continue
		}
		if value, ok := f.defaultValue(); ok {
			inst.data[f.Name] = value
		}
	}
	if inst.data[def.PrimaryKey] == nil {
		inst.data[def.PrimaryKey] = uuid.NewString()
	}
	if def.Timestamps {
		now := time.Now().UTC()
		inst.data[def.CreatedField] = now
		inst.data[def.UpdatedField] = now
	}

	if err := runHook(ctx, def.Hooks.BeforeValidate, inst, nil); err != nil {
		return nil, err
	}
	v := &validator{db: m.reg.db, def: def}
	if err := v.validate(ctx, inst.data, nil, nil); err != nil {
		return nil, err
	}
	if err := runHook(ctx, def.Hooks.AfterValidate, inst, nil); err != nil {
		return nil, err
	}
	if err := runHook(ctx, def.Hooks.BeforeCreate, inst, nil); err != nil {
		return nil, err
	}
	if err := runHook(ctx, def.Hooks.BeforeSave, inst, nil); err != nil {
		return nil, err
	}

	result, err := m.reg.db.Execute(ctx, adapter.OpInsert, def.Collection, inst.ToMap(), nil)
	if err != nil {
		return nil, err
	}
	if result.InsertedID != nil {
		inst.data[def.PrimaryKey] = result.InsertedID
	}
	m.invalidate(ctx, result.Affected)

	if err := runHook(ctx, def.Hooks.AfterCreate, inst, nil); err != nil {
		return nil, err
	}
	if err := runHook(ctx, def.Hooks.AfterSave, inst, nil); err != nil {
		return nil, err
	}
	return inst, nil
}

// Update applies a partial change set to the record with the given primary
// key. Only the touched fields are validated; uniqueness excludes the record
// itself. Returns the updated instance.
func (m *Model) Update(ctx context.Context, id any, changes map[string]any) (*Instance, error) {
	def := m.def

	inst, err := m.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	payload := make(map[string]any, len(changes)+1)
	for k, v := range changes {
		inst.Set(k, v)
		// Set transforms apply before persistence, so the payload carries the
		// stored form.
		payload[k] = inst.data[k]
	}
	if def.Timestamps {
		now := time.Now().UTC()
		inst.data[def.UpdatedField] = now
		payload[def.UpdatedField] = now
	}

	if err := runHook(ctx, def.Hooks.BeforeValidate, inst, payload); err != nil {
		return nil, err
	}
	fields := make(map[string]struct{}, len(payload))
	for k := range payload {
		fields[k] = struct{}{}
	}
	v := &validator{db: m.reg.db, def: def}
	if err := v.validate(ctx, inst.data, fields, nil); err != nil {
		return nil, err
	}
	// Validation may have normalized values in place.
	for k := range payload {
		payload[k] = inst.data[k]
	}
	if err := runHook(ctx, def.Hooks.AfterValidate, inst, payload); err != nil {
		return nil, err
	}
	if err := runHook(ctx, def.Hooks.BeforeUpdate, inst, payload); err != nil {
		return nil, err
	}
	if err := runHook(ctx, def.Hooks.BeforeSave, inst, payload); err != nil {
		return nil, err
	}

	result, err := m.reg.db.Execute(ctx, adapter.OpUpdate, def.Collection, payload,
		adapter.Eq{Field: def.PrimaryKey, Value: id})
	if err != nil {
		return nil, err
	}
	m.invalidate(ctx, result.Affected)

	if err := runHook(ctx, def.Hooks.AfterUpdate, inst, nil); err != nil {
		return nil, err
	}
	if err := runHook(ctx, def.Hooks.AfterSave, inst, nil); err != nil {
		return nil, err
	}
	return inst, nil
}

// Save persists every stored field of inst as a full update keyed by its
// primary key.
func (m *Model) Save(ctx context.Context, inst *Instance) error {
	id := inst.PrimaryKey()
	changes := inst.ToMap()
	delete(changes, m.def.PrimaryKey)
	_, err := m.Update(ctx, id, changes)
	return err
}

// Delete removes the record with the given primary key. On a soft-delete
// model it sets the marker instead, skipping records already marked, so
// deleting twice affects zero records the second time. Returns the affected
// count.
func (m *Model) Delete(ctx context.Context, id any) (int64, error) {
	def := m.def

	if !def.SoftDelete {
		return m.ForceDelete(ctx, id)
	}

	filter := adapter.And{Exprs: []adapter.Expr{
		adapter.Eq{Field: def.PrimaryKey, Value: id},
		adapter.IsNull{Field: def.DeletedField},
	}}
	payload := map[string]any{def.DeletedField: time.Now().UTC()}
	if def.Timestamps {
		payload[def.UpdatedField] = time.Now().UTC()
	}
	result, err := m.reg.db.Execute(ctx, adapter.OpUpdate, def.Collection, payload, filter)
	if err != nil {
		return 0, err
	}
	m.invalidate(ctx, result.Affected)
	return result.Affected, nil
}

// Restore clears the soft-delete marker of a trashed record. Restoring a
// record that is not trashed affects zero records.
func (m *Model) Restore(ctx context.Context, id any) (int64, error) {
	def := m.def
	if !def.SoftDelete {
		return 0, nil
	}

	filter := adapter.And{Exprs: []adapter.Expr{
		adapter.Eq{Field: def.PrimaryKey, Value: id},
		adapter.NotNull{Field: def.DeletedField},
	}}
	payload := map[string]any{def.DeletedField: nil}
	if def.Timestamps {
		payload[def.UpdatedField] = time.Now().UTC()
	}
	result, err := m.reg.db.Execute(ctx, adapter.OpUpdate, def.Collection, payload, filter)
	if err != nil {
		return 0, err
	}
	m.invalidate(ctx, result.Affected)
	return result.Affected, nil
}

// ForceDelete removes the record physically, marker or not.
func (m *Model) ForceDelete(ctx context.Context, id any) (int64, error) {
	def := m.def
	result, err := m.reg.db.Execute(ctx, adapter.OpDelete, def.Collection, nil,
		adapter.Eq{Field: def.PrimaryKey, Value: id})
	if err != nil {
		return 0, err
	}
	m.invalidate(ctx, result.Affected)
	return result.Affected, nil
}

// invalidate drops every cached read of this collection after a write that
// touched at least one record.
func (m *Model) invalidate(ctx context.Context, affected int64) {
	if m.reg.cache == nil || affected < 1 {
		return
	}
	if err := m.reg.cache.DeleteByTags(ctx, cacheTag(m.def.Collection)); err != nil {
		m.reg.warnf("cache invalidation failed", err, map[string]any{"collection": m.def.Collection})
	}
}
