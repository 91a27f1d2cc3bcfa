package model

import (
	"reflect"

	"github.com/polystore/polystore/v1/adapter"
)

// Instance is one materialized record of a model: schema fields copied from
// a raw row with Get transforms applied on access, plus virtual fields
// computed on demand and never stored.
type Instance struct {
	def  *Definition
	data map[string]any
}

func newInstance(def *Definition, data map[string]any) *Instance {
	copied := make(map[string]any, len(data))
	for k, v := range data {
		copied[k] = v
	}
	return &Instance{def: def, data: copied}
}

// materialize builds an instance from a raw adapter row.
func materialize(def *Definition, row adapter.Row) *Instance {
	return newInstance(def, map[string]any(row))
}

// Get returns a field value. Virtual fields win over stored ones and are
// recomputed on every call; a stored field passes through its Get transform
// when declared.
func (i *Instance) Get(name string) any {
	if virtual, ok := i.def.Virtuals[name]; ok {
		return virtual(i)
	}
	value := i.data[name]
	if f, ok := i.def.field(name); ok && f.Get != nil {
		return f.Get(value)
	}
	return value
}

// Set stores a field value, passing it through the field's Set transform
// when declared. Virtual fields cannot be set.
func (i *Instance) Set(name string, value any) {
	if _, isVirtual := i.def.Virtuals[name]; isVirtual {
		return
	}
	if f, ok := i.def.field(name); ok && f.Set != nil {
		value = f.Set(value)
	}
	i.data[name] = value
}

// Raw returns the stored value bypassing transforms and virtuals.
func (i *Instance) Raw(name string) any {
	return i.data[name]
}

// PrimaryKey returns the stored primary-key value.
func (i *Instance) PrimaryKey() any {
	return i.data[i.def.PrimaryKey]
}

// IsTrashed reports whether the soft-delete marker is set.
func (i *Instance) IsTrashed() bool {
	if !i.def.SoftDelete {
		return false
	}
	return i.data[i.def.DeletedField] != nil
}

// ToMap copies the stored fields. Virtuals are not included; they are
// derived, not data.
func (i *Instance) ToMap() map[string]any {
	out := make(map[string]any, len(i.data))
	for k, v := range i.data {
		out[k] = v
	}
	return out
}

// snapshot is a shallow copy used by the hook dispatcher for change
// detection.
func (i *Instance) snapshot() map[string]any {
	return i.ToMap()
}

// changedSince diffs the live data against a snapshot and returns the
// changed key set. Values are compared with reflect.DeepEqual since fields
// may hold slices and maps, which interface equality would panic on.
func (i *Instance) changedSince(snapshot map[string]any) map[string]any {
	var changed map[string]any
	for k, v := range i.data {
		if prev, ok := snapshot[k]; !ok || !reflect.DeepEqual(prev, v) {
			if changed == nil {
				changed = make(map[string]any)
			}
			changed[k] = v
		}
	}
	for k := range snapshot {
		if _, still := i.data[k]; !still {
			if changed == nil {
				changed = make(map[string]any)
			}
			changed[k] = nil
		}
	}
	return changed
}
