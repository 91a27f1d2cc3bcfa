package model

import (
	"fmt"
	"time"
)

// FieldType is the declared type of a schema field, used by the type check
// of the validation pipeline.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
	TypeTime   FieldType = "time"
	TypeArray  FieldType = "array"
	TypeMap    FieldType = "map"
	// TypeAny disables the type check.
	TypeAny FieldType = "any"
)

// FieldDef declares one persisted field of a model.
type FieldDef struct {
	Name string
	Type FieldType

	// Default fills the field on create when absent. DefaultFunc wins over
	// Default when both are set.
	Default     any
	DefaultFunc func() any

	// Rules is the declarative validation bag, nil for none.
	Rules *Rules

	// Get transforms the stored value on read; Set transforms the caller's
	// value before persistence. Either may be nil.
	Get func(value any) any
	Set func(value any) any
}

// VirtualFunc computes a virtual field from a materialized instance. The
// result is never persisted and is recomputed on every access.
type VirtualFunc func(inst *Instance) any

// Definition declares one model: its collection, primary key, soft-delete
// behavior, schema, virtual fields and lifecycle hooks.
type Definition struct {
	// Collection is the table or collection name.
	Collection string

	// PrimaryKey is the field holding the record identity. Defaults to "id".
	PrimaryKey string

	// SoftDelete switches Delete to marker semantics using DeletedField
	// (default "deleted_at").
	SoftDelete   bool
	DeletedField string

	// Timestamps stamps CreatedField/UpdatedField (default "created_at" /
	// "updated_at") on create and update.
	Timestamps   bool
	CreatedField string
	UpdatedField string

	// Fields in declaration order. Validation walks them in this order.
	Fields []FieldDef

	// Virtuals are computed accessors by name.
	Virtuals map[string]VirtualFunc

	// Hooks fire around writes, see Hooks.
	Hooks Hooks

	// CacheTTL overrides the cache client's default TTL when positive.
	CacheTTL time.Duration
}

// withDefaults fills the conventional field names.
func (d *Definition) withDefaults() {
	if d.PrimaryKey == "" {
		d.PrimaryKey = "id"
	}
	if d.DeletedField == "" {
		d.DeletedField = "deleted_at"
	}
	if d.CreatedField == "" {
		d.CreatedField = "created_at"
	}
	if d.UpdatedField == "" {
		d.UpdatedField = "updated_at"
	}
}

func (d *Definition) validate() error {
	if d.Collection == "" {
		return fmt.Errorf("model: definition requires a collection name")
	}
	seen := make(map[string]struct{}, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == "" {
			return fmt.Errorf("model: %s declares a field with no name", d.Collection)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("model: %s declares field %q twice", d.Collection, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// field looks up a field definition by name.
func (d *Definition) field(name string) (FieldDef, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// defaultValue resolves the create-time default for a field.
func (f FieldDef) defaultValue() (any, bool) {
	if f.DefaultFunc != nil {
		return f.DefaultFunc(), true
	}
	if f.Default != nil {
		return f.Default, true
	}
	return nil, false
}
