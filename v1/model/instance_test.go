package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polystore/polystore/v1/adapter"
)

func instanceDefinition() *Definition {
	def := &Definition{
		Collection: "accounts",
		Fields: []FieldDef{
			{Name: "id", Type: TypeString},
			{Name: "email", Type: TypeString, Set: func(v any) any {
				if s, ok := v.(string); ok {
					return strings.ToLower(s)
				}
				return v
			}},
			{Name: "balance_cents", Type: TypeInt, Get: func(v any) any {
				if cents, ok := v.(int); ok {
					return float64(cents) / 100
				}
				return v
			}},
		},
		Virtuals: map[string]VirtualFunc{
			"label": func(inst *Instance) any {
				return "account " + inst.Raw("id").(string)
			},
		},
	}
	def.withDefaults()
	return def
}

func TestInstanceTransforms(t *testing.T) {
	def := instanceDefinition()
	inst := materialize(def, adapter.Row{"id": "a1", "balance_cents": 2550})

	assert.Equal(t, 25.5, inst.Get("balance_cents"), "Get transform applies on access")
	assert.Equal(t, 2550, inst.Raw("balance_cents"), "Raw bypasses transforms")

	inst.Set("email", "Ada@Example.COM")
	assert.Equal(t, "ada@example.com", inst.Raw("email"), "Set transform applies on store")
}

func TestInstanceVirtuals(t *testing.T) {
	def := instanceDefinition()
	inst := materialize(def, adapter.Row{"id": "a1"})

	assert.Equal(t, "account a1", inst.Get("label"))

	// Virtuals are derived: not settable, not part of the stored map.
	inst.Set("label", "x")
	_, stored := inst.ToMap()["label"]
	assert.False(t, stored)
}

func TestInstanceChangedSince(t *testing.T) {
	def := instanceDefinition()
	inst := materialize(def, adapter.Row{"id": "a1", "balance_cents": 100})

	snap := inst.snapshot()
	assert.Empty(t, inst.changedSince(snap))

	inst.Set("balance_cents", 200)
	changed := inst.changedSince(snap)
	require.Len(t, changed, 1)
	assert.Equal(t, 200, changed["balance_cents"])
}

func TestInstanceToMapCopies(t *testing.T) {
	def := instanceDefinition()
	inst := materialize(def, adapter.Row{"id": "a1"})

	m := inst.ToMap()
	m["id"] = "tampered"
	assert.Equal(t, "a1", inst.Raw("id"))
}
