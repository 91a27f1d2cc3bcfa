package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polystore/polystore/v1/cache"
	"github.com/polystore/polystore/v1/logger"
)

func userDefinition() *Definition {
	return &Definition{
		Collection: "users",
		SoftDelete: true,
		Timestamps: true,
		Fields: []FieldDef{
			{Name: "id", Type: TypeString},
			{Name: "name", Type: TypeString, Rules: &Rules{Required: true, Trim: true}},
			{Name: "email", Type: TypeString, Rules: &Rules{Format: "email", Unique: true}},
			{Name: "role", Type: TypeString, Default: "member"},
			{Name: "age", Type: TypeInt, Rules: &Rules{Min: floatPtr(0)}},
		},
	}
}

func testRegistry(t *testing.T, db *fakeAdapter, withCache bool) *Registry {
	t.Helper()
	var c cache.Client
	if withCache {
		mem := cache.NewMemory(cache.Config{})
		t.Cleanup(func() { _ = mem.Close() })
		c = mem
	}
	reg := NewRegistry(db, c, logger.NewNop())
	require.NoError(t, reg.Register(userDefinition()))
	return reg
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := testRegistry(t, newFakeAdapter(), false)

	m, err := reg.Model("users")
	require.NoError(t, err)
	assert.Same(t, m, reg.MustModel("users"))

	_, err = reg.Model("ghosts")
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.Panics(t, func() { reg.MustModel("ghosts") })

	err = reg.Register(userDefinition())
	assert.Error(t, err)
}

func TestCreateFillsDefaultsKeyAndTimestamps(t *testing.T) {
	db := newFakeAdapter()
	reg := testRegistry(t, db, false)
	m := reg.MustModel("users")

	inst, err := m.Create(context.Background(), map[string]any{
		"name":  "  Ada  ",
		"email": "ada@example.com",
	})
	require.NoError(t, err)

	id, ok := inst.PrimaryKey().(string)
	require.True(t, ok)
	_, err = uuid.Parse(id)
	assert.NoError(t, err, "absent primary key is filled with a UUID")

	assert.Equal(t, "Ada", inst.Raw("name"), "trim rewrote the stored value")
	assert.Equal(t, "member", inst.Raw("role"), "default applied")
	assert.IsType(t, time.Time{}, inst.Raw("created_at"))
	assert.IsType(t, time.Time{}, inst.Raw("updated_at"))

	found, err := m.Find(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", found.Raw("email"))
}

func TestCreateValidationFailure(t *testing.T) {
	reg := testRegistry(t, newFakeAdapter(), false)
	m := reg.MustModel("users")

	_, err := m.Create(context.Background(), map[string]any{"email": "ada@example.com"})
	assertRule(t, err, "name", "required")

	_, err = m.Create(context.Background(), map[string]any{"name": "Ada", "email": "nope"})
	assertRule(t, err, "email", "format")
}

func TestCreateUniqueAcrossRecords(t *testing.T) {
	reg := testRegistry(t, newFakeAdapter(), false)
	m := reg.MustModel("users")

	_, err := m.Create(context.Background(), map[string]any{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)

	_, err = m.Create(context.Background(), map[string]any{"name": "Imposter", "email": "ada@example.com"})
	assertRule(t, err, "email", "unique")
}

func TestFindNotFound(t *testing.T) {
	reg := testRegistry(t, newFakeAdapter(), false)
	m := reg.MustModel("users")

	_, err := m.Find(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestQueryShaping(t *testing.T) {
	db := newFakeAdapter()
	reg := testRegistry(t, db, false)
	m := reg.MustModel("users")

	ctx := context.Background()
	for i, name := range []string{"ada", "grace", "edsger", "barbara"} {
		_, err := m.Create(ctx, map[string]any{
			"name":  name,
			"email": fmt.Sprintf("%s@example.com", name),
			"age":   30 + i,
		})
		require.NoError(t, err)
	}

	all, err := m.Query().OrderBy("age", true).Limit(2).All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "barbara", all[0].Raw("name"))
	assert.Equal(t, "edsger", all[1].Raw("name"))

	n, err := m.Query().Where(map[string]any{"age": map[string]any{"$gte": 32}}).Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	liked, err := m.Query().Like("name", "a%").All(ctx)
	require.NoError(t, err)
	require.Len(t, liked, 1)
	assert.Equal(t, "ada", liked[0].Raw("name"))

	either, err := m.Query().
		Where(map[string]any{"name": "ada"}).
		OrWhere(map[string]any{"name": "grace"}).
		AndWhere(map[string]any{"age": 31}).
		All(ctx)
	require.NoError(t, err)
	assert.Len(t, either, 2)

	projected, err := m.Query().Select("name").OrderBy("name", false).Limit(1).All(ctx)
	require.NoError(t, err)
	require.Len(t, projected, 1)
	assert.Nil(t, projected[0].Raw("email"))
}

func TestQueryCacheCoherence(t *testing.T) {
	db := newFakeAdapter()
	reg := testRegistry(t, db, true)
	m := reg.MustModel("users")
	ctx := context.Background()

	_, err := m.Create(ctx, map[string]any{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)

	pred := map[string]any{"role": "member"}
	before := db.queryCount()

	first, err := m.Query().Where(pred).All(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, before+1, db.queryCount())

	// Second identical read is served from the cache.
	second, err := m.Query().Where(pred).All(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, before+1, db.queryCount())

	// A write invalidates the collection tag, so the next read goes back to
	// storage and sees the new record.
	_, err = m.Create(ctx, map[string]any{"name": "Grace", "email": "grace@example.com"})
	require.NoError(t, err)

	third, err := m.Query().Where(pred).All(ctx)
	require.NoError(t, err)
	assert.Len(t, third, 2)
}

func TestQueryNoCacheBypasses(t *testing.T) {
	db := newFakeAdapter()
	reg := testRegistry(t, db, true)
	m := reg.MustModel("users")
	ctx := context.Background()

	_, err := m.Create(ctx, map[string]any{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)

	before := db.queryCount()
	for i := 0; i < 3; i++ {
		_, err := m.Query().NoCache().All(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, before+3, db.queryCount())
}

func TestSoftDeleteLifecycle(t *testing.T) {
	db := newFakeAdapter()
	reg := testRegistry(t, db, false)
	m := reg.MustModel("users")
	ctx := context.Background()

	inst, err := m.Create(ctx, map[string]any{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)
	id := inst.PrimaryKey()

	affected, err := m.Delete(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	_, err = m.Find(ctx, id)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	trashed, err := m.Query().Where(id).OnlyTrashed().Get(ctx)
	require.NoError(t, err)
	assert.True(t, trashed.IsTrashed())

	all, err := m.Query().Where(id).WithTrashed().All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Deleting again touches nothing: the marker filter excludes records
	// already marked.
	affected, err = m.Delete(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, affected)

	affected, err = m.Restore(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	restored, err := m.Find(ctx, id)
	require.NoError(t, err)
	assert.False(t, restored.IsTrashed())

	affected, err = m.ForceDelete(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	_, err = m.Query().Where(id).WithTrashed().Get(ctx)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestUpdatePartialValidation(t *testing.T) {
	db := newFakeAdapter()
	reg := testRegistry(t, db, false)
	m := reg.MustModel("users")
	ctx := context.Background()

	inst, err := m.Create(ctx, map[string]any{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)
	id := inst.PrimaryKey()

	// Re-saving the record's own email does not trip uniqueness.
	updated, err := m.Update(ctx, id, map[string]any{"email": "ada@example.com", "age": 36})
	require.NoError(t, err)
	assert.Equal(t, 36, updated.Raw("age"))

	_, err = m.Update(ctx, id, map[string]any{"age": -1})
	assertRule(t, err, "age", "min")

	_, err = m.Update(ctx, "missing", map[string]any{"age": 1})
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSavePersistsInstance(t *testing.T) {
	db := newFakeAdapter()
	reg := testRegistry(t, db, false)
	m := reg.MustModel("users")
	ctx := context.Background()

	inst, err := m.Create(ctx, map[string]any{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)

	inst.Set("age", 40)
	require.NoError(t, m.Save(ctx, inst))

	found, err := m.Find(ctx, inst.PrimaryKey())
	require.NoError(t, err)
	assert.Equal(t, 40, found.Raw("age"))
}

func TestHookOrderAndMutation(t *testing.T) {
	db := newFakeAdapter()
	var order []string
	record := func(name string) HookFunc {
		return func(ctx context.Context, inst *Instance) error {
			order = append(order, name)
			return nil
		}
	}

	def := userDefinition()
	def.Hooks = Hooks{
		BeforeValidate: record("beforeValidate"),
		AfterValidate:  record("afterValidate"),
		BeforeCreate: func(ctx context.Context, inst *Instance) error {
			order = append(order, "beforeCreate")
			inst.Set("role", "admin")
			return nil
		},
		BeforeSave:  record("beforeSave"),
		AfterCreate: record("afterCreate"),
		AfterSave:   record("afterSave"),
	}
	reg := NewRegistry(db, nil, logger.NewNop())
	require.NoError(t, reg.Register(def))
	m := reg.MustModel("users")

	inst, err := m.Create(context.Background(), map[string]any{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"beforeValidate", "afterValidate", "beforeCreate", "beforeSave", "afterCreate", "afterSave",
	}, order)

	// The beforeCreate mutation made it into the stored record.
	found, err := m.Find(context.Background(), inst.PrimaryKey())
	require.NoError(t, err)
	assert.Equal(t, "admin", found.Raw("role"))
}

func TestUpdateHookChangesMergeIntoPayload(t *testing.T) {
	db := newFakeAdapter()
	def := userDefinition()
	def.Hooks = Hooks{
		BeforeUpdate: func(ctx context.Context, inst *Instance) error {
			inst.Set("role", "auditor")
			return nil
		},
	}
	reg := NewRegistry(db, nil, logger.NewNop())
	require.NoError(t, reg.Register(def))
	m := reg.MustModel("users")
	ctx := context.Background()

	inst, err := m.Create(ctx, map[string]any{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)

	_, err = m.Update(ctx, inst.PrimaryKey(), map[string]any{"age": 36})
	require.NoError(t, err)

	found, err := m.Find(ctx, inst.PrimaryKey())
	require.NoError(t, err)
	assert.Equal(t, "auditor", found.Raw("role"), "hook change rode along with the update payload")
	assert.Equal(t, 36, found.Raw("age"))
}

func TestUpdateHooksTolerateUncomparableFields(t *testing.T) {
	db := newFakeAdapter()
	def := userDefinition()
	def.Fields = append(def.Fields,
		FieldDef{Name: "tags", Type: TypeArray},
		FieldDef{Name: "settings", Type: TypeMap},
	)
	def.Hooks = Hooks{
		BeforeUpdate: func(ctx context.Context, inst *Instance) error {
			inst.Set("role", "auditor")
			return nil
		},
	}
	reg := NewRegistry(db, nil, logger.NewNop())
	require.NoError(t, reg.Register(def))
	m := reg.MustModel("users")
	ctx := context.Background()

	inst, err := m.Create(ctx, map[string]any{
		"name":     "Ada",
		"email":    "ada@example.com",
		"tags":     []any{"math", "engines"},
		"settings": map[string]any{"theme": "dark"},
	})
	require.NoError(t, err)

	// Change detection diffs every stored field, so slice and map values
	// must survive the comparison rather than blow up on interface equality.
	updated, err := m.Update(ctx, inst.PrimaryKey(), map[string]any{"age": 36})
	require.NoError(t, err)
	assert.Equal(t, "auditor", updated.Raw("role"))
	assert.Equal(t, 36, updated.Raw("age"))

	found, err := m.Find(ctx, inst.PrimaryKey())
	require.NoError(t, err)
	assert.Equal(t, []any{"math", "engines"}, found.Raw("tags"))
}

func TestHookFailureAborts(t *testing.T) {
	db := newFakeAdapter()
	def := userDefinition()
	boom := errors.New("nope")
	def.Hooks = Hooks{
		BeforeCreate: func(ctx context.Context, inst *Instance) error { return boom },
	}
	reg := NewRegistry(db, nil, logger.NewNop())
	require.NoError(t, reg.Register(def))
	m := reg.MustModel("users")

	_, err := m.Create(context.Background(), map[string]any{"name": "Ada", "email": "a@example.com"})
	assert.ErrorIs(t, err, boom)

	n, err := m.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing was written")
}

func TestRegistryTransactionBindsOperations(t *testing.T) {
	db := newFakeAdapter()
	reg := testRegistry(t, db, true)
	ctx := context.Background()

	err := reg.Transaction(ctx, func(ctx context.Context, tx *Registry) error {
		m := tx.MustModel("users")
		_, err := m.Create(ctx, map[string]any{"name": "Ada", "email": "ada@example.com"})
		return err
	})
	require.NoError(t, err)

	n, err := reg.MustModel("users").Count(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRegistryTransactionBypassesCache(t *testing.T) {
	db := newFakeAdapter()
	reg := testRegistry(t, db, true)
	ctx := context.Background()

	_, err := reg.MustModel("users").Create(ctx, map[string]any{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)

	err = reg.Transaction(ctx, func(ctx context.Context, tx *Registry) error {
		m := tx.MustModel("users")
		before := db.queryCount()
		for i := 0; i < 2; i++ {
			if _, err := m.Query().All(ctx); err != nil {
				return err
			}
		}
		assert.Equal(t, before+2, db.queryCount(), "tx reads never touch the cache")
		return nil
	})
	require.NoError(t, err)
}
