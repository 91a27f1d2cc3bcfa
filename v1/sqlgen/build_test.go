package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polystore/polystore/v1/adapter"
)

func TestBuildSelect_Minimal(t *testing.T) {
	stmt, err := BuildSelect(Postgres, "users", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users"`, stmt.SQL)
	assert.Empty(t, stmt.Args)
}

func TestBuildSelect_FullOptions(t *testing.T) {
	opts := &adapter.QueryOptions{
		Projection: []string{"id", "name"},
		Sort:       []adapter.SortField{{Field: "name"}, {Field: "created_at", Desc: true}},
		Skip:       10,
		Limit:      5,
	}
	stmt, err := BuildSelect(Postgres, "users", adapter.Eq{Field: "active", Value: true}, opts)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "id", "name" FROM "users" WHERE "active" = $1 ORDER BY "name" ASC, "created_at" DESC LIMIT 5 OFFSET 10`,
		stmt.SQL)
	assert.Equal(t, []any{true}, stmt.Args)
}

func TestBuildSelect_SchemaQualifiedTable(t *testing.T) {
	stmt, err := BuildSelect(Postgres, "audit.events", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "audit"."events"`, stmt.SQL)
}

func TestBuildSelect_MySQLOffsetWithoutLimit(t *testing.T) {
	stmt, err := BuildSelect(MySQL, "users", nil, &adapter.QueryOptions{Skip: 7})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "LIMIT 18446744073709551615 OFFSET 7")
}

func TestBuildSelect_SQLiteOffsetWithoutLimit(t *testing.T) {
	stmt, err := BuildSelect(SQLite, "users", nil, &adapter.QueryOptions{Skip: 7})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "LIMIT -1 OFFSET 7")
}

func TestBuildInsert_SortsColumns(t *testing.T) {
	stmt, err := BuildInsert(Postgres, "users", map[string]any{
		"name": "ada",
		"age":  36,
		"id":   "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "users" ("age", "id", "name") VALUES ($1, $2, $3)`, stmt.SQL)
	assert.Equal(t, []any{36, "u1", "ada"}, stmt.Args)
}

func TestBuildInsert_RejectsEmpty(t *testing.T) {
	_, err := BuildInsert(Postgres, "users", nil)
	assert.Error(t, err)
}

func TestBuildUpdate_ArgsOrderSetThenFilter(t *testing.T) {
	stmt, err := BuildUpdate(Postgres, "users",
		map[string]any{"name": "ada", "age": 37},
		adapter.Eq{Field: "id", Value: "u1"})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "users" SET "age" = $1, "name" = $2 WHERE "id" = $3`, stmt.SQL)
	assert.Equal(t, []any{37, "ada", "u1"}, stmt.Args)
}

func TestBuildUpdate_NoFilter(t *testing.T) {
	stmt, err := BuildUpdate(MySQL, "users", map[string]any{"active": false}, nil)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE `users` SET `active` = ?", stmt.SQL)
	assert.Equal(t, []any{false}, stmt.Args)
}

func TestBuildDelete(t *testing.T) {
	stmt, err := BuildDelete(SQLite, "users", adapter.In{Field: "id", Values: []any{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "users" WHERE "id" IN (?, ?)`, stmt.SQL)
	assert.Equal(t, []any{"a", "b"}, stmt.Args)
}

func TestBuildDelete_NoFilter(t *testing.T) {
	stmt, err := BuildDelete(Postgres, "users", nil)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "users"`, stmt.SQL)
}

func TestValidateIdent(t *testing.T) {
	assert.NoError(t, ValidateIdent("users"))
	assert.NoError(t, ValidateIdent("_private"))
	assert.Error(t, ValidateIdent(""))
	assert.Error(t, ValidateIdent("1abc"))
	assert.Error(t, ValidateIdent("users; DROP"))
	long := make([]byte, maxIdentifierLength+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, ValidateIdent(string(long)))
}
