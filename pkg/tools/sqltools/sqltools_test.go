package sqltools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/germanamz/tabletalk/pkg/chats/content"
	"github.com/germanamz/tabletalk/pkg/tools/toolbox"
)

const usersDDL = `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT)`
const ordersDDL = `CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER NOT NULL, total REAL)`

// newShopDB opens an in-memory SQLite database with a users and orders table.
func newShopDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Every pooled connection would get its own in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	db.MustExec(usersDDL)
	db.MustExec(ordersDDL)
	db.MustExec(`INSERT INTO users (id, name, email) VALUES (1, 'ada', 'ada@example.com'), (2, 'linus', NULL)`)
	db.MustExec(`INSERT INTO orders (user_id, total) VALUES (1, 9.5), (1, 20), (2, 3.25)`)

	return db
}

func newSQL(t *testing.T, db *sqlx.DB, opts Options) *SQL {
	t.Helper()

	s, err := New(db, opts)
	require.NoError(t, err)
	return s
}

func TestTools_Catalog(t *testing.T) {
	s := newSQL(t, newShopDB(t), Options{})

	assert.Equal(t, []string{"run_query", "describe_tables", "list_tables"}, s.Tools().Names())
}

func TestRunQuery_Rows(t *testing.T) {
	s := newSQL(t, newShopDB(t), Options{})

	rows, err := s.RunQuery(context.Background(), `SELECT id, name, email FROM users ORDER BY id`)

	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{int64(1), "ada", "ada@example.com"},
		{int64(2), "linus", nil},
	}, rows)
}

func TestRunQuery_Count(t *testing.T) {
	s := newSQL(t, newShopDB(t), Options{})

	rows, err := s.RunQuery(context.Background(), `SELECT COUNT(*) FROM orders`)

	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(3)}}, rows)
}

func TestRunQuery_EmptyResultIsNotNil(t *testing.T) {
	s := newSQL(t, newShopDB(t), Options{})

	rows, err := s.RunQuery(context.Background(), `SELECT id FROM users WHERE id < 0`)

	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestRunQuery_MaxRows(t *testing.T) {
	s := newSQL(t, newShopDB(t), Options{MaxRows: 2})

	rows, err := s.RunQuery(context.Background(), `SELECT id FROM orders ORDER BY id`)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	res, err := s.Query(context.Background(), `SELECT id FROM orders ORDER BY id`)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 2, res.MaxRows)
}

func TestRunQueryTool_ReportsTruncation(t *testing.T) {
	s := newSQL(t, newShopDB(t), Options{MaxRows: 2})

	res := s.Tools().Call(context.Background(), content.ToolCall{
		ID:        "call_1",
		Name:      "run_query",
		Arguments: `{"query":"SELECT id FROM orders ORDER BY id"}`,
	})
	require.False(t, res.IsError)
	assert.JSONEq(t, `{"rows":[[1],[2]],"truncated":true,"max_rows":2}`, res.Content)

	// A result within the limit stays bare rows.
	res = s.Tools().Call(context.Background(), content.ToolCall{
		ID:        "call_2",
		Name:      "run_query",
		Arguments: `{"query":"SELECT COUNT(*) FROM orders"}`,
	})
	require.False(t, res.IsError)
	assert.Equal(t, "[[3]]", res.Content)
}

func TestRunQueryTool_ExactlyMaxRowsIsNotTruncated(t *testing.T) {
	s := newSQL(t, newShopDB(t), Options{MaxRows: 3})

	res, err := s.Query(context.Background(), `SELECT id FROM orders`)
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Len(t, res.Rows, 3)
}

func TestRunQuery_MalformedSurfacesAsToolExecutionError(t *testing.T) {
	s := newSQL(t, newShopDB(t), Options{})

	_, err := s.Tools().Invoke(context.Background(), "run_query", json.RawMessage(`{"query":"SELEC nonsense"}`))

	var exec *toolbox.ToolExecutionError
	require.ErrorAs(t, err, &exec)
	assert.Equal(t, "run_query", exec.Tool)
}

func TestRunQuery_ViaToolbox(t *testing.T) {
	s := newSQL(t, newShopDB(t), Options{})

	got, err := s.Tools().Invoke(context.Background(), "run_query", json.RawMessage(`{"query":"SELECT name FROM users WHERE id = 1"}`))

	require.NoError(t, err)
	assert.Equal(t, [][]any{{"ada"}}, got)
}

func TestDescribeTables_Single(t *testing.T) {
	s := newSQL(t, newShopDB(t), Options{})

	got, err := s.Tools().Invoke(context.Background(), "describe_tables", json.RawMessage(`{"table_names":["users"]}`))

	require.NoError(t, err)
	assert.Equal(t, usersDDL, got)
}

func TestDescribeTables_RequestOrder(t *testing.T) {
	s := newSQL(t, newShopDB(t), Options{})

	got, err := s.DescribeTables(context.Background(), []string{"orders", "users"})

	require.NoError(t, err)
	assert.Equal(t, ordersDDL+"\n\n"+usersDDL, got)
}

func TestDescribeTables_IgnoresCase(t *testing.T) {
	s := newSQL(t, newShopDB(t), Options{})

	_, err := s.RunQuery(context.Background(), `SELECT * FROM Users`)
	require.NoError(t, err)

	got, err := s.DescribeTables(context.Background(), []string{"Users"})
	require.NoError(t, err)
	assert.Equal(t, usersDDL, got)
}

func TestDescribeTables_Missing(t *testing.T) {
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	s := newSQL(t, db, Options{})

	_, err = s.Tools().Invoke(context.Background(), "describe_tables", json.RawMessage(`{"table_names":["users"]}`))

	var exec *toolbox.ToolExecutionError
	require.ErrorAs(t, err, &exec)
	assert.Contains(t, err.Error(), `table "users" does not exist`)
}

func TestDescribeTables_WrongArgumentType(t *testing.T) {
	s := newSQL(t, newShopDB(t), Options{})

	_, err := s.Tools().Invoke(context.Background(), "describe_tables", json.RawMessage(`{"table_names":"users"}`))

	var ave *toolbox.ArgumentValidationError
	require.ErrorAs(t, err, &ave)
	assert.Equal(t, "table_names", ave.Field)
}

func TestDescribeTables_Cache(t *testing.T) {
	db := newShopDB(t)
	s := newSQL(t, db, Options{CacheSize: 4})

	first, err := s.DescribeTables(context.Background(), []string{"users"})
	require.NoError(t, err)

	// The cached definition survives the table being dropped.
	db.MustExec(`DROP TABLE users`)

	second, err := s.DescribeTables(context.Background(), []string{"users"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestListTables(t *testing.T) {
	s := newSQL(t, newShopDB(t), Options{})

	got, err := s.Tools().Invoke(context.Background(), "list_tables", nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, got)
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	d, err = DialectFor("pgx")
	require.NoError(t, err)
	assert.Equal(t, "pgx", d.Name())

	_, err = DialectFor("oracle")
	assert.ErrorContains(t, err, `no dialect for driver "oracle"`)
}
