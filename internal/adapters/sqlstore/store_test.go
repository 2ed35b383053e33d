package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite3", filepath.Join(t.TempDir(), "tables.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_ListAndDrop(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	for _, stmt := range []string{
		`CREATE TABLE acme_2023 (revenue REAL)`,
		`CREATE TABLE "weird""name" (x INTEGER)`,
		`CREATE TABLE "财报_2023" (x INTEGER)`,
	} {
		_, err := s.db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	names, err := s.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme_2023", `weird"name`, "财报_2023"}, names)

	require.NoError(t, s.DropTable(ctx, `weird"name`))
	require.NoError(t, s.DropTable(ctx, "财报_2023"))
	require.NoError(t, s.DropTable(ctx, "never_existed"))

	names, err = s.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme_2023"}, names)
}

func TestStore_DropEmptyName(t *testing.T) {
	assert.Error(t, openTemp(t).DropTable(context.Background(), ""))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "dsn")
	assert.Error(t, err)
}

func TestOpen_MySQL(t *testing.T) {
	// sql.Open validates the DSN without connecting.
	s, err := Open("mysql", "tablerag:secret@tcp(127.0.0.1:3306)/tablerag")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "mysql", s.driver)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"a"`, quoteIdent("sqlite3", "a"))
	assert.Equal(t, `"a""b"`, quoteIdent("pgx", `a"b`))
	assert.Equal(t, "`acme_2023`", quoteIdent("mysql", "acme_2023"))
	assert.Equal(t, "`a``b`", quoteIdent("mysql", "a`b"))
	assert.Equal(t, "`财报_2023`", quoteIdent("mysql", "财报_2023"))
}

func TestListTablesQuery(t *testing.T) {
	assert.Contains(t, listTablesQuery("sqlite3"), "sqlite_master")
	assert.Contains(t, listTablesQuery("pgx"), "current_schema()")
	assert.Contains(t, listTablesQuery("mysql"), "DATABASE()")
}
