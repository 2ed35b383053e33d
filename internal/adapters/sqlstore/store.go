// Package sqlstore manages the relational tables the ingestion service
// writes, through database/sql with a SQLite, PostgreSQL or MySQL driver.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql" // registers "mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3"
)

// Store implements ports.TableStore.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects with driver "sqlite3", "pgx" or "mysql".
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "sqlite3", "pgx", "mysql":
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	return &Store{db: db, driver: driver}, nil
}

// New wraps an open handle.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// DropTable removes name if it exists.
func (s *Store) DropTable(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(s.driver, name)); err != nil {
		return fmt.Errorf("dropping table %s: %w", name, err)
	}
	return nil
}

// ListTables returns user table names, sorted.
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, listTablesQuery(s.driver))
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func listTablesQuery(driver string) string {
	switch driver {
	case "pgx":
		return `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`
	case "mysql":
		return `SELECT table_name FROM information_schema.tables
			WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`
	default:
		return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	}
}

// quoteIdent quotes an identifier for driver: backticks for MySQL, double
// quotes for SQLite and PostgreSQL.
func quoteIdent(driver, name string) string {
	if driver == "mysql" {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
