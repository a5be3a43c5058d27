package sqltools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// ErrTableNotFound is returned by a Dialect when the named table does not
// exist.
var ErrTableNotFound = errors.New("table not found")

// Dialect knows how to introspect one database engine.
type Dialect interface {
	// Name returns the database/sql driver name the dialect serves.
	Name() string
	// ListTables returns user table names sorted by name.
	ListTables(ctx context.Context, db *sqlx.DB) ([]string, error)
	// TableDDL returns the structural definition of table as DDL text.
	TableDDL(ctx context.Context, db *sqlx.DB, table string) (string, error)
}

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "pgx", "postgres":
		return Postgres{Schema: "public"}, nil
	}
	return nil, fmt.Errorf("sqltools: no dialect for driver %q", driver)
}

// SQLite reads DDL straight from sqlite_master.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) ListTables(ctx context.Context, db *sqlx.DB) ([]string, error) {
	var names []string
	err := db.SelectContext(ctx, &names,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

func (SQLite) TableDDL(ctx context.Context, db *sqlx.DB, table string) (string, error) {
	var ddl sql.NullString
	err := db.GetContext(ctx, &ddl,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`, table)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTableNotFound
	}
	if err != nil {
		return "", fmt.Errorf("describe %s: %w", table, err)
	}
	return ddl.String, nil
}

// Postgres renders CREATE TABLE statements from information_schema.
type Postgres struct {
	Schema string
}

func (Postgres) Name() string { return "pgx" }

func (p Postgres) schema() string {
	if p.Schema == "" {
		return "public"
	}
	return p.Schema
}

func (p Postgres) ListTables(ctx context.Context, db *sqlx.DB) ([]string, error) {
	var names []string
	err := db.SelectContext(ctx, &names,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		 ORDER BY table_name`, p.schema())
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

type pgColumn struct {
	Name     string         `db:"column_name"`
	DataType string         `db:"data_type"`
	Nullable string         `db:"is_nullable"`
	Default  sql.NullString `db:"column_default"`
}

func (p Postgres) TableDDL(ctx context.Context, db *sqlx.DB, table string) (string, error) {
	var cols []pgColumn
	err := db.SelectContext(ctx, &cols,
		`SELECT column_name, data_type, is_nullable, column_default
		 FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`, p.schema(), table)
	if err != nil {
		return "", fmt.Errorf("describe %s: %w", table, err)
	}
	if len(cols) == 0 {
		return "", ErrTableNotFound
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", table)
	for i, c := range cols {
		fmt.Fprintf(&b, "\t%s %s", c.Name, c.DataType)
		if c.Nullable == "NO" {
			b.WriteString(" NOT NULL")
		}
		if c.Default.Valid {
			fmt.Fprintf(&b, " DEFAULT %s", c.Default.String)
		}
		if i < len(cols)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(");")

	return b.String(), nil
}
