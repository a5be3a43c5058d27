// Package sqltools provides the database tools: run_query executes read
// queries and returns rows verbatim, describe_tables returns schema DDL and
// list_tables enumerates the tables an agent can query.
package sqltools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"

	"github.com/germanamz/tabletalk/pkg/tools/toolbox"
)

// Options tunes the SQL tools.
type Options struct {
	MaxRows   int // Truncate query results after this many rows (0 = unlimited).
	CacheSize int // Number of table definitions to cache (0 = no cache).
}

// SQL exposes a database as agent tools.
type SQL struct {
	db      *sqlx.DB
	dialect Dialect
	maxRows int
	cache   *lru.Cache[string, string]
}

// New creates the SQL tools over db. The dialect is picked from the driver
// name db was opened with.
func New(db *sqlx.DB, opts Options) (*SQL, error) {
	dialect, err := DialectFor(db.DriverName())
	if err != nil {
		return nil, err
	}
	return NewWithDialect(db, dialect, opts)
}

// NewWithDialect creates the SQL tools with an explicit dialect.
func NewWithDialect(db *sqlx.DB, dialect Dialect, opts Options) (*SQL, error) {
	s := &SQL{
		db:      db,
		dialect: dialect,
		maxRows: opts.MaxRows,
	}

	if opts.CacheSize > 0 {
		cache, err := lru.New[string, string](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("sqltools: schema cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

// Tools returns a ToolBox containing run_query, describe_tables and
// list_tables.
func (s *SQL) Tools() *toolbox.ToolBox {
	return toolbox.New().MustRegister(s.runQueryTool(), s.describeTablesTool(), s.listTablesTool())
}

// --- run_query ---

func (s *SQL) runQueryTool() toolbox.Tool {
	return toolbox.Tool{
		Name:        "run_query",
		Description: "Run a read-only SQL query against the database and return the resulting rows. Each row is a list of column values in select order. Large results come back as {rows, truncated, max_rows}; aggregate in SQL instead of counting rows.",
		Schema: toolbox.Schema{
			{Name: "query", Type: toolbox.TypeString, Required: true, Description: "The SQL query to execute"},
		},
		Handler: func(ctx context.Context, args toolbox.Args) (any, error) {
			res, err := s.Query(ctx, args.String("query"))
			if err != nil {
				return nil, err
			}
			// Bare rows unless some were dropped, so the model never mistakes
			// a partial result for the whole.
			if res.Truncated {
				return res, nil
			}
			return res.Rows, nil
		},
	}
}

// QueryResult is a query's rows and whether max_rows cut them short.
type QueryResult struct {
	Rows      [][]any `json:"rows"`
	Truncated bool    `json:"truncated"`
	MaxRows   int     `json:"max_rows,omitempty"`
}

// RunQuery executes query and returns its rows, at most max_rows of them.
// Use Query to learn whether rows were dropped.
func (s *SQL) RunQuery(ctx context.Context, query string) ([][]any, error) {
	res, err := s.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Query executes query. Byte slices are returned as strings so results
// encode as readable JSON. Query errors are returned as is; the toolbox
// wraps them for the model.
func (s *SQL) Query(ctx context.Context, query string) (QueryResult, error) {
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return QueryResult{}, err
	}
	defer func() { _ = rows.Close() }()

	res := QueryResult{Rows: [][]any{}}
	for rows.Next() {
		if s.maxRows > 0 && len(res.Rows) >= s.maxRows {
			res.Truncated = true
			res.MaxRows = s.maxRows
			break
		}

		row, err := rows.SliceScan()
		if err != nil {
			return QueryResult{}, err
		}
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, err
	}

	if res.Truncated {
		slog.WarnContext(ctx, "query result truncated", "max_rows", s.maxRows)
	}

	return res, nil
}

// --- describe_tables ---

func (s *SQL) describeTablesTool() toolbox.Tool {
	return toolbox.Tool{
		Name:        "describe_tables",
		Description: "Return the schema definition (CREATE TABLE statement) of each named table, in the order requested.",
		Schema: toolbox.Schema{
			{Name: "table_names", Type: toolbox.TypeStringArray, Required: true, Description: "Names of the tables to describe"},
		},
		Handler: func(ctx context.Context, args toolbox.Args) (any, error) {
			return s.DescribeTables(ctx, args.Strings("table_names"))
		},
	}
}

// DescribeTables returns the DDL of each table joined by a blank line. It
// fails if any table does not exist.
func (s *SQL) DescribeTables(ctx context.Context, names []string) (string, error) {
	defs := make([]string, 0, len(names))
	for _, name := range names {
		ddl, err := s.tableDDL(ctx, name)
		if errors.Is(err, ErrTableNotFound) {
			return "", fmt.Errorf("table %q does not exist", name)
		}
		if err != nil {
			return "", err
		}
		defs = append(defs, ddl)
	}
	return strings.Join(defs, "\n\n"), nil
}

func (s *SQL) tableDDL(ctx context.Context, name string) (string, error) {
	if s.cache != nil {
		if ddl, ok := s.cache.Get(name); ok {
			return ddl, nil
		}
	}

	ddl, err := s.dialect.TableDDL(ctx, s.db, name)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		s.cache.Add(name, ddl)
	}
	return ddl, nil
}

// --- list_tables ---

func (s *SQL) listTablesTool() toolbox.Tool {
	return toolbox.Tool{
		Name:        "list_tables",
		Description: "List the names of all tables in the database.",
		Handler: func(ctx context.Context, _ toolbox.Args) (any, error) {
			return s.ListTables(ctx)
		},
	}
}

// ListTables returns the table names sorted by name.
func (s *SQL) ListTables(ctx context.Context) ([]string, error) {
	names, err := s.dialect.ListTables(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}
