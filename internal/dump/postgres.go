package dump

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgxpool.Pool the Postgres source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource pages through the tables of one Postgres schema.
type PostgresSource struct {
	db     Querier
	schema string
}

// NewPostgresSource creates a source for schema (default "public").
func NewPostgresSource(db Querier, schema string) *PostgresSource {
	if schema == "" {
		schema = "public"
	}
	return &PostgresSource{db: db, schema: schema}
}

func (s *PostgresSource) Dialect() Dialect { return Postgres }

func (s *PostgresSource) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT tablename FROM pg_catalog.pg_tables WHERE schemaname = $1 ORDER BY tablename`, s.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables in %s: %w", s.schema, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

// Schema rebuilds a CREATE TABLE statement from information_schema. It
// covers column names, types, nullability and defaults; constraints and
// indexes are not reproduced.
func (s *PostgresSource) Schema(ctx context.Context, table string) (string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT column_name, data_type, is_nullable, COALESCE(column_default, '')
		 FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`, s.schema, table)
	if err != nil {
		return "", fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name, dataType, nullable, def string
		if err := rows.Scan(&name, &dataType, &nullable, &def); err != nil {
			return "", fmt.Errorf("scan column of %s: %w", table, err)
		}
		col := Postgres.QuoteIdent(name) + " " + dataType
		if def != "" {
			col += " DEFAULT " + def
		}
		if nullable == "NO" {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		return "", nil
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", Postgres.QuoteIdent(table), strings.Join(cols, ",\n  ")), nil
}

// Rows pages with LIMIT/OFFSET ordered by the first column.
func (s *PostgresSource) Rows(ctx context.Context, table string, offset int64, limit int) ([]string, [][]any, error) {
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY 1 LIMIT $1 OFFSET $2", pgx.Identifier{s.schema, table}.Sanitize())
	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, nil, fmt.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for _, fd := range rows.FieldDescriptions() {
		columns = append(columns, fd.Name)
	}

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("read row of %s: %w", table, err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows of %s: %w", table, err)
	}
	return columns, out, nil
}
