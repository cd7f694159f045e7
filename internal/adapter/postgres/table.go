package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrTableRecreate marks a failed drop-and-create. Loads must not continue
// after it.
var ErrTableRecreate = errors.New("recreate table")

// Column is one column definition of a managed table.
type Column struct {
	Name string
	Type string
}

// Schema is the ordered column list of a managed table.
type Schema []Column

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// AccidentSchema matches domain.AccidentColumns.
var AccidentSchema = Schema{
	{"accident_id", "INTEGER PRIMARY KEY"},
	{"lat", "FLOAT"},
	{"lon", "FLOAT"},
	{"location", "TEXT"},
	{"accident_date", "TIMESTAMP"},
	{"severity", "TEXT"},
	{"borough", "TEXT"},
	{"casualties", "JSONB"},
	{"vehicles", "JSONB"},
}

// WeatherSchema matches domain.WeatherColumns.
var WeatherSchema = Schema{
	{"date", "DATE PRIMARY KEY"},
	{"temperature", "FLOAT"},
	{"humidity", "FLOAT"},
	{"precipitation", "FLOAT"},
	{"pressure", "FLOAT"},
	{"cloud_cover", "FLOAT"},
	{"radiation", "FLOAT"},
	{"snow_depth", "FLOAT"},
	{"sunshine_duration", "FLOAT"},
	{"max_temp", "FLOAT"},
	{"min_temp", "FLOAT"},
}

// QuoteTable quotes a possibly schema-qualified table name such as
// public.accident_summary.
func QuoteTable(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func quoteColumns(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

// CreateTableSQL renders the CREATE TABLE statement for schema.
func CreateTableSQL(table string, schema Schema) string {
	defs := make([]string, len(schema))
	for i, c := range schema {
		defs[i] = pgx.Identifier{c.Name}.Sanitize() + " " + c.Type
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", QuoteTable(table), strings.Join(defs, ", "))
}

// Recreate drops and creates table in a single transaction, leaving it empty
// with the given schema. Any failure rolls back and wraps ErrTableRecreate.
func (s *Store) Recreate(ctx context.Context, table string, schema Schema) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w %s: begin: %w", ErrTableRecreate, table, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+QuoteTable(table)); err != nil {
		return fmt.Errorf("%w %s: drop: %w", ErrTableRecreate, table, err)
	}
	if _, err := tx.Exec(ctx, CreateTableSQL(table, schema)); err != nil {
		return fmt.Errorf("%w %s: create: %w", ErrTableRecreate, table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w %s: commit: %w", ErrTableRecreate, table, err)
	}

	s.logger.Info("table recreated", "table", table, "columns", len(schema))
	return nil
}
