// Package dump writes a relational database to a SQL file in bounded,
// resumable chunks.
package dump

import (
	"context"
)

// Source is a database the dumper can page through.
type Source interface {
	// Tables lists table names in a stable order.
	Tables(ctx context.Context) ([]string, error)
	// Schema returns the statement recreating table, without a trailing
	// semicolon, or "" when the source cannot produce one.
	Schema(ctx context.Context, table string) (string, error)
	// Rows returns up to limit rows of table starting at offset, in a
	// stable order, together with the column names.
	Rows(ctx context.Context, table string, offset int64, limit int) ([]string, [][]any, error)
	// Dialect controls identifier and literal quoting.
	Dialect() Dialect
}
