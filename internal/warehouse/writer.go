// Package warehouse defines the narrow capabilities the refresh engine needs
// from the analytical database. Components receive these interfaces rather
// than a shared client, so tests substitute in-memory fakes.
package warehouse

import "context"

// TableWriter replaces warehouse table contents. Full truncate-and-reload is
// the first-class load policy: every run rewrites each table from scratch,
// atomically at the granularity of one table.
type TableWriter interface {
	// Replace truncates the table and inserts all rows in one transaction.
	// The first failed insert aborts the whole table load.
	Replace(ctx context.Context, table string, columns []string, rows [][]any) error
}

// SchemaInspector answers schema questions resolved once per run, such as
// whether the optional user_id_nk dimension column exists.
type SchemaInspector interface {
	HasColumn(ctx context.Context, table, column string) (bool, error)
}

// Store is the full warehouse capability set.
type Store interface {
	TableWriter
	SchemaInspector
}
