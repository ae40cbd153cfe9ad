// Package database provides the connection registry and the Database
// capability the rest of the system queries through. The auth core never
// imports this package; it only sees database IDs as opaque strings.
package database

import "context"

// Handle is a live connection to one database.
type Handle interface {
	Prepare(query string) Statement
	Exec(ctx context.Context, query string) error
	Dump(ctx context.Context) ([]byte, error)
	Close() error
}

// Statement is a prepared query. Bind returns a new statement so a prepared
// statement can be reused with different arguments.
type Statement interface {
	Bind(args ...any) Statement
	First(ctx context.Context) (map[string]any, error)
	Run(ctx context.Context) (Result, error)
	All(ctx context.Context) ([]map[string]any, error)
}

// Result reports the outcome of a write statement.
type Result struct {
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id"`
}
