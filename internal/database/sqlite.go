package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// sqliteHandle backs a registered database with a local SQLite file. Dev
// deployments use it in place of a remote binding.
type sqliteHandle struct {
	db   *sql.DB
	path string
}

func newSQLiteHandle(path string) (*sqliteHandle, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &sqliteHandle{db: db, path: path}, nil
}

func (h *sqliteHandle) Prepare(query string) Statement {
	return &sqliteStatement{db: h.db, query: query}
}

func (h *sqliteHandle) Exec(ctx context.Context, query string) error {
	_, err := h.db.ExecContext(ctx, query)
	return err
}

// Dump returns the raw database file. SQLite files are self-contained, so
// the bytes on disk are the export format.
func (h *sqliteHandle) Dump(_ context.Context) ([]byte, error) {
	return os.ReadFile(h.path)
}

func (h *sqliteHandle) Close() error {
	return h.db.Close()
}

type sqliteStatement struct {
	db    *sql.DB
	query string
	args  []any
}

func (s *sqliteStatement) Bind(args ...any) Statement {
	return &sqliteStatement{db: s.db, query: s.query, args: args}
}

func (s *sqliteStatement) First(ctx context.Context) (map[string]any, error) {
	rows, err := s.all(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *sqliteStatement) Run(ctx context.Context) (Result, error) {
	res, err := s.db.ExecContext(ctx, s.query, s.args...)
	if err != nil {
		return Result{}, err
	}
	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return Result{RowsAffected: affected, LastInsertID: lastID}, nil
}

func (s *sqliteStatement) All(ctx context.Context) ([]map[string]any, error) {
	return s.all(ctx, -1)
}

func (s *sqliteStatement) all(ctx context.Context, limit int) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, s.query, s.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		if limit >= 0 && len(out) >= limit {
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
