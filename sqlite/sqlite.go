// Package sqlite implements workflow.Store on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements workflow.Store using SQLite via database/sql.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a SQLiteStore backed by an already opened database.
// Foreign keys must be enabled on db for step and edge deletes to cascade.
func New(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Open creates or opens the database at path and applies the required pragmas.
// The schema is not created; call CreateSchema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("workflow: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("workflow: connect database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("workflow: %s: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// nullJSON stores empty payload data as NULL.
func nullJSON(data json.RawMessage) sql.NullString {
	if len(data) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func workflowExists(ctx context.Context, q queryer, workflowID string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflows WHERE id = ?`, workflowID,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("workflow: find workflow: %w", err)
	}
	return n > 0, nil
}
