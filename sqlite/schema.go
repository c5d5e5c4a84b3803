package sqlite

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// CreateSchema creates the workflow tables if they don't exist.
func (s *SQLiteStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

// DropSchema drops every workflow table.
func (s *SQLiteStore) DropSchema(ctx context.Context) error {
	for _, table := range []string{"workflow_runs", "workflow_edges", "workflow_steps", "workflows"} {
		if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			return err
		}
	}
	return nil
}
