package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/meikuraledutech/workflow"
)

// SaveWorkflow saves a workflow and its full graph in one transaction,
// replacing any graph stored under the same id.
// The graph is materialized first; malformed or cyclic graphs are never written.
// An empty ID gets a generated UUID. w is not modified; the returned copy
// carries the ID and the normalized graph.
func (s *SQLiteStore) SaveWorkflow(ctx context.Context, w *workflow.Workflow) (*workflow.Workflow, error) {
	if _, err := workflow.Materialize(w.Graph); err != nil {
		return nil, err
	}
	saved := *w
	saved.Graph = w.Graph.Clone()
	saved.Graph.Normalize()
	w = &saved
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("workflow: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, is_module, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, description = excluded.description, is_module = excluded.is_module`,
		w.ID, w.Name, w.Description, w.IsModule, w.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("workflow: upsert workflow: %w", err)
	}
	// An existing workflow keeps its original creation time.
	if err := tx.QueryRowContext(ctx,
		`SELECT created_at FROM workflows WHERE id = ?`, w.ID,
	).Scan(&w.CreatedAt); err != nil {
		return nil, fmt.Errorf("workflow: read created_at: %w", err)
	}

	// Replace semantics: edges cascade with their steps.
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_steps WHERE workflow_id = ?`, w.ID); err != nil {
		return nil, fmt.Errorf("workflow: delete steps: %w", err)
	}

	ids := slices.Sorted(maps.Keys(w.Graph.Payloads))
	for _, id := range ids {
		st := w.Graph.Payloads[id]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workflow_steps (workflow_id, id, name, type, data) VALUES (?, ?, ?, ?, ?)`,
			w.ID, id, st.Name, st.Type, nullJSON(st.Data),
		); err != nil {
			return nil, fmt.Errorf("workflow: insert step %s: %w", id, err)
		}
	}
	for _, id := range ids {
		for pos, to := range w.Graph.Edges[id] {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO workflow_edges (workflow_id, from_step, position, to_step) VALUES (?, ?, ?, ?)`,
				w.ID, id, pos, to,
			); err != nil {
				return nil, fmt.Errorf("workflow: insert edge %s -> %s: %w", id, to, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("workflow: commit: %w", err)
	}
	return w, nil
}

// GetWorkflow retrieves a workflow and its graph.
// Returns nil, nil if the workflow doesn't exist.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, workflowID string) (*workflow.Workflow, error) {
	var w workflow.Workflow
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, is_module, created_at FROM workflows WHERE id = ?`, workflowID,
	).Scan(&w.ID, &w.Name, &w.Description, &w.IsModule, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("workflow: get workflow: %w", err)
	}

	w.Graph, err = loadGraph(ctx, s.db, workflowID)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWorkflows returns workflow metadata ordered by creation time, without graphs.
// Returns an empty slice (not nil) if none exist.
func (s *SQLiteStore) ListWorkflows(ctx context.Context) ([]workflow.Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, is_module, created_at FROM workflows ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("workflow: list workflows: %w", err)
	}
	defer rows.Close()

	out := []workflow.Workflow{}
	for rows.Next() {
		var w workflow.Workflow
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &w.IsModule, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("workflow: scan workflow: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: rows workflows: %w", err)
	}
	return out, nil
}

// DeleteWorkflow removes a workflow with its steps, edges and runs.
// No error if the workflow doesn't exist.
func (s *SQLiteStore) DeleteWorkflow(ctx context.Context, workflowID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, workflowID); err != nil {
		return fmt.Errorf("workflow: delete workflow: %w", err)
	}
	return nil
}

// loadGraph reads the descriptor of a workflow. Every step gets an edges entry.
func loadGraph(ctx context.Context, q queryer, workflowID string) (*workflow.Descriptor, error) {
	d := workflow.NewDescriptor()

	rows, err := q.QueryContext(ctx,
		`SELECT id, name, type, data FROM workflow_steps WHERE workflow_id = ?`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow: query steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			st   workflow.Step
			data sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.Name, &st.Type, &data); err != nil {
			return nil, fmt.Errorf("workflow: scan step: %w", err)
		}
		if data.Valid {
			st.Data = json.RawMessage(data.String)
		}
		d.Payloads[st.ID] = st
		d.Edges[st.ID] = []string{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: rows steps: %w", err)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx,
		`SELECT from_step, to_step FROM workflow_edges WHERE workflow_id = ? ORDER BY from_step, position`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow: query edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("workflow: scan edge: %w", err)
		}
		d.Edges[from] = append(d.Edges[from], to)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: rows edges: %w", err)
	}
	return d, nil
}
