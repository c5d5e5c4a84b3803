package postgres

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meikuraledutech/workflow"
)

// SaveWorkflow saves a workflow and its full graph in one transaction.
// A workflow already stored under the same ID is replaced; its created_at is kept.
// The graph is materialized first, so malformed or cyclic graphs are never written.
// An empty ID gets a generated UUID. w is not modified; the returned copy
// carries the ID and the normalized graph.
func (s *PGStore) SaveWorkflow(ctx context.Context, w *workflow.Workflow) (*workflow.Workflow, error) {
	// Validate before touching the database.
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

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("workflow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx,
		`INSERT INTO workflows (id, name, description, is_module) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, is_module = EXCLUDED.is_module
		 RETURNING created_at`,
		w.ID, w.Name, w.Description, w.IsModule,
	).Scan(&w.CreatedAt); err != nil {
		return nil, fmt.Errorf("workflow: upsert workflow: %w", err)
	}

	// Replace semantics: edges cascade with their steps.
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_steps WHERE workflow_id = $1`, w.ID); err != nil {
		return nil, fmt.Errorf("workflow: delete steps: %w", err)
	}

	ids := slices.Sorted(maps.Keys(w.Graph.Payloads))
	batch := &pgx.Batch{}
	for _, id := range ids {
		st := w.Graph.Payloads[id]
		batch.Queue(`INSERT INTO workflow_steps (workflow_id, id, name, type, data) VALUES ($1, $2, $3, $4, $5)`,
			w.ID, id, st.Name, st.Type, jsonArg(st.Data))
	}
	for _, id := range ids {
		for pos, to := range w.Graph.Edges[id] {
			batch.Queue(`INSERT INTO workflow_edges (workflow_id, from_step, position, to_step) VALUES ($1, $2, $3, $4)`,
				w.ID, id, pos, to)
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("workflow: insert graph: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("workflow: commit: %w", err)
	}
	return w, nil
}

// GetWorkflow retrieves a workflow and its graph by ID.
// Returns nil, nil if the workflow doesn't exist.
func (s *PGStore) GetWorkflow(ctx context.Context, workflowID string) (*workflow.Workflow, error) {
	var w workflow.Workflow
	err := s.db.QueryRow(ctx,
		`SELECT id, name, description, is_module, created_at FROM workflows WHERE id = $1`, workflowID,
	).Scan(&w.ID, &w.Name, &w.Description, &w.IsModule, &w.CreatedAt)
	if err != nil {
		if isNoRows(err) {
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

// ListWorkflows returns workflow metadata ordered by created_at, without graphs.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListWorkflows(ctx context.Context) ([]workflow.Workflow, error) {
	rows, err := s.db.Query(ctx,
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
func (s *PGStore) DeleteWorkflow(ctx context.Context, workflowID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, workflowID); err != nil {
		return fmt.Errorf("workflow: delete workflow: %w", err)
	}
	return nil
}

// loadGraph reads the descriptor of a workflow. Every step gets an edges entry.
func loadGraph(ctx context.Context, q querier, workflowID string) (*workflow.Descriptor, error) {
	d := workflow.NewDescriptor()

	rows, err := q.Query(ctx,
		`SELECT id, name, type, data FROM workflow_steps WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow: query steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			st   workflow.Step
			data []byte
		)
		if err := rows.Scan(&st.ID, &st.Name, &st.Type, &data); err != nil {
			return nil, fmt.Errorf("workflow: scan step: %w", err)
		}
		if len(data) > 0 {
			st.Data = data
		}
		d.Payloads[st.ID] = st
		d.Edges[st.ID] = []string{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: rows steps: %w", err)
	}

	rows, err = q.Query(ctx,
		`SELECT from_step, to_step FROM workflow_edges WHERE workflow_id = $1 ORDER BY from_step, position`, workflowID)
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
