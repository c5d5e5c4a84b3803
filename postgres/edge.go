package postgres

import (
	"context"
	"fmt"

	"github.com/meikuraledutech/workflow"
)

// AddEdge appends to as the last successor of from.
// The workflow row is locked while the updated graph is materialized, so an
// edge to an unknown step fails with ErrMalformedGraph and an edge closing a
// cycle with ErrCycleDetected, without racing concurrent edits.
func (s *PGStore) AddEdge(ctx context.Context, workflowID, from, to string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("workflow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM workflows WHERE id = $1 FOR UPDATE`, workflowID).Scan(&locked)
	if err != nil {
		if isNoRows(err) {
			return workflow.ErrWorkflowNotFound
		}
		return fmt.Errorf("workflow: lock workflow: %w", err)
	}

	d, err := loadGraph(ctx, tx, workflowID)
	if err != nil {
		return err
	}
	d.Link(from, to)
	if _, err := workflow.Materialize(d); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO workflow_edges (workflow_id, from_step, position, to_step)
		 SELECT $1, $2, COALESCE(MAX(position) + 1, 0), $3 FROM workflow_edges WHERE workflow_id = $1 AND from_step = $2`,
		workflowID, from, to,
	); err != nil {
		return fmt.Errorf("workflow: insert edge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("workflow: commit: %w", err)
	}
	return nil
}

// DeleteEdge removes the first from -> to edge.
// Returns ErrEdgeNotFound if there is none.
func (s *PGStore) DeleteEdge(ctx context.Context, workflowID, from, to string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("workflow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := loadGraph(ctx, tx, workflowID)
	if err != nil {
		return err
	}
	if !d.Unlink(from, to) {
		return workflow.ErrEdgeNotFound
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM workflow_edges WHERE workflow_id = $1 AND from_step = $2 AND position = (
		     SELECT MIN(position) FROM workflow_edges WHERE workflow_id = $1 AND from_step = $2 AND to_step = $3
		 )`,
		workflowID, from, to,
	); err != nil {
		return fmt.Errorf("workflow: delete edge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("workflow: commit: %w", err)
	}
	return nil
}
