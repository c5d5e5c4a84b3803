package sqlite

import (
	"context"
	"fmt"

	"github.com/meikuraledutech/workflow"
)

// AddEdge appends to as the last successor of from.
// The updated graph is materialized before the insert, so an edge to an
// unknown step fails with ErrMalformedGraph and a closing edge with ErrCycleDetected.
func (s *SQLiteStore) AddEdge(ctx context.Context, workflowID, from, to string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("workflow: begin tx: %w", err)
	}
	defer tx.Rollback()

	ok, err := workflowExists(ctx, tx, workflowID)
	if err != nil {
		return err
	}
	if !ok {
		return workflow.ErrWorkflowNotFound
	}

	d, err := loadGraph(ctx, tx, workflowID)
	if err != nil {
		return err
	}
	d.Link(from, to)
	if _, err := workflow.Materialize(d); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workflow_edges (workflow_id, from_step, position, to_step)
		 SELECT ?, ?, COALESCE(MAX(position) + 1, 0), ? FROM workflow_edges WHERE workflow_id = ? AND from_step = ?`,
		workflowID, from, to, workflowID, from,
	); err != nil {
		return fmt.Errorf("workflow: insert edge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("workflow: commit: %w", err)
	}
	return nil
}

// DeleteEdge removes the first from -> to edge.
// Returns ErrEdgeNotFound if there is none.
func (s *SQLiteStore) DeleteEdge(ctx context.Context, workflowID, from, to string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("workflow: begin tx: %w", err)
	}
	defer tx.Rollback()

	d, err := loadGraph(ctx, tx, workflowID)
	if err != nil {
		return err
	}
	if !d.Unlink(from, to) {
		return workflow.ErrEdgeNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM workflow_edges WHERE workflow_id = ? AND from_step = ? AND position = (
		     SELECT MIN(position) FROM workflow_edges WHERE workflow_id = ? AND from_step = ? AND to_step = ?
		 )`,
		workflowID, from, workflowID, from, to,
	); err != nil {
		return fmt.Errorf("workflow: delete edge: %w", err)
	}
	return tx.Commit()
}
