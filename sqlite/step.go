package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/meikuraledutech/workflow"
)

// AddStep inserts a single, unconnected step into a workflow.
// If step.ID is empty, a UUID is auto-generated.
// Returns the step ID (generated or provided), or ErrStepExists if the
// workflow already has a step with that ID.
func (s *SQLiteStore) AddStep(ctx context.Context, workflowID string, step *workflow.Step) (string, error) {
	ok, err := workflowExists(ctx, s.db, workflowID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", workflow.ErrWorkflowNotFound
	}
	if step.ID == "" {
		step.ID = uuid.NewString()
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_steps (workflow_id, id, name, type, data) VALUES (?, ?, ?, ?, ?)`,
		workflowID, step.ID, step.Name, step.Type, nullJSON(step.Data),
	); err != nil {
		if isConstraint(err, sqlite3.ErrConstraintPrimaryKey) {
			return "", fmt.Errorf("%w: %s", workflow.ErrStepExists, step.ID)
		}
		return "", fmt.Errorf("workflow: insert step: %w", err)
	}
	return step.ID, nil
}

// UpdateStep replaces the name, type and data of an existing step.
// Returns ErrStepNotFound if the step doesn't exist.
func (s *SQLiteStore) UpdateStep(ctx context.Context, workflowID string, step *workflow.Step) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_steps SET name = ?, type = ?, data = ? WHERE workflow_id = ? AND id = ?`,
		step.Name, step.Type, nullJSON(step.Data), workflowID, step.ID,
	)
	if err != nil {
		return fmt.Errorf("workflow: update step: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("workflow: update step: %w", err)
	}
	if n == 0 {
		return workflow.ErrStepNotFound
	}
	return nil
}

// DeleteStep deletes a step. Edges from or to it are cascade-deleted.
// No error if the step doesn't exist.
func (s *SQLiteStore) DeleteStep(ctx context.Context, workflowID, stepID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_steps WHERE workflow_id = ? AND id = ?`, workflowID, stepID,
	); err != nil {
		return fmt.Errorf("workflow: delete step: %w", err)
	}
	return nil
}

// isConstraint reports whether err is the given SQLite constraint violation.
func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqErr sqlite3.Error
	return errors.As(err, &sqErr) && sqErr.ExtendedCode == code
}
