package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meikuraledutech/workflow"
)

// AddStep inserts a single, unconnected step into a workflow.
// If step.ID is empty, a UUID is auto-generated.
// Returns the step ID (generated or provided), or ErrStepExists if the
// workflow already has a step with that ID.
func (s *PGStore) AddStep(ctx context.Context, workflowID string, step *workflow.Step) (string, error) {
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

	_, err = s.db.Exec(ctx,
		`INSERT INTO workflow_steps (workflow_id, id, name, type, data) VALUES ($1, $2, $3, $4, $5)`,
		workflowID, step.ID, step.Name, step.Type, jsonArg(step.Data),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", workflow.ErrStepExists, step.ID)
		}
		return "", fmt.Errorf("workflow: insert step: %w", err)
	}
	return step.ID, nil
}

// UpdateStep updates the name, type and data of an existing step.
// Returns ErrStepNotFound if the step doesn't exist.
func (s *PGStore) UpdateStep(ctx context.Context, workflowID string, step *workflow.Step) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE workflow_steps SET name = $1, type = $2, data = $3 WHERE workflow_id = $4 AND id = $5`,
		step.Name, step.Type, jsonArg(step.Data), workflowID, step.ID,
	)
	if err != nil {
		return fmt.Errorf("workflow: update step: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return workflow.ErrStepNotFound
	}
	return nil
}

// DeleteStep deletes a step.
// Edges from or to it are cascade-deleted by the DB.
// No error if the step doesn't exist.
func (s *PGStore) DeleteStep(ctx context.Context, workflowID, stepID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM workflow_steps WHERE workflow_id = $1 AND id = $2`, workflowID, stepID)
	if err != nil {
		return fmt.Errorf("workflow: delete step: %w", err)
	}
	return nil
}
