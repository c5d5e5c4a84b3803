package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meikuraledutech/workflow"
)

const runColumns = `id, workflow_id, status, steps, error, created_at, completed_at`

// CreateRun records a new run.
// If run.ID is empty, a UUID is auto-generated. Returns the run ID.
func (s *PGStore) CreateRun(ctx context.Context, run *workflow.Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = workflow.RunPending
	}
	if run.Steps == nil {
		run.Steps = []string{}
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_runs (`+runColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.WorkflowID, string(run.Status), run.Steps, run.Error, run.CreatedAt, run.CompletedAt,
	)
	if err != nil {
		return "", fmt.Errorf("workflow: insert run: %w", err)
	}
	return run.ID, nil
}

// UpdateRun stores the status, completed steps, error and completion time of a run.
// Returns ErrRunNotFound if the run doesn't exist.
func (s *PGStore) UpdateRun(ctx context.Context, run *workflow.Run) error {
	steps := run.Steps
	if steps == nil {
		steps = []string{}
	}
	ct, err := s.db.Exec(ctx,
		`UPDATE workflow_runs SET status = $1, steps = $2, error = $3, completed_at = $4 WHERE id = $5`,
		string(run.Status), steps, run.Error, run.CompletedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("workflow: update run: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return workflow.ErrRunNotFound
	}
	return nil
}

// GetRun fetches a single run by its ID.
// Returns nil, nil if not found.
func (s *PGStore) GetRun(ctx context.Context, runID string) (*workflow.Run, error) {
	rows, err := s.db.Query(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, runID)
	if err != nil {
		return nil, fmt.Errorf("workflow: get run: %w", err)
	}
	run, err := pgx.CollectOneRow(rows, scanRun)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workflow: get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the runs of a workflow, oldest first.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListRuns(ctx context.Context, workflowID string) ([]workflow.Run, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE workflow_id = $1 ORDER BY created_at, id`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow: list runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, scanRun)
	if err != nil {
		return nil, fmt.Errorf("workflow: scan runs: %w", err)
	}
	if runs == nil {
		runs = []workflow.Run{}
	}
	return runs, nil
}

func scanRun(row pgx.CollectableRow) (workflow.Run, error) {
	var (
		run    workflow.Run
		status string
	)
	err := row.Scan(&run.ID, &run.WorkflowID, &status, &run.Steps, &run.Error, &run.CreatedAt, &run.CompletedAt)
	run.Status = workflow.RunStatus(status)
	return run, err
}
