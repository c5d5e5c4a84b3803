package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meikuraledutech/workflow"
)

const runColumns = `id, workflow_id, status, steps, error, created_at, completed_at`

// CreateRun records a new run.
// If run.ID is empty, a UUID is auto-generated. Returns the run ID.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *workflow.Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = workflow.RunPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	steps, err := encodeSteps(run.Steps)
	if err != nil {
		return "", err
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, string(run.Status), steps, run.Error, run.CreatedAt, nullTime(run.CompletedAt),
	); err != nil {
		return "", fmt.Errorf("workflow: insert run: %w", err)
	}
	return run.ID, nil
}

// UpdateRun stores the status, completed steps, error and completion time of a run.
// Returns ErrRunNotFound if the run doesn't exist.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run *workflow.Run) error {
	steps, err := encodeSteps(run.Steps)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, steps = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(run.Status), steps, run.Error, nullTime(run.CompletedAt), run.ID,
	)
	if err != nil {
		return fmt.Errorf("workflow: update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("workflow: update run: %w", err)
	}
	if n == 0 {
		return workflow.ErrRunNotFound
	}
	return nil
}

// GetRun fetches a run by its ID.
// Returns nil, nil if not found.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*workflow.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE id = ?`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("workflow: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the runs of a workflow, oldest first.
// Returns an empty slice (not nil) if none found.
func (s *SQLiteStore) ListRuns(ctx context.Context, workflowID string) ([]workflow.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE workflow_id = ? ORDER BY created_at, id`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow: list runs: %w", err)
	}
	defer rows.Close()

	runs := []workflow.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("workflow: scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: rows runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*workflow.Run, error) {
	var (
		run       workflow.Run
		status    string
		steps     string
		completed sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.WorkflowID, &status, &steps, &run.Error, &run.CreatedAt, &completed); err != nil {
		return nil, err
	}
	run.Status = workflow.RunStatus(status)
	if err := json.Unmarshal([]byte(steps), &run.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	if run.Steps == nil {
		run.Steps = []string{}
	}
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

func encodeSteps(steps []string) (string, error) {
	if steps == nil {
		steps = []string{}
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return "", fmt.Errorf("workflow: encode run steps: %w", err)
	}
	return string(b), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
