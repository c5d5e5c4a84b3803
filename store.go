package workflow

import (
	"context"
	"errors"
)

var (
	ErrWorkflowNotFound = errors.New("workflow: workflow not found")
	ErrStepNotFound     = errors.New("workflow: step not found")
	ErrStepExists       = errors.New("workflow: step already exists")
	ErrEdgeNotFound     = errors.New("workflow: edge not found")
	ErrRunNotFound      = errors.New("workflow: run not found")
)

// Store defines the contract for persisting and retrieving workflows.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Workflows (bulk operations)
	SaveWorkflow(ctx context.Context, w *Workflow) (*Workflow, error)
	GetWorkflow(ctx context.Context, workflowID string) (*Workflow, error)
	ListWorkflows(ctx context.Context) ([]Workflow, error)
	DeleteWorkflow(ctx context.Context, workflowID string) error

	// Steps
	AddStep(ctx context.Context, workflowID string, step *Step) (string, error)
	UpdateStep(ctx context.Context, workflowID string, step *Step) error
	DeleteStep(ctx context.Context, workflowID, stepID string) error

	// Edges
	AddEdge(ctx context.Context, workflowID, from, to string) error
	DeleteEdge(ctx context.Context, workflowID, from, to string) error

	// Runs
	CreateRun(ctx context.Context, run *Run) (string, error)
	UpdateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, workflowID string) ([]Run, error)

	Close() error
}
