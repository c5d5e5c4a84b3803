package workflow

import (
	"encoding/json"
	"time"
)

// Step is the payload carried by one workflow node.
// Type is the discriminant resolved by the steps registry; Data is opaque to this package.
type Step struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Type string          `json:"type,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Workflow is a stored, named graph of steps.
// Graph is nil in listings.
type Workflow struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	IsModule    bool        `json:"is_module"`
	CreatedAt   time.Time   `json:"created_at"`
	Graph       *Descriptor `json:"graph,omitempty"`
}

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run records one execution of a workflow.
// Steps lists the ids of the steps that completed, in execution order.
type Run struct {
	ID          string     `json:"id"`
	WorkflowID  string     `json:"workflow_id"`
	Status      RunStatus  `json:"status"`
	Steps       []string   `json:"steps"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
