// Package runner executes materialized workflows one step at a time.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/internal/logging"
	"github.com/meikuraledutech/workflow/steps"
)

// Order returns every node reachable from sources such that each node comes
// after all of its predecessors. Ties keep discovery order.
func Order(sources []*workflow.Node) []*workflow.Node {
	indegree := make(map[*workflow.Node]int)
	_ = workflow.Walk(sources, func(n *workflow.Node) error {
		if _, ok := indegree[n]; !ok {
			indegree[n] = 0
		}
		for _, s := range n.Next() {
			indegree[s]++
		}
		return nil
	})

	queue := make([]*workflow.Node, 0, len(sources))
	queued := make(map[*workflow.Node]bool)
	for _, s := range sources {
		if indegree[s] == 0 && !queued[s] {
			queue = append(queue, s)
			queued[s] = true
		}
	}

	order := make([]*workflow.Node, 0, len(indegree))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, s := range cur.Next() {
			indegree[s]--
			if indegree[s] == 0 {
				queue = append(queue, s)
			}
		}
	}
	return order
}

// Execute runs each node reachable from sources once, after all of its
// predecessors. It stops at the first failure or when ctx is done and returns
// the ids of the steps that completed.
func Execute(ctx context.Context, sources []*workflow.Node) ([]string, error) {
	completed := []string{}
	for _, n := range Order(sources) {
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		if err := n.Run(ctx); err != nil {
			return completed, fmt.Errorf("runner: step %s: %w", n.ID(), err)
		}
		completed = append(completed, n.ID())
	}
	return completed, nil
}

// LogStep is a RunFunc that decodes the step payload and logs it through the
// logger carried by ctx.
func LogStep(ctx context.Context, n *workflow.Node) error {
	spec, err := steps.Decode(n.Payload())
	if err != nil {
		return err
	}
	logging.FromContext(ctx).Info("step executed", "step", n.ID(), "name", n.Name(), "kind", spec.Kind())
	return nil
}

// Service runs stored workflows and records each attempt as a Run.
type Service struct {
	store workflow.Store
	run   workflow.RunFunc
	log   *slog.Logger
	now   func() time.Time
}

// NewService returns a Service executing steps with fn. A nil fn means LogStep.
func NewService(store workflow.Store, fn workflow.RunFunc, log *slog.Logger) *Service {
	if fn == nil {
		fn = LogStep
	}
	return &Service{store: store, run: fn, log: log, now: time.Now}
}

// Start executes the workflow synchronously. A failing step does not make
// Start fail: the error is recorded on the returned Run.
func (s *Service) Start(ctx context.Context, workflowID string) (*workflow.Run, error) {
	w, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, workflow.ErrWorkflowNotFound
	}

	sources, err := workflow.Materialize(w.Graph, workflow.WithRunFunc(s.run))
	if err != nil {
		return nil, err
	}

	run := &workflow.Run{
		ID:         uuid.Must(uuid.NewV7()).String(),
		WorkflowID: workflowID,
		Status:     workflow.RunRunning,
		Steps:      []string{},
		CreatedAt:  s.now().UTC(),
	}
	// Execution starts right after the insert, so the run is never left pending.
	if _, err := s.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	log := s.log.With("workflow", workflowID, "run", run.ID)
	log.Info("run started", "sources", len(sources))

	completed, execErr := Execute(logging.WithLogger(ctx, log), sources)
	finished := s.now().UTC()
	run.Steps = completed
	run.CompletedAt = &finished
	run.Status = workflow.RunCompleted
	if execErr != nil {
		run.Status = workflow.RunFailed
		run.Error = execErr.Error()
		log.Warn("run failed", "error", execErr, "completed", len(completed))
	} else {
		log.Info("run completed", "steps", len(completed))
	}

	// The outcome is recorded even when ctx was cancelled mid-run.
	if err := s.store.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		return nil, err
	}
	return run, nil
}
