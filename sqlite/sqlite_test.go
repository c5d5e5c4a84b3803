package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/workflow"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "workflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateSchema(context.Background()))
	return s
}

func diamond() *workflow.Workflow {
	d := workflow.NewDescriptor()
	for _, id := range []string{"1", "2", "3", "4"} {
		d.PutStep(workflow.Step{ID: id, Name: "step-" + id})
	}
	d.Payloads["2"] = workflow.Step{ID: "2", Name: "step-2", Type: "task", Data: json.RawMessage(`{"description":"left"}`)}
	d.Edges = map[string][]string{"1": {"3", "2"}, "2": {"4"}, "3": {"4"}, "4": {}}
	return &workflow.Workflow{ID: "diamond", Name: "Diamond", Graph: d}
}

func TestSchemaIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSchema(ctx))
	require.NoError(t, s.DropSchema(ctx))
	require.NoError(t, s.DropSchema(ctx))
	require.NoError(t, s.CreateSchema(ctx))
}

func TestSaveAndGetWorkflow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	saved, err := s.SaveWorkflow(ctx, diamond())
	require.NoError(t, err)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := s.GetWorkflow(ctx, "diamond")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Diamond", got.Name)
	assert.Equal(t, diamond().Graph.Edges, got.Graph.Edges)
	assert.JSONEq(t, `{"description":"left"}`, string(got.Graph.Payloads["2"].Data))
	assert.Nil(t, got.Graph.Payloads["1"].Data)

	sources, err := workflow.Materialize(got.Graph)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, got.Graph, workflow.Flatten(sources...))
}

func TestSaveWorkflowGeneratesIDAndNormalizes(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	d := workflow.NewDescriptor()
	d.Payloads["a"] = workflow.Step{Name: "a"}
	d.Payloads["b"] = workflow.Step{Name: "b"}
	d.Edges["a"] = []string{"b"}

	saved, err := s.SaveWorkflow(ctx, &workflow.Workflow{Name: "gen", Graph: d})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "a", saved.Graph.Payloads["a"].ID)

	got, err := s.GetWorkflow(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Graph, got.Graph)

	// The argument is left untouched.
	assert.Empty(t, d.Payloads["a"].ID)
	assert.NotContains(t, d.Edges, "b")
}

func TestSaveWorkflowReplaces(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first, err := s.SaveWorkflow(ctx, diamond())
	require.NoError(t, err)
	created := first.CreatedAt

	w := diamond()
	w.Name = "Renamed"
	w.Graph.RemoveStep("3")
	second, err := s.SaveWorkflow(ctx, w)
	require.NoError(t, err)
	assert.WithinDuration(t, created, second.CreatedAt, time.Millisecond)

	got, err := s.GetWorkflow(ctx, "diamond")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, map[string][]string{"1": {"2"}, "2": {"4"}, "4": {}}, got.Graph.Edges)
}

func TestSaveWorkflowRejectsInvalidGraph(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	cyclic := diamond()
	cyclic.Graph.Link("4", "1")
	_, err := s.SaveWorkflow(ctx, cyclic)
	assert.ErrorIs(t, err, workflow.ErrCycleDetected)

	dangling := diamond()
	dangling.Graph.Link("4", "missing")
	_, err = s.SaveWorkflow(ctx, dangling)
	assert.ErrorIs(t, err, workflow.ErrMalformedGraph)

	_, err = s.SaveWorkflow(ctx, &workflow.Workflow{ID: "empty"})
	assert.ErrorIs(t, err, workflow.ErrMalformedGraph)

	got, err := s.GetWorkflow(ctx, "diamond")
	require.NoError(t, err)
	assert.Nil(t, got, "nothing is written for a rejected graph")
}

func TestListAndDeleteWorkflows(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	list, err := s.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)

	_, err = s.SaveWorkflow(ctx, diamond())
	require.NoError(t, err)
	list, err = s.ListWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "diamond", list[0].ID)
	assert.Nil(t, list[0].Graph)

	require.NoError(t, s.DeleteWorkflow(ctx, "diamond"))
	require.NoError(t, s.DeleteWorkflow(ctx, "diamond"))
	got, err := s.GetWorkflow(ctx, "diamond")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStepOperations(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.SaveWorkflow(ctx, diamond())
	require.NoError(t, err)

	_, err = s.AddStep(ctx, "nope", &workflow.Step{Name: "x"})
	assert.ErrorIs(t, err, workflow.ErrWorkflowNotFound)

	step := &workflow.Step{Name: "extra"}
	id, err := s.AddStep(ctx, "diamond", step)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, step.ID)

	_, err = s.AddStep(ctx, "diamond", &workflow.Step{ID: "2", Name: "again"})
	assert.ErrorIs(t, err, workflow.ErrStepExists)

	step.Name = "extra-renamed"
	require.NoError(t, s.UpdateStep(ctx, "diamond", step))
	assert.ErrorIs(t, s.UpdateStep(ctx, "diamond", &workflow.Step{ID: "ghost"}), workflow.ErrStepNotFound)

	got, err := s.GetWorkflow(ctx, "diamond")
	require.NoError(t, err)
	assert.Equal(t, "extra-renamed", got.Graph.Payloads[id].Name)
	assert.Equal(t, []string{}, got.Graph.Edges[id])

	require.NoError(t, s.DeleteStep(ctx, "diamond", "4"))
	got, err = s.GetWorkflow(ctx, "diamond")
	require.NoError(t, err)
	assert.NotContains(t, got.Graph.Payloads, "4")
	assert.Equal(t, []string{}, got.Graph.Edges["2"], "edges into a deleted step go with it")
}

func TestEdgeOperations(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.SaveWorkflow(ctx, diamond())
	require.NoError(t, err)

	require.NoError(t, s.AddEdge(ctx, "diamond", "1", "4"))
	got, err := s.GetWorkflow(ctx, "diamond")
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "4"}, got.Graph.Edges["1"])

	assert.ErrorIs(t, s.AddEdge(ctx, "diamond", "4", "1"), workflow.ErrCycleDetected)
	assert.ErrorIs(t, s.AddEdge(ctx, "diamond", "4", "ghost"), workflow.ErrMalformedGraph)
	assert.ErrorIs(t, s.AddEdge(ctx, "nope", "1", "2"), workflow.ErrWorkflowNotFound)

	require.NoError(t, s.DeleteEdge(ctx, "diamond", "1", "2"))
	assert.ErrorIs(t, s.DeleteEdge(ctx, "diamond", "1", "2"), workflow.ErrEdgeNotFound)
	assert.ErrorIs(t, s.DeleteEdge(ctx, "nope", "1", "2"), workflow.ErrEdgeNotFound)

	// Appending after a delete keeps order by position.
	require.NoError(t, s.AddEdge(ctx, "diamond", "1", "2"))
	got, err = s.GetWorkflow(ctx, "diamond")
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4", "2"}, got.Graph.Edges["1"])
}

func TestRunOperations(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.SaveWorkflow(ctx, diamond())
	require.NoError(t, err)

	run := &workflow.Run{WorkflowID: "diamond"}
	id, err := s.CreateRun(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunPending, run.Status)

	got, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, workflow.RunPending, got.Status)
	assert.Equal(t, []string{}, got.Steps)
	assert.Nil(t, got.CompletedAt)

	done := time.Now().UTC()
	run.Status = workflow.RunFailed
	run.Steps = []string{"1", "3"}
	run.Error = "boom"
	run.CompletedAt = &done
	require.NoError(t, s.UpdateRun(ctx, run))

	got, err = s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunFailed, got.Status)
	assert.Equal(t, []string{"1", "3"}, got.Steps)
	assert.Equal(t, "boom", got.Error)
	require.NotNil(t, got.CompletedAt)
	assert.WithinDuration(t, done, *got.CompletedAt, time.Millisecond)

	assert.ErrorIs(t, s.UpdateRun(ctx, &workflow.Run{ID: "ghost"}), workflow.ErrRunNotFound)
	missing, err := s.GetRun(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	runs, err := s.ListRuns(ctx, "diamond")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)

	require.NoError(t, s.DeleteWorkflow(ctx, "diamond"))
	runs, err = s.ListRuns(ctx, "diamond")
	require.NoError(t, err)
	assert.Empty(t, runs)
}
