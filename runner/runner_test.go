package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/internal/logging"
	"github.com/meikuraledutech/workflow/sqlite"
)

func graphOf(edges map[string][]string) *workflow.Descriptor {
	d := workflow.NewDescriptor()
	for id, succ := range edges {
		d.Payloads[id] = workflow.Step{ID: id, Name: "step-" + id}
		d.Edges[id] = succ
	}
	return d
}

func materialize(t *testing.T, d *workflow.Descriptor, fn workflow.RunFunc) []*workflow.Node {
	t.Helper()
	sources, err := workflow.Materialize(d, workflow.WithRunFunc(fn))
	require.NoError(t, err)
	return sources
}

func recordRuns(ran *[]string) workflow.RunFunc {
	return func(_ context.Context, n *workflow.Node) error {
		*ran = append(*ran, n.ID())
		return nil
	}
}

func TestOrderRespectsDependencies(t *testing.T) {
	d := graphOf(map[string][]string{
		"1": {"2", "3"},
		"2": {"4"},
		"3": {"5"},
		"5": {"4"},
		"4": {},
	})
	order := Order(materialize(t, d, nil))

	pos := make(map[string]int)
	for i, n := range order {
		pos[n.ID()] = i
	}
	require.Len(t, pos, 5)
	for from, succ := range d.Edges {
		for _, to := range succ {
			assert.Less(t, pos[from], pos[to], "%s before %s", from, to)
		}
	}
}

func TestExecuteRunsEachNodeOnce(t *testing.T) {
	var ran []string
	sources := materialize(t, graphOf(map[string][]string{
		"a": {"c"},
		"b": {"c"},
		"c": {"d"},
		"d": {},
	}), recordRuns(&ran))

	completed, err := Execute(context.Background(), sources)
	require.NoError(t, err)
	assert.Equal(t, ran, completed)
	assert.Len(t, completed, 4)
	assert.Equal(t, "d", completed[3])
	assert.Equal(t, "c", completed[2])
}

func TestExecuteStopsOnFailure(t *testing.T) {
	boom := errors.New("boom")
	var ran []string
	sources := materialize(t, graphOf(map[string][]string{
		"1": {"2"},
		"2": {"3"},
		"3": {},
	}), func(_ context.Context, n *workflow.Node) error {
		if n.ID() == "2" {
			return boom
		}
		ran = append(ran, n.ID())
		return nil
	})

	completed, err := Execute(context.Background(), sources)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step 2")
	assert.Equal(t, []string{"1"}, completed)
	assert.Equal(t, []string{"1"}, ran)
}

func TestExecuteHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sources := materialize(t, graphOf(map[string][]string{"1": {"2"}, "2": {}}),
		func(context.Context, *workflow.Node) error {
			cancel()
			return nil
		})

	completed, err := Execute(ctx, sources)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"1"}, completed)
}

func TestLogStep(t *testing.T) {
	var buf bytes.Buffer
	ctx := logging.WithLogger(context.Background(), logging.New(&buf, "info", "json"))

	d := workflow.NewDescriptor()
	d.PutStep(workflow.Step{ID: "m", Name: "nested", Type: "module", Data: json.RawMessage(`{"workflow_id":"other"}`)})
	sources := materialize(t, d, LogStep)

	require.NoError(t, sources[0].Run(ctx))
	assert.Contains(t, buf.String(), `"kind":"module"`)
	assert.Contains(t, buf.String(), `"step":"m"`)

	bad := workflow.NewDescriptor()
	bad.PutStep(workflow.Step{ID: "x", Name: "x", Type: "unknown"})
	assert.Error(t, materialize(t, bad, LogStep)[0].Run(ctx))
}

func newService(t *testing.T, fn workflow.RunFunc) (*Service, workflow.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.CreateSchema(context.Background()))
	return NewService(store, fn, logging.Discard()), store
}

func TestServiceStart(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, nil)

	_, err := store.SaveWorkflow(ctx, &workflow.Workflow{ID: "wf", Name: "wf", Graph: graphOf(map[string][]string{
		"1": {"2", "3"},
		"2": {},
		"3": {},
	})})
	require.NoError(t, err)

	run, err := svc.Start(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, workflow.RunCompleted, run.Status)
	assert.Equal(t, []string{"1", "2", "3"}, run.Steps)
	require.NotNil(t, run.CompletedAt)

	stored, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunCompleted, stored.Status)
	assert.Equal(t, run.Steps, stored.Steps)

	_, err = svc.Start(ctx, "missing")
	assert.ErrorIs(t, err, workflow.ErrWorkflowNotFound)
}

func TestServiceRecordsFailure(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, func(_ context.Context, n *workflow.Node) error {
		if n.ID() == "3" {
			return errors.New("render failed")
		}
		return nil
	})

	_, err := store.SaveWorkflow(ctx, &workflow.Workflow{ID: "wf", Graph: graphOf(map[string][]string{
		"1": {"2"},
		"2": {"3"},
		"3": {},
	})})
	require.NoError(t, err)

	run, err := svc.Start(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, workflow.RunFailed, run.Status)
	assert.Contains(t, run.Error, "render failed")
	assert.Equal(t, []string{"1", "2"}, run.Steps)

	runs, err := store.ListRuns(ctx, "wf")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, workflow.RunFailed, runs[0].Status)
	assert.True(t, slices.Equal(run.Steps, runs[0].Steps))
}

// statusStore records the status each run is created with.
type statusStore struct {
	workflow.Store
	created []workflow.RunStatus
}

func (s *statusStore) CreateRun(ctx context.Context, run *workflow.Run) (string, error) {
	s.created = append(s.created, run.Status)
	return s.Store.CreateRun(ctx, run)
}

func (s *statusStore) UpdateRun(context.Context, *workflow.Run) error {
	return errors.New("disk full")
}

func TestServiceNeverLeavesRunPending(t *testing.T) {
	ctx := context.Background()
	_, inner := newService(t, nil)
	store := &statusStore{Store: inner}
	svc := NewService(store, nil, logging.Discard())

	_, err := inner.SaveWorkflow(ctx, &workflow.Workflow{ID: "wf", Graph: graphOf(map[string][]string{"1": {}})})
	require.NoError(t, err)

	_, err = svc.Start(ctx, "wf")
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, []workflow.RunStatus{workflow.RunRunning}, store.created)

	runs, err := inner.ListRuns(ctx, "wf")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotEqual(t, workflow.RunPending, runs[0].Status)
}
