package steps

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/workflow"
)

func TestDecode(t *testing.T) {
	t.Run("task", func(t *testing.T) {
		spec, err := Decode(workflow.Step{
			Name: "render",
			Type: KindTask,
			Data: json.RawMessage(`{"description":"render mix","inputs":[{"id":"in","name":"Input","type":"midi","required":true}]}`),
		})
		require.NoError(t, err)
		task, ok := spec.(*Task)
		require.True(t, ok)
		assert.Equal(t, "render mix", task.Description)
		require.Len(t, task.Inputs, 1)
		assert.True(t, task.Inputs[0].Required)
	})

	t.Run("empty type is task", func(t *testing.T) {
		spec, err := Decode(workflow.Step{Name: "plain"})
		require.NoError(t, err)
		assert.Equal(t, KindTask, spec.Kind())
	})

	t.Run("module", func(t *testing.T) {
		spec, err := Decode(workflow.Step{Type: KindModule, Data: json.RawMessage(`{"workflow_id":"wf-2"}`)})
		require.NoError(t, err)
		assert.Equal(t, &Module{WorkflowID: "wf-2"}, spec)
	})

	t.Run("sample", func(t *testing.T) {
		spec, err := Decode(workflow.Step{Type: KindSample, Data: json.RawMessage(`{"sample_id":"s1","format":"midi","duration":4.5}`)})
		require.NoError(t, err)
		assert.Equal(t, &Sample{SampleID: "s1", Format: "midi", Duration: 4.5}, spec)
	})
}

func TestDecodeErrors(t *testing.T) {
	tests := map[string]struct {
		step workflow.Step
		want error
	}{
		"unknown kind": {
			step: workflow.Step{Type: "Test2"},
			want: ErrUnknownKind,
		},
		"unknown field": {
			step: workflow.Step{Type: KindModule, Data: json.RawMessage(`{"workflow_id":"w","extra":1}`)},
			want: ErrInvalidSpec,
		},
		"missing workflow id": {
			step: workflow.Step{Type: KindModule},
			want: ErrInvalidSpec,
		},
		"bad sample format": {
			step: workflow.Step{Type: KindSample, Data: json.RawMessage(`{"sample_id":"s","format":"wav"}`)},
			want: ErrInvalidSpec,
		},
		"duplicate port": {
			step: workflow.Step{Data: json.RawMessage(`{"inputs":[{"id":"a"}],"outputs":[{"id":"a"}]}`)},
			want: ErrInvalidSpec,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(tt.step)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	step, err := Encode("7", "kick", &Sample{SampleID: "kick-01", Format: "audio", Duration: 1.25})
	require.NoError(t, err)
	assert.Equal(t, KindSample, step.Type)
	assert.Equal(t, "7", step.ID)

	spec, err := Decode(step)
	require.NoError(t, err)
	assert.Equal(t, &Sample{SampleID: "kick-01", Format: "audio", Duration: 1.25}, spec)

	_, err = Encode("8", "bad", &Module{})
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestKinds(t *testing.T) {
	assert.Equal(t, []string{KindModule, KindSample, KindTask}, Kinds())
}

func TestValidateGraph(t *testing.T) {
	d := workflow.NewDescriptor()
	d.PutStep(workflow.Step{ID: "1", Name: "a"})
	d.PutStep(workflow.Step{ID: "2", Name: "b", Type: KindModule, Data: json.RawMessage(`{"workflow_id":"x"}`)})
	assert.NoError(t, ValidateGraph(d))

	d.PutStep(workflow.Step{ID: "3", Name: "c", Type: "nope"})
	err := ValidateGraph(d)
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Contains(t, err.Error(), "step 3")
}
