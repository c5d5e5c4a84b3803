// Package steps decodes workflow step payloads into their concrete kinds.
//
// The set of kinds is closed: Step.Type must name one of the kinds
// registered here, and the step data must decode into that kind without
// unknown fields.
package steps

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/meikuraledutech/workflow"
)

const (
	KindTask   = "task"
	KindModule = "module"
	KindSample = "sample"
)

var (
	ErrUnknownKind = errors.New("steps: unknown step kind")
	ErrInvalidSpec = errors.New("steps: invalid step data")
)

// Spec is the decoded body of a step.
type Spec interface {
	Kind() string
	Validate() error
}

// Port describes one input or output of a task.
type Port struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// Task is a unit of work with typed inputs and outputs.
type Task struct {
	Description string `json:"description,omitempty"`
	Inputs      []Port `json:"inputs,omitempty"`
	Outputs     []Port `json:"outputs,omitempty"`
}

func (*Task) Kind() string { return KindTask }

func (t *Task) Validate() error {
	seen := make(map[string]bool)
	for _, p := range slices.Concat(t.Inputs, t.Outputs) {
		if p.ID == "" {
			return fmt.Errorf("%w: port without id", ErrInvalidSpec)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate port %q", ErrInvalidSpec, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// Module stands for another stored workflow.
type Module struct {
	WorkflowID string `json:"workflow_id"`
}

func (*Module) Kind() string { return KindModule }

func (m *Module) Validate() error {
	if m.WorkflowID == "" {
		return fmt.Errorf("%w: module requires workflow_id", ErrInvalidSpec)
	}
	return nil
}

// Sample references a recorded audio or midi sample.
type Sample struct {
	SampleID string  `json:"sample_id"`
	Format   string  `json:"format"`
	Duration float64 `json:"duration,omitempty"`
}

func (*Sample) Kind() string { return KindSample }

func (s *Sample) Validate() error {
	if s.SampleID == "" {
		return fmt.Errorf("%w: sample requires sample_id", ErrInvalidSpec)
	}
	if s.Format != "midi" && s.Format != "audio" {
		return fmt.Errorf("%w: sample format %q is not midi or audio", ErrInvalidSpec, s.Format)
	}
	if s.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidSpec)
	}
	return nil
}

var registry = map[string]func() Spec{
	KindTask:   func() Spec { return &Task{} },
	KindModule: func() Spec { return &Module{} },
	KindSample: func() Spec { return &Sample{} },
}

// Kinds returns the registered kinds in sorted order.
func Kinds() []string {
	return slices.Sorted(maps.Keys(registry))
}

// KindOf returns the kind named by s.Type. An empty type means task.
func KindOf(s workflow.Step) string {
	if s.Type == "" {
		return KindTask
	}
	return s.Type
}

// Decode resolves s.Type in the registry and decodes s.Data into it.
func Decode(s workflow.Step) (Spec, error) {
	kind := KindOf(s)
	newSpec, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	spec := newSpec()
	if len(s.Data) > 0 && !bytes.Equal(s.Data, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(s.Data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(spec); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSpec, kind, err)
		}
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// Encode builds a step payload carrying spec under its kind.
func Encode(id, name string, spec Spec) (workflow.Step, error) {
	if err := spec.Validate(); err != nil {
		return workflow.Step{}, err
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return workflow.Step{}, fmt.Errorf("steps: encode %s: %w", spec.Kind(), err)
	}
	return workflow.Step{ID: id, Name: name, Type: spec.Kind(), Data: data}, nil
}

// ValidateGraph decodes every payload of d and reports the first failure.
func ValidateGraph(d *workflow.Descriptor) error {
	for _, id := range slices.Sorted(maps.Keys(d.Payloads)) {
		if _, err := Decode(d.Payloads[id]); err != nil {
			return fmt.Errorf("step %s: %w", id, err)
		}
	}
	return nil
}
