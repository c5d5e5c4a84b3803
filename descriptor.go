package workflow

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/multierr"
)

var (
	ErrMalformedGraph  = errors.New("workflow: malformed graph")
	ErrCycleDetected   = errors.New("workflow: cycle detected, graph is not acyclic")
	ErrUnreachableNode = errors.New("workflow: unreachable node")
)

// CycleError reports one concrete cycle found while materializing a descriptor.
// Path starts and ends with the same node id.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// Descriptor is the flat form of a workflow graph: a payload per node id and,
// per node id, its successor ids in execution order.
type Descriptor struct {
	Payloads map[string]Step     `json:"payloads"`
	Edges    map[string][]string `json:"edges"`
}

// NewDescriptor returns an empty descriptor with both maps allocated.
func NewDescriptor() *Descriptor {
	return &Descriptor{
		Payloads: make(map[string]Step),
		Edges:    make(map[string][]string),
	}
}

// Validate checks that every id named in Edges has a payload.
// It reports every problem it finds; each one wraps ErrMalformedGraph.
// Cycles are detected by Materialize.
func (d *Descriptor) Validate() error {
	var errs error
	for _, id := range sortedKeys(d.Payloads) {
		if id == "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: empty step id", ErrMalformedGraph))
			continue
		}
		if s := d.Payloads[id]; s.ID != "" && s.ID != id {
			errs = multierr.Append(errs, fmt.Errorf("%w: payload %q carries id %q", ErrMalformedGraph, id, s.ID))
		}
	}
	for _, id := range sortedKeys(d.Edges) {
		if _, ok := d.Payloads[id]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: edges of %q have no payload", ErrMalformedGraph, id))
		}
		for _, succ := range d.Edges[id] {
			if _, ok := d.Payloads[succ]; !ok {
				errs = multierr.Append(errs, fmt.Errorf("%w: %q -> %q references a missing payload", ErrMalformedGraph, id, succ))
			}
		}
	}
	return errs
}

// Len returns the number of steps.
func (d *Descriptor) Len() int {
	return len(d.Payloads)
}

// Clone returns a deep copy of the maps and successor lists. Step data is shared.
func (d *Descriptor) Clone() *Descriptor {
	c := NewDescriptor()
	maps.Copy(c.Payloads, d.Payloads)
	for id, succ := range d.Edges {
		c.Edges[id] = slices.Clone(succ)
	}
	return c
}

// Normalize fills empty payload ids from their keys and gives every step a
// non-nil successor list, the shape Flatten and the stores produce.
func (d *Descriptor) Normalize() {
	if d.Edges == nil {
		d.Edges = make(map[string][]string)
	}
	for id, s := range d.Payloads {
		if s.ID == "" {
			s.ID = id
			d.Payloads[id] = s
		}
		if d.Edges[id] == nil {
			d.Edges[id] = []string{}
		}
	}
}

// PutStep inserts or replaces the payload stored under s.ID.
func (d *Descriptor) PutStep(s Step) {
	if d.Payloads == nil {
		d.Payloads = make(map[string]Step)
	}
	d.Payloads[s.ID] = s
}

// RemoveStep deletes a step, its successor list and every edge pointing at it.
// It reports whether the step existed.
func (d *Descriptor) RemoveStep(id string) bool {
	if _, ok := d.Payloads[id]; !ok {
		return false
	}
	delete(d.Payloads, id)
	delete(d.Edges, id)
	for from, succ := range d.Edges {
		d.Edges[from] = slices.DeleteFunc(succ, func(s string) bool { return s == id })
	}
	return true
}

// Link appends to as the last successor of from.
func (d *Descriptor) Link(from, to string) {
	if d.Edges == nil {
		d.Edges = make(map[string][]string)
	}
	d.Edges[from] = append(d.Edges[from], to)
}

// Unlink removes the first from -> to edge and reports whether one existed.
func (d *Descriptor) Unlink(from, to string) bool {
	i := slices.Index(d.Edges[from], to)
	if i < 0 {
		return false
	}
	d.Edges[from] = slices.Delete(d.Edges[from], i, i+1)
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
