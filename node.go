package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var ErrNoRunFunc = errors.New("workflow: node has no run function")

// RunFunc executes the step carried by a node. It is supplied by the host
// through WithRunFunc; this package defines no execution semantics.
type RunFunc func(ctx context.Context, n *Node) error

// Node is one materialized step with forward links to its successors.
// A node reachable from several predecessors is a single shared instance.
// Nodes are not modified after Materialize returns, so a graph may be read
// from several goroutines.
type Node struct {
	id      string
	payload Step
	next    []*Node
	run     RunFunc
}

// ID returns the step id the node was materialized from.
func (n *Node) ID() string {
	return n.id
}

// Name returns the payload name.
func (n *Node) Name() string {
	return n.payload.Name
}

// Payload returns the step payload.
func (n *Node) Payload() Step {
	return n.payload
}

// Next returns the successors in edge order.
// The slice is a copy; its elements are the shared successor nodes.
func (n *Node) Next() []*Node {
	return slices.Clone(n.next)
}

// Run invokes the injected RunFunc.
func (n *Node) Run(ctx context.Context) error {
	if n.run == nil {
		return fmt.Errorf("%w: %s", ErrNoRunFunc, n.id)
	}
	return n.run(ctx, n)
}

func (n *Node) String() string {
	return n.id
}
