package workflow

import (
	"fmt"
	"strings"
)

// Option configures Materialize.
type Option func(*options)

type options struct {
	run    RunFunc
	strict bool
}

// WithRunFunc attaches fn to every materialized node.
func WithRunFunc(fn RunFunc) Option {
	return func(o *options) {
		o.run = fn
	}
}

// Strict rejects payloads that appear nowhere in Edges, neither as a key nor
// as a successor, with ErrUnreachableNode. Without it they become isolated
// nodes that are both source and sink.
func Strict() Option {
	return func(o *options) {
		o.strict = true
	}
}

// slot addresses position index in the successor list of pred.
type slot struct {
	pred  string
	index int
}

// Materialize builds the linked node graph described by d and returns its
// source nodes (in-degree zero).
//
// Construction runs backward from the sinks. A node is finalized once every
// slot of its successor list is filled; finalizing it creates (or fetches from
// the memo) each predecessor and writes the node into the slot that edge names.
// Every id therefore yields exactly one Node, and successor order matches Edges.
//
// On error no nodes are returned.
func Materialize(d *Descriptor, opts ...Option) ([]*Node, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil descriptor", ErrMalformedGraph)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ids := sortedKeys(d.Payloads)
	preds := make(map[string][]slot, len(ids))
	remaining := make(map[string]int, len(ids))
	for _, id := range ids {
		succs := d.Edges[id]
		remaining[id] = len(succs)
		for i, succ := range succs {
			preds[succ] = append(preds[succ], slot{pred: id, index: i})
		}
	}

	if o.strict {
		var orphans []string
		for _, id := range ids {
			if _, ok := d.Edges[id]; !ok && len(preds[id]) == 0 {
				orphans = append(orphans, id)
			}
		}
		if len(orphans) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnreachableNode, strings.Join(orphans, ", "))
		}
	}

	memo := make(map[string]*Node, len(ids))
	get := func(id string) *Node {
		if n, ok := memo[id]; ok {
			return n
		}
		n := &Node{id: id, payload: d.Payloads[id], run: o.run}
		if k := len(d.Edges[id]); k > 0 {
			n.next = make([]*Node, k)
		}
		memo[id] = n
		return n
	}

	var queue []*Node
	for _, id := range ids {
		if remaining[id] == 0 {
			queue = append(queue, get(id))
		}
	}

	var sources []*Node
	finalized := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		finalized++

		in := preds[cur.id]
		if len(in) == 0 {
			sources = append(sources, cur)
			continue
		}
		for _, s := range in {
			p := get(s.pred)
			p.next[s.index] = cur
			remaining[s.pred]--
			if remaining[s.pred] == 0 {
				queue = append(queue, p)
			}
		}
	}

	if finalized != len(ids) {
		return nil, &CycleError{Path: findCycle(d, ids, remaining)}
	}
	return sources, nil
}

// findCycle follows unresolved successors from the first unresolved id until
// an id repeats. Every unresolved node has at least one unresolved successor,
// so the walk always closes a cycle.
func findCycle(d *Descriptor, ids []string, remaining map[string]int) []string {
	cur := ""
	for _, id := range ids {
		if remaining[id] > 0 {
			cur = id
			break
		}
	}

	pos := make(map[string]int)
	var path []string
	for cur != "" {
		if i, ok := pos[cur]; ok {
			return append(path[i:], cur)
		}
		pos[cur] = len(path)
		path = append(path, cur)

		next := ""
		for _, succ := range d.Edges[cur] {
			if remaining[succ] > 0 {
				next = succ
				break
			}
		}
		cur = next
	}
	return path
}
