package workflow

import "errors"

// ErrStopWalk can be returned by a Walk callback to end the walk early without error.
var ErrStopWalk = errors.New("workflow: stop walk")

// Walk visits every node reachable from entries breadth-first, each id once.
// It stops at the first error returned by fn.
func Walk(entries []*Node, fn func(*Node) error) error {
	visited := make(map[string]bool)
	queue := make([]*Node, 0, len(entries))
	queue = append(queue, entries...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == nil || visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		if err := fn(cur); err != nil {
			if errors.Is(err, ErrStopWalk) {
				return nil
			}
			return err
		}
		queue = append(queue, cur.next...)
	}
	return nil
}

// Flatten returns the descriptor of the sub-graph reachable from entries.
// Pass every source node to flatten a whole graph; nodes not reachable from
// entries are left out.
func Flatten(entries ...*Node) *Descriptor {
	d := NewDescriptor()
	_ = Walk(entries, func(n *Node) error {
		d.Payloads[n.id] = n.payload
		succ := make([]string, len(n.next))
		for i, s := range n.next {
			succ[i] = s.id
		}
		d.Edges[n.id] = succ
		return nil
	})
	return d
}

// Find returns the node with the given id reachable from entries, or nil.
func Find(entries []*Node, id string) *Node {
	var found *Node
	_ = Walk(entries, func(n *Node) error {
		if n.id == id {
			found = n
			return ErrStopWalk
		}
		return nil
	})
	return found
}

// Components groups sources that share at least one reachable node.
// Groups are ordered by their first source; sources keep their relative order.
func Components(sources []*Node) [][]*Node {
	parent := make([]int, len(sources))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	owner := make(map[string]int)
	for i, src := range sources {
		_ = Walk([]*Node{src}, func(n *Node) error {
			j, ok := owner[n.id]
			if !ok {
				owner[n.id] = i
				return nil
			}
			ri, rj := find(i), find(j)
			if ri != rj {
				if ri < rj {
					parent[rj] = ri
				} else {
					parent[ri] = rj
				}
			}
			return nil
		})
	}

	index := make(map[int]int)
	var groups [][]*Node
	for i, src := range sources {
		r := find(i)
		g, ok := index[r]
		if !ok {
			g = len(groups)
			index[r] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], src)
	}
	return groups
}
