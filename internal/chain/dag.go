package chain

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// dag indexes a top-level node list by id and answers dependency queries.
// Branch and loop-body nodes are not part of the dag; they are scheduled as
// nested sequences by their owning node.
type dag struct {
	mu    sync.RWMutex
	nodes map[string]*CommandNode
	order []string // insertion order, for deterministic iteration
}

// newDAG builds a dag from a top-level node list. Duplicate ids are an
// error; deeper validation happens in validate. Every node (including branch
// and body children) is reset to Pending so callers can pass struct literals
// or decoded definitions without initializing statuses themselves.
func newDAG(nodes []*CommandNode) (*dag, error) {
	d := &dag{nodes: make(map[string]*CommandNode, len(nodes))}
	for _, n := range nodes {
		if _, exists := d.nodes[n.ID]; exists {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		n.reset()
		d.nodes[n.ID] = n
		d.order = append(d.order, n.ID)
	}
	return d, nil
}

// validate checks per-node shape, dependency references, acyclicity, and
// output-variable overlaps between unordered node pairs. All of these are
// structural errors: the chain fails immediately and nothing executes.
func (d *dag) validate() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, id := range d.order {
		if err := d.nodes[id].validate(); err != nil {
			return err
		}
	}

	// Dependencies must reference ids in the same top-level list. A note on
	// branch/body nodes: they live in their own nested sequences and cannot
	// be dependency targets here.
	for _, id := range d.order {
		for _, depID := range d.nodes[id].DependsOn {
			if _, exists := d.nodes[depID]; !exists {
				return fmt.Errorf("node %q depends on unknown node %q", id, depID)
			}
		}
	}

	var edges []toposort.Edge
	for _, id := range d.order {
		n := d.nodes[id]
		if len(n.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range n.DependsOn {
			edges = append(edges, toposort.Edge{depID, id})
		}
	}
	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("chain contains a dependency cycle: %w", err)
	}

	if err := d.checkOutputOverlaps(); err != nil {
		return err
	}
	return nil
}

// checkOutputOverlaps rejects two nodes that may run in the same round (no
// dependency ordering between them) while declaring the same output
// variable. The variable map is the only shared mutable resource, and
// dependency declarations are the sole synchronization contract.
func (d *dag) checkOutputOverlaps() error {
	writers := make(map[string][]string) // variable -> node ids
	for _, id := range d.order {
		for _, v := range d.nodes[id].outputVars() {
			writers[v] = append(writers[v], id)
		}
	}

	for variable, ids := range writers {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if !d.ordered(ids[i], ids[j]) && !d.ordered(ids[j], ids[i]) {
					return fmt.Errorf("nodes %q and %q may run concurrently but both write variable %q",
						ids[i], ids[j], variable)
				}
			}
		}
	}
	return nil
}

// ordered reports whether `from` is a transitive dependency of `to`.
func (d *dag) ordered(from, to string) bool {
	seen := make(map[string]bool)
	var walk func(id string) bool
	walk = func(id string) bool {
		if seen[id] {
			return false
		}
		seen[id] = true
		node, ok := d.nodes[id]
		if !ok {
			return false
		}
		for _, depID := range node.DependsOn {
			if depID == from || walk(depID) {
				return true
			}
		}
		return false
	}
	return walk(to)
}

// ready returns pending nodes whose every dependency is terminal, split into
// nodes that should run and nodes that must be skipped because a dependency
// failed or was skipped.
func (d *dag) ready() (runnable, blocked []*CommandNode) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, id := range d.order {
		n := d.nodes[id]
		if n.Status != NodePending {
			continue
		}

		allTerminal := true
		failedDep := ""
		for _, depID := range n.DependsOn {
			dep := d.nodes[depID]
			if !dep.Status.Terminal() {
				allTerminal = false
				break
			}
			if dep.Status != NodeCompleted && failedDep == "" {
				failedDep = depID
			}
		}
		if !allTerminal {
			continue
		}

		if failedDep != "" {
			blocked = append(blocked, n)
		} else {
			runnable = append(runnable, n)
		}
	}
	return runnable, blocked
}

// firstUnresolvedDep names a non-completed terminal dependency of a node,
// for skip diagnostics.
func (d *dag) firstUnresolvedDep(n *CommandNode) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, depID := range n.DependsOn {
		dep, ok := d.nodes[depID]
		if ok && dep.Status.Terminal() && dep.Status != NodeCompleted {
			return depID
		}
	}
	return ""
}

// pendingIDs returns ids of all non-terminal nodes, in insertion order.
func (d *dag) pendingIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	for _, id := range d.order {
		if !d.nodes[id].Status.Terminal() {
			out = append(out, id)
		}
	}
	return out
}

// counts tallies node statuses for progress events.
func (d *dag) counts() (total, completed, failed, skipped, pending int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	total = len(d.order)
	for _, id := range d.order {
		switch d.nodes[id].Status {
		case NodeCompleted:
			completed++
		case NodeFailed:
			failed++
		case NodeSkipped:
			skipped++
		default:
			pending++
		}
	}
	return
}

// all returns the nodes in insertion order.
func (d *dag) all() []*CommandNode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*CommandNode, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.nodes[id])
	}
	return out
}

// stuckError formats the structural error for a wedged chain.
func stuckError(ids []string) error {
	return fmt.Errorf("chain is stuck: nodes %s have unsatisfiable dependencies", strings.Join(ids, ", "))
}
