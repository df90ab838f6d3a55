package flow

import (
	"sync"
	"sync/atomic"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/store"
)

// node is one step in the same-stamp dependency graph. remaining counts
// unfinished upstream producers; a node becomes ready at zero. state flips
// from pending to finished exactly once, by the worker that executes the
// node or by the skip walk, never both.
type node struct {
	step       *Step
	deps       []*node
	dependents []*node
	remaining  atomic.Int32
	state      atomic.Int32
	outcome    StepOutcome
	outcomeMu  sync.Mutex
}

const (
	nodePending int32 = iota
	nodeFinished
)

// claim marks the node finished. It reports false when someone else already
// did, in which case the caller must not touch the outcome.
func (n *node) claim() bool {
	return n.state.CompareAndSwap(nodePending, nodeFinished)
}

func (n *node) setOutcome(out StepOutcome) {
	n.outcomeMu.Lock()
	n.outcome = out
	n.outcomeMu.Unlock()
}

func (n *node) getOutcome() StepOutcome {
	n.outcomeMu.Lock()
	defer n.outcomeMu.Unlock()
	return n.outcome
}

// buildGraph wires steps into a dependency graph for one run. An edge runs
// from the producer of an object to every step that consumes it at offset 0;
// negative offsets resolve against history and never order steps within a
// run. The step set must already have passed ValidateSteps.
func buildGraph(steps []Step) ([]*node, error) {
	nodes := make([]*node, len(steps))
	owned := make([]Step, len(steps))
	copy(owned, steps)

	producers := make(map[store.Object]*node, len(steps))
	for i := range owned {
		nodes[i] = &node{step: &owned[i]}
		producers[owned[i].Output.Object] = nodes[i]
	}

	for _, n := range nodes {
		for _, in := range n.step.Inputs {
			if in.Offset != 0 {
				continue
			}
			producer, ok := producers[in.Object]
			if !ok {
				// No producer this run: the input resolves against
				// an artifact that already exists at the run stamp.
				continue
			}
			addEdge(producer, n)
		}
	}

	if err := detectCycle(nodes); err != nil {
		return nil, err
	}
	for _, n := range nodes {
		n.remaining.Store(int32(len(n.deps)))
	}
	return nodes, nil
}

func addEdge(from, to *node) {
	for _, d := range to.deps {
		if d == from {
			return
		}
	}
	to.deps = append(to.deps, from)
	from.dependents = append(from.dependents, to)
}

// detectCycle runs a depth-first walk with the classic three-state coloring:
// nodes permanently done, nodes on the current stack, and everything else.
// Hitting a node already on the stack closes a cycle; the error names its
// members in walk order.
func detectCycle(nodes []*node) error {
	permanent := make(map[*node]bool, len(nodes))
	onStack := make(map[*node]bool, len(nodes))
	var stack []string

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n] {
			return nil
		}
		if onStack[n] {
			members := cycleMembers(stack, n.step.Name)
			return errors.WithStack(&errors.CyclicDependencyError{Members: members})
		}
		onStack[n] = true
		stack = append(stack, n.step.Name)

		for _, d := range n.dependents {
			if err := visit(d); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, n)
		permanent[n] = true
		return nil
	}

	for _, n := range nodes {
		if !permanent[n] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// cycleMembers trims the walk stack to the cycle itself and closes the loop
// on the re-entered step.
func cycleMembers(stack []string, reentered string) []string {
	start := 0
	for i, name := range stack {
		if name == reentered {
			start = i
			break
		}
	}
	members := append([]string(nil), stack[start:]...)
	return append(members, reentered)
}
