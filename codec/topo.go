package codec

import (
	"golang.org/x/xerrors"

	"github.com/samsun639/bazel/common"
	"github.com/samsun639/bazel/nested"
)

// node visit states of the emission-order walk
const (
	unvisited byte = iota
	onStack
	emitted
)

// emissionOrder returns every distinct children node reachable from root,
// ordered so that each node appears after all nodes it references; the
// root comes last. Ties break by first visit of a depth-first walk that
// descends into entries in their stored order, which makes the order - and
// therefore the whole blob - a pure function of the graph.
//
// The walk is iterative: chains much deeper than any goroutine stack are
// routine in large builds.
//
// Payload entries induce no order; the empty sentinel is never reachable
// here because no node may reference it. A cycle fails with ErrCycle -
// impossible for graphs produced by the builder, so strictly a guard
// against hand-rolled inputs
func emissionOrder(root *nested.Node) ([]*nested.Node, error) {
	type frame struct {
		n    *nested.Node
		next int
	}
	state := make(map[*nested.Node]byte)
	order := make([]*nested.Node, 0)
	stack := []frame{{n: root}}
	state[root] = onStack

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		pushed := false
		for top.next < top.n.NumEntries() {
			e := top.n.Entry(top.next)
			top.next++
			child, isRef := e.(*nested.Node)
			if !isRef {
				continue
			}
			switch state[child] {
			case emitted:
				continue
			case onStack:
				return nil, xerrors.Errorf("node references an ancestor: %w", common.ErrCycle)
			}
			state[child] = onStack
			stack = append(stack, frame{n: child})
			pushed = true
			break
		}
		if pushed {
			continue
		}
		n := stack[len(stack)-1].n
		stack = stack[:len(stack)-1]
		state[n] = emitted
		order = append(order, n)
	}
	return order, nil
}
