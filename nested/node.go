package nested

import (
	"github.com/samsun639/bazel/common"
)

// Node is one children node of the DAG: the empty sentinel, a leaf holding
// a single payload, or a branch of two or more entries. An entry is either
// a payload or a reference to another Node. Nodes are immutable once
// exposed and compared by identity
type Node struct {
	entries []any
}

// the one empty children node of the process. Never serialized as a frame,
// never interned
var emptyNode = &Node{}

// Empty returns the empty children sentinel
func Empty() *Node {
	return emptyNode
}

// Leaf creates a node holding a single payload element
func Leaf(payload any) *Node {
	if _, ok := payload.(*Node); ok {
		common.Assert(false, "Leaf: payload cannot be a node reference")
	}
	return &Node{entries: []any{payload}}
}

// Branch creates a node from two or more entries, each either a payload or
// a *Node reference. The entry slice is copied; entries keep their order.
// The empty sentinel must never appear as an entry
func Branch(entries []any) *Node {
	common.Assert(len(entries) >= 2, "Branch: need at least 2 entries, got %d", len(entries))
	cp := make([]any, len(entries))
	copy(cp, entries)
	for _, e := range cp {
		if child, ok := e.(*Node); ok {
			common.Assert(!child.IsEmpty(), "Branch: empty children node cannot be referenced")
		}
	}
	return &Node{entries: cp}
}

func (n *Node) IsEmpty() bool {
	return len(n.entries) == 0
}

func (n *Node) IsLeaf() bool {
	return len(n.entries) == 1
}

func (n *Node) NumEntries() int {
	return len(n.entries)
}

// Entry returns entry i: either a payload or a *Node reference
func (n *Node) Entry(i int) any {
	return n.entries[i]
}

// Payload returns the element of a leaf node
func (n *Node) Payload() any {
	common.Assert(n.IsLeaf(), "Payload: not a leaf node")
	return n.entries[0]
}
