package nested

import (
	"github.com/samsun639/bazel/common"
)

// Builder accumulates direct elements and transitive sets into a new
// nested set. Insertion order is preserved; duplicate direct elements and
// duplicate transitive members (by node identity) are dropped at their
// later occurrences. Empty transitive members vanish entirely, which is
// what keeps the empty sentinel out of every serialized graph
type Builder[T comparable] struct {
	order     Order
	entries   []any
	seenElems map[T]struct{}
	seenNodes map[*Node]struct{}
}

func NewBuilder[T comparable](order Order) *Builder[T] {
	common.Assert(order.IsValid(), "NewBuilder: invalid order %d", byte(order))
	return &Builder[T]{
		order:     order,
		seenElems: make(map[T]struct{}),
		seenNodes: make(map[*Node]struct{}),
	}
}

func (b *Builder[T]) Order() Order {
	return b.order
}

// Add appends direct elements
func (b *Builder[T]) Add(elems ...T) *Builder[T] {
	for _, e := range elems {
		if _, ok := b.seenElems[e]; ok {
			continue
		}
		b.seenElems[e] = struct{}{}
		b.entries = append(b.entries, e)
	}
	return b
}

// AddTransitive appends the members of other sets by reference. The child
// sub-graphs are shared, not copied: that sharing is what the codec
// preserves across the wire
func (b *Builder[T]) AddTransitive(sets ...Set[T]) *Builder[T] {
	for _, s := range sets {
		common.Assert(b.order.compatibleWith(s.Order()),
			"AddTransitive: order %s is incompatible with %s", s.Order(), b.order)
		if s.IsEmpty() {
			continue
		}
		node := s.Node()
		if _, ok := b.seenNodes[node]; ok {
			continue
		}
		b.seenNodes[node] = struct{}{}
		b.entries = append(b.entries, node)
	}
	return b
}

// Build finishes the set. A builder with no entries yields the empty set;
// a single direct element yields a leaf; a single transitive member yields
// that member's node unchanged, so that wrapping a set does not grow the
// graph
func (b *Builder[T]) Build() Set[T] {
	switch len(b.entries) {
	case 0:
		return EmptySet[T](b.order)
	case 1:
		if node, ok := b.entries[0].(*Node); ok {
			return NewSet[T](b.order, node)
		}
		return NewSet[T](b.order, Leaf(b.entries[0]))
	default:
		return NewSet[T](b.order, Branch(b.entries))
	}
}
