package graph

import (
	"fmt"
	"reflect"
	"slices"
)

type slot struct {
	gen      uint32
	alive    bool
	parent   Node
	children []Node
	data     map[reflect.Type]any
}

// Arena is an in-memory Graph backed by a slice of generational slots.
// Freed slots are reused with a bumped generation.
//
// Arena is not safe for concurrent use; the tick holds exclusive access.
type Arena struct {
	slots []slot
	free  []uint32
	live  int
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Len returns the number of live nodes.
func (a *Arena) Len() int {
	return a.live
}

// Spawn creates an empty, unparented node.
func (a *Arena) Spawn() Node {
	a.live++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.gen++
		s.alive = true
		return Node{index: idx, gen: s.gen}
	}
	a.slots = append(a.slots, slot{gen: 1, alive: true})
	return Node{index: uint32(len(a.slots) - 1), gen: 1}
}

func (a *Arena) slot(n Node) (*slot, bool) {
	if n.IsZero() || int(n.index) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[n.index]
	if !s.alive || s.gen != n.gen {
		return nil, false
	}
	return s, true
}

func (a *Arena) mustSlot(n Node) (*slot, error) {
	s, ok := a.slot(n)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeadNode, n)
	}
	return s, nil
}

// Alive reports whether n refers to a live node.
func (a *Arena) Alive(n Node) bool {
	_, ok := a.slot(n)
	return ok
}

// Parent returns the parent of n, if any.
func (a *Arena) Parent(n Node) (Node, bool) {
	s, ok := a.slot(n)
	if !ok || s.parent.IsZero() {
		return Node{}, false
	}
	return s.parent, true
}

// Children returns a copy of n's children in order.
func (a *Arena) Children(n Node) []Node {
	s, ok := a.slot(n)
	if !ok {
		return nil
	}
	return slices.Clone(s.children)
}

// InsertChildren splices nodes into parent's children at index.
func (a *Arena) InsertChildren(parent Node, index int, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}
	if _, err := a.mustSlot(parent); err != nil {
		return err
	}
	for _, n := range nodes {
		if _, err := a.mustSlot(n); err != nil {
			return err
		}
		if a.isAncestorOrSelf(n, parent) {
			return fmt.Errorf("%w: %s under %s", ErrCycle, n, parent)
		}
	}
	for _, n := range nodes {
		if err := a.Detach(n); err != nil {
			return err
		}
	}

	p := &a.slots[parent.index]
	index = max(0, min(index, len(p.children)))
	p.children = slices.Insert(p.children, index, nodes...)
	for _, n := range nodes {
		a.slots[n.index].parent = parent
	}
	return nil
}

// isAncestorOrSelf reports whether candidate is n or one of n's ancestors.
func (a *Arena) isAncestorOrSelf(candidate, n Node) bool {
	for cur, ok := n, true; ok; cur, ok = a.Parent(cur) {
		if cur == candidate {
			return true
		}
	}
	return false
}

// Detach removes n from its parent's children. No-op for unparented nodes.
func (a *Arena) Detach(n Node) error {
	s, err := a.mustSlot(n)
	if err != nil {
		return err
	}
	if s.parent.IsZero() {
		return nil
	}
	p := &a.slots[s.parent.index]
	if i := slices.Index(p.children, n); i >= 0 {
		p.children = slices.Delete(p.children, i, i+1)
	}
	s.parent = Node{}
	return nil
}

// RemoveRecursive detaches n and frees it with all of its descendants.
func (a *Arena) RemoveRecursive(n Node) error {
	if err := a.Detach(n); err != nil {
		return err
	}
	doomed := []Node{n}
	for d := range Descendants(a, n) {
		doomed = append(doomed, d)
	}
	for _, d := range doomed {
		s := &a.slots[d.index]
		s.alive = false
		s.parent = Node{}
		s.children = nil
		s.data = nil
		a.free = append(a.free, d.index)
		a.live--
	}
	return nil
}

// SetData stores a value under key on n.
func (a *Arena) SetData(n Node, key reflect.Type, value any) error {
	s, err := a.mustSlot(n)
	if err != nil {
		return err
	}
	if s.data == nil {
		s.data = make(map[reflect.Type]any)
	}
	s.data[key] = value
	return nil
}

// Data returns the value stored under key on n.
func (a *Arena) Data(n Node, key reflect.Type) (any, bool) {
	s, ok := a.slot(n)
	if !ok {
		return nil, false
	}
	v, ok := s.data[key]
	return v, ok
}

// DeleteData removes the value stored under key on n.
func (a *Arena) DeleteData(n Node, key reflect.Type) {
	if s, ok := a.slot(n); ok {
		delete(s.data, key)
	}
}
