// Package graph defines the host graph consumed by the reconciliation engine
// and provides Arena, an in-memory implementation.
//
// The engine never owns node memory. It holds Node references and asks the
// Graph to spawn, splice and remove nodes. A Node is a generational index:
// once its slot is freed, every outstanding reference to it reports !Alive.
package graph

import (
	"errors"
	"fmt"
	"iter"
	"reflect"
	"strings"
)

var (
	// ErrDeadNode is returned when an operation references a removed node.
	ErrDeadNode = errors.New("graph: dead node")

	// ErrCycle is returned when an insertion would make a node its own ancestor.
	ErrCycle = errors.New("graph: insertion would create a cycle")
)

// Node is an opaque reference into the host graph.
// The zero value is never a live node.
type Node struct {
	index uint32
	gen   uint32
}

// IsZero reports whether n is the zero reference.
func (n Node) IsZero() bool {
	return n.gen == 0
}

func (n Node) String() string {
	if n.IsZero() {
		return "n-"
	}
	return fmt.Sprintf("n%dv%d", n.index, n.gen)
}

// Graph is the host graph surface the engine needs.
//
// Children returns a snapshot; callers may hold it across mutations.
// InsertChildren detaches each node from its current parent before splicing,
// then clamps index to [0, len(children)].
type Graph interface {
	View

	Spawn() Node
	InsertChildren(parent Node, index int, nodes []Node) error
	Detach(n Node) error
	RemoveRecursive(n Node) error

	SetData(n Node, key reflect.Type, value any) error
	DeleteData(n Node, key reflect.Type)
}

// View is the read side of a Graph.
type View interface {
	Alive(n Node) bool
	Parent(n Node) (Node, bool)
	Children(n Node) []Node
	Data(n Node, key reflect.Type) (any, bool)
}

// ReadOnly wraps g so that only its View methods are reachable, even
// through a type assertion.
func ReadOnly(g Graph) View {
	return readOnly{g: g}
}

type readOnly struct {
	g Graph
}

func (r readOnly) Alive(n Node) bool                         { return r.g.Alive(n) }
func (r readOnly) Parent(n Node) (Node, bool)                { return r.g.Parent(n) }
func (r readOnly) Children(n Node) []Node                    { return r.g.Children(n) }
func (r readOnly) Data(n Node, key reflect.Type) (any, bool) { return r.g.Data(n, key) }

// AppendChildren attaches nodes after the existing children of parent.
func AppendChildren(g Graph, parent Node, nodes []Node) error {
	return g.InsertChildren(parent, len(g.Children(parent)), nodes)
}

// IndexOf returns the position of child among parent's children, or -1.
func IndexOf(g View, parent, child Node) int {
	for i, c := range g.Children(parent) {
		if c == child {
			return i
		}
	}
	return -1
}

// Put stores typed data on a node, replacing any previous value of type T.
func Put[T any](g Graph, n Node, value T) error {
	return g.SetData(n, reflect.TypeFor[T](), value)
}

// Get returns the typed data of type T stored on a node.
func Get[T any](g View, n Node) (T, bool) {
	var zero T
	v, ok := g.Data(n, reflect.TypeFor[T]())
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// Delete removes data of type T from a node.
func Delete[T any](g Graph, n Node) {
	g.DeleteData(n, reflect.TypeFor[T]())
}

// Descendants yields every node below n in pre-order, excluding n itself.
// The walk reads the graph's own child links.
func Descendants(g View, n Node) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		stack := reverse(g.Children(n))
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(top) {
				return
			}
			stack = append(stack, reverse(g.Children(top))...)
		}
	}
}

// Walk follows a child-index path from n.
func Walk(g View, n Node, path []uint8) (Node, error) {
	cur := n
	for depth, idx := range path {
		children := g.Children(cur)
		if int(idx) >= len(children) {
			return Node{}, fmt.Errorf("path %v: index %d at depth %d out of range (%d children)",
				path, idx, depth, len(children))
		}
		cur = children[idx]
	}
	return cur, nil
}

// Dump renders the subtree at n as an indented outline, one node per line.
// label decides what each line shows; it must be deterministic for goldens.
func Dump(g View, n Node, label func(Node) string) string {
	var b strings.Builder
	var visit func(Node, int)
	visit = func(cur Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(label(cur))
		b.WriteByte('\n')
		for _, c := range g.Children(cur) {
			visit(c, depth+1)
		}
	}
	visit(n, 0)
	return b.String()
}

func reverse(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[len(nodes)-1-i] = n
	}
	return out
}
