// Package adapter implements the node adapter: the boundary that turns
// template descriptions into graph nodes and applies attributes to them.
//
// The kind set is closed. Schema is built once from compiled kind specs and
// never grows afterwards; an unknown kind, an undeclared attribute or a value
// of the wrong dynamic type is an *AttributeError, which the engine treats as
// a contract violation. Values are never coerced.
package adapter

import (
	"fmt"
	"maps"

	"github.com/roach88/nodesync/internal/graph"
	"github.com/roach88/nodesync/internal/ir"
)

// Adapter is the capability set the template cache and the mutation
// applier consume.
type Adapter interface {
	// Describe validates a template node and converts it to internal form.
	Describe(n ir.TemplateNode) (Form, error)

	// Instantiate spawns the subtree for f and returns its root.
	Instantiate(g graph.Graph, f Form) (graph.Node, error)

	// ApplyAttribute sets one schema-declared attribute on a node.
	ApplyAttribute(g graph.Graph, n graph.Node, name string, v ir.Value) error
}

// Form is the adapter's internal, validated description of a node subtree.
type Form struct {
	Kind     *ir.KindSpec
	Attrs    ir.Map
	Children []Form
}

// Kind is the node data recording which kind a node was instantiated as.
type Kind string

// Attributes is the node data holding a node's current attribute values.
type Attributes map[string]ir.Value

// Schema is an Adapter over a fixed set of kinds.
type Schema struct {
	kinds map[string]*ir.KindSpec
	order []string
}

// NewSchema freezes kinds into an adapter. Duplicate kind names are rejected.
func NewSchema(kinds []ir.KindSpec) (*Schema, error) {
	s := &Schema{kinds: make(map[string]*ir.KindSpec, len(kinds))}
	for i := range kinds {
		k := kinds[i]
		if _, dup := s.kinds[k.Name]; dup {
			return nil, fmt.Errorf("adapter: duplicate kind %q", k.Name)
		}
		s.kinds[k.Name] = &k
		s.order = append(s.order, k.Name)
	}
	return s, nil
}

// Kinds returns the registered kind names in registration order.
func (s *Schema) Kinds() []string {
	return append([]string(nil), s.order...)
}

// Describe implements Adapter.
func (s *Schema) Describe(n ir.TemplateNode) (Form, error) {
	kind, ok := s.kinds[n.Kind]
	if !ok {
		return Form{}, &AttributeError{Code: ErrCodeUnknownKind, Kind: n.Kind,
			Message: "kind is not registered"}
	}
	for _, name := range n.Attrs.SortedKeys() {
		if err := check(kind, name, n.Attrs[name]); err != nil {
			return Form{}, err
		}
	}

	f := Form{Kind: kind, Attrs: n.Attrs}
	for _, c := range n.Children {
		child, err := s.Describe(c)
		if err != nil {
			return Form{}, err
		}
		f.Children = append(f.Children, child)
	}
	return f, nil
}

// Instantiate implements Adapter.
// The node receives Kind data and Attributes holding the kind's declared
// defaults overlaid with the form's static attributes. On failure every node
// spawned for f is removed again.
func (s *Schema) Instantiate(g graph.Graph, f Form) (graph.Node, error) {
	n := g.Spawn()
	var children []graph.Node
	fail := func(err error) (graph.Node, error) {
		for _, c := range children {
			_ = g.RemoveRecursive(c)
		}
		_ = g.RemoveRecursive(n)
		return graph.Node{}, err
	}

	attrs := make(Attributes, len(f.Kind.Attrs))
	for _, a := range f.Kind.Attrs {
		if a.Default != nil {
			attrs[a.Name] = a.Default
		}
	}
	maps.Copy(attrs, f.Attrs)

	if err := graph.Put(g, n, Kind(f.Kind.Name)); err != nil {
		return fail(err)
	}
	if err := graph.Put(g, n, attrs); err != nil {
		return fail(err)
	}

	children = make([]graph.Node, 0, len(f.Children))
	for _, cf := range f.Children {
		child, err := s.Instantiate(g, cf)
		if err != nil {
			return fail(err)
		}
		children = append(children, child)
	}
	if err := graph.AppendChildren(g, n, children); err != nil {
		return fail(err)
	}
	return n, nil
}

// ApplyAttribute implements Adapter.
// Setting None removes the attribute from the node.
func (s *Schema) ApplyAttribute(g graph.Graph, n graph.Node, name string, v ir.Value) error {
	kindName, ok := graph.Get[Kind](g, n)
	if !ok {
		return &AttributeError{Code: ErrCodeUnknownKind, Attr: name,
			Message: fmt.Sprintf("node %s has no kind", n)}
	}
	kind, ok := s.kinds[string(kindName)]
	if !ok {
		return &AttributeError{Code: ErrCodeUnknownKind, Kind: string(kindName), Attr: name,
			Message: "kind is not registered"}
	}
	if err := check(kind, name, v); err != nil {
		return err
	}

	attrs, _ := graph.Get[Attributes](g, n)
	next := maps.Clone(attrs)
	if next == nil {
		next = Attributes{}
	}
	if _, isNone := v.(ir.None); isNone {
		delete(next, name)
	} else {
		next[name] = v
	}
	return graph.Put(g, n, next)
}

func check(kind *ir.KindSpec, name string, v ir.Value) error {
	spec, ok := kind.Attr(name)
	if !ok {
		return &AttributeError{Code: ErrCodeUnknownAttribute, Kind: kind.Name, Attr: name,
			Message: "attribute is not declared"}
	}
	if !spec.Type.Accepts(v) {
		return &AttributeError{Code: ErrCodeTypeMismatch, Kind: kind.Name, Attr: name,
			Message: fmt.Sprintf("got %s, want %s", ir.TypeOf(v), spec.Type)}
	}
	return nil
}
