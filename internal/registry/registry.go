// Package registry maps diff-engine element ids to graph nodes for one root
// and tracks the back-reference handles bound to those nodes.
//
// INVARIANTS:
//   - forward and backward are inverse: an id present in one is present in the other
//   - at most one handle is bound to a node
//   - removal clears handles and mappings before the graph frees the nodes
package registry

import (
	"slices"

	"github.com/roach88/nodesync/internal/graph"
	"github.com/roach88/nodesync/internal/ir"
)

// Registry is the identifier registry of one root.
// Not safe for concurrent use; the tick owns it.
type Registry struct {
	forward  map[ir.ElementID]graph.Node
	backward map[graph.Node]ir.ElementID
	handles  map[graph.Node]*Handle
	bindings map[*Handle]graph.Node
}

// New creates a registry with anchor bound to ir.RootElement.
func New(anchor graph.Node) *Registry {
	r := &Registry{
		forward:  make(map[ir.ElementID]graph.Node),
		backward: make(map[graph.Node]ir.ElementID),
		handles:  make(map[graph.Node]*Handle),
		bindings: make(map[*Handle]graph.Node),
	}
	r.Bind(ir.RootElement, anchor)
	return r
}

// Anchor returns the node bound to id 0.
func (r *Registry) Anchor() graph.Node {
	return r.forward[ir.RootElement]
}

// Bind maps id to n, dropping any previous mapping of either side.
func (r *Registry) Bind(id ir.ElementID, n graph.Node) {
	if old, ok := r.forward[id]; ok {
		delete(r.backward, old)
	}
	if oldID, ok := r.backward[n]; ok {
		delete(r.forward, oldID)
	}
	r.forward[id] = n
	r.backward[n] = id
}

// Lookup returns the node mapped to id.
func (r *Registry) Lookup(id ir.ElementID) (graph.Node, error) {
	n, ok := r.forward[id]
	if !ok {
		return graph.Node{}, &MissingMappingError{ID: id}
	}
	return n, nil
}

// Resolve is Lookup that also rejects nodes the graph has already freed,
// for instance by a host command that bypassed the registry.
func (r *Registry) Resolve(g graph.Graph, id ir.ElementID) (graph.Node, error) {
	n, err := r.Lookup(id)
	if err != nil {
		return graph.Node{}, err
	}
	if !g.Alive(n) {
		return graph.Node{}, &MissingMappingError{ID: id, Dead: true}
	}
	return n, nil
}

// IDOf returns the id mapped to n.
func (r *Registry) IDOf(n graph.Node) (ir.ElementID, bool) {
	id, ok := r.backward[n]
	return id, ok
}

// Len returns the number of mapped ids, anchor included.
func (r *Registry) Len() int {
	return len(r.forward)
}

// IDs returns every mapped id in ascending order.
func (r *Registry) IDs() []ir.ElementID {
	ids := make([]ir.ElementID, 0, len(r.forward))
	for id := range r.forward {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// BindHandle binds h to n.
//
// A prior binding of h to another node is dropped. A different handle
// already bound to n is displaced and cleared. Rebinding h to the node it
// already holds changes nothing.
func (r *Registry) BindHandle(h *Handle, n graph.Node) {
	if cur, ok := r.bindings[h]; ok {
		if cur == n {
			return
		}
		delete(r.handles, cur)
	}
	if other, ok := r.handles[n]; ok {
		delete(r.bindings, other)
		other.clearIf(n)
	}
	r.handles[n] = h
	r.bindings[h] = n
	h.set(n)
}

// UnbindHandle clears whatever handle is bound to n.
func (r *Registry) UnbindHandle(n graph.Node) {
	h, ok := r.handles[n]
	if !ok {
		return
	}
	delete(r.handles, n)
	delete(r.bindings, h)
	h.clearIf(n)
}

// HandleOf returns the handle bound to n.
func (r *Registry) HandleOf(n graph.Node) (*Handle, bool) {
	h, ok := r.handles[n]
	return h, ok
}

// RemoveSubtree removes the node mapped to id and everything below it.
// It returns how many graph nodes were freed.
func (r *Registry) RemoveSubtree(g graph.Graph, id ir.ElementID) (int, error) {
	n, err := r.Resolve(g, id)
	if err != nil {
		return 0, err
	}
	return r.RemoveTree(g, n)
}

// RemoveTree removes n and its descendants whether or not n itself has an
// id. Descendants are enumerated through the graph's child links; each has
// its handle cleared and mapping deleted, then n does, and only then does
// the graph free the nodes.
func (r *Registry) RemoveTree(g graph.Graph, n graph.Node) (int, error) {
	doomed := slices.Collect(graph.Descendants(g, n))
	for _, d := range doomed {
		r.forget(d)
	}
	r.forget(n)
	if err := g.RemoveRecursive(n); err != nil {
		return 0, err
	}
	return len(doomed) + 1, nil
}

func (r *Registry) forget(n graph.Node) {
	r.UnbindHandle(n)
	if id, ok := r.backward[n]; ok {
		delete(r.backward, n)
		delete(r.forward, id)
	}
}
