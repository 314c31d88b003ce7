package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/nodesync/internal/adapter"
	"github.com/roach88/nodesync/internal/graph"
	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/registry"
)

// Label returns the Dump label function for nodes under one root.
//
// A line reads kind, then #id when the node is registered, then the
// attributes as canonical JSON, then & when a handle is bound:
//
//	panel#1 {"gap":4} &
//
// The anchor always renders as "anchor#0" so host data on it never leaks
// into a dump.
func Label(g graph.Graph, reg *registry.Registry) func(graph.Node) string {
	return func(n graph.Node) string {
		if n == reg.Anchor() {
			return "anchor#0"
		}
		var b strings.Builder
		if kind, ok := graph.Get[adapter.Kind](g, n); ok {
			b.WriteString(string(kind))
		} else {
			b.WriteString("_")
		}
		if id, ok := reg.IDOf(n); ok {
			fmt.Fprintf(&b, "#%d", id)
		}
		if attrs, ok := graph.Get[adapter.Attributes](g, n); ok && len(attrs) > 0 {
			data, err := ir.MarshalCanonical(ir.Map(attrs))
			if err != nil {
				data = []byte(fmt.Sprintf("!%v", err))
			}
			b.WriteByte(' ')
			b.Write(data)
		}
		if _, ok := reg.HandleOf(n); ok {
			b.WriteString(" &")
		}
		return b.String()
	}
}

// DumpRoot renders a root's subtree under a "# name" header.
func DumpRoot(g graph.Graph, r *Root) string {
	anchor := r.Registry.Anchor()
	if !g.Alive(anchor) {
		return fmt.Sprintf("# %s (dead)\n", r.Name)
	}
	return "# " + r.Name + "\n" + graph.Dump(g, anchor, Label(g, r.Registry))
}

// DumpRoots renders the given roots ordered by name.
func DumpRoots(g graph.Graph, roots []*Root) string {
	sorted := slices.Clone(roots)
	slices.SortFunc(sorted, func(a, b *Root) int {
		return strings.Compare(a.Name, b.Name)
	})
	var b strings.Builder
	for _, r := range sorted {
		b.WriteString(DumpRoot(g, r))
	}
	return b.String()
}
