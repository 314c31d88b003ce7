package engine

import (
	"fmt"

	"github.com/roach88/nodesync/internal/adapter"
	"github.com/roach88/nodesync/internal/graph"
	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/mutation"
	"github.com/roach88/nodesync/internal/registry"
	"github.com/roach88/nodesync/internal/subscription"
	"github.com/roach88/nodesync/internal/template"
)

// RootKey identifies a root: the host node it renders under and the
// descriptor naming what renders there.
type RootKey struct {
	Anchor     graph.Node
	Descriptor string
}

func (k RootKey) String() string {
	return fmt.Sprintf("%s@%s", k.Descriptor, k.Anchor)
}

// DiffEngine produces edit-scripts for one root.
//
// Build returns the script that creates the root's content from nothing.
// Diff returns the script that brings the content up to date for the
// scopes marked dirty since the previous tick; an empty dirty set must
// yield an empty script.
type DiffEngine interface {
	// Templates lists the templates the scripts may load. They are
	// registered once, when the root is created.
	Templates() []ir.Template

	// MarkDirty schedules scope for re-evaluation by the next Build or Diff.
	MarkDirty(scope subscription.ScopeID)

	Build(tc *TickContext) (mutation.Script, error)
	Diff(tc *TickContext, dirty []subscription.ScopeID) (mutation.Script, error)
}

// DiffFactory creates the diff engine for a newly observed root.
type DiffFactory func(key RootKey) (DiffEngine, error)

// Root is one entry of the persistent root table.
//
// It bundles everything a root's scripts are applied against. Id 0 is
// bound to the anchor when the root is created and stays bound for the
// root's lifetime.
type Root struct {
	Key           RootKey
	Name          string // unique within a run; used by the journal
	Diff          DiffEngine
	Registry      *registry.Registry
	Templates     *template.Cache
	Subscriptions *subscription.Registry
	NeverBuilt    bool

	created int64 // tick the root was created in
}

// Created returns the tick the root was first observed in.
func (r *Root) Created() int64 {
	return r.created
}

// target is the mutation target for this root's scripts.
func (r *Root) target(g graph.Graph, a adapter.Adapter) mutation.Target {
	return mutation.Target{
		Graph:     g,
		Adapter:   a,
		Templates: r.Templates,
		Registry:  r.Registry,
	}
}
