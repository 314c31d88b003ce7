package playback

import (
	"fmt"

	"github.com/roach88/nodesync/internal/engine"
	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/mutation"
	"github.com/roach88/nodesync/internal/subscription"
)

// Diff is an engine.DiffEngine replaying the scripts of one RootSpec.
type Diff struct {
	build     mutation.Script
	scopes    []ScopeSpec
	pending   map[subscription.ScopeID][]mutation.Script
	teardown  map[subscription.ScopeID]bool
	templates []ir.Template
	marked    map[subscription.ScopeID]bool
}

var _ engine.DiffEngine = (*Diff)(nil)

// NewDiff compiles spec. Templates referenced by LoadTemplate ops are
// taken from lib; a name lib lacks is left for the engine to reject.
func NewDiff(spec RootSpec, lib map[string]ir.Template, handles *Handles) (*Diff, error) {
	build, err := compileOps(spec.Build, handles)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	d := &Diff{
		build:    build,
		scopes:   spec.Scopes,
		pending:  make(map[subscription.ScopeID][]mutation.Script, len(spec.Scopes)),
		teardown: make(map[subscription.ScopeID]bool),
		marked:   make(map[subscription.ScopeID]bool),
	}
	used := make(map[string]bool)
	d.collectTemplates(build, lib, used)
	for _, sc := range spec.Scopes {
		id := subscription.ScopeID(sc.ID)
		for i, ops := range sc.Diffs {
			script, err := compileOps(ops, handles)
			if err != nil {
				return nil, fmt.Errorf("scope %d diff %d: %w", sc.ID, i, err)
			}
			d.pending[id] = append(d.pending[id], script)
			d.collectTemplates(script, lib, used)
		}
		if sc.Teardown {
			d.teardown[id] = true
		}
	}
	return d, nil
}

func (d *Diff) collectTemplates(s mutation.Script, lib map[string]ir.Template, used map[string]bool) {
	for _, o := range s {
		lt, ok := o.(mutation.LoadTemplate)
		if !ok || used[lt.Name] {
			continue
		}
		used[lt.Name] = true
		if t, ok := lib[lt.Name]; ok {
			d.templates = append(d.templates, t)
		}
	}
}

// Templates returns the templates the scripts load, in first-use order.
func (d *Diff) Templates() []ir.Template {
	return d.templates
}

// MarkDirty schedules scope for the next Diff.
func (d *Diff) MarkDirty(scope subscription.ScopeID) {
	d.marked[scope] = true
}

// Build subscribes every scope and returns the build script.
func (d *Diff) Build(tc *engine.TickContext) (mutation.Script, error) {
	for _, sc := range d.scopes {
		hooks, err := tc.Hooks(subscription.ScopeID(sc.ID))
		if err != nil {
			return nil, err
		}
		if sc.World {
			hooks.UseWorld()
		}
		for _, q := range sc.Queries {
			hooks.UseQuery(q)
		}
		for _, key := range sc.Resources {
			hooks.UseResource(key)
		}
		for _, kind := range sc.Events {
			hooks.UseEvent(kind, subscription.EventPending(kind))
		}
	}
	clear(d.marked)
	return d.build, nil
}

// Diff emits the next queued diff of every dirty scope, in scope order.
func (d *Diff) Diff(tc *engine.TickContext, dirty []subscription.ScopeID) (mutation.Script, error) {
	defer clear(d.marked)
	var out mutation.Script
	for _, scope := range dirty {
		if !d.marked[scope] {
			continue
		}
		queue := d.pending[scope]
		if len(queue) == 0 {
			continue
		}
		out = append(out, queue[0]...)
		d.pending[scope] = queue[1:]
		if len(queue) == 1 && d.teardown[scope] {
			if err := tc.DropScope(scope); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Remaining returns how many diffs scope still has queued.
func (d *Diff) Remaining(scope subscription.ScopeID) int {
	return len(d.pending[scope])
}

// Factory returns a DiffFactory creating a Diff per observed descriptor.
func Factory(s *Script, lib map[string]ir.Template, handles *Handles) engine.DiffFactory {
	return func(key engine.RootKey) (engine.DiffEngine, error) {
		spec, ok := s.Roots[key.Descriptor]
		if !ok {
			return nil, fmt.Errorf("no root described as %q", key.Descriptor)
		}
		return NewDiff(spec, lib, handles)
	}
}
