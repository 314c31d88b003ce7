package playback

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/nodesync/internal/adapter"
	"github.com/roach88/nodesync/internal/engine"
	"github.com/roach88/nodesync/internal/graph"
	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/subscription"
)

// Driver runs a Script tick by tick against a fresh host graph.
type Driver struct {
	script    *Script
	graph     *graph.Arena
	engine    *engine.Engine
	resources *subscription.Resources
	handles   *Handles
	anchors   map[string]graph.Node
	roots     map[string]*engine.Root // every root ever created, by name
	dropped   []*engine.Root
	reports   []engine.TickReport
	next      int
}

// NewDriver builds the engine for s. Templates are looked up in lib by
// name. opts are applied after the driver's own state and drop hook, so
// callers must not replace either.
func NewDriver(s *Script, lib []ir.Template, a adapter.Adapter, opts ...engine.EngineOption) *Driver {
	d := &Driver{
		script:    s,
		graph:     graph.NewArena(),
		resources: subscription.NewResources(),
		handles:   NewHandles(),
		anchors:   make(map[string]graph.Node),
		roots:     make(map[string]*engine.Root),
	}
	byName := make(map[string]ir.Template, len(lib))
	for _, t := range lib {
		byName[t.Name] = t
	}
	all := append([]engine.EngineOption{
		engine.WithState(d.resources),
		engine.WithDropHook(func(r *engine.Root) {
			d.dropped = append(d.dropped, r)
		}),
	}, opts...)
	d.engine = engine.New(a, Factory(s, byName, d.handles), all...)
	return d
}

// Engine returns the driven engine.
func (d *Driver) Engine() *engine.Engine { return d.engine }

// Graph returns the host graph.
func (d *Driver) Graph() *graph.Arena { return d.graph }

// Handles returns the named handles.
func (d *Driver) Handles() *Handles { return d.handles }

// Resources returns the host state the scopes subscribe to.
func (d *Driver) Resources() *subscription.Resources { return d.resources }

// Reports returns the reports of the ticks run so far.
func (d *Driver) Reports() []engine.TickReport { return d.reports }

// Done reports whether every tick has run.
func (d *Driver) Done() bool { return d.next >= len(d.script.Ticks) }

// Step applies the next tick's host changes and runs the tick.
func (d *Driver) Step(ctx context.Context) (engine.TickReport, error) {
	if d.Done() {
		return engine.TickReport{}, fmt.Errorf("playback finished after %d ticks", len(d.script.Ticks))
	}
	t := d.script.Ticks[d.next]
	d.next++

	if err := d.applyState(t); err != nil {
		return engine.TickReport{}, fmt.Errorf("tick %d: %w", d.next, err)
	}
	for _, name := range t.Despawn {
		n, ok := d.anchors[name]
		if !ok {
			return engine.TickReport{}, fmt.Errorf("tick %d: despawn of unknown anchor %q", d.next, name)
		}
		if err := d.graph.RemoveRecursive(n); err != nil {
			return engine.TickReport{}, fmt.Errorf("tick %d: despawn %q: %w", d.next, name, err)
		}
	}

	keys := make([]engine.RootKey, 0, len(t.Observe))
	for _, obs := range t.Observe {
		desc, anchor := splitObserve(obs)
		keys = append(keys, engine.RootKey{Anchor: d.anchor(anchor), Descriptor: desc})
	}

	report, err := d.engine.Tick(ctx, d.graph, keys)
	d.resources.Flush()
	for _, r := range d.engine.Roots() {
		d.roots[r.Name] = r
	}
	if err != nil {
		return report, err
	}
	d.reports = append(d.reports, report)

	// Removals queued now run at the start of the next tick.
	for _, rm := range t.DeferRemove {
		if err := d.deferRemove(rm); err != nil {
			return report, fmt.Errorf("tick %d: %w", d.next, err)
		}
	}
	return report, nil
}

// Run steps until the script is exhausted or a tick fails.
func (d *Driver) Run(ctx context.Context) ([]engine.TickReport, error) {
	for !d.Done() {
		if _, err := d.Step(ctx); err != nil {
			return d.reports, err
		}
	}
	return d.reports, nil
}

func (d *Driver) applyState(t TickSpec) error {
	keys := make([]string, 0, len(t.Set))
	for k := range t.Set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v, err := ir.FromNative(t.Set[k])
		if err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
		d.resources.Set(k, v)
	}
	for _, k := range t.Touch {
		d.resources.Touch(k)
	}
	for _, kind := range t.Emit {
		d.resources.Emit(kind)
	}
	return nil
}

func (d *Driver) anchor(name string) graph.Node {
	n, ok := d.anchors[name]
	if !ok {
		n = d.graph.Spawn()
		d.anchors[name] = n
	}
	return n
}

func (d *Driver) deferRemove(rm RemoveSpec) error {
	r, ok := d.roots[rm.Root]
	if !ok {
		return fmt.Errorf("defer_remove: unknown root %q", rm.Root)
	}
	id := ir.ElementID(rm.ID)
	queued := d.engine.Defer(func(g graph.Graph) error {
		_, err := r.Registry.RemoveSubtree(g, id)
		return err
	})
	if !queued {
		return fmt.Errorf("defer_remove: engine closed")
	}
	return nil
}

// Root returns a root by journal name, live or dropped.
func (d *Driver) Root(name string) (*engine.Root, bool) {
	r, ok := d.roots[name]
	return r, ok
}

// Dropped returns the roots dropped so far, in drop order.
func (d *Driver) Dropped() []*engine.Root { return d.dropped }

// Dump renders the live roots.
func (d *Driver) Dump() string {
	return engine.DumpRoots(d.graph, d.engine.Roots())
}

// DumpAll renders every root ever created, dropped ones marked as such.
func (d *Driver) DumpAll() string {
	var b strings.Builder
	b.WriteString(d.Dump())
	for _, r := range d.dropped {
		b.WriteString("# dropped ")
		b.WriteString(strings.TrimPrefix(engine.DumpRoot(d.graph, r), "# "))
	}
	return b.String()
}
