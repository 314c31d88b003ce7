package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nodesync/internal/adapter"
	"github.com/roach88/nodesync/internal/graph"
	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/mutation"
	"github.com/roach88/nodesync/internal/subscription"
)

// fakeDiff is a DiffEngine driven by canned scripts.
// diffs[s] is emitted once, the first time s is marked dirty.
type fakeDiff struct {
	templates []ir.Template
	build     mutation.Script
	onBuild   func(tc *TickContext) error
	diffs     map[subscription.ScopeID]mutation.Script

	marked    map[subscription.ScopeID]bool
	builds    int
	diffCalls int
	lastDirty []subscription.ScopeID
	lastTC    *TickContext
}

func (d *fakeDiff) Templates() []ir.Template {
	return d.templates
}

func (d *fakeDiff) MarkDirty(s subscription.ScopeID) {
	if d.marked == nil {
		d.marked = make(map[subscription.ScopeID]bool)
	}
	d.marked[s] = true
}

func (d *fakeDiff) Build(tc *TickContext) (mutation.Script, error) {
	d.builds++
	d.lastTC = tc
	d.marked = nil
	if d.onBuild != nil {
		if err := d.onBuild(tc); err != nil {
			return nil, err
		}
	}
	return d.build, nil
}

func (d *fakeDiff) Diff(tc *TickContext, dirty []subscription.ScopeID) (mutation.Script, error) {
	d.diffCalls++
	d.lastTC = tc
	d.lastDirty = dirty
	var out mutation.Script
	for _, s := range dirty {
		if d.marked[s] {
			out = append(out, d.diffs[s]...)
			delete(d.diffs, s)
		}
	}
	d.marked = nil
	return out, nil
}

func testSchema(t *testing.T) *adapter.Schema {
	t.Helper()
	schema, err := adapter.NewSchema([]ir.KindSpec{
		{Name: "panel", Attrs: []ir.AttrSpec{
			{Name: "gap", Type: ir.AttrInt, Default: ir.Int(0)},
			{Name: "title", Type: ir.AttrText},
		}},
		{Name: "slot"},
		{Name: "label", Attrs: []ir.AttrSpec{{Name: "text", Type: ir.AttrText}}},
	})
	require.NoError(t, err)
	return schema
}

func rowTemplate() ir.Template {
	return ir.Template{Name: "row", Roots: []ir.TemplateNode{{Kind: "panel"}}}
}

// rowBuild loads a row as id 1 with two placeholder children 2 and 3.
func rowBuild() mutation.Script {
	return mutation.Script{
		mutation.LoadTemplate{Name: "row", Index: 0, ID: 1},
		mutation.CreatePlaceholder{ID: 2},
		mutation.CreatePlaceholder{ID: 3},
		mutation.AppendChildren{ID: 1, M: 2},
		mutation.AppendChildren{ID: 0, M: 1},
	}
}

// factoryOf serves diff engines by descriptor.
func factoryOf(diffs map[string]*fakeDiff) DiffFactory {
	return func(key RootKey) (DiffEngine, error) {
		d, ok := diffs[key.Descriptor]
		if !ok {
			d = &fakeDiff{}
		}
		return d, nil
	}
}

func newTestEngine(t *testing.T, diffs map[string]*fakeDiff, opts ...EngineOption) (*Engine, *graph.Arena) {
	t.Helper()
	opts = append([]EngineOption{WithRunIDGenerator(NewFixedGenerator("run-1"))}, opts...)
	return New(testSchema(t), factoryOf(diffs), opts...), graph.NewArena()
}

// counterValue sums a gathered counter family, optionally filtered by one
// label pair.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, label ...string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if len(label) == 2 && !hasLabel(m, label[0], label[1]) {
				continue
			}
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
	}
	return total
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}
