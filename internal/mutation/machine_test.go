package mutation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nodesync/internal/adapter"
	"github.com/roach88/nodesync/internal/graph"
	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/registry"
	"github.com/roach88/nodesync/internal/template"
)

type fixture struct {
	g      *graph.Arena
	target Target
	anchor graph.Node
}

func newFixture(t *testing.T) *fixture {
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

	cache := template.NewCache(schema)
	require.NoError(t, cache.Register(ir.Template{
		Name:  "row",
		Roots: []ir.TemplateNode{{Kind: "panel"}},
	}))
	require.NoError(t, cache.Register(ir.Template{
		Name: "pair",
		Roots: []ir.TemplateNode{
			{Kind: "panel", Children: []ir.TemplateNode{{Kind: "slot"}, {Kind: "slot"}}},
		},
	}))
	require.NoError(t, cache.Register(ir.Template{
		Name:  "label",
		Roots: []ir.TemplateNode{{Kind: "label"}, {Kind: "label"}},
	}))

	g := graph.NewArena()
	anchor := g.Spawn()
	return &fixture{
		g:      g,
		anchor: anchor,
		target: Target{
			Graph:     g,
			Adapter:   schema,
			Templates: cache,
			Registry:  registry.New(anchor),
		},
	}
}

func (f *fixture) apply(t *testing.T, script Script, opts ...Option) Result {
	t.Helper()
	res, err := NewMachine(opts...).Apply(f.target, script)
	require.NoError(t, err)
	return res
}

func (f *fixture) node(t *testing.T, id ir.ElementID) graph.Node {
	t.Helper()
	n, err := f.target.Registry.Lookup(id)
	require.NoError(t, err)
	return n
}

func (f *fixture) kind(n graph.Node) string {
	k, _ := graph.Get[adapter.Kind](f.g, n)
	return string(k)
}

// label renders a node as kind#id for outline comparisons.
func (f *fixture) dump() string {
	return graph.Dump(f.g, f.anchor, func(n graph.Node) string {
		name := f.kind(n)
		if name == "" {
			name = "node"
		}
		if id, ok := f.target.Registry.IDOf(n); ok {
			return name + "#" + id.String()
		}
		return name
	})
}

func TestApply_RowScenario(t *testing.T) {
	f := newFixture(t)

	f.apply(t, Script{
		LoadTemplate{Name: "row", Index: 0, ID: 1},
		CreatePlaceholder{ID: 2},
		CreatePlaceholder{ID: 3},
		AppendChildren{ID: 1, M: 2},
		AppendChildren{ID: 0, M: 1},
	})

	row := f.node(t, 1)
	children := f.g.Children(row)
	assert.Equal(t, []graph.Node{f.node(t, 2), f.node(t, 3)}, children)
}

func TestApply_AppendPreservesPushOrder(t *testing.T) {
	f := newFixture(t)

	f.apply(t, Script{
		CreatePlaceholder{ID: 1},
		CreatePlaceholder{ID: 2},
		CreatePlaceholder{ID: 3},
		AppendChildren{ID: 0, M: 3},
	})

	assert.Equal(t, []graph.Node{f.node(t, 1), f.node(t, 2), f.node(t, 3)}, f.g.Children(f.anchor))
}

func TestApply_WellFormedScriptMapsEveryID(t *testing.T) {
	f := newFixture(t)
	script := Script{
		LoadTemplate{Name: "pair", Index: 0, ID: 1},
		AssignID{Path: []uint8{0}, ID: 2},
		AssignID{Path: []uint8{1}, ID: 3},
		AppendChildren{ID: 0, M: 1},
		LoadTemplate{Name: "label", Index: 1, ID: 4},
		SetAttribute{ID: 4, Name: "text", Value: ir.Text("hi")},
		InsertAfter{ID: 2, M: 1},
	}
	res := f.apply(t, script)

	assert.Equal(t, len(script), res.Ops)
	for _, id := range []ir.ElementID{0, 1, 2, 3, 4} {
		n := f.node(t, id)
		assert.True(t, f.g.Alive(n), "id %d", id)
	}
	assert.Equal(t, "node#0\n  panel#1\n    slot#2\n    label#4\n    slot#3\n", f.dump())
}

func TestApply_StackNotEmpty(t *testing.T) {
	f := newFixture(t)

	_, err := NewMachine().Apply(f.target, Script{CreatePlaceholder{ID: 1}})

	require.Error(t, err)
	assert.Equal(t, ErrCodeStackNotEmpty, ViolationCodeOf(err))
	var ae *ApplyError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 1, ae.Index)
}

func TestApply_StackUnderflow(t *testing.T) {
	f := newFixture(t)

	_, err := NewMachine().Apply(f.target, Script{
		CreatePlaceholder{ID: 1},
		AppendChildren{ID: 0, M: 2},
	})

	assert.Equal(t, ErrCodeStackUnderflow, ViolationCodeOf(err))
	assert.Contains(t, err.Error(), "op 1 AppendChildren(id=0 m=2)")
}

func TestApply_UnknownTemplate(t *testing.T) {
	f := newFixture(t)

	_, err := NewMachine().Apply(f.target, Script{LoadTemplate{Name: "ghost", ID: 1}})

	assert.Equal(t, ErrCodeUnknownTemplate, ViolationCodeOf(err))
	assert.True(t, template.IsUnknownTemplate(err))
}

func TestApply_MissingMapping(t *testing.T) {
	f := newFixture(t)

	_, err := NewMachine().Apply(f.target, Script{RemoveNode{ID: 9}})

	assert.True(t, registry.IsMissingMapping(err))
	assert.False(t, IsContractViolation(err))
}

func TestApply_RootAnchorProtected(t *testing.T) {
	tests := []struct {
		name   string
		script Script
	}{
		{"remove", Script{RemoveNode{ID: 0}}},
		{"replace", Script{CreatePlaceholder{ID: 1}, ReplaceWith{ID: 0, M: 1}}},
		{"rebind", Script{CreatePlaceholder{ID: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := NewMachine().Apply(f.target, tt.script)
			assert.Equal(t, ErrCodeRootAnchor, ViolationCodeOf(err))
			assert.True(t, f.g.Alive(f.anchor))
		})
	}
}

func TestApply_RemoveNodeRemovesExactlySubtree(t *testing.T) {
	f := newFixture(t)
	f.apply(t, Script{
		LoadTemplate{Name: "pair", Index: 0, ID: 1},
		AssignID{Path: []uint8{0}, ID: 2},
		AssignID{Path: []uint8{1}, ID: 3},
		CreatePlaceholder{ID: 4},
		AppendChildren{ID: 0, M: 2},
	})
	doomed := []graph.Node{f.node(t, 1), f.node(t, 2), f.node(t, 3)}

	res := f.apply(t, Script{RemoveNode{ID: 1}})

	assert.Equal(t, 3, res.Removed)
	for _, n := range doomed {
		assert.False(t, f.g.Alive(n))
	}
	for _, id := range []ir.ElementID{1, 2, 3} {
		_, err := f.target.Registry.Lookup(id)
		assert.True(t, registry.IsMissingMapping(err), "id %d", id)
	}
	assert.Equal(t, []graph.Node{f.node(t, 4)}, f.g.Children(f.anchor), "sibling survives")
}

func TestApply_ReplaceWith(t *testing.T) {
	f := newFixture(t)
	f.apply(t, Script{
		CreatePlaceholder{ID: 1},
		CreatePlaceholder{ID: 2},
		CreatePlaceholder{ID: 3},
		AppendChildren{ID: 0, M: 3},
	})
	old := f.node(t, 2)

	f.apply(t, Script{
		LoadTemplate{Name: "label", Index: 0, ID: 4},
		LoadTemplate{Name: "label", Index: 1, ID: 5},
		ReplaceWith{ID: 2, M: 2},
	})

	assert.False(t, f.g.Alive(old))
	assert.Equal(t, []graph.Node{f.node(t, 1), f.node(t, 4), f.node(t, 5), f.node(t, 3)}, f.g.Children(f.anchor))
}

func TestApply_ReplaceWithSiblingFromSameParent(t *testing.T) {
	f := newFixture(t)
	f.apply(t, Script{
		CreatePlaceholder{ID: 1},
		CreatePlaceholder{ID: 2},
		CreatePlaceholder{ID: 3},
		AppendChildren{ID: 0, M: 3},
	})

	// Move 1 into the slot of 3: position is measured after 1 is detached.
	f.apply(t, Script{PushRoot{ID: 1}, ReplaceWith{ID: 3, M: 1}})

	assert.Equal(t, []graph.Node{f.node(t, 2), f.node(t, 1)}, f.g.Children(f.anchor))
}

func TestApply_ReplacePlaceholder(t *testing.T) {
	f := newFixture(t)

	f.apply(t, Script{
		LoadTemplate{Name: "pair", Index: 0, ID: 1},
		LoadTemplate{Name: "label", Index: 0, ID: 2},
		CreatePlaceholder{ID: 3},
		ReplacePlaceholder{Path: []uint8{1}, M: 2},
		AppendChildren{ID: 0, M: 1},
	})

	assert.Equal(t, "node#0\n  panel#1\n    slot\n    label#2\n    node#3\n", f.dump())
}

func TestApply_ReplacePlaceholderClearsHandle(t *testing.T) {
	f := newFixture(t)
	h := registry.NewHandle()
	f.apply(t, Script{
		LoadTemplate{Name: "pair", Index: 0, ID: 1},
		AssignID{Path: []uint8{0}, ID: 2},
		SetAttribute{ID: 2, Name: "ref", Value: ir.Any{V: h}},
		AppendChildren{ID: 0, M: 1},
	})
	_, ok := h.Get()
	require.True(t, ok)

	f.apply(t, Script{
		PushRoot{ID: 1},
		CreatePlaceholder{ID: 3},
		ReplacePlaceholder{Path: []uint8{0}, M: 1},
		AppendChildren{ID: 0, M: 1},
	})

	_, ok = h.Get()
	assert.False(t, ok)
	_, err := f.target.Registry.Lookup(2)
	assert.True(t, registry.IsMissingMapping(err))
}

func TestApply_InsertBeforeAndAfter(t *testing.T) {
	f := newFixture(t)
	f.apply(t, Script{CreatePlaceholder{ID: 1}, AppendChildren{ID: 0, M: 1}})

	f.apply(t, Script{
		CreatePlaceholder{ID: 2},
		InsertBefore{ID: 1, M: 1},
		CreatePlaceholder{ID: 3},
		CreatePlaceholder{ID: 4},
		InsertAfter{ID: 1, M: 2},
	})

	assert.Equal(t,
		[]graph.Node{f.node(t, 2), f.node(t, 1), f.node(t, 3), f.node(t, 4)},
		f.g.Children(f.anchor))
}

func TestApply_InsertZeroIsNoop(t *testing.T) {
	f := newFixture(t)
	f.apply(t, Script{CreatePlaceholder{ID: 1}, AppendChildren{ID: 0, M: 1}})
	before := f.dump()

	res := f.apply(t, Script{InsertAfter{ID: 1, M: 0}, InsertBefore{ID: 1, M: 0}})

	assert.Equal(t, 2, res.Ops)
	assert.Equal(t, before, f.dump())
}

func TestApply_InsertWithoutParent(t *testing.T) {
	f := newFixture(t)

	_, err := NewMachine().Apply(f.target, Script{
		CreatePlaceholder{ID: 1},
		InsertAfter{ID: 0, M: 1},
	})

	assert.Equal(t, ErrCodeNoParent, ViolationCodeOf(err))
}

func TestApply_InvalidPath(t *testing.T) {
	f := newFixture(t)

	_, err := NewMachine().Apply(f.target, Script{
		LoadTemplate{Name: "pair", Index: 0, ID: 1},
		AssignID{Path: []uint8{5}, ID: 2},
	})

	assert.Equal(t, ErrCodeInvalidPath, ViolationCodeOf(err))
}

func TestApply_SetAttributeIdempotent(t *testing.T) {
	f := newFixture(t)
	f.apply(t, Script{LoadTemplate{Name: "row", Index: 0, ID: 1}, AppendChildren{ID: 0, M: 1}})
	set := Script{SetAttribute{ID: 1, Name: "gap", Value: ir.Int(8)}}

	f.apply(t, set)
	once, _ := graph.Get[adapter.Attributes](f.g, f.node(t, 1))
	f.apply(t, set)
	twice, _ := graph.Get[adapter.Attributes](f.g, f.node(t, 1))

	assert.Equal(t, once, twice)
	assert.Equal(t, ir.Int(8), twice["gap"])
}

func TestApply_AttributeErrorsAreViolations(t *testing.T) {
	tests := []struct {
		name string
		op   SetAttribute
	}{
		{"unknown attribute", SetAttribute{ID: 1, Name: "color", Value: ir.Text("red")}},
		{"type mismatch", SetAttribute{ID: 1, Name: "gap", Value: ir.Text("wide")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.apply(t, Script{LoadTemplate{Name: "row", Index: 0, ID: 1}, AppendChildren{ID: 0, M: 1}})

			_, err := NewMachine().Apply(f.target, Script{tt.op})

			assert.Equal(t, ErrCodeAttribute, ViolationCodeOf(err))
			assert.True(t, adapter.IsAttributeError(err))
			attrs, _ := graph.Get[adapter.Attributes](f.g, f.node(t, 1))
			assert.Equal(t, ir.Int(0), attrs["gap"], "prior state unchanged")
		})
	}
}

func TestApply_HandleBindingAndRemoval(t *testing.T) {
	f := newFixture(t)
	h := registry.NewHandle()
	f.apply(t, Script{
		CreatePlaceholder{ID: 1},
		SetAttribute{ID: 1, Name: "ref", Value: ir.Any{V: h}},
		AppendChildren{ID: 0, M: 1},
	})
	got, ok := h.Get()
	require.True(t, ok)
	assert.Equal(t, f.node(t, 1), got)

	f.apply(t, Script{RemoveNode{ID: 1}})

	_, ok = h.Get()
	assert.False(t, ok, "cleared in the same apply pass")
}

func TestApply_HandleRebindMovesBinding(t *testing.T) {
	f := newFixture(t)
	h := registry.NewHandle()
	f.apply(t, Script{
		CreatePlaceholder{ID: 1},
		CreatePlaceholder{ID: 2},
		SetAttribute{ID: 1, Name: "ref", Value: ir.Any{V: h}},
		SetAttribute{ID: 2, Name: "ref", Value: ir.Any{V: h}},
		AppendChildren{ID: 0, M: 2},
	})
	got, _ := h.Get()
	assert.Equal(t, f.node(t, 2), got)

	f.apply(t, Script{RemoveNode{ID: 1}})
	_, ok := h.Get()
	assert.True(t, ok, "removing the previous holder leaves the handle alone")

	f.apply(t, Script{SetAttribute{ID: 2, Name: "ref", Value: ir.None{}}})
	_, ok = h.Get()
	assert.False(t, ok)
}

func TestApply_BadHandle(t *testing.T) {
	f := newFixture(t)

	_, err := NewMachine(WithHandleAttribute("anchor")).Apply(f.target, Script{
		SetAttribute{ID: 0, Name: "anchor", Value: ir.Text("not a handle")},
	})

	assert.Equal(t, ErrCodeBadHandle, ViolationCodeOf(err))
}

func TestApply_Recorder(t *testing.T) {
	f := newFixture(t)
	var seen []Kind

	f.apply(t, Script{
		CreatePlaceholder{ID: 1},
		AppendChildren{ID: 0, M: 1},
	}, WithRecorder(func(i int, o Op) {
		seen = append(seen, o.Kind())
	}))

	assert.Equal(t, []Kind{KindCreatePlaceholder, KindAppendChildren}, seen)
}
