package adapter

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nodesync/internal/graph"
	"github.com/roach88/nodesync/internal/ir"
)

func testKinds() []ir.KindSpec {
	return []ir.KindSpec{
		{Name: "panel", Attrs: []ir.AttrSpec{
			{Name: "gap", Type: ir.AttrInt, Default: ir.Int(0)},
			{Name: "title", Type: ir.AttrText},
		}},
		{Name: "label", Attrs: []ir.AttrSpec{
			{Name: "text", Type: ir.AttrText, Default: ir.Text("")},
			{Name: "scale", Type: ir.AttrFloat},
		}},
	}
}

func newSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(testKinds())
	require.NoError(t, err)
	return s
}

func TestNewSchemaRejectsDuplicates(t *testing.T) {
	_, err := NewSchema([]ir.KindSpec{{Name: "a"}, {Name: "a"}})
	assert.Error(t, err)
}

func TestSchema_Kinds(t *testing.T) {
	assert.Equal(t, []string{"panel", "label"}, newSchema(t).Kinds())
}

func TestSchema_DescribeAndInstantiate(t *testing.T) {
	s := newSchema(t)
	g := graph.NewArena()

	form, err := s.Describe(ir.TemplateNode{
		Kind:  "panel",
		Attrs: ir.Map{"gap": ir.Int(4)},
		Children: []ir.TemplateNode{
			{Kind: "label"},
			{Kind: "label", Attrs: ir.Map{"text": ir.Text("hi")}},
		},
	})
	require.NoError(t, err)

	root, err := s.Instantiate(g, form)
	require.NoError(t, err)

	kind, ok := graph.Get[Kind](g, root)
	require.True(t, ok)
	assert.Equal(t, Kind("panel"), kind)

	attrs, _ := graph.Get[Attributes](g, root)
	assert.Equal(t, Attributes{"gap": ir.Int(4)}, attrs, "static attrs override defaults")

	children := g.Children(root)
	require.Len(t, children, 2)
	first, _ := graph.Get[Attributes](g, children[0])
	assert.Equal(t, Attributes{"text": ir.Text("")}, first, "defaults applied")
	second, _ := graph.Get[Attributes](g, children[1])
	assert.Equal(t, Attributes{"text": ir.Text("hi")}, second)
}

func TestSchema_DescribeErrors(t *testing.T) {
	s := newSchema(t)

	tests := []struct {
		name string
		node ir.TemplateNode
		code AttributeErrorCode
	}{
		{"unknown kind", ir.TemplateNode{Kind: "ghost"}, ErrCodeUnknownKind},
		{"unknown attr", ir.TemplateNode{Kind: "panel", Attrs: ir.Map{"nope": ir.Int(1)}}, ErrCodeUnknownAttribute},
		{"mismatch", ir.TemplateNode{Kind: "panel", Attrs: ir.Map{"gap": ir.Text("1")}}, ErrCodeTypeMismatch},
		{"nested", ir.TemplateNode{Kind: "panel", Children: []ir.TemplateNode{{Kind: "ghost"}}}, ErrCodeUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Describe(tt.node)
			var ae *AttributeError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.code, ae.Code)
		})
	}
}

func TestSchema_ApplyAttribute(t *testing.T) {
	s := newSchema(t)
	g := graph.NewArena()
	form, err := s.Describe(ir.TemplateNode{Kind: "label"})
	require.NoError(t, err)
	n, err := s.Instantiate(g, form)
	require.NoError(t, err)

	require.NoError(t, s.ApplyAttribute(g, n, "scale", ir.Float(2)))
	attrs, _ := graph.Get[Attributes](g, n)
	assert.Equal(t, ir.Float(2), attrs["scale"])

	require.NoError(t, s.ApplyAttribute(g, n, "scale", ir.None{}))
	attrs, _ = graph.Get[Attributes](g, n)
	_, present := attrs["scale"]
	assert.False(t, present, "None clears the attribute")
}

func TestSchema_ApplyAttributeIdempotent(t *testing.T) {
	s := newSchema(t)
	g := graph.NewArena()
	form, _ := s.Describe(ir.TemplateNode{Kind: "label"})
	n, _ := s.Instantiate(g, form)

	require.NoError(t, s.ApplyAttribute(g, n, "text", ir.Text("x")))
	once, _ := graph.Get[Attributes](g, n)
	require.NoError(t, s.ApplyAttribute(g, n, "text", ir.Text("x")))
	twice, _ := graph.Get[Attributes](g, n)

	assert.Equal(t, once, twice)
}

func TestSchema_ApplyAttributeErrors(t *testing.T) {
	s := newSchema(t)
	g := graph.NewArena()
	form, _ := s.Describe(ir.TemplateNode{Kind: "label"})
	n, _ := s.Instantiate(g, form)

	err := s.ApplyAttribute(g, n, "gap", ir.Int(1))
	assert.True(t, IsAttributeError(err))
	assert.Contains(t, err.Error(), "UNKNOWN_ATTRIBUTE: label.gap")

	err = s.ApplyAttribute(g, n, "scale", ir.Int(1))
	var ae *AttributeError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeTypeMismatch, ae.Code, "int is not coerced to float")

	bare := g.Spawn()
	err = s.ApplyAttribute(g, bare, "text", ir.Text("x"))
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeUnknownKind, ae.Code, "placeholders have no kind")

	attrs, _ := graph.Get[Attributes](g, n)
	assert.Equal(t, Attributes{"text": ir.Text("")}, attrs, "failed writes leave state unchanged")
}

// flakyGraph fails the nth SetData call.
type flakyGraph struct {
	*graph.Arena
	failAt int
	calls  int
}

func (g *flakyGraph) SetData(n graph.Node, key reflect.Type, value any) error {
	g.calls++
	if g.calls == g.failAt {
		return errors.New("data store full")
	}
	return g.Arena.SetData(n, key, value)
}

func TestSchema_InstantiateFailureLeavesNoNodes(t *testing.T) {
	s := newSchema(t)
	form, err := s.Describe(ir.TemplateNode{
		Kind:     "panel",
		Children: []ir.TemplateNode{{Kind: "label"}, {Kind: "label"}},
	})
	require.NoError(t, err)

	// Two writes per node: panel, first label, second label.
	for failAt := 1; failAt <= 6; failAt++ {
		t.Run(fmt.Sprintf("write %d", failAt), func(t *testing.T) {
			arena := graph.NewArena()
			g := &flakyGraph{Arena: arena, failAt: failAt}

			_, err := s.Instantiate(g, form)
			require.Error(t, err)
			assert.Equal(t, 0, arena.Len())
		})
	}
}
