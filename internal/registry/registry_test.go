package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nodesync/internal/graph"
	"github.com/roach88/nodesync/internal/ir"
)

// tree spawns anchor -> a -> (b, c) and binds ids 1..3 to a, b, c.
func tree(t *testing.T) (*graph.Arena, *Registry, []graph.Node) {
	t.Helper()
	g := graph.NewArena()
	anchor := g.Spawn()
	a, b, c := g.Spawn(), g.Spawn(), g.Spawn()
	require.NoError(t, graph.AppendChildren(g, anchor, []graph.Node{a}))
	require.NoError(t, graph.AppendChildren(g, a, []graph.Node{b, c}))

	r := New(anchor)
	r.Bind(1, a)
	r.Bind(2, b)
	r.Bind(3, c)
	return g, r, []graph.Node{anchor, a, b, c}
}

func TestNew_BindsAnchor(t *testing.T) {
	g := graph.NewArena()
	anchor := g.Spawn()
	r := New(anchor)

	got, err := r.Lookup(ir.RootElement)
	require.NoError(t, err)
	assert.Equal(t, anchor, got)
	assert.Equal(t, anchor, r.Anchor())
	assert.Equal(t, 1, r.Len())
}

func TestBind_KeepsMapsInverse(t *testing.T) {
	_, r, nodes := tree(t)

	// Rebinding id 2 to c drops the old id 3 mapping of c and the old node of 2.
	r.Bind(2, nodes[3])

	_, err := r.Lookup(3)
	assert.True(t, IsMissingMapping(err))
	_, ok := r.IDOf(nodes[2])
	assert.False(t, ok)

	id, ok := r.IDOf(nodes[3])
	require.True(t, ok)
	assert.Equal(t, ir.ElementID(2), id)
	assert.Equal(t, []ir.ElementID{0, 1, 2}, r.IDs())
}

func TestLookup_Missing(t *testing.T) {
	_, r, _ := tree(t)

	_, err := r.Lookup(42)
	require.Error(t, err)
	assert.True(t, IsMissingMapping(err))
	assert.EqualError(t, err, "element 42 is not registered")
}

func TestResolve_DeadNode(t *testing.T) {
	g, r, nodes := tree(t)
	require.NoError(t, g.RemoveRecursive(nodes[2]))

	_, err := r.Resolve(g, 2)
	require.Error(t, err)
	assert.EqualError(t, err, "element 2 maps to a removed node")
}

func TestRemoveSubtree_ClearsDescendants(t *testing.T) {
	g, r, nodes := tree(t)

	removed, err := r.RemoveSubtree(g, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	for _, id := range []ir.ElementID{1, 2, 3} {
		_, err := r.Lookup(id)
		assert.True(t, IsMissingMapping(err), "id %d should be gone", id)
	}
	for _, n := range nodes[1:] {
		assert.False(t, g.Alive(n))
	}
	assert.True(t, g.Alive(nodes[0]))
	assert.Empty(t, g.Children(nodes[0]))
	assert.Equal(t, []ir.ElementID{0}, r.IDs())
}

func TestRemoveSubtree_LeavesSiblings(t *testing.T) {
	g, r, nodes := tree(t)

	_, err := r.RemoveSubtree(g, 2)
	require.NoError(t, err)

	assert.Equal(t, []graph.Node{nodes[3]}, g.Children(nodes[1]))
	assert.Equal(t, []ir.ElementID{0, 1, 3}, r.IDs())
}

func TestRemoveTree_UnmappedNode(t *testing.T) {
	g, r, nodes := tree(t)
	extra := g.Spawn()
	require.NoError(t, graph.AppendChildren(g, nodes[2], []graph.Node{extra}))
	h := NewHandle()
	r.BindHandle(h, extra)

	removed, err := r.RemoveTree(g, extra)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := h.Get()
	assert.False(t, ok)
	assert.Equal(t, 4, r.Len())
}

func TestBindHandle_ClearedOnRemoval(t *testing.T) {
	g, r, nodes := tree(t)
	h := NewHandle()
	r.BindHandle(h, nodes[3])

	got, ok := h.Get()
	require.True(t, ok)
	assert.Equal(t, nodes[3], got)
	gen := h.Generation()

	_, err := r.RemoveSubtree(g, 1)
	require.NoError(t, err)

	_, ok = h.Get()
	assert.False(t, ok, "handle must be absent once its node is removed")
	assert.Equal(t, gen+1, h.Generation())
	_, ok = r.HandleOf(nodes[3])
	assert.False(t, ok)
}

func TestBindHandle_Rebind(t *testing.T) {
	_, r, nodes := tree(t)
	h := NewHandle()

	r.BindHandle(h, nodes[2])
	r.BindHandle(h, nodes[2])
	assert.Equal(t, uint64(1), h.Generation(), "same node twice is a no-op")

	r.BindHandle(h, nodes[3])
	got, _ := h.Get()
	assert.Equal(t, nodes[3], got)
	_, ok := r.HandleOf(nodes[2])
	assert.False(t, ok, "old node no longer carries the handle")
}

func TestBindHandle_DisplacesOtherHandle(t *testing.T) {
	_, r, nodes := tree(t)
	first, second := NewHandle(), NewHandle()
	other := NewHandle()
	r.BindHandle(other, nodes[1])

	r.BindHandle(first, nodes[2])
	r.BindHandle(second, nodes[2])

	_, ok := first.Get()
	assert.False(t, ok)
	got, ok := second.Get()
	require.True(t, ok)
	assert.Equal(t, nodes[2], got)

	_, ok = other.Get()
	assert.True(t, ok, "handles on other nodes are untouched")
}

func TestUnbindHandle(t *testing.T) {
	_, r, nodes := tree(t)
	h := NewHandle()
	r.BindHandle(h, nodes[1])

	r.UnbindHandle(nodes[1])
	r.UnbindHandle(nodes[1])

	_, ok := h.Get()
	assert.False(t, ok)
	assert.Equal(t, uint64(2), h.Generation())
}
