package registry

import (
	"sync"

	"github.com/roach88/nodesync/internal/graph"
)

// Handle is a back-reference slot owned by reactive code.
//
// The engine binds a handle to the node carrying it and clears it when that
// node is removed. Reactive code only reads it. Reads are safe from any
// goroutine; writes happen inside a tick.
type Handle struct {
	mu    sync.Mutex
	node  graph.Node
	bound bool
	gen   uint64
}

// NewHandle returns an unbound handle.
func NewHandle() *Handle {
	return &Handle{}
}

// Get returns the bound node, or false when the handle is absent.
func (h *Handle) Get() (graph.Node, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.node, h.bound
}

// Generation increments on every bind and clear.
func (h *Handle) Generation() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gen
}

func (h *Handle) set(n graph.Node) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bound && h.node == n {
		return
	}
	h.node = n
	h.bound = true
	h.gen++
}

// clearIf clears the handle only while it still points at n.
func (h *Handle) clearIf(n graph.Node) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.bound || h.node != n {
		return false
	}
	h.node = graph.Node{}
	h.bound = false
	h.gen++
	return true
}
