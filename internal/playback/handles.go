package playback

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/mutation"
	"github.com/roach88/nodesync/internal/registry"
)

// handleKey marks a handle reference in an op value.
const handleKey = "$handle"

// Handles names the back-reference handles of a playback.
type Handles struct {
	mu sync.Mutex
	m  map[string]*registry.Handle
}

// NewHandles returns an empty handle table.
func NewHandles() *Handles {
	return &Handles{m: make(map[string]*registry.Handle)}
}

// Get returns the handle called name, creating it unbound on first use.
func (h *Handles) Get(name string) *registry.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	hd, ok := h.m[name]
	if !ok {
		hd = registry.NewHandle()
		h.m[name] = hd
	}
	return hd
}

// Lookup returns the handle called name if any op referenced it.
func (h *Handles) Lookup(name string) (*registry.Handle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hd, ok := h.m[name]
	return hd, ok
}

// Names returns the handle names, sorted.
func (h *Handles) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.m))
	for name := range h.m {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func compileOps(specs []OpSpec, handles *Handles) (mutation.Script, error) {
	script := make(mutation.Script, 0, len(specs))
	for i, spec := range specs {
		v, err := ir.FromNative(map[string]any(spec))
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		fields, ok := v.(ir.Map)
		if !ok {
			return nil, fmt.Errorf("op %d: want a map, got %s", i, ir.TypeOf(v))
		}
		if name, ok := handleRef(fields["value"]); ok {
			fields["value"] = ir.Any{V: handles.Get(name)}
		}
		o, err := mutation.FromFields(fields)
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		script = append(script, o)
	}
	return script, nil
}

func handleRef(v ir.Value) (string, bool) {
	m, ok := v.(ir.Map)
	if !ok || len(m) != 1 {
		return "", false
	}
	name, ok := m[handleKey].(ir.Text)
	return string(name), ok
}
