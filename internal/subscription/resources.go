package subscription

import (
	"sync"

	"github.com/roach88/nodesync/internal/ir"
)

// Resources is an in-memory State: named values with a version that moves
// on every write, plus pending events that live until Flush.
// Safe for concurrent use.
type Resources struct {
	mu       sync.RWMutex
	values   map[string]ir.Value
	versions map[string]uint64
	pending  map[string]int
}

// NewResources creates an empty resource table.
func NewResources() *Resources {
	return &Resources{
		values:   make(map[string]ir.Value),
		versions: make(map[string]uint64),
		pending:  make(map[string]int),
	}
}

// Set stores v under key and returns the new version.
func (r *Resources) Set(key string, v ir.Value) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = v
	r.versions[key]++
	return r.versions[key]
}

// Touch bumps the version of key without changing its value.
func (r *Resources) Touch(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[key]++
	return r.versions[key]
}

// Get returns the value stored under key.
func (r *Resources) Get(key string) (ir.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

// ResourceVersion implements State. Unknown keys are at version 0.
func (r *Resources) ResourceVersion(key string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.versions[key]
}

// Emit records one pending event of kind.
func (r *Resources) Emit(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[kind]++
}

// Pending reports whether kind has events waiting.
func (r *Resources) Pending(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pending[kind] > 0
}

// Flush discards every pending event. Hosts call it once the tick that
// observed them has finished.
func (r *Resources) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.pending)
}

// EventSource is a State that also queues events.
type EventSource interface {
	State
	Pending(kind string) bool
}

// EventPending is the usual predicate: true while kind has pending events
// in a State that is also an EventSource.
func EventPending(kind string) Predicate {
	return func(s State) bool {
		src, ok := s.(EventSource)
		return ok && src.Pending(kind)
	}
}
