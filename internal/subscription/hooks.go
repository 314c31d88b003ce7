package subscription

import (
	"cmp"
	"slices"
)

type hookKey struct {
	table table
	key   string
}

// Hooks registers the reads of one scope. Each hook registers on its first
// call and returns the same lease on later calls until that lease is
// released.
type Hooks struct {
	r      *Registry
	scope  ScopeID
	leases map[hookKey]*Lease
}

// Scope returns the scope these hooks register for.
func (h *Hooks) Scope() ScopeID {
	return h.scope
}

// UseWorld subscribes the scope to any change of host state.
func (h *Hooks) UseWorld() *Lease {
	return h.use(hookKey{table: tableWorld, key: "*"}, nil)
}

// UseQuery subscribes the scope to a named ad-hoc query. Queries are
// re-run on any change, so they share the any-change set with UseWorld.
func (h *Hooks) UseQuery(name string) *Lease {
	return h.use(hookKey{table: tableWorld, key: "query:" + name}, nil)
}

// UseResource subscribes the scope to one resource. The version current at
// first registration counts as seen.
func (h *Hooks) UseResource(key string) *Lease {
	return h.use(hookKey{table: tableResource, key: key}, nil)
}

// UseEvent subscribes the scope to an event kind. The first predicate
// registered for a kind is kept while any scope still holds that kind.
func (h *Hooks) UseEvent(kind string, pred Predicate) *Lease {
	return h.use(hookKey{table: tableEvent, key: kind}, pred)
}

func (h *Hooks) use(k hookKey, pred Predicate) *Lease {
	if l, ok := h.leases[k]; ok {
		return l
	}
	// World and query hooks share one table slot per scope but are leased
	// separately so releasing one leaves the other in force.
	l := &Lease{hooks: h, hk: k}
	h.r.acquire(l, pred)
	h.leases[k] = l
	return l
}

func (h *Hooks) sortedLeases() []*Lease {
	out := make([]*Lease, 0, len(h.leases))
	for _, l := range h.leases {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b *Lease) int {
		return cmp.Or(cmp.Compare(a.hk.table, b.hk.table), cmp.Compare(a.hk.key, b.hk.key))
	})
	return out
}

// Lease is one registration. Release is idempotent.
type Lease struct {
	hooks    *Hooks
	hk       hookKey
	released bool
}

// Release removes the registration. Later calls do nothing.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.hooks.r.release(l)
	if l.hooks.leases[l.hk] == l {
		delete(l.hooks.leases, l.hk)
	}
}

// Released reports whether Release has been called.
func (l *Lease) Released() bool {
	return l.released
}
