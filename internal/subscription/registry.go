// Package subscription tracks which reactive scopes read which observable
// host state and computes the per-tick dirty set.
//
// Three tables are kept: the any-change set (world and query readers),
// resource key to scopes, and event kind to predicate plus scopes. Every
// registration is a Lease; releasing the last lease of a scope removes the
// scope from its table and an emptied entry is deleted outright.
package subscription

import (
	"log/slog"
	"slices"
)

// ScopeID identifies one reactive computation within a root.
type ScopeID uint64

// State is the observable host state consulted when computing dirty scopes.
type State interface {
	ResourceVersion(key string) uint64
}

// Predicate reports whether an event kind currently has pending events.
type Predicate func(State) bool

type table int

const (
	tableWorld table = iota
	tableResource
	tableEvent
)

type scopeSet map[ScopeID]int // scope -> live lease count

// resourceSub records, per scope, the last resource version it was
// marked for.
type resourceSub struct {
	leases int
	seen   uint64
}

type eventEntry struct {
	pred   Predicate
	scopes scopeSet
}

// Registry is the subscription registry of one root.
// Not safe for concurrent use; the tick owns it.
type Registry struct {
	state     State
	world     scopeSet
	resources map[string]map[ScopeID]*resourceSub
	events    map[string]*eventEntry
	hooks     map[ScopeID]*Hooks
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New creates an empty registry reading versions and events from state.
func New(state State, opts ...Option) *Registry {
	r := &Registry{
		state:     state,
		world:     make(scopeSet),
		resources: make(map[string]map[ScopeID]*resourceSub),
		events:    make(map[string]*eventEntry),
		hooks:     make(map[ScopeID]*Hooks),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hooks returns the hook set of scope, creating it on first use.
func (r *Registry) Hooks(scope ScopeID) *Hooks {
	h, ok := r.hooks[scope]
	if !ok {
		h = &Hooks{r: r, scope: scope, leases: make(map[hookKey]*Lease)}
		r.hooks[scope] = h
	}
	return h
}

// DropScope releases every lease scope holds. Teardown calls this
// synchronously; afterwards no table mentions scope.
func (r *Registry) DropScope(scope ScopeID) {
	h, ok := r.hooks[scope]
	if !ok {
		return
	}
	for _, l := range h.sortedLeases() {
		l.Release()
	}
	delete(r.hooks, scope)
	r.logger.Debug("scope dropped", "scope", scope)
}

// Collect returns the dirty set in ascending order: every any-change
// scope, each resource scope whose resource version moved since that scope
// last saw it, and the scopes of each event kind whose predicate holds.
// Resource versions are marked seen as a side effect.
func (r *Registry) Collect() []ScopeID {
	dirty := make(map[ScopeID]struct{})
	for s := range r.world {
		dirty[s] = struct{}{}
	}
	for key, subs := range r.resources {
		v := r.state.ResourceVersion(key)
		for s, sub := range subs {
			if sub.seen != v {
				sub.seen = v
				dirty[s] = struct{}{}
			}
		}
	}
	for _, e := range r.events {
		if !e.pred(r.state) {
			continue
		}
		for s := range e.scopes {
			dirty[s] = struct{}{}
		}
	}

	out := make([]ScopeID, 0, len(dirty))
	for s := range dirty {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Stats counts table entries.
type Stats struct {
	World     int // scopes in the any-change set
	Resources int // resource keys with at least one scope
	Events    int // event kinds with at least one scope
	Scopes    int // scopes holding at least one lease
}

// Stats returns the current table sizes.
func (r *Registry) Stats() Stats {
	scopes := 0
	for _, h := range r.hooks {
		if len(h.leases) > 0 {
			scopes++
		}
	}
	return Stats{
		World:     len(r.world),
		Resources: len(r.resources),
		Events:    len(r.events),
		Scopes:    scopes,
	}
}

// Empty reports whether no scope is registered anywhere.
func (r *Registry) Empty() bool {
	return len(r.world) == 0 && len(r.resources) == 0 && len(r.events) == 0
}

func (r *Registry) acquire(l *Lease, pred Predicate) {
	scope, key := l.hooks.scope, l.hk.key
	switch l.hk.table {
	case tableWorld:
		r.world[scope]++
	case tableResource:
		subs, ok := r.resources[key]
		if !ok {
			subs = make(map[ScopeID]*resourceSub)
			r.resources[key] = subs
		}
		sub, ok := subs[scope]
		if !ok {
			sub = &resourceSub{seen: r.state.ResourceVersion(key)}
			subs[scope] = sub
		}
		sub.leases++
	case tableEvent:
		e, ok := r.events[key]
		if !ok {
			e = &eventEntry{pred: pred, scopes: make(scopeSet)}
			r.events[key] = e
		}
		e.scopes[scope]++
	}
}

func (r *Registry) release(l *Lease) {
	scope, key := l.hooks.scope, l.hk.key
	switch l.hk.table {
	case tableWorld:
		decrement(r.world, scope)
	case tableResource:
		subs := r.resources[key]
		if sub, ok := subs[scope]; ok {
			sub.leases--
			if sub.leases <= 0 {
				delete(subs, scope)
			}
		}
		if len(subs) == 0 {
			delete(r.resources, key)
		}
	case tableEvent:
		if e, ok := r.events[key]; ok {
			decrement(e.scopes, scope)
			if len(e.scopes) == 0 {
				delete(r.events, key)
			}
		}
	}
}

func decrement(set scopeSet, s ScopeID) {
	if set[s] <= 1 {
		delete(set, s)
		return
	}
	set[s]--
}
