package engine

import (
	"context"

	"github.com/roach88/nodesync/internal/graph"
	"github.com/roach88/nodesync/internal/subscription"
)

// TickContext is the token a diff engine receives for one root pass.
//
// It is valid only while that pass runs. Every method that touches the
// engine fails with TICK_EXPIRED afterwards, so reactive code cannot
// register subscriptions or reach the graph from outside a tick.
type TickContext struct {
	ctx     context.Context
	graph   graph.Graph
	engine  *Engine
	root    *Root
	tick    int64
	expired bool
}

func newTickContext(ctx context.Context, g graph.Graph, e *Engine, root *Root, tick int64) *TickContext {
	return &TickContext{ctx: ctx, graph: g, engine: e, root: root, tick: tick}
}

// Context returns the tick's context.
func (tc *TickContext) Context() context.Context {
	return tc.ctx
}

// Tick returns the tick number.
func (tc *TickContext) Tick() int64 {
	return tc.tick
}

// Root returns the key of the root being reconciled.
func (tc *TickContext) Root() RootKey {
	return tc.root.Key
}

// Err returns TICK_EXPIRED once the pass has ended.
func (tc *TickContext) Err() error {
	if tc.expired {
		return newExpiredError(tc.tick, "TickContext")
	}
	return nil
}

// Graph returns a read-only view of the host graph. Reactive code that
// needs to mutate the graph queues a Command with Defer.
func (tc *TickContext) Graph() (graph.View, error) {
	if tc.expired {
		return nil, newExpiredError(tc.tick, "Graph")
	}
	return graph.ReadOnly(tc.graph), nil
}

// Hooks returns the subscription hooks of scope within this root.
func (tc *TickContext) Hooks(scope subscription.ScopeID) (*subscription.Hooks, error) {
	if tc.expired {
		return nil, newExpiredError(tc.tick, "Hooks")
	}
	return tc.root.Subscriptions.Hooks(scope), nil
}

// DropScope tears down scope, releasing every subscription it holds.
func (tc *TickContext) DropScope(scope subscription.ScopeID) error {
	if tc.expired {
		return newExpiredError(tc.tick, "DropScope")
	}
	tc.root.Subscriptions.DropScope(scope)
	return nil
}

// Defer queues c to run at the start of the next tick.
func (tc *TickContext) Defer(c Command) error {
	if tc.expired {
		return newExpiredError(tc.tick, "Defer")
	}
	if !tc.engine.Defer(c) {
		return &RuntimeError{Code: ErrCodeTickAborted, Message: "engine closed", Tick: tc.tick}
	}
	return nil
}

func (tc *TickContext) expire() {
	tc.expired = true
}
