// Package template memoizes named template descriptions and instantiates
// their roots on demand through the node adapter.
package template

import (
	"fmt"
	"log/slog"

	"github.com/roach88/nodesync/internal/adapter"
	"github.com/roach88/nodesync/internal/graph"
	"github.com/roach88/nodesync/internal/ir"
)

type entry struct {
	hash  string
	roots []adapter.Form
}

// Cache holds registered templates for one root.
// Registration happens during full builds; lookups happen on every LoadTemplate.
type Cache struct {
	adapter adapter.Adapter
	entries map[string]*entry
	logger  *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// NewCache creates an empty cache that describes and instantiates through a.
func NewCache(a adapter.Adapter, opts ...Option) *Cache {
	c := &Cache{
		adapter: a,
		entries: make(map[string]*entry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register memoizes t under its name.
//
// Re-registering identical content (same canonical hash) is a no-op.
// Registering different content under a name already in use returns a
// *MismatchError. Descriptions are converted with the adapter once, here.
func (c *Cache) Register(t ir.Template) error {
	hash, err := ir.TemplateHash(t)
	if err != nil {
		return fmt.Errorf("register template %q: %w", t.Name, err)
	}

	if existing, ok := c.entries[t.Name]; ok {
		if existing.hash != hash {
			return &MismatchError{Name: t.Name, Registered: existing.hash, Offered: hash}
		}
		return nil
	}

	roots := make([]adapter.Form, len(t.Roots))
	for i, r := range t.Roots {
		form, err := c.adapter.Describe(r)
		if err != nil {
			return fmt.Errorf("register template %q root %d: %w", t.Name, i, err)
		}
		roots[i] = form
	}

	c.entries[t.Name] = &entry{hash: hash, roots: roots}
	c.logger.Debug("template registered", "name", t.Name, "hash", hash[:12], "roots", len(roots))
	return nil
}

// Has reports whether a template is registered under name.
func (c *Cache) Has(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// Hash returns the content hash registered under name.
func (c *Cache) Hash(name string) (string, bool) {
	e, ok := c.entries[name]
	if !ok {
		return "", false
	}
	return e.hash, true
}

// Len returns the number of registered templates.
func (c *Cache) Len() int {
	return len(c.entries)
}

// InstantiateRoot spawns root index of the named template.
// An unregistered name is an *UnknownTemplateError: the diff engine only
// references templates it registered.
func (c *Cache) InstantiateRoot(g graph.Graph, name string, index int) (graph.Node, error) {
	e, ok := c.entries[name]
	if !ok {
		return graph.Node{}, &UnknownTemplateError{Name: name}
	}
	if index < 0 || index >= len(e.roots) {
		return graph.Node{}, &UnknownTemplateError{Name: name, Index: index, Roots: len(e.roots)}
	}
	return c.adapter.Instantiate(g, e.roots[index])
}
