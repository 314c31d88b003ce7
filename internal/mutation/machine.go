package mutation

import (
	"fmt"
	"log/slog"

	"github.com/roach88/nodesync/internal/adapter"
	"github.com/roach88/nodesync/internal/graph"
	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/registry"
	"github.com/roach88/nodesync/internal/template"
)

// DefaultHandleAttribute is the reserved attribute that binds a
// back-reference handle.
const DefaultHandleAttribute = "ref"

// Target is everything one root's script is applied against.
type Target struct {
	Graph     graph.Graph
	Adapter   adapter.Adapter
	Templates *template.Cache
	Registry  *registry.Registry
}

// Recorder observes each op after it has been applied.
type Recorder func(index int, o Op)

// Result summarizes one applied script.
type Result struct {
	Ops     int // ops applied
	Spawned int // nodes created by CreatePlaceholder and LoadTemplate roots
	Removed int // graph nodes freed, descendants included
}

// Machine is the mutation stack machine.
//
// The stack lives only for the duration of one Apply call and must be
// empty when the script ends.
type Machine struct {
	handleAttr string
	recorder   Recorder
	logger     *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithHandleAttribute overrides the reserved back-reference attribute name.
func WithHandleAttribute(name string) Option {
	return func(m *Machine) {
		m.handleAttr = name
	}
}

// WithRecorder installs a per-op observer.
func WithRecorder(r Recorder) Option {
	return func(m *Machine) {
		m.recorder = r
	}
}

// WithLogger sets the logger used for per-op debug output.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

// NewMachine creates a machine.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		handleAttr: DefaultHandleAttribute,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HandleAttribute returns the reserved attribute name.
func (m *Machine) HandleAttribute() string {
	return m.handleAttr
}

// Apply runs script against t in emission order.
//
// The first failing op aborts the script; ops before it stay applied.
// Errors are *ApplyError wrapping a *ContractViolation, a
// *registry.MissingMappingError or a graph error.
func (m *Machine) Apply(t Target, script Script) (Result, error) {
	run := &applier{Target: t, handleAttr: m.handleAttr}
	for i, o := range script {
		if err := run.step(o); err != nil {
			return run.result, &ApplyError{Index: i, Op: o, Err: err}
		}
		run.result.Ops++
		if m.recorder != nil {
			m.recorder(i, o)
		}
		m.logger.Debug("op applied", "idx", i, "op", o.Kind(), "depth", len(run.stack))
	}
	if len(run.stack) != 0 {
		return run.result, &ApplyError{
			Index: len(script),
			Err:   violation(ErrCodeStackNotEmpty, "%d nodes left on the stack", len(run.stack)),
		}
	}
	return run.result, nil
}

type applier struct {
	Target
	handleAttr string
	stack      []graph.Node
	result     Result
}

func (a *applier) step(o Op) error {
	switch v := o.(type) {
	case CreatePlaceholder:
		if err := a.checkBindable(v.ID); err != nil {
			return err
		}
		n := a.Graph.Spawn()
		a.result.Spawned++
		a.push(n)
		a.Registry.Bind(v.ID, n)
		return nil

	case LoadTemplate:
		if err := a.checkBindable(v.ID); err != nil {
			return err
		}
		n, err := a.Templates.InstantiateRoot(a.Graph, v.Name, v.Index)
		if err != nil {
			if template.IsUnknownTemplate(err) {
				return &ContractViolation{Code: ErrCodeUnknownTemplate, Message: "cannot load template", Err: err}
			}
			return wrapAttribute(err)
		}
		a.result.Spawned++
		a.push(n)
		a.Registry.Bind(v.ID, n)
		return nil

	case AssignID:
		if err := a.checkBindable(v.ID); err != nil {
			return err
		}
		top, err := a.peek(0)
		if err != nil {
			return err
		}
		n, err := graph.Walk(a.Graph, top, v.Path)
		if err != nil {
			return &ContractViolation{Code: ErrCodeInvalidPath, Message: "cannot assign id", Err: err}
		}
		a.Registry.Bind(v.ID, n)
		return nil

	case AppendChildren:
		parent, err := a.Registry.Resolve(a.Graph, v.ID)
		if err != nil {
			return err
		}
		nodes, err := a.pop(v.M)
		if err != nil {
			return err
		}
		return graph.AppendChildren(a.Graph, parent, nodes)

	case ReplaceWith:
		if v.ID == ir.RootElement {
			return violation(ErrCodeRootAnchor, "the root anchor cannot be replaced")
		}
		old, err := a.Registry.Resolve(a.Graph, v.ID)
		if err != nil {
			return err
		}
		nodes, err := a.pop(v.M)
		if err != nil {
			return err
		}
		if err := a.splice(old, nodes, 0); err != nil {
			return err
		}
		removed, err := a.Registry.RemoveSubtree(a.Graph, v.ID)
		a.result.Removed += removed
		return err

	case ReplacePlaceholder:
		base, err := a.peek(v.M)
		if err != nil {
			return err
		}
		target, err := graph.Walk(a.Graph, base, v.Path)
		if err != nil {
			return &ContractViolation{Code: ErrCodeInvalidPath, Message: "cannot resolve placeholder", Err: err}
		}
		nodes, err := a.pop(v.M)
		if err != nil {
			return err
		}
		if err := a.splice(target, nodes, 0); err != nil {
			return err
		}
		removed, err := a.Registry.RemoveTree(a.Graph, target)
		a.result.Removed += removed
		return err

	case InsertAfter:
		return a.insert(v.ID, v.M, 1)

	case InsertBefore:
		return a.insert(v.ID, v.M, 0)

	case SetAttribute:
		n, err := a.Registry.Resolve(a.Graph, v.ID)
		if err != nil {
			return err
		}
		if v.Name == a.handleAttr {
			return a.bindHandle(n, valueOrNone(v.Value))
		}
		return wrapAttribute(a.Adapter.ApplyAttribute(a.Graph, n, v.Name, valueOrNone(v.Value)))

	case RemoveNode:
		if v.ID == ir.RootElement {
			return violation(ErrCodeRootAnchor, "the root anchor cannot be removed")
		}
		removed, err := a.Registry.RemoveSubtree(a.Graph, v.ID)
		a.result.Removed += removed
		return err

	case PushRoot:
		n, err := a.Registry.Resolve(a.Graph, v.ID)
		if err != nil {
			return err
		}
		a.push(n)
		return nil

	default:
		return violation(ErrCodeUnsupportedOp, "op %T is not part of the vocabulary", o)
	}
}

func (a *applier) insert(id ir.ElementID, m int, offset int) error {
	sibling, err := a.Registry.Resolve(a.Graph, id)
	if err != nil {
		return err
	}
	nodes, err := a.pop(m)
	if err != nil || len(nodes) == 0 {
		return err
	}
	return a.splice(sibling, nodes, offset)
}

// splice puts nodes under sibling's parent at sibling's position plus
// offset. The nodes are detached first so the position is measured
// against the children that remain.
func (a *applier) splice(sibling graph.Node, nodes []graph.Node, offset int) error {
	parent, ok := a.Graph.Parent(sibling)
	if !ok {
		return violation(ErrCodeNoParent, "node %s has no parent", sibling)
	}
	for _, n := range nodes {
		if err := a.Graph.Detach(n); err != nil {
			return err
		}
	}
	index := graph.IndexOf(a.Graph, parent, sibling)
	return a.Graph.InsertChildren(parent, index+offset, nodes)
}

func (a *applier) bindHandle(n graph.Node, v ir.Value) error {
	switch val := v.(type) {
	case ir.None:
		a.Registry.UnbindHandle(n)
		return nil
	case ir.Any:
		h, ok := val.V.(*registry.Handle)
		if !ok || h == nil {
			return violation(ErrCodeBadHandle, "%s carries %s, want a handle", a.handleAttr, val.TypeName())
		}
		a.Registry.BindHandle(h, n)
		return nil
	default:
		return violation(ErrCodeBadHandle, "%s carries %s, want a handle", a.handleAttr, ir.TypeOf(v))
	}
}

func (a *applier) checkBindable(id ir.ElementID) error {
	if id == ir.RootElement {
		return violation(ErrCodeRootAnchor, "id 0 is bound to the root anchor")
	}
	return nil
}

func (a *applier) push(n graph.Node) {
	a.stack = append(a.stack, n)
}

// pop removes the top m entries and returns them bottom-first, which is
// the order they were pushed in.
func (a *applier) pop(m int) ([]graph.Node, error) {
	if m < 0 || m > len(a.stack) {
		return nil, violation(ErrCodeStackUnderflow, "need %d entries, stack holds %d", m, len(a.stack))
	}
	split := len(a.stack) - m
	nodes := append([]graph.Node(nil), a.stack[split:]...)
	a.stack = a.stack[:split]
	return nodes, nil
}

// peek returns the entry depth places below the top.
func (a *applier) peek(depth int) (graph.Node, error) {
	if depth < 0 || depth >= len(a.stack) {
		return graph.Node{}, violation(ErrCodeStackUnderflow, "need entry %d below the top, stack holds %d", depth, len(a.stack))
	}
	return a.stack[len(a.stack)-1-depth], nil
}

func wrapAttribute(err error) error {
	if err == nil {
		return nil
	}
	if adapter.IsAttributeError(err) {
		return &ContractViolation{Code: ErrCodeAttribute, Message: "adapter rejected attribute", Err: err}
	}
	return fmt.Errorf("adapter: %w", err)
}
