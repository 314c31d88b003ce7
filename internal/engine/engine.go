package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/nodesync/internal/adapter"
	"github.com/roach88/nodesync/internal/graph"
	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/mutation"
	"github.com/roach88/nodesync/internal/registry"
	"github.com/roach88/nodesync/internal/store"
	"github.com/roach88/nodesync/internal/subscription"
	"github.com/roach88/nodesync/internal/template"
)

// Engine is the tick orchestrator and owner of the root table.
//
// CRITICAL: Tick must be called from exactly one goroutine at a time and
// holds exclusive access to the graph for its whole duration.
//
// Thread-safety model:
//   - Defer(): safe from any goroutine
//   - Tick(): single caller
//   - Roots(), Root(): only between ticks, from the tick goroutine
//
// INVARIANTS:
//   - A root's first reconciliation is always a full build
//   - The stack is empty at every script boundary
//   - After a fatal error every later Tick fails with TICK_ABORTED
//   - Journal seqs strictly increase across roots, scripts and ticks
type Engine struct {
	adapter    adapter.Adapter
	factory    DiffFactory
	machine    *mutation.Machine
	handleAttr string

	roots map[RootKey]*Root
	names map[string]int // descriptor -> roots created under it
	queue *commandQueue
	seq   int64 // last journal seq handed out
	state subscription.State

	recorder store.Recorder
	runIDs   RunIDGenerator
	runID    string
	runLabel string
	kindHash string
	begun    bool

	metrics  *Metrics
	tracer   trace.Tracer
	dropHook func(*Root)
	logger   *slog.Logger

	tick   int64
	failed error
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithState sets the resource state subscriptions are checked against.
// Defaults to an empty subscription.Resources.
func WithState(s subscription.State) EngineOption {
	return func(e *Engine) {
		e.state = s
	}
}

// WithRecorder journals every run, root and tick to r.
func WithRecorder(r store.Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithRunID fixes the journal run id. By default one is generated.
func WithRunID(id string) EngineOption {
	return func(e *Engine) {
		e.runID = id
	}
}

// WithRunIDGenerator sets the generator used when no run id is fixed.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithRunLabel sets the free-form label stored with the run.
func WithRunLabel(label string) EngineOption {
	return func(e *Engine) {
		e.runLabel = label
	}
}

// WithKindHash records the hash of the kind set the adapter was built from.
func WithKindHash(hash string) EngineOption {
	return func(e *Engine) {
		e.kindHash = hash
	}
}

// WithMetrics records engine metrics into m.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer sets the tracer for tick and root spans.
// Defaults to the global provider's "nodesync" tracer.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithStartSeq resumes journal seqs after seq, typically a journal's
// LastSeq. The first record written gets seq+1.
func WithStartSeq(seq int64) EngineOption {
	return func(e *Engine) {
		e.seq = seq
	}
}

// WithDropHook is called for every root absent from a tick's observed set,
// after it has left the root table. Its subtree is still in the graph.
func WithDropHook(fn func(*Root)) EngineOption {
	return func(e *Engine) {
		e.dropHook = fn
	}
}

// WithHandleAttribute overrides the reserved back-reference attribute name.
func WithHandleAttribute(name string) EngineOption {
	return func(e *Engine) {
		e.handleAttr = name
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine that builds nodes through a and asks factory for a
// diff engine whenever a new root is observed.
func New(a adapter.Adapter, factory DiffFactory, opts ...EngineOption) *Engine {
	e := &Engine{
		adapter:    a,
		factory:    factory,
		handleAttr: mutation.DefaultHandleAttribute,
		roots:      make(map[RootKey]*Root),
		names:      make(map[string]int),
		queue:      newCommandQueue(),
		runIDs:     UUIDv7Generator{},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.state == nil {
		e.state = subscription.NewResources()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("nodesync")
	}
	e.machine = mutation.NewMachine(
		mutation.WithHandleAttribute(e.handleAttr),
		mutation.WithLogger(e.logger),
		mutation.WithRecorder(func(_ int, o mutation.Op) {
			e.metrics.recordOp(o.Kind())
		}),
	)
	return e
}

// TickReport summarizes one tick.
type TickReport struct {
	Tick      int64
	Commands  int // deferred commands drained
	Roots     []RootReport
	Dropped   []RootKey
	GraphHash string
}

// RootReport summarizes one root pass.
type RootReport struct {
	Key     RootKey
	Name    string
	Created bool
	Built   bool // full build rather than diff
	Dirty   int  // scopes marked dirty
	Ops     int
	Spawned int
	Removed int
	Err     error // non-fatal failure; the root keeps its previous state
}

// Ops returns the number of ops applied across all roots.
func (r TickReport) Ops() int {
	n := 0
	for _, rr := range r.Roots {
		n += rr.Ops
	}
	return n
}

// RunID returns the journal run id, generating it on first use.
func (e *Engine) RunID() string {
	if e.runID == "" {
		e.runID = e.runIDs.Generate()
	}
	return e.runID
}

// Defer queues c to run at the start of the next tick.
// Safe from any goroutine. Returns false once the engine is closed.
func (e *Engine) Defer(c Command) bool {
	return e.queue.Enqueue(c)
}

// Pending returns the number of queued deferred commands.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// Close rejects further deferred commands.
func (e *Engine) Close() {
	e.queue.Close()
}

// Err returns the fatal error that stopped the engine, if any.
func (e *Engine) Err() error {
	return e.failed
}

// LastSeq returns the last journal seq handed out.
func (e *Engine) LastSeq() int64 {
	return e.seq
}

// nextSeq stamps the next journal record. Only the tick goroutine calls it.
func (e *Engine) nextSeq() int64 {
	e.seq++
	return e.seq
}

// Root returns the live root for key.
func (e *Engine) Root(key RootKey) (*Root, bool) {
	r, ok := e.roots[key]
	return r, ok
}

// Roots returns the live roots ordered by name.
func (e *Engine) Roots() []*Root {
	out := make([]*Root, 0, len(e.roots))
	for _, r := range e.roots {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *Root) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Tick reconciles every observed root against g.
//
// Order of work:
//  1. Drain the commands deferred before this call
//  2. For each observed key, in order: get or create its root, mark its
//     dirty scopes, request a build (never built) or a diff, apply it
//  3. Drop roots absent from observed; their subtrees are left in place
//  4. Journal the tick
//
// A fatal error (see IsFatal) aborts the tick and stops the engine.
// Other root failures, such as a diff engine error before anything was
// applied, are reported in RootReport.Err: the root keeps its previous
// state, the remaining roots still run and Tick returns the joined errors
// alongside a complete report. Cancelling ctx stops the root loop early;
// unvisited roots are kept, not dropped.
func (e *Engine) Tick(ctx context.Context, g graph.Graph, observed []RootKey) (report TickReport, err error) {
	if e.failed != nil {
		return TickReport{}, newAbortedError(e.tick+1, e.failed)
	}
	if err := ctx.Err(); err != nil {
		return TickReport{}, err
	}
	if err := e.beginRun(ctx); err != nil {
		return TickReport{}, err
	}

	e.tick++
	tick := e.tick
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "nodesync.tick",
		trace.WithAttributes(
			attribute.Int64("nodesync.tick", tick),
			attribute.Int("nodesync.observed", len(observed)),
		),
	)
	defer span.End()
	defer func() {
		if err == nil {
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "tick failed")
		if !IsFatal(err) {
			e.logger.Warn("tick completed with errors", "tick", tick, "error", err)
			return
		}
		// Once the graph has been touched nothing can be retried.
		e.failed = err
		e.metrics.recordFatal(err)
		e.logger.Error("tick aborted", "tick", tick, "error", err)
	}()

	report = TickReport{Tick: tick}
	if report.Commands, err = e.drain(g, tick); err != nil {
		return report, err
	}

	keys := dedupe(observed)
	next := make(map[RootKey]*Root, len(keys))
	var (
		scripts     []store.ScriptRecord
		rootErrs    []error
		interrupted bool
	)
	for _, key := range keys {
		if cerr := ctx.Err(); cerr != nil {
			rootErrs = append(rootErrs, cerr)
			interrupted = true
			break
		}
		root, created, rerr := e.takeRoot(ctx, g, key, tick)
		if rerr != nil {
			if IsFatal(rerr) {
				return report, rerr
			}
			rootErrs = append(rootErrs, rerr)
			report.Roots = append(report.Roots, RootReport{Key: key, Err: rerr})
			continue
		}
		rr, sr, rerr := e.reconcile(ctx, g, root, tick)
		rr.Created = created
		if rerr != nil {
			if IsFatal(rerr) {
				return report, rerr
			}
			rootErrs = append(rootErrs, rerr)
			rr.Err = rerr
			e.logger.Warn("root pass failed", "root", root.Name, "tick", tick, "error", rerr)
		}
		next[key] = root
		report.Roots = append(report.Roots, rr)
		if sr != nil {
			scripts = append(scripts, *sr)
		}
	}

	if interrupted {
		for key, root := range e.roots {
			next[key] = root
		}
		clear(e.roots)
	}
	for _, key := range sortedKeys(e.roots) {
		root := e.roots[key]
		report.Dropped = append(report.Dropped, key)
		e.logger.Warn("root dropped; subtree left in graph",
			"root", root.Name, "anchor", key.Anchor.String(), "descriptor", key.Descriptor,
			"live_ids", root.Registry.Len())
		if e.dropHook != nil {
			e.dropHook(root)
		}
	}
	e.roots = next

	live := e.Roots()
	names := make([]string, len(live))
	for i, r := range live {
		names[i] = r.Name
	}

	// The hash is only worth a full dump when it is journaled.
	if e.recorder != nil {
		report.GraphHash = ir.GraphHash(DumpRoots(g, live))
		rec := store.TickRecord{
			RunID:     e.RunID(),
			Tick:      tick,
			Seq:       e.nextSeq(),
			Commands:  report.Commands,
			Roots:     names,
			GraphHash: report.GraphHash,
			Scripts:   scripts,
		}
		// Journaled with a detached context: the scripts are applied already.
		if jerr := e.recorder.RecordTick(context.WithoutCancel(ctx), rec); jerr != nil {
			return report, newJournalError(tick, "", jerr)
		}
	}

	e.metrics.recordTick(report, len(e.roots), time.Since(start))
	span.SetAttributes(attribute.Int("nodesync.ops", report.Ops()))
	e.logger.Debug("tick complete", "tick", tick, "roots", len(report.Roots),
		"ops", report.Ops(), "dropped", len(report.Dropped), "failed", len(rootErrs))
	return report, errors.Join(rootErrs...)
}

// beginRun writes the run record before the first tick is journaled.
func (e *Engine) beginRun(ctx context.Context) error {
	if e.recorder == nil || e.begun {
		return nil
	}
	run := store.RunRecord{
		ID:              e.RunID(),
		Label:           e.runLabel,
		KindHash:        e.kindHash,
		HandleAttribute: e.handleAttr,
		EngineVersion:   ir.EngineVersion,
		IRVersion:       ir.IRVersion,
	}
	if err := e.recorder.BeginRun(ctx, run); err != nil {
		return err
	}
	e.begun = true
	e.logger.Info("run started", "run", run.ID, "label", run.Label)
	return nil
}

// drain runs the commands queued before this tick, in FIFO order.
func (e *Engine) drain(g graph.Graph, tick int64) (int, error) {
	batch := e.queue.Take()
	for i, c := range batch {
		if err := c(g); err != nil {
			return i, newDeferredError(tick, i, err)
		}
	}
	return len(batch), nil
}

// takeRoot removes key's root from the table, creating it on first sight.
func (e *Engine) takeRoot(ctx context.Context, g graph.Graph, key RootKey, tick int64) (*Root, bool, error) {
	if !g.Alive(key.Anchor) {
		return nil, false, fmt.Errorf("root %s: %w", key,
			&registry.MissingMappingError{ID: ir.RootElement, Dead: true})
	}
	if root, ok := e.roots[key]; ok {
		delete(e.roots, key)
		return root, false, nil
	}

	diff, err := e.factory(key)
	if err != nil {
		return nil, false, fmt.Errorf("root %s: diff engine: %w", key, err)
	}
	root := &Root{
		Key:           key,
		Name:          e.rootName(key.Descriptor),
		Diff:          diff,
		Registry:      registry.New(key.Anchor),
		Templates:     template.NewCache(e.adapter, template.WithLogger(e.logger)),
		Subscriptions: subscription.New(e.state, subscription.WithLogger(e.logger)),
		NeverBuilt:    true,
		created:       tick,
	}
	templates := diff.Templates()
	for _, t := range templates {
		if err := root.Templates.Register(t); err != nil {
			return nil, false, fmt.Errorf("root %s: %w", key, err)
		}
	}

	if e.recorder != nil {
		rec := store.RootRecord{
			RunID:     e.RunID(),
			Root:      root.Name,
			Anchor:    key.Anchor.String(),
			Seq:       e.nextSeq(),
			Templates: templates,
		}
		if err := e.recorder.RecordRoot(ctx, rec); err != nil {
			return nil, false, newJournalError(tick, root.Name, err)
		}
	}
	e.logger.Info("root created", "root", root.Name, "anchor", key.Anchor.String(),
		"templates", root.Templates.Len())
	return root, true, nil
}

// rootName derives a run-unique name from a descriptor.
// The first root under a descriptor takes it verbatim; later ones get #n.
func (e *Engine) rootName(descriptor string) string {
	n := e.names[descriptor]
	e.names[descriptor] = n + 1
	if n == 0 {
		return descriptor
	}
	return fmt.Sprintf("%s#%d", descriptor, n)
}

// reconcile runs one root pass: dirty marking, build or diff, apply.
func (e *Engine) reconcile(ctx context.Context, g graph.Graph, root *Root, tick int64) (RootReport, *store.ScriptRecord, error) {
	ctx, span := e.tracer.Start(ctx, "nodesync.root",
		trace.WithAttributes(attribute.String("nodesync.root", root.Name)))
	defer span.End()

	rr := RootReport{Key: root.Key, Name: root.Name}
	fail := func(err error) (RootReport, *store.ScriptRecord, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "root pass failed")
		var re *RuntimeError
		if errors.As(err, &re) {
			return rr, nil, err
		}
		return rr, nil, fmt.Errorf("root %s: %w", root.Name, err)
	}

	tc := newTickContext(ctx, g, e, root, tick)
	defer tc.expire()

	dirty := root.Subscriptions.Collect()
	for _, scope := range dirty {
		root.Diff.MarkDirty(scope)
	}
	rr.Dirty = len(dirty)

	var (
		script mutation.Script
		kind   store.ScriptKind
		err    error
	)
	if root.NeverBuilt {
		script, err = root.Diff.Build(tc)
		kind = store.ScriptBuild
		rr.Built = true
	} else {
		script, err = root.Diff.Diff(tc, dirty)
		kind = store.ScriptDiff
	}
	if err != nil {
		return fail(err)
	}

	res, err := e.machine.Apply(root.target(g, e.adapter), script)
	rr.Ops, rr.Spawned, rr.Removed = res.Ops, res.Spawned, res.Removed
	if err != nil {
		return fail(err)
	}
	root.NeverBuilt = false

	span.SetAttributes(
		attribute.Int("nodesync.dirty", rr.Dirty),
		attribute.Int("nodesync.ops", rr.Ops),
	)
	e.logger.Debug("root reconciled", "root", root.Name, "tick", tick,
		"kind", string(kind), "dirty", rr.Dirty, "ops", rr.Ops)

	if len(script) == 0 || e.recorder == nil {
		return rr, nil, nil
	}
	hash, err := mutation.Hash(script)
	if err != nil {
		return fail(newJournalError(tick, root.Name, err))
	}
	return rr, &store.ScriptRecord{
		Seq:    e.nextSeq(),
		Tick:   tick,
		Root:   root.Name,
		Kind:   kind,
		Hash:   hash,
		Script: script,
	}, nil
}

// dedupe keeps the first occurrence of each key, in order.
func dedupe(keys []RootKey) []RootKey {
	seen := make(map[RootKey]bool, len(keys))
	out := make([]RootKey, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// sortedKeys orders a root table for deterministic drop reporting.
func sortedKeys(roots map[RootKey]*Root) []RootKey {
	keys := make([]RootKey, 0, len(roots))
	for k := range roots {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b RootKey) int {
		return strings.Compare(roots[a].Name, roots[b].Name)
	})
	return keys
}
