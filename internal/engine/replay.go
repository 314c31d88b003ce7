package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/nodesync/internal/adapter"
	"github.com/roach88/nodesync/internal/graph"
	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/mutation"
	"github.com/roach88/nodesync/internal/registry"
	"github.com/roach88/nodesync/internal/store"
	"github.com/roach88/nodesync/internal/template"
)

// HashMismatch is a tick whose replayed graph differs from the recording.
//
// Deferred commands are host closures and are not journaled. From the
// first tick that drained one, a mismatch may come from the missing
// commands rather than from the scripts; those are flagged Unjournaled.
type HashMismatch struct {
	Tick        int64  `json:"tick"`
	Recorded    string `json:"recorded"`
	Replayed    string `json:"replayed"`
	Unjournaled bool   `json:"unjournaled,omitempty"`
}

// ReplayResult is the graph rebuilt from a journal.
type ReplayResult struct {
	Graph      *graph.Arena
	Roots      map[string]*Root // by root name; Diff is nil
	Ticks      int
	Scripts    int
	Mismatches []HashMismatch
	LastSeq    int64 // resume an engine with WithStartSeq(LastSeq)
}

// Verify returns an error describing the first hash mismatch the journal
// alone accounts for. Unjournaled mismatches are not errors.
func (r *ReplayResult) Verify() error {
	var found []HashMismatch
	for _, m := range r.Mismatches {
		if !m.Unjournaled {
			found = append(found, m)
		}
	}
	if len(found) == 0 {
		return nil
	}
	m := found[0]
	return fmt.Errorf("tick %d: replayed graph hash %s does not match recorded %s (%d mismatched ticks)",
		m.Tick, m.Replayed, m.Recorded, len(found))
}

// ReplayOption configures Replay.
type ReplayOption func(*replayConfig)

type replayConfig struct {
	logger *slog.Logger
}

// WithReplayLogger sets the logger mismatches are reported to.
// Defaults to slog.Default().
func WithReplayLogger(l *slog.Logger) ReplayOption {
	return func(c *replayConfig) {
		c.logger = l
	}
}

// Dump renders the roots observed in the last replayed tick.
func (r *ReplayResult) Dump(names []string) string {
	roots := make([]*Root, 0, len(names))
	for _, name := range names {
		if root, ok := r.Roots[name]; ok {
			roots = append(roots, root)
		}
	}
	return DumpRoots(r.Graph, roots)
}

// Replay rebuilds a run's graph from its journal into a fresh Arena.
//
// Replay is structural: every script goes through the same mutation
// machine the engine used, in seq order, against registries and template
// caches rebuilt from the journaled roots. No diff engine runs.
//
// Each root gets a fresh, unparented anchor. Handle values cannot be
// recovered from a journal, so each SetAttribute on the handle attribute
// binds a fresh registry.Handle instead; the dump only records that a
// handle is bound, so hashes still compare equal.
//
// After each tick the dump of the roots it observed is hashed and compared
// with the recorded hash. Mismatches are collected, not returned as errors.
// Deferred commands cannot be replayed; see HashMismatch.
func Replay(j store.Journal, a adapter.Adapter, opts ...ReplayOption) (*ReplayResult, error) {
	cfg := replayConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	g := graph.NewArena()
	handleAttr := j.Run.HandleAttribute
	if handleAttr == "" {
		handleAttr = mutation.DefaultHandleAttribute
	}
	machine := mutation.NewMachine(mutation.WithHandleAttribute(handleAttr), mutation.WithLogger(cfg.logger))

	res := &ReplayResult{
		Graph:   g,
		Roots:   make(map[string]*Root, len(j.Roots)),
		LastSeq: j.LastSeq,
	}
	for _, rr := range j.Roots {
		anchor := g.Spawn()
		root := &Root{
			Key:       RootKey{Anchor: anchor, Descriptor: rr.Root},
			Name:      rr.Root,
			Registry:  registry.New(anchor),
			Templates: template.NewCache(a, template.WithLogger(cfg.logger)),
		}
		for _, t := range rr.Templates {
			if err := root.Templates.Register(t); err != nil {
				return nil, fmt.Errorf("replay root %q: %w", rr.Root, err)
			}
		}
		res.Roots[rr.Root] = root
	}

	unjournaled := false
	for _, tick := range j.Ticks {
		if tick.Commands > 0 {
			unjournaled = true
		}
		for _, sr := range tick.Scripts {
			root, ok := res.Roots[sr.Root]
			if !ok {
				return nil, fmt.Errorf("replay script %d: unknown root %q", sr.Seq, sr.Root)
			}
			script := rebindHandles(sr.Script, handleAttr)
			if _, err := machine.Apply(root.target(g, a), script); err != nil {
				return nil, fmt.Errorf("replay script %d (tick %d, root %s): %w", sr.Seq, tick.Tick, sr.Root, err)
			}
			res.Scripts++
		}
		res.Ticks++

		replayed := ir.GraphHash(res.Dump(tick.Roots))
		if replayed != tick.GraphHash {
			res.Mismatches = append(res.Mismatches, HashMismatch{
				Tick:        tick.Tick,
				Recorded:    tick.GraphHash,
				Replayed:    replayed,
				Unjournaled: unjournaled,
			})
			cfg.logger.Warn("replay hash mismatch", "run", j.Run.ID, "tick", tick.Tick,
				"unjournaled_commands", unjournaled)
		}
	}
	return res, nil
}

// rebindHandles swaps decoded handle placeholders for fresh handles.
func rebindHandles(s mutation.Script, handleAttr string) mutation.Script {
	out := make(mutation.Script, len(s))
	for i, o := range s {
		if sa, ok := o.(mutation.SetAttribute); ok && sa.Name == handleAttr {
			if _, isAny := sa.Value.(ir.Any); isAny {
				sa.Value = ir.Any{V: registry.NewHandle()}
				o = sa
			}
		}
		out[i] = o
	}
	return out
}
