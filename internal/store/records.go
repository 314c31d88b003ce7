package store

import (
	"context"

	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/mutation"
)

// Recorder receives the journal of one engine run.
// *Store implements it; the engine calls it from its tick goroutine only.
type Recorder interface {
	BeginRun(ctx context.Context, run RunRecord) error
	RecordRoot(ctx context.Context, root RootRecord) error
	RecordTick(ctx context.Context, tick TickRecord) error
}

// ScriptKind says whether a script was a full build or an incremental diff.
type ScriptKind string

const (
	ScriptBuild ScriptKind = "build"
	ScriptDiff  ScriptKind = "diff"
)

// RunRecord describes one engine run.
type RunRecord struct {
	ID              string
	Label           string
	KindHash        string
	HandleAttribute string
	EngineVersion   string
	IRVersion       string
}

// RootRecord describes a root created during a run and the templates its
// diff engine registered.
type RootRecord struct {
	RunID     string
	Root      string // run-unique root name
	Anchor    string // anchor node, for diagnostics only
	Seq       int64
	Templates []ir.Template
}

// TickRecord is one reconciled tick.
type TickRecord struct {
	RunID     string
	Tick      int64
	Seq       int64
	Commands  int      // deferred commands drained at the start of the tick
	Roots     []string // names of the roots observed, sorted
	GraphHash string
	Scripts   []ScriptRecord
}

// ScriptRecord is one applied, non-empty edit-script.
type ScriptRecord struct {
	Seq    int64
	Tick   int64
	Root   string
	Kind   ScriptKind
	Hash   string
	Script mutation.Script
}

// OpRow is one journaled op as returned by trace queries.
type OpRow struct {
	RunID   string
	Seq     int64
	Idx     int
	Tick    int64
	Root    string
	Op      string
	Element *int64 // nil for path-addressed ops
	Fields  string // canonical JSON
}
