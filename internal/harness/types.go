package harness

import (
	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/store"
)

// TraceEvent is one applied op as journaled by the engine.
type TraceEvent struct {
	Seq    int64  `json:"seq"`  // seq of the script the op belongs to
	Idx    int    `json:"idx"`  // position within that script
	Tick   int64  `json:"tick"`
	Root   string `json:"root"`
	Kind   string `json:"kind"` // "build" or "diff"
	Op     string `json:"op"`
	Fields ir.Map `json:"fields"`
}

// Failure describes the fatal error that stopped a run.
type Failure struct {
	Code    string `json:"code"`
	Tick    int64  `json:"tick"`
	Message string `json:"message"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the run failed exactly as expected and every assertion held.
	Pass bool `json:"pass"`

	// RunID is the journal id of the run.
	RunID string `json:"run_id"`

	// Trace contains every applied op in journal order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Ticks is the number of ticks that completed.
	Ticks int `json:"ticks"`

	// Dump is the final dump of the live roots.
	Dump string `json:"dump"`

	// Roots lists the live roots by name, sorted.
	Roots []string `json:"roots"`

	// Handles maps each named handle to whether it is bound.
	Handles map[string]bool `json:"handles,omitempty"`

	// Failure is set when a tick failed.
	Failure *Failure `json:"failure,omitempty"`

	journal store.Journal
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Roots:   []string{},
		Handles: make(map[string]bool),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Journal returns the journal the run wrote.
func (r *Result) Journal() store.Journal {
	return r.journal
}

// addScript appends every op of sr to the trace.
func (r *Result) addScript(sr store.ScriptRecord) {
	for i, o := range sr.Script {
		r.Trace = append(r.Trace, TraceEvent{
			Seq:    sr.Seq,
			Idx:    i,
			Tick:   sr.Tick,
			Root:   sr.Root,
			Kind:   string(sr.Kind),
			Op:     string(o.Kind()),
			Fields: opFields(o),
		})
	}
}
