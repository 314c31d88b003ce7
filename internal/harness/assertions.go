package harness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/nodesync/internal/adapter"
	"github.com/roach88/nodesync/internal/engine"
	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/queryir"
	"github.com/roach88/nodesync/internal/querysql"
	"github.com/roach88/nodesync/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] tick %d %s %s %v\n", i+1, event.Tick, event.Root, event.Op, event.Fields)
		}
	}

	return buf.String()
}

// matches reports whether event passes the assertion's root and tick filters.
func (a Assertion) matches(event TraceEvent) bool {
	if a.Root != "" && event.Root != a.Root {
		return false
	}
	return a.Tick == 0 || event.Tick == a.Tick
}

// assertTraceContains checks if the trace contains an op matching the
// specified kind and fields (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	want, err := ir.FromNative(map[string]any(assertion.Fields))
	if err != nil {
		return fmt.Errorf("trace_contains: fields: %w", err)
	}
	wantFields, _ := want.(ir.Map)

	for _, event := range trace {
		if event.Op == assertion.Op && assertion.matches(event) && matchFields(event.Fields, wantFields) {
			return nil
		}
	}

	return &AssertionError{
		Type:     "trace_contains",
		Expected: fmt.Sprintf("op %s with fields %v", assertion.Op, assertion.Fields),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if ops appear in the specified order.
// Ops don't need to be consecutive (intervening ops are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.Ops) && event.Op == assertion.Ops[next] {
			next++
		}
	}
	if next == len(assertion.Ops) {
		return nil
	}
	return &AssertionError{
		Type:     "trace_order",
		Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
		Actual:   fmt.Sprintf("matched %v, then no %s", assertion.Ops[:next], assertion.Ops[next]),
		Trace:    trace,
	}
}

// assertOpCount checks if the op appears exactly the specified number of times.
func assertOpCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == assertion.Op && assertion.matches(event) {
			count++
		}
	}
	return checkOpCount(trace, assertion, count)
}

// assertStoredOpCount counts the op in the journal store instead of the
// in-memory trace.
func assertStoredOpCount(actx *AssertionContext, result *Result, assertion Assertion) error {
	filter := queryir.OpFilter{RunID: result.RunID, Op: assertion.Op, Root: assertion.Root}
	if assertion.Tick != 0 {
		filter.FromTick = queryir.Bound(assertion.Tick)
		filter.ToTick = queryir.Bound(assertion.Tick)
	}
	rows, err := querysql.QueryOps(actx.Ctx, actx.Store, filter)
	if err != nil {
		return fmt.Errorf("op_count: %w", err)
	}
	return checkOpCount(result.Trace, assertion, len(rows))
}

func checkOpCount(trace []TraceEvent, assertion Assertion, count int) error {
	if count != assertion.Count {
		return &AssertionError{
			Type:     "op_count",
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertDump checks the final dump, exactly or by fragment.
func assertDump(dump string, assertion Assertion) error {
	if assertion.Type == AssertDumpContains {
		if strings.Contains(dump, assertion.Text) {
			return nil
		}
		return &AssertionError{
			Type:     "dump_contains",
			Expected: fmt.Sprintf("dump containing %q", assertion.Text),
			Actual:   dump,
		}
	}
	if diff := cmp.Diff(assertion.Text, dump); diff != "" {
		return &AssertionError{
			Type:     "dump",
			Expected: "dump to match",
			Actual:   fmt.Sprintf("mismatch (-want +got):\n%s", diff),
		}
	}
	return nil
}

// assertHandle checks whether a named handle is bound.
func assertHandle(handles map[string]bool, assertion Assertion) error {
	bound, ok := handles[assertion.Handle]
	if !ok {
		return &AssertionError{
			Type:     "handle",
			Expected: fmt.Sprintf("handle %q", assertion.Handle),
			Actual:   "no op references it",
		}
	}
	if bound != assertion.Bound {
		return &AssertionError{
			Type:     "handle",
			Expected: fmt.Sprintf("handle %q bound=%t", assertion.Handle, assertion.Bound),
			Actual:   fmt.Sprintf("bound=%t", bound),
		}
	}
	return nil
}

// assertLiveRoots checks the exact set of live roots.
func assertLiveRoots(roots []string, assertion Assertion) error {
	want := assertion.Roots
	if want == nil {
		want = []string{}
	}
	if diff := cmp.Diff(want, roots); diff != "" {
		return &AssertionError{
			Type:     "live_roots",
			Expected: fmt.Sprintf("roots %v", want),
			Actual:   fmt.Sprintf("mismatch (-want +got):\n%s", diff),
		}
	}
	return nil
}

// assertReplay rebuilds the graph from the journal and checks every tick's
// graph hash.
func assertReplay(actx *AssertionContext) error {
	var opts []engine.ReplayOption
	if actx.Logger != nil {
		opts = append(opts, engine.WithReplayLogger(actx.Logger))
	}
	res, err := engine.Replay(actx.Journal, actx.Adapter, opts...)
	if err != nil {
		return &AssertionError{
			Type:     "replay",
			Expected: "journal to replay",
			Actual:   err.Error(),
		}
	}
	if err := res.Verify(); err != nil {
		return &AssertionError{
			Type:     "replay",
			Expected: "replayed graph hashes to match the journal",
			Actual:   err.Error(),
		}
	}
	return nil
}

// matchFields checks if actual contains all expected fields (subset match).
// Extra keys in actual are ignored.
func matchFields(actual, expected ir.Map) bool {
	for key, want := range expected {
		got, exists := actual[key]
		if !exists || !ir.Equal(got, want) {
			return false
		}
	}
	return true
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx     context.Context
	Store   *store.Store
	Adapter adapter.Adapter
	Journal store.Journal
	Logger  *slog.Logger // nil means slog.Default()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides the journal and adapter for replay assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertOpCount:
			if actx != nil && actx.Store != nil {
				err = assertStoredOpCount(actx, result, assertion)
			} else {
				err = assertOpCount(result.Trace, assertion)
			}
		case AssertDump, AssertDumpContains:
			err = assertDump(result.Dump, assertion)
		case AssertHandle:
			err = assertHandle(result.Handles, assertion)
		case AssertLiveRoots:
			err = assertLiveRoots(result.Roots, assertion)
		case AssertReplay:
			if actx == nil || actx.Adapter == nil {
				err = fmt.Errorf("assertion[%d]: replay requires an adapter", i)
			} else {
				err = assertReplay(actx)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
