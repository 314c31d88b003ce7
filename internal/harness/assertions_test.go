package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nodesync/internal/ir"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 2, Idx: 0, Tick: 1, Root: "main", Kind: "build", Op: "LoadTemplate",
			Fields: ir.Map{"name": ir.Text("row"), "idx": ir.Int(0), "id": ir.Int(1)}},
		{Seq: 2, Idx: 1, Tick: 1, Root: "main", Kind: "build", Op: "AppendChildren",
			Fields: ir.Map{"id": ir.Int(0), "m": ir.Int(1)}},
		{Seq: 4, Idx: 0, Tick: 2, Root: "main", Kind: "diff", Op: "SetAttribute",
			Fields: ir.Map{"id": ir.Int(1), "name": ir.Text("gap"), "value": ir.Int(4)}},
		{Seq: 5, Idx: 0, Tick: 2, Root: "side", Kind: "build", Op: "LoadTemplate",
			Fields: ir.Map{"name": ir.Text("caption"), "idx": ir.Int(0), "id": ir.Int(1)}},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Op: "SetAttribute", Fields: map[string]any{"value": 4}}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Op: "LoadTemplate", Root: "side"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Op: "LoadTemplate", Tick: 2, Fields: map[string]any{"name": "caption"}}))

	err := assertTraceContains(trace, Assertion{Op: "SetAttribute", Fields: map[string]any{"value": 5}})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "trace_contains", ae.Type)
	assert.Contains(t, err.Error(), "Full trace:")

	assert.Error(t, assertTraceContains(trace, Assertion{Op: "LoadTemplate", Root: "side", Tick: 1}))
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Ops: []string{"LoadTemplate", "SetAttribute"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Ops: []string{"LoadTemplate", "LoadTemplate"}}))

	err := assertTraceOrder(trace, Assertion{Ops: []string{"SetAttribute", "AppendChildren"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "then no AppendChildren")
}

func TestAssertOpCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertOpCount(trace, Assertion{Op: "LoadTemplate", Count: 2}))
	assert.NoError(t, assertOpCount(trace, Assertion{Op: "LoadTemplate", Root: "main", Count: 1}))
	assert.NoError(t, assertOpCount(trace, Assertion{Op: "RemoveNode", Count: 0}))

	err := assertOpCount(trace, Assertion{Op: "SetAttribute", Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 occurrences")
}

func TestAssertDump(t *testing.T) {
	dump := "# main\nanchor#0\n"

	assert.NoError(t, assertDump(dump, Assertion{Type: AssertDump, Text: dump}))
	assert.NoError(t, assertDump(dump, Assertion{Type: AssertDumpContains, Text: "anchor#0"}))

	err := assertDump(dump, Assertion{Type: AssertDump, Text: "# main\n"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-want +got")

	assert.Error(t, assertDump(dump, Assertion{Type: AssertDumpContains, Text: "panel"}))
}

func TestAssertHandle(t *testing.T) {
	handles := map[string]bool{"header": true, "footer": false}

	assert.NoError(t, assertHandle(handles, Assertion{Handle: "header", Bound: true}))
	assert.NoError(t, assertHandle(handles, Assertion{Handle: "footer"}))
	assert.ErrorContains(t, assertHandle(handles, Assertion{Handle: "footer", Bound: true}), "bound=false")
	assert.ErrorContains(t, assertHandle(handles, Assertion{Handle: "nav"}), "no op references it")
}

func TestAssertLiveRoots(t *testing.T) {
	assert.NoError(t, assertLiveRoots([]string{"a", "b"}, Assertion{Roots: []string{"a", "b"}}))
	assert.NoError(t, assertLiveRoots([]string{}, Assertion{}))
	assert.Error(t, assertLiveRoots([]string{"a"}, Assertion{Roots: []string{"a", "b"}}))
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	result.Dump = "# main\n"

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertOpCount, Op: "LoadTemplate", Count: 2},
		{Type: AssertDumpContains, Text: "# main"},
		{Type: AssertOpCount, Op: "LoadTemplate", Count: 9},
		{Type: AssertReplay},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "op_count")
	assert.Contains(t, errs[1], "replay requires an adapter")
	assert.Contains(t, errs[2], `unknown assertion type "bogus"`)
}
