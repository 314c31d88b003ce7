package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nodesync/internal/playback"
	"github.com/roach88/nodesync/internal/testutil"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"resource_diff", "dropped_root", "event_teardown", "unknown_template"} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_ResultContents(t *testing.T) {
	result, err := Run(loadTestScenario(t, "resource_diff"))
	require.NoError(t, err)

	assert.Equal(t, "run-resource-diff", result.RunID)
	assert.Equal(t, 2, result.Ticks)
	assert.Equal(t, []string{"main"}, result.Roots)
	assert.Equal(t, map[string]bool{"header": true}, result.Handles)
	assert.Nil(t, result.Failure)
	require.Len(t, result.Trace, 5)
	assert.Equal(t, "build", result.Trace[0].Kind)
	assert.Equal(t, "diff", result.Trace[4].Kind)
	assert.Equal(t, int64(2), result.Trace[4].Tick)

	j := result.Journal()
	assert.Equal(t, "resource_diff", j.Run.Label)
	assert.Len(t, j.Ticks, 2)
	assert.Equal(t, 2, j.ScriptCount())
}

func TestRun_DefaultRunID(t *testing.T) {
	result, err := Run(loadTestScenario(t, "event_teardown"))
	require.NoError(t, err)
	assert.Equal(t, testutil.DefaultRunID, result.RunID)
}

func TestRun_FailureRecorded(t *testing.T) {
	result, err := Run(loadTestScenario(t, "unknown_template"))
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	assert.Equal(t, "UNKNOWN_TEMPLATE", result.Failure.Code)
	assert.Equal(t, int64(1), result.Failure.Tick)
	assert.Equal(t, 0, result.Ticks)
	assert.Empty(t, result.Trace)
}

func TestRun_UnexpectedFailure(t *testing.T) {
	s := loadTestScenario(t, "unknown_template")
	s.Expect = nil

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "unexpected failure in tick 1")
}

func TestRun_WrongExpectedFailure(t *testing.T) {
	s := loadTestScenario(t, "unknown_template")
	s.Expect = &ExpectClause{Error: "ATTRIBUTE"}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected failure ATTRIBUTE, got UNKNOWN_TEMPLATE")
}

func TestRun_MissingExpectedFailure(t *testing.T) {
	s := loadTestScenario(t, "dropped_root")
	s.Expect = &ExpectClause{Error: "UNKNOWN_TEMPLATE"}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "every tick succeeded")
}

func TestRun_FailingAssertion(t *testing.T) {
	s := loadTestScenario(t, "dropped_root")
	s.Assertions = []Assertion{{Type: AssertLiveRoots, Roots: []string{"main", "main#1"}}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: live_roots")
}

func TestRun_AttributeError(t *testing.T) {
	s := &Scenario{
		Name:        "bad_attribute",
		Description: "setting an undeclared attribute",
		Defs:        filepath.Join("testdata", "defs"),
		Playback: playback.Script{
			Roots: map[string]playback.RootSpec{
				"main": {Build: []playback.OpSpec{
					{"op": "LoadTemplate", "name": "row", "idx": 0, "id": 1},
					{"op": "SetAttribute", "id": 1, "name": "color", "value": "red"},
					{"op": "AppendChildren", "id": 0, "m": 1},
				}},
			},
			Ticks: []playback.TickSpec{{Observe: []string{"main"}}},
		},
		Expect: &ExpectClause{Error: "ATTRIBUTE", Tick: 1},
	}
	require.NoError(t, validateScenario(s))

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_BadDefs(t *testing.T) {
	s := loadTestScenario(t, "dropped_root")
	s.Defs = t.TempDir()

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load defs")
}
