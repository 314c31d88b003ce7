package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/mutation"
)

func writeTwoTicks(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	require.NoError(t, s.RecordRoot(ctx, RootRecord{
		RunID: "run-1", Root: "main", Anchor: "n1v1", Seq: 1,
		Templates: []ir.Template{rowTemplate()},
	}))
	require.NoError(t, s.RecordTick(ctx, TickRecord{
		RunID: "run-1", Tick: 1, Seq: 3, GraphHash: "g1", Roots: []string{"main"},
		Scripts: []ScriptRecord{scriptRecord(t, 2, 1, "main", ScriptBuild, buildScript())},
	}))
	require.NoError(t, s.RecordTick(ctx, TickRecord{
		RunID: "run-1", Tick: 2, Seq: 5, Commands: 1, GraphHash: "g2",
		Scripts: []ScriptRecord{scriptRecord(t, 4, 2, "main", ScriptDiff, mutation.Script{
			mutation.RemoveNode{ID: 2},
		})},
	}))
}

func TestReadRun(t *testing.T) {
	s := createTestStore(t)
	want := createTestRun(t, s, "run-1")

	got, err := s.ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = s.ReadRun(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestBeginRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")
	createTestRun(t, s, "run-1")
	createTestRun(t, s, "run-2")

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].ID)

	latest, err := s.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.ID)
}

func TestLatestRun_Empty(t *testing.T) {
	s := createTestStore(t)

	_, err := s.LatestRun(context.Background())
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestRecordRoot_TemplatesRoundTrip(t *testing.T) {
	s := createTestStore(t)
	writeTwoTicks(t, s)

	roots, err := s.ReadRoots(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "main", roots[0].Root)
	assert.Equal(t, []ir.Template{rowTemplate()}, roots[0].Templates)
}

func TestReadScripts_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	writeTwoTicks(t, s)

	scripts, err := s.ReadScripts(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, scripts, 2)

	assert.Equal(t, int64(2), scripts[0].Seq)
	assert.Equal(t, ScriptBuild, scripts[0].Kind)
	assert.Equal(t, buildScript(), scripts[0].Script)
	assert.Equal(t, int64(4), scripts[1].Seq)
	assert.Equal(t, ScriptDiff, scripts[1].Kind)
}

func TestRecordTick_Atomic(t *testing.T) {
	s := createTestStore(t)
	writeTwoTicks(t, s)
	ctx := context.Background()

	// Seq 2 is already taken, so the script insert fails and the tick row
	// must not survive.
	err := s.RecordTick(ctx, TickRecord{
		RunID: "run-1", Tick: 3, Seq: 7, GraphHash: "g3",
		Scripts: []ScriptRecord{scriptRecord(t, 2, 3, "main", ScriptDiff, mutation.Script{
			mutation.RemoveNode{ID: 1},
		})},
	})
	require.Error(t, err)

	ticks, err := s.ReadTicks(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, ticks, 2)
}

func TestReadJournal(t *testing.T) {
	s := createTestStore(t)
	writeTwoTicks(t, s)

	j, err := s.ReadJournal(context.Background(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, "run-1", j.Run.ID)
	require.Len(t, j.Ticks, 2)
	assert.Equal(t, "g1", j.Ticks[0].GraphHash)
	assert.Len(t, j.Ticks[0].Scripts, 1)
	assert.Equal(t, 1, j.Ticks[1].Commands)
	assert.Equal(t, []string{"main"}, j.Ticks[0].Roots)
	assert.Empty(t, j.Ticks[1].Roots)
	assert.Equal(t, 2, j.ScriptCount())
	assert.Equal(t, int64(5), j.LastSeq)
}

func TestQueryOps(t *testing.T) {
	s := createTestStore(t)
	writeTwoTicks(t, s)

	ops, err := s.QueryOps(context.Background(), `
		SELECT run_id, seq, idx, tick, root, op, element, fields
		FROM ops
		WHERE run_id = ?
		ORDER BY seq ASC, idx ASC
	`, "run-1")
	require.NoError(t, err)
	require.Len(t, ops, 5)

	assert.Equal(t, "LoadTemplate", ops[0].Op)
	assert.Equal(t, `{"id":1,"idx":0,"name":"row","op":"LoadTemplate"}`, ops[0].Fields)
	require.NotNil(t, ops[0].Element)
	assert.Equal(t, int64(1), *ops[0].Element)

	assert.Equal(t, "RemoveNode", ops[4].Op)
	assert.Equal(t, int64(2), ops[4].Tick)
}
