package querysql

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/mutation"
	"github.com/roach88/nodesync/internal/queryir"
	"github.com/roach88/nodesync/internal/store"
)

func TestCompile_SimpleSelect(t *testing.T) {
	compiler := NewSQLCompiler()

	query := queryir.Select{
		From:    "ops",
		Columns: []string{"seq", "op"},
		Filter:  queryir.Equals{Field: "root", Value: ir.Text("main")},
	}

	sql, params, err := compiler.Compile(query)
	require.NoError(t, err)

	assert.Equal(t, "SELECT seq, op FROM ops WHERE root = ? ORDER BY seq ASC, idx ASC", sql)
	assert.NotContains(t, sql, "main")
	assert.Equal(t, []any{"main"}, params)
}

func TestCompile_SelectPointer(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(&queryir.Select{
		From:    "ticks",
		Columns: []string{"tick", "graph_hash"},
		Filter:  &queryir.Equals{Field: "run_id", Value: ir.Text("run-1")},
	})
	require.NoError(t, err)

	assert.Equal(t, "SELECT tick, graph_hash FROM ticks WHERE run_id = ? ORDER BY tick ASC", sql)
	assert.Equal(t, []any{"run-1"}, params)
}

func TestCompile_OrderByMandatory(t *testing.T) {
	for table := range queryir.Tables {
		t.Run(table, func(t *testing.T) {
			sql, _, err := NewSQLCompiler().Compile(queryir.Select{
				From:    table,
				Columns: []string{"run_id"},
			})
			require.NoError(t, err)
			assert.Contains(t, sql, " ORDER BY ")
			assert.NotContains(t, sql, "WHERE")
		})
	}
}

func TestCompile_Predicates(t *testing.T) {
	tests := []struct {
		name   string
		filter queryir.Predicate
		where  string
		params []any
	}{
		{
			name:   "int literal",
			filter: queryir.Equals{Field: "element", Value: ir.Int(3)},
			where:  "element = ?",
			params: []any{int64(3)},
		},
		{
			name:   "bool literal",
			filter: queryir.Equals{Field: "idx", Value: ir.Bool(true)},
			where:  "idx = ?",
			params: []any{int64(1)},
		},
		{
			name:   "null literal",
			filter: queryir.Equals{Field: "element", Value: ir.None{}},
			where:  "element IS NULL",
		},
		{
			name:   "closed range",
			filter: queryir.Range{Field: "tick", From: queryir.Bound(2), To: queryir.Bound(5)},
			where:  "tick >= ? AND tick <= ?",
			params: []any{int64(2), int64(5)},
		},
		{
			name:   "lower bound",
			filter: &queryir.Range{Field: "tick", From: queryir.Bound(2)},
			where:  "tick >= ?",
			params: []any{int64(2)},
		},
		{
			name:   "open range",
			filter: queryir.Range{Field: "tick"},
			where:  "1 = 1",
		},
		{
			name:   "empty and",
			filter: queryir.And{},
			where:  "1 = 1",
		},
		{
			name: "conjunction keeps parameter order",
			filter: &queryir.And{Predicates: []queryir.Predicate{
				queryir.Equals{Field: "op", Value: ir.Text("RemoveNode")},
				queryir.Range{Field: "tick", To: queryir.Bound(9)},
				queryir.And{Predicates: []queryir.Predicate{
					queryir.Equals{Field: "root", Value: ir.Text("main")},
				}},
			}},
			where:  "op = ? AND tick <= ? AND root = ?",
			params: []any{"RemoveNode", int64(9), "main"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := NewSQLCompiler().Compile(queryir.Select{
				From:    "ops",
				Columns: []string{"seq"},
				Filter:  tt.filter,
			})
			require.NoError(t, err)
			assert.Equal(t, "SELECT seq FROM ops WHERE "+tt.where+" ORDER BY seq ASC, idx ASC", sql)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestCompile_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		query queryir.Query
		want  string
	}{
		{
			name:  "nil",
			query: nil,
			want:  "nil query",
		},
		{
			name:  "unknown table",
			query: queryir.Select{From: "runs; DROP TABLE ops", Columns: []string{"id"}},
			want:  "unknown table",
		},
		{
			name: "list literal",
			query: queryir.Select{
				From:    "ops",
				Columns: []string{"seq"},
				Filter:  queryir.Equals{Field: "fields", Value: ir.List{}},
			},
			want: "only text, int, bool and none are queryable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewSQLCompiler().Compile(tt.query)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid query")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCompile_OpFilter(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(queryir.OpFilter{
		RunID:    "run-1",
		Op:       "SetAttribute",
		FromTick: queryir.Bound(1),
	}.Query())
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT run_id, seq, idx, tick, root, op, element, fields FROM ops "+
			"WHERE run_id = ? AND op = ? AND tick >= ? ORDER BY seq ASC, idx ASC", sql)
	assert.Equal(t, []any{"run-1", "SetAttribute", int64(1)}, params)
}

func journalFixture(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.BeginRun(ctx, store.RunRecord{
		ID: "run-1", Label: "fixture", KindHash: "k", HandleAttribute: "ref",
		EngineVersion: ir.EngineVersion, IRVersion: ir.IRVersion,
	}))
	require.NoError(t, s.RecordRoot(ctx, store.RootRecord{RunID: "run-1", Root: "main", Anchor: "a", Seq: 1}))
	require.NoError(t, s.RecordRoot(ctx, store.RootRecord{RunID: "run-1", Root: "side", Anchor: "b", Seq: 2}))

	build := mutation.Script{
		mutation.CreatePlaceholder{ID: 1},
		mutation.AppendChildren{ID: 0, M: 1},
	}
	require.NoError(t, s.RecordTick(ctx, store.TickRecord{
		RunID: "run-1", Tick: 1, Seq: 5, GraphHash: "g1", Roots: []string{"main", "side"},
		Scripts: []store.ScriptRecord{
			{Seq: 3, Tick: 1, Root: "main", Kind: store.ScriptBuild, Script: build},
			{Seq: 4, Tick: 1, Root: "side", Kind: store.ScriptBuild, Script: build},
		},
	}))
	require.NoError(t, s.RecordTick(ctx, store.TickRecord{
		RunID: "run-1", Tick: 2, Seq: 7, GraphHash: "g2", Roots: []string{"main", "side"},
		Scripts: []store.ScriptRecord{
			{Seq: 6, Tick: 2, Root: "main", Kind: store.ScriptDiff, Script: mutation.Script{
				mutation.SetAttribute{ID: 1, Name: "text", Value: ir.Text("hi")},
				mutation.ReplacePlaceholder{Path: []uint8{0}, M: 0},
			}},
		},
	}))
	return s
}

func TestQueryOps_Filters(t *testing.T) {
	s := journalFixture(t)
	ctx := context.Background()

	all, err := QueryOps(ctx, s, queryir.OpFilter{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		assert.True(t, prev.Seq < cur.Seq || (prev.Seq == cur.Seq && prev.Idx < cur.Idx))
	}

	side, err := QueryOps(ctx, s, queryir.OpFilter{RunID: "run-1", Root: "side"})
	require.NoError(t, err)
	assert.Len(t, side, 2)

	second, err := QueryOps(ctx, s, queryir.OpFilter{RunID: "run-1", FromTick: queryir.Bound(2)})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "SetAttribute", second[0].Op)
	assert.Equal(t, "ReplacePlaceholder", second[1].Op)
	assert.Nil(t, second[1].Element)

	placeholders, err := QueryOps(ctx, s, queryir.OpFilter{RunID: "run-1", Op: "CreatePlaceholder"})
	require.NoError(t, err)
	assert.Len(t, placeholders, 2)

	anchor, err := QueryOps(ctx, s, queryir.OpFilter{RunID: "run-1", Element: queryir.Bound(0)})
	require.NoError(t, err)
	require.Len(t, anchor, 2)
	assert.Equal(t, "AppendChildren", anchor[0].Op)

	none, err := QueryOps(ctx, s, queryir.OpFilter{RunID: "run-2"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQueryOps_NullElement(t *testing.T) {
	s := journalFixture(t)

	sql, params, err := NewSQLCompiler().Compile(queryir.Select{
		From:    "ops",
		Columns: queryir.OpColumns,
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "run_id", Value: ir.Text("run-1")},
			queryir.Equals{Field: "element", Value: ir.None{}},
		}},
	})
	require.NoError(t, err)

	rows, err := s.QueryOps(context.Background(), sql, params...)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ReplacePlaceholder", rows[0].Op)
}

func TestQueryOps_RequiresRun(t *testing.T) {
	s := journalFixture(t)

	_, err := QueryOps(context.Background(), s, queryir.OpFilter{Op: "RemoveNode"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run id")
}
