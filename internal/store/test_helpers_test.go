package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/mutation"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun inserts a run with minimal required fields.
func createTestRun(t *testing.T, s *Store, id string) RunRecord {
	t.Helper()
	run := RunRecord{
		ID:              id,
		Label:           "test",
		KindHash:        "kind-hash",
		HandleAttribute: "ref",
		EngineVersion:   ir.EngineVersion,
		IRVersion:       ir.IRVersion,
	}
	if err := s.BeginRun(context.Background(), run); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	return run
}

func rowTemplate() ir.Template {
	return ir.Template{
		Name: "row",
		Roots: []ir.TemplateNode{{
			Kind:     "panel",
			Attrs:    ir.Map{"gap": ir.Int(2)},
			Children: []ir.TemplateNode{{Kind: "slot"}},
		}},
	}
}

func buildScript() mutation.Script {
	return mutation.Script{
		mutation.LoadTemplate{Name: "row", Index: 0, ID: 1},
		mutation.AssignID{Path: []uint8{0}, ID: 2},
		mutation.SetAttribute{ID: 1, Name: "gap", Value: ir.Int(8)},
		mutation.AppendChildren{ID: 0, M: 1},
	}
}

func scriptRecord(t *testing.T, seq, tick int64, root string, kind ScriptKind, s mutation.Script) ScriptRecord {
	t.Helper()
	hash, err := mutation.Hash(s)
	if err != nil {
		t.Fatalf("Hash() failed: %v", err)
	}
	return ScriptRecord{Seq: seq, Tick: tick, Root: root, Kind: kind, Hash: hash, Script: s}
}
