package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/mutation"
)

// ErrRunNotFound is returned when a run id is not in the journal.
var ErrRunNotFound = errors.New("run not found")

// ReadRun retrieves a single run by ID.
func (s *Store) ReadRun(ctx context.Context, id string) (RunRecord, error) {
	var run RunRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, label, kind_hash, handle_attribute, engine_version, ir_version
		FROM runs
		WHERE id = ?
	`, id).Scan(&run.ID, &run.Label, &run.KindHash, &run.HandleAttribute, &run.EngineVersion, &run.IRVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("read run: %w", err)
	}
	return run, nil
}

// ListRuns returns every run in insertion order.
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, kind_hash, handle_attribute, engine_version, ir_version
		FROM runs
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		var run RunRecord
		if err := rows.Scan(&run.ID, &run.Label, &run.KindHash, &run.HandleAttribute,
			&run.EngineVersion, &run.IRVersion); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (RunRecord, error) {
	runs, err := s.ListRuns(ctx)
	if err != nil {
		return RunRecord{}, err
	}
	if len(runs) == 0 {
		return RunRecord{}, fmt.Errorf("%w: journal is empty", ErrRunNotFound)
	}
	return runs[len(runs)-1], nil
}

// ReadRoots returns the roots of a run ordered by seq, each with its
// templates in registration order.
func (s *Store) ReadRoots(ctx context.Context, runID string) ([]RootRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT root, anchor, seq
		FROM roots
		WHERE run_id = ?
		ORDER BY seq ASC, root COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query roots: %w", err)
	}
	defer rows.Close()

	roots := []RootRecord{}
	for rows.Next() {
		r := RootRecord{RunID: runID}
		if err := rows.Scan(&r.Root, &r.Anchor, &r.Seq); err != nil {
			return nil, fmt.Errorf("scan root: %w", err)
		}
		roots = append(roots, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roots: %w", err)
	}
	rows.Close()

	for i := range roots {
		templates, err := s.readTemplates(ctx, runID, roots[i].Root)
		if err != nil {
			return nil, err
		}
		roots[i].Templates = templates
	}
	return roots, nil
}

func (s *Store) readTemplates(ctx context.Context, runID, root string) ([]ir.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body
		FROM templates
		WHERE run_id = ? AND root = ?
		ORDER BY ord ASC
	`, runID, root)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	templates := []ir.Template{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		t, err := unmarshalTemplate(body)
		if err != nil {
			return nil, fmt.Errorf("root %q: %w", root, err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

// ReadTicks returns the ticks of a run ordered by seq. Scripts are not loaded.
func (s *Store) ReadTicks(ctx context.Context, runID string) ([]TickRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, seq, commands, graph_hash, roots
		FROM ticks
		WHERE run_id = ?
		ORDER BY seq ASC, tick ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	ticks := []TickRecord{}
	for rows.Next() {
		t := TickRecord{RunID: runID}
		var roots string
		if err := rows.Scan(&t.Tick, &t.Seq, &t.Commands, &t.GraphHash, &roots); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		if t.Roots, err = unmarshalRoots(roots); err != nil {
			return nil, fmt.Errorf("tick %d: %w", t.Tick, err)
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return ticks, nil
}

// ReadScripts returns every script of a run, decoded, ORDER BY seq ASC.
func (s *Store) ReadScripts(ctx context.Context, runID string) ([]ScriptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, tick, root, kind, hash, payload
		FROM scripts
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query scripts: %w", err)
	}
	defer rows.Close()

	scripts := []ScriptRecord{}
	for rows.Next() {
		var (
			sr      ScriptRecord
			kind    string
			payload []byte
		)
		if err := rows.Scan(&sr.Seq, &sr.Tick, &sr.Root, &kind, &sr.Hash, &payload); err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		sr.Kind = ScriptKind(kind)
		sr.Script, err = mutation.DecodeScript(payload)
		if err != nil {
			return nil, fmt.Errorf("script %d: %w", sr.Seq, err)
		}
		scripts = append(scripts, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scripts: %w", err)
	}
	return scripts, nil
}

// QueryOps runs a compiled op query. The query must select
// run_id, seq, idx, tick, root, op, element, fields in that order.
func (s *Store) QueryOps(ctx context.Context, query string, args ...any) ([]OpRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ops: %w", err)
	}
	defer rows.Close()

	ops := []OpRow{}
	for rows.Next() {
		var (
			row     OpRow
			element sql.NullInt64
		)
		if err := rows.Scan(&row.RunID, &row.Seq, &row.Idx, &row.Tick, &row.Root,
			&row.Op, &element, &row.Fields); err != nil {
			return nil, fmt.Errorf("scan op: %w", err)
		}
		if element.Valid {
			e := element.Int64
			row.Element = &e
		}
		ops = append(ops, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ops: %w", err)
	}
	return ops, nil
}
