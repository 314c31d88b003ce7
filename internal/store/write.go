package store

import (
	"context"
	"fmt"

	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/mutation"
)

// BeginRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a repeated BeginRun is ignored.
func (s *Store) BeginRun(ctx context.Context, run RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, label, kind_hash, handle_attribute, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Label,
		run.KindHash,
		run.HandleAttribute,
		run.EngineVersion,
		run.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordRoot inserts a root and its templates in one transaction.
// Template order is kept so replay registers them in the same order.
func (s *Store) RecordRoot(ctx context.Context, root RootRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record root: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO roots (run_id, root, anchor, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, root) DO NOTHING
	`, root.RunID, root.Root, root.Anchor, root.Seq)
	if err != nil {
		return fmt.Errorf("record root %q: %w", root.Root, err)
	}

	for i, t := range root.Templates {
		body, err := marshalTemplate(t)
		if err != nil {
			return fmt.Errorf("record root %q: %w", root.Root, err)
		}
		hash, err := ir.TemplateHash(t)
		if err != nil {
			return fmt.Errorf("record root %q: %w", root.Root, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO templates (run_id, root, name, hash, body, ord)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, root, name) DO NOTHING
		`, root.RunID, root.Root, t.Name, hash, body, i)
		if err != nil {
			return fmt.Errorf("record template %q: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record root: commit: %w", err)
	}
	return nil
}

// RecordTick writes a tick with all of its scripts and their ops atomically.
// If any write fails, none persist.
func (s *Store) RecordTick(ctx context.Context, tick TickRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record tick: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	roots, err := marshalRoots(tick.Roots)
	if err != nil {
		return fmt.Errorf("record tick %d: %w", tick.Tick, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ticks (run_id, tick, seq, commands, graph_hash, roots)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tick.RunID, tick.Tick, tick.Seq, tick.Commands, tick.GraphHash, roots)
	if err != nil {
		return fmt.Errorf("record tick %d: %w", tick.Tick, err)
	}

	for _, sr := range tick.Scripts {
		payload, err := mutation.EncodeScript(sr.Script)
		if err != nil {
			return fmt.Errorf("record tick %d: script %d: %w", tick.Tick, sr.Seq, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO scripts (run_id, seq, tick, root, kind, hash, op_count, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, tick.RunID, sr.Seq, tick.Tick, sr.Root, string(sr.Kind), sr.Hash, len(sr.Script), payload)
		if err != nil {
			return fmt.Errorf("record script %d: %w", sr.Seq, err)
		}

		for idx, o := range sr.Script {
			fields, element, err := marshalOp(o)
			if err != nil {
				return fmt.Errorf("record script %d op %d: %w", sr.Seq, idx, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO ops (run_id, seq, idx, tick, root, op, element, fields)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, tick.RunID, sr.Seq, idx, tick.Tick, sr.Root, string(o.Kind()), element, fields)
			if err != nil {
				return fmt.Errorf("record script %d op %d: %w", sr.Seq, idx, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record tick: commit: %w", err)
	}
	return nil
}
