package store

import (
	"context"
	"fmt"
)

// Journal is everything needed to replay one run.
type Journal struct {
	Run     RunRecord
	Roots   []RootRecord
	Ticks   []TickRecord // with Scripts populated, ordered by seq
	LastSeq int64
}

// ScriptCount returns the number of scripts across all ticks.
func (j Journal) ScriptCount() int {
	n := 0
	for _, t := range j.Ticks {
		n += len(t.Scripts)
	}
	return n
}

// ReadJournal loads a complete run for replay.
//
// Scripts are attached to their ticks in seq order. A script whose tick row
// is missing means the journal was written by something other than
// RecordTick and is rejected.
func (s *Store) ReadJournal(ctx context.Context, runID string) (Journal, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return Journal{}, err
	}
	roots, err := s.ReadRoots(ctx, runID)
	if err != nil {
		return Journal{}, fmt.Errorf("read journal: %w", err)
	}
	ticks, err := s.ReadTicks(ctx, runID)
	if err != nil {
		return Journal{}, fmt.Errorf("read journal: %w", err)
	}
	scripts, err := s.ReadScripts(ctx, runID)
	if err != nil {
		return Journal{}, fmt.Errorf("read journal: %w", err)
	}

	j := Journal{Run: run, Roots: roots, Ticks: ticks}
	byTick := make(map[int64]int, len(ticks))
	for i, t := range ticks {
		byTick[t.Tick] = i
		j.LastSeq = max(j.LastSeq, t.Seq)
	}
	for _, sr := range scripts {
		i, ok := byTick[sr.Tick]
		if !ok {
			return Journal{}, fmt.Errorf("read journal: script %d references unknown tick %d", sr.Seq, sr.Tick)
		}
		j.Ticks[i].Scripts = append(j.Ticks[i].Scripts, sr)
		j.LastSeq = max(j.LastSeq, sr.Seq)
	}
	for _, r := range roots {
		j.LastSeq = max(j.LastSeq, r.Seq)
	}
	return j, nil
}
