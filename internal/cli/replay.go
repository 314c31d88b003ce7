package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nodesync/internal/engine"
	"github.com/roach88/nodesync/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
	Verify   bool
}

// ReplayResult holds the replay result of one run.
type ReplayResult struct {
	RunID         string                `json:"run_id"`
	Label         string                `json:"label"`
	Ticks         int                   `json:"ticks"`
	Scripts       int                   `json:"scripts"`
	Deterministic bool                  `json:"deterministic"`
	Mismatches    []engine.HashMismatch `json:"mismatches,omitempty"`
	Dump          string                `json:"dump"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <defs-dir>",
		Short: "Rebuild a journaled run and verify its graph hashes",
		Long: `Rebuild a run's node graph from its journal.

Every journaled edit-script is applied in seq order to a fresh graph
through the same stack machine the engine uses. After each tick the
observed roots are dumped and hashed, and the hash is compared with the
one recorded when the run was journaled.

The definitions must be the ones the run was recorded with; their kind
hash is checked first.

Deferred commands are host closures and are not journaled. A mismatch at
or after the first tick that drained one is reported as unjournaled and
does not fail --verify.

Exit codes:
  0 - Replay succeeded (and, with --verify, every tick hash matched)
  1 - Hash mismatch with --verify
  2 - Command error (database not found, run not found, etc.)

Examples:
  nodesync replay ./defs --db ./nodesync.db
  nodesync replay ./defs --run 0190... --verify --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: latest run)")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "fail when a replayed tick hash differs")

	return cmd
}

func runReplay(opts *ReplayOptions, defsDir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.logger()

	st, err := store.Open(opts.database(opts.Database), store.MustExist())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := resolveRun(ctx, st, opts.RunID)
	if err != nil {
		return err
	}

	handleAttr := run.HandleAttribute
	if handleAttr == "" {
		handleAttr = opts.Config.HandleAttribute
	}
	d, err := loadDefs(defsDir, handleAttr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load definitions", err)
	}
	if run.KindHash != "" && run.KindHash != d.KindHash {
		return NewExitError(ExitCommandError, fmt.Sprintf(
			"definitions do not match run %s: kind hash %s, recorded %s", run.ID, d.KindHash, run.KindHash))
	}

	j, err := st.ReadJournal(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	logger.Debug("replaying", "run_id", run.ID, "ticks", len(j.Ticks), "scripts", j.ScriptCount())

	res, err := engine.Replay(j, d.Schema, engine.WithReplayLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", run.ID), err)
	}

	var names []string
	if len(j.Ticks) > 0 {
		names = j.Ticks[len(j.Ticks)-1].Roots
	}
	verifyErr := res.Verify()
	result := ReplayResult{
		RunID:         run.ID,
		Label:         run.Label,
		Ticks:         res.Ticks,
		Scripts:       res.Scripts,
		Deterministic: verifyErr == nil,
		Mismatches:    res.Mismatches,
		Dump:          res.Dump(names),
	}

	if err := outputReplay(opts.formatter(cmd), result); err != nil {
		return err
	}
	if opts.Verify && verifyErr != nil {
		return WrapExitError(ExitFailure, "replay verification failed", verifyErr)
	}
	return nil
}

// outputReplay reports every mismatched tick and the verdict.
func outputReplay(f *OutputFormatter, result ReplayResult) error {
	f.RunHeader(result.RunID, result.Label)
	f.Line("  Ticks: %d, Scripts: %d", result.Ticks, result.Scripts)
	journaled := 0
	for _, m := range result.Mismatches {
		note := ""
		if m.Unjournaled {
			note = " (after unjournaled deferred commands)"
		} else {
			journaled++
		}
		f.Line("  tick %d: replayed %s, recorded %s%s", m.Tick, m.Replayed, m.Recorded, note)
	}
	f.Dump(result.Dump)
	f.Blank()

	if result.Deterministic {
		f.Passed("Replay matches the journal")
		return f.Success(result)
	}
	return f.Fail(CodeNondeterministic,
		fmt.Sprintf("%d tick(s) replayed to a different graph", journaled), result)
}
