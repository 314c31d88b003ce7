package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/nodesync/internal/mutation"
	"github.com/roach88/nodesync/internal/queryir"
	"github.com/roach88/nodesync/internal/querysql"
	"github.com/roach88/nodesync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
	Op       string
	Root     string
	From     int64
	To       int64
	ID       int64
}

// TraceOp is one journaled op in the trace output.
type TraceOp struct {
	Seq     int64           `json:"seq"`
	Idx     int             `json:"idx"`
	Tick    int64           `json:"tick"`
	Root    string          `json:"root"`
	Op      string          `json:"op"`
	Element *int64          `json:"element,omitempty"`
	Fields  json.RawMessage `json:"fields"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID string     `json:"run_id"`
	Label string     `json:"label"`
	Ops   []TraceOp  `json:"ops"`
	Stats TraceStats `json:"stats"`
}

// TraceStats holds summary statistics for the listed ops.
type TraceStats struct {
	Total int            `json:"total"`
	Ticks int            `json:"ticks"`
	ByOp  map[string]int `json:"by_op"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "List journaled ops",
		Long: `List the edit-script ops journaled for a run, in application order.

Filters combine: only ops matching every given filter are listed.
Without --run the most recent run is traced.

Examples:
  nodesync trace --db ./nodesync.db
  nodesync trace --run 0190... --op SetAttribute --root main#1
  nodesync trace --from 2 --to 4 --id 7 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: latest run)")
	cmd.Flags().StringVar(&opts.Op, "op", "", "only ops of this kind")
	cmd.Flags().StringVar(&opts.Root, "root", "", "only ops applied to this root")
	cmd.Flags().Int64Var(&opts.From, "from", 0, "first tick (inclusive)")
	cmd.Flags().Int64Var(&opts.To, "to", 0, "last tick (inclusive)")
	cmd.Flags().Int64Var(&opts.ID, "id", 0, "only ops addressing this element id")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Op != "" && !slices.Contains(mutation.Kinds, mutation.Kind(opts.Op)) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown op %q", opts.Op))
	}

	st, err := store.Open(opts.database(opts.Database), store.MustExist())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := resolveRun(ctx, st, opts.RunID)
	if err != nil {
		return err
	}

	filter := queryir.OpFilter{RunID: run.ID, Op: opts.Op, Root: opts.Root}
	flags := cmd.Flags()
	if flags.Changed("from") {
		filter.FromTick = queryir.Bound(opts.From)
	}
	if flags.Changed("to") {
		filter.ToTick = queryir.Bound(opts.To)
	}
	if flags.Changed("id") {
		filter.Element = queryir.Bound(opts.ID)
	}

	rows, err := querysql.QueryOps(ctx, st, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query ops", err)
	}

	f := opts.formatter(cmd)
	result := buildTrace(run, rows)
	outputTraceText(f, result)
	return f.Success(result)
}

// resolveRun reads the run with id, or the latest run when id is empty.
func resolveRun(ctx context.Context, st *store.Store, id string) (store.RunRecord, error) {
	var (
		run store.RunRecord
		err error
	)
	if id == "" {
		run, err = st.LatestRun(ctx)
	} else {
		run, err = st.ReadRun(ctx, id)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		if id == "" {
			return run, NewExitError(ExitCommandError, "no runs in database")
		}
		return run, NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", id))
	}
	if err != nil {
		return run, WrapExitError(ExitCommandError, "failed to read run", err)
	}
	return run, nil
}

// buildTrace converts op rows to the trace output.
func buildTrace(run store.RunRecord, rows []store.OpRow) TraceResult {
	result := TraceResult{
		RunID: run.ID,
		Label: run.Label,
		Ops:   make([]TraceOp, 0, len(rows)),
		Stats: TraceStats{ByOp: map[string]int{}},
	}

	ticks := map[int64]bool{}
	for _, row := range rows {
		result.Ops = append(result.Ops, TraceOp{
			Seq:     row.Seq,
			Idx:     row.Idx,
			Tick:    row.Tick,
			Root:    row.Root,
			Op:      row.Op,
			Element: row.Element,
			Fields:  json.RawMessage(row.Fields),
		})
		ticks[row.Tick] = true
		result.Stats.ByOp[row.Op]++
	}
	result.Stats.Total = len(rows)
	result.Stats.Ticks = len(ticks)
	return result
}

// outputTraceText prints one line per op, grouped by tick.
func outputTraceText(f *OutputFormatter, result TraceResult) {
	f.RunHeader(result.RunID, result.Label)
	if len(result.Ops) == 0 {
		f.Line("No ops found.")
		return
	}
	f.Blank()

	tick := int64(-1)
	for _, op := range result.Ops {
		if op.Tick != tick {
			tick = op.Tick
			f.Line("tick %d", tick)
		}
		f.Line("  [%d.%d] %-8s %-18s %s", op.Seq, op.Idx, op.Root, op.Op, op.Fields)
	}
	f.Blank()
	f.Line("%d ops across %d ticks", result.Stats.Total, result.Stats.Ticks)
}
