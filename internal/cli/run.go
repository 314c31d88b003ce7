package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/nodesync/internal/engine"
	"github.com/roach88/nodesync/internal/playback"
	"github.com/roach88/nodesync/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Label    string
	Metrics  string // Prometheus textfile path; overrides the config

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunResult summarizes a journaled run.
type RunResult struct {
	RunID     string   `json:"run_id"`
	Ticks     int      `json:"ticks"`
	Ops       int      `json:"ops"`
	Roots     []string `json:"roots"`
	GraphHash string   `json:"graph_hash"`
	Dump      string   `json:"dump"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <defs-dir> <playback.yaml>",
		Short: "Drive an engine over a playback script",
		Long: `Drive the engine over a playback script and journal every tick.

The definitions directory supplies the node kinds and the template library.
The playback script describes the roots, the scripted diff engines and the
state changes of each tick. Every applied edit-script is written to the
journal database; the run id is printed on completion.

Examples:
  nodesync run --db ./nodesync.db ./defs ./playback.yaml
  nodesync run ./defs ./playback.yaml --metrics run.prom --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlayback(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Label, "label", "", "run label (default: playback file name)")
	cmd.Flags().StringVar(&opts.Metrics, "metrics", "", "write Prometheus metrics to this textfile")

	return cmd
}

func runPlayback(opts *RunOptions, defsDir, scriptPath string, cmd *cobra.Command) error {
	logger := opts.logger()

	logger.Info("compiling definitions", "dir", defsDir)
	d, err := loadDefs(defsDir, opts.Config.HandleAttribute)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load definitions", err)
	}
	logger.Info("definitions compiled",
		"kinds", len(d.Bundle.Kinds), "templates", len(d.Bundle.Templates))

	script, err := playback.LoadScript(scriptPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load playback", err)
	}

	dbPath := opts.database(opts.Database)
	logger.Info("opening database", "path", dbPath)
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	label := opts.Label
	if label == "" {
		label = scriptPath
	}

	reg := prometheus.NewRegistry()
	driver := playback.NewDriver(script, d.Bundle.Templates, d.Schema,
		engine.WithRecorder(st),
		engine.WithRunIDGenerator(runIDs),
		engine.WithRunLabel(label),
		engine.WithKindHash(d.KindHash),
		engine.WithHandleAttribute(opts.Config.HandleAttribute),
		engine.WithMetrics(engine.NewMetrics(reg)),
		engine.WithLogger(logger),
	)
	defer driver.Engine().Close()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	result := RunResult{}
	var last engine.TickReport
	for !driver.Done() {
		report, err := driver.Step(ctx)
		if err != nil {
			result.RunID = driver.Engine().RunID()
			logger.Error("tick failed", "tick", report.Tick, "code", engine.ErrorCode(err), "error", err)
			if werr := writeMetrics(opts, reg); werr != nil {
				logger.Error("error writing metrics", "error", werr)
			}
			return WrapExitError(ExitFailure,
				fmt.Sprintf("run %s: tick %d failed", result.RunID, report.Tick), err)
		}
		last = report
		result.Ticks++
		result.Ops += report.Ops()
		logger.Debug("tick reconciled",
			"tick", report.Tick,
			"roots", len(report.Roots),
			"ops", report.Ops(),
			"graph_hash", report.GraphHash,
		)
	}

	result.RunID = driver.Engine().RunID()
	result.GraphHash = last.GraphHash
	result.Dump = driver.Dump()
	result.Roots = []string{}
	for _, r := range driver.Engine().Roots() {
		result.Roots = append(result.Roots, r.Name)
	}
	logger.Info("run journaled", "run_id", result.RunID, "ticks", result.Ticks, "ops", result.Ops)

	if err := writeMetrics(opts, reg); err != nil {
		return WrapExitError(ExitCommandError, "failed to write metrics", err)
	}

	f := opts.formatter(cmd)
	f.Line("Run %s: %d ticks, %d ops", result.RunID, result.Ticks, result.Ops)
	f.Dump(result.Dump)
	return f.Success(result)
}

// writeMetrics writes the run's collectors to the configured textfile.
func writeMetrics(opts *RunOptions, reg *prometheus.Registry) error {
	path := opts.Metrics
	if path == "" {
		path = opts.Config.Metrics
	}
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, reg)
}
