package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/nodesync/internal/adapter"
	"github.com/roach88/nodesync/internal/compiler"
	"github.com/roach88/nodesync/internal/engine"
	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/logging"
	"github.com/roach88/nodesync/internal/mutation"
	"github.com/roach88/nodesync/internal/playback"
	"github.com/roach88/nodesync/internal/store"
	"github.com/roach88/nodesync/internal/testutil"
)

// Harness is the test execution engine.
// It runs one scenario against a fresh engine with a fixed run id.
type Harness struct {
	store   *store.Store
	driver  *playback.Driver
	adapter adapter.Adapter
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// A fixed run id keeps journals reproducible.
//
// Execution flow:
// 1. Compile the defs directory and build the adapter
// 2. Create a fresh in-memory database
// 3. Play every tick through the engine, journaling into the database
// 4. Read the journal back as the trace
// 5. Check the expected failure and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	handleAttr := scenario.HandleAttribute
	if handleAttr == "" {
		handleAttr = mutation.DefaultHandleAttribute
	}

	bundle, err := loadBundle(scenario.Defs, handleAttr)
	if err != nil {
		return nil, err
	}
	schema, err := adapter.NewSchema(bundle.Kinds)
	if err != nil {
		return nil, fmt.Errorf("failed to build adapter: %w", err)
	}
	kindHash, err := ir.KindHash(bundle.Kinds)
	if err != nil {
		return nil, fmt.Errorf("failed to hash kinds: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := logging.Discard()
	driver := playback.NewDriver(&scenario.Playback, bundle.Templates, schema,
		engine.WithRecorder(st),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		engine.WithRunLabel(scenario.Name),
		engine.WithKindHash(kindHash),
		engine.WithHandleAttribute(handleAttr),
		engine.WithLogger(logger),
	)
	defer driver.Engine().Close()

	h := &Harness{store: st, driver: driver, adapter: schema, logger: logger}

	result := NewResult()
	runErr := h.play(ctx, result)

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}
	checkExpectedFailure(scenario.Expect, result, runErr)

	actx := &AssertionContext{
		Ctx:     ctx,
		Store:   st,
		Adapter: schema,
		Journal: result.journal,
		Logger:  logger,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func loadBundle(dir, handleAttr string) (*compiler.Bundle, error) {
	loaded, errs := compiler.LoadDir(dir, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load defs: %w", errors.Join(errs...))
	}
	if verrs := compiler.Validate(&loaded.Bundle, handleAttr); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, e := range verrs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid defs: %s", strings.Join(msgs, "; "))
	}
	return &loaded.Bundle, nil
}

// play steps the driver until the script ends or a tick fails.
// Only a tick failure is returned.
func (h *Harness) play(ctx context.Context, result *Result) error {
	for !h.driver.Done() {
		report, err := h.driver.Step(ctx)
		if err != nil {
			h.logger.Info("tick failed", "tick", report.Tick, "error", err)
			return err
		}
		result.Ticks++
		h.logger.Info("tick completed",
			"tick", report.Tick,
			"roots", len(report.Roots),
			"ops", report.Ops(),
			"graph_hash", report.GraphHash,
		)
	}
	return nil
}

// collect fills the result from the journal and the final graph.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	eng := h.driver.Engine()
	result.RunID = eng.RunID()

	j, err := h.store.ReadJournal(ctx, result.RunID)
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		// The first tick failed before the run was journaled.
	case err != nil:
		return fmt.Errorf("failed to read journal: %w", err)
	default:
		result.journal = j
		for _, tick := range j.Ticks {
			for _, sr := range tick.Scripts {
				result.addScript(sr)
			}
		}
	}

	result.Dump = h.driver.Dump()
	for _, r := range eng.Roots() {
		result.Roots = append(result.Roots, r.Name)
	}
	handles := h.driver.Handles()
	for _, name := range handles.Names() {
		hd, _ := handles.Lookup(name)
		_, bound := hd.Get()
		result.Handles[name] = bound
	}
	return nil
}

// checkExpectedFailure compares the run's error with the expect clause.
func checkExpectedFailure(expect *ExpectClause, result *Result, runErr error) {
	if runErr != nil {
		result.Failure = &Failure{
			Code:    engine.ErrorCode(runErr),
			Tick:    int64(result.Ticks) + 1,
			Message: runErr.Error(),
		}
	}

	switch {
	case expect == nil && runErr == nil:
	case expect == nil:
		result.AddError(fmt.Sprintf("unexpected failure in tick %d: %v", result.Failure.Tick, runErr))
	case runErr == nil:
		result.AddError(fmt.Sprintf("expected failure %s, but every tick succeeded", expect.Error))
	case result.Failure.Code != expect.Error:
		result.AddError(fmt.Sprintf("expected failure %s, got %s: %v", expect.Error, result.Failure.Code, runErr))
	case expect.Tick != 0 && result.Failure.Tick != expect.Tick:
		result.AddError(fmt.Sprintf("expected failure in tick %d, got tick %d", expect.Tick, result.Failure.Tick))
	}
}

// opFields returns the operands of o without the kind.
func opFields(o mutation.Op) ir.Map {
	fields := mutation.Fields(o)
	delete(fields, "op")
	return fields
}
