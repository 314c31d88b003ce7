// Package harness provides conformance testing for nodesync definitions.
//
// The harness compiles a definitions directory, plays a recorded script
// through the engine and validates the journal and the final graph as
// executable contract tests.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	defs: defs
//	run_id: run-1
//	playback:
//	  roots:
//	    main:
//	      build:
//	        - {op: LoadTemplate, name: row, idx: 0, id: 1}
//	        - {op: AppendChildren, id: 0, m: 1}
//	  ticks:
//	    - observe: [main]
//	expect:
//	  error: UNKNOWN_TEMPLATE
//	  tick: 2
//	assertions:
//	  - type: trace_contains
//	    op: LoadTemplate
//	    fields: {name: row}
//	  - type: dump
//	    text: |
//	      # main
//	      anchor#0
//	        panel#1 {"gap":0}
//
// See package playback for the playback format.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: Verifies an op appears in the trace with matching fields
//   - trace_order: Verifies ops appear in specified order
//   - op_count: Verifies an op appears exactly N times
//   - dump, dump_contains: Compare the final dump of the live roots
//   - handle: Verifies a named handle is bound or cleared
//   - live_roots: Verifies the exact set of live roots
//   - replay: Replays the journal and compares every tick's graph hash
//
// # Deterministic Testing
//
// All scenarios execute with a fixed run id and the engine's logical
// clock, so journals and golden snapshots are reproducible.
//
// The harness uses:
//   - Fixed run ids (from scenario.run_id or testutil.DefaultRunID)
//   - In-memory SQLite database (isolated per test)
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/resource_diff.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
