package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nodesync/internal/mutation"
	"github.com/roach88/nodesync/internal/playback"
)

// Scenario defines a conformance test scenario.
// A scenario compiles a definitions directory, plays a script through the
// engine and asserts on the resulting journal, dump and handles.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Defs is the directory holding the CUE kind and template definitions.
	// Relative paths are resolved against the scenario file's directory.
	Defs string `yaml:"defs"`

	// RunID fixes the journal id for deterministic golden comparison.
	// If empty, testutil.DefaultRunID is used.
	RunID string `yaml:"run_id,omitempty"`

	// HandleAttribute overrides the reserved back-reference attribute.
	HandleAttribute string `yaml:"handle_attribute,omitempty"`

	// Playback is the script driving the engine.
	Playback playback.Script `yaml:"playback"`

	// Expect describes the failure the run must stop with.
	// If nil, every tick must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Assertions validate the final journal and graph.
	Assertions []Assertion `yaml:"assertions"`
}

// ExpectClause specifies an expected fatal error.
type ExpectClause struct {
	// Error is the expected error code (e.g. "UNKNOWN_TEMPLATE").
	Error string `yaml:"error"`

	// Tick is the tick that must fail. Zero accepts any tick.
	Tick int64 `yaml:"tick,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an op of the given kind with matching fields
	// - "trace_order": op kinds appear in order
	// - "op_count": an op kind appears exactly Count times
	// - "dump": the final dump equals Text
	// - "dump_contains": the final dump contains Text
	// - "handle": a named handle is bound (or not)
	// - "live_roots": the live roots are exactly Roots
	// - "replay": the journal replays to the recorded graph hashes
	Type string `yaml:"type"`

	// Op is the op kind (used by trace_contains, op_count).
	Op string `yaml:"op,omitempty"`

	// Root and Tick narrow trace_contains and op_count. Zero values match all.
	Root string `yaml:"root,omitempty"`
	Tick int64  `yaml:"tick,omitempty"`

	// Fields are the expected op operands (used by trace_contains).
	// Subset match - only specified fields are validated.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Count is the expected number of occurrences (used by op_count).
	Count int `yaml:"count,omitempty"`

	// Ops is the expected op order (used by trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Text is the expected dump or dump fragment.
	Text string `yaml:"text,omitempty"`

	// Handle and Bound are used by the handle assertion.
	Handle string `yaml:"handle,omitempty"`
	Bound  bool   `yaml:"bound,omitempty"`

	// Roots is the expected set of live roots (used by live_roots).
	Roots []string `yaml:"roots,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertOpCount       = "op_count"
	AssertDump          = "dump"
	AssertDumpContains  = "dump_contains"
	AssertHandle        = "handle"
	AssertLiveRoots     = "live_roots"
	AssertReplay        = "replay"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// The defs directory is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the defs path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Defs != "" && !filepath.IsAbs(scenario.Defs) && basePath != "" {
		scenario.Defs = filepath.Join(basePath, scenario.Defs)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Defs == "" {
		return fmt.Errorf("defs is required")
	}
	if info, err := os.Stat(s.Defs); err != nil || !info.IsDir() {
		return fmt.Errorf("defs directory not found: %s", s.Defs)
	}

	if err := s.Playback.Validate(); err != nil {
		return fmt.Errorf("playback: %w", err)
	}

	if s.Expect != nil && s.Expect.Error == "" {
		return fmt.Errorf("expect: error is required")
	}

	if len(s.Assertions) == 0 && s.Expect == nil {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	if a.Op != "" && !slices.Contains(mutation.Kinds, mutation.Kind(a.Op)) {
		return fmt.Errorf("assertions[%d]: unknown op %q", index, a.Op)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertOpCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for op_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for op_count", index)
		}
	case AssertDump, AssertDumpContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for %s", index, a.Type)
		}
	case AssertHandle:
		if a.Handle == "" {
			return fmt.Errorf("assertions[%d]: handle is required for handle", index)
		}
	case AssertLiveRoots, AssertReplay:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
