package testutil

// FixedRunIDGenerator generates the same run id every time.
//
// Engines seeded with it journal under a known id, so the same scenario
// produces byte-identical journals and golden snapshots.
//
// Unlike engine.FixedGenerator, which hands out a list of ids and panics
// once it runs dry, this generator never runs out.
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// DefaultRunID is used when a scenario names no run id.
const DefaultRunID = "test-run-default"

// NewFixedRunIDGenerator creates a generator that always returns id.
// An empty id selects DefaultRunID.
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = DefaultRunID
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run id.
//
// Implements engine.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
