package ir

// Version constants for the journal schema and engine.
const (
	// IRVersion is the value and op schema version.
	IRVersion = "1"

	// EngineVersion is the nodesync engine version.
	EngineVersion = "0.1.0"
)
