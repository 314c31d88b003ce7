// Package store provides the SQLite-backed journal of engine runs.
//
// The journal is append-only:
//   - Runs: one row per engine instance (run id, kind hash, versions)
//   - Roots: each root the run created, with the templates its diff engine registered
//   - Ticks: one row per tick, carrying the graph hash after reconciliation
//   - Scripts: every non-empty edit-script applied, as a msgpack payload
//   - Ops: one row per op with its canonical fields, for trace queries
//
// # Critical Patterns
//
// Logical Time
//   - Roots, scripts and ticks are ordered by the engine's seq, NEVER timestamps
//   - Replay reads scripts ORDER BY seq ASC and reproduces the graph exactly
//
// Deterministic Query Results
//   - All queries MUST include an ORDER BY; op rows use ORDER BY seq ASC, idx ASC
//
// Atomic Ticks
//   - RecordTick writes the tick, its scripts and their ops in one transaction
//
// # Database Configuration
//
// Settings travel in the go-sqlite3 DSN so every pooled connection gets them.
// The schema version lives in user_version; Open applies pending migrations
// and refuses journals from a newer build.
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Script and template hashes are computed in internal/ir using RFC 8785
// canonical JSON and SHA-256 with domain separation.
package store
