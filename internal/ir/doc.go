// Package ir provides the shared value and schema types for nodesync.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal, so it stays the foundational layer
// with no circular dependencies.
//
// Key design constraints:
//   - Value is a sealed interface; only the types in value.go implement it
//   - Any wraps host-owned objects (handles) and never round-trips through JSON
//   - All JSON tags use snake_case
//   - Logical clocks (seq) only, never wall-clock timestamps
//   - Hashes are computed over RFC 8785 canonical JSON with domain separation
package ir
