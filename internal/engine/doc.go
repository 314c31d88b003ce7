// Package engine implements the nodesync tick orchestrator.
//
// The engine owns the persistent root table and the deferred command
// queue. A host calls Tick once per frame with the (anchor, descriptor)
// pairs it currently observes; the engine reconciles each one and returns
// a TickReport.
//
// ARCHITECTURE:
//
// Tick Flow:
// 1. Deferred commands queued before the tick run, in FIFO order
// 2. Each observed pair is taken from the root table, or created
// 3. The root's subscription registry reports its dirty scopes
// 4. The diff engine builds (first tick) or diffs (every later tick)
// 5. The mutation machine applies the script against the root's registry
// 6. The root is reinserted; pairs not observed are dropped, not cleaned
// 7. The tick, its scripts and the graph hash are journaled
//
// The engine never reaches into the graph outside of scripts and deferred
// commands. A dropped root's subtree is the host's to clean up.
//
// CRITICAL PATTERNS:
//
// Logical Seq
// Journaled roots, scripts and ticks are stamped from one engine counter.
// NEVER use wall-clock timestamps for ordering. WithStartSeq resumes it.
//
// Fail Stop
// Contract violations, missing mappings, unknown templates, attribute
// errors and journal write failures abort the tick (IsFatal). The engine
// keeps the error and every later Tick returns TICK_ABORTED; the graph is
// not rolled back. A diff engine that fails before producing a script only
// fails its own root for that tick.
//
// Tick-Scoped Context
// Diff engines receive a *TickContext that expires when their pass ends.
// Subscriptions can only be registered through a live one.
package engine
