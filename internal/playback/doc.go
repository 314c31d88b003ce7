// Package playback drives the engine from a recorded description instead
// of a live reactive runtime.
//
// A playback script names, per root descriptor, the build script and the
// reactive scopes of that root. Each scope subscribes to world, query,
// resource or event state and carries a queue of diff scripts; whenever
// the scope is marked dirty the next queued diff is emitted. A list of
// ticks then says which roots are observed and which host state changes
// before each tick.
//
// Format:
//
//	roots:
//	  main:
//	    build:
//	      - {op: LoadTemplate, name: row, idx: 0, id: 1}
//	      - {op: SetAttribute, id: 1, name: ref, value: {$handle: header}}
//	      - {op: AppendChildren, id: 0, m: 1}
//	    scopes:
//	      - id: 1
//	        resources: [title]
//	        diffs:
//	          - [{op: SetAttribute, id: 1, name: title, value: hello}]
//	ticks:
//	  - observe: [main]
//	  - set: {title: hello}
//	    observe: [main]
//
// Observe entries are "descriptor" or "descriptor@anchor"; the anchor
// defaults to the descriptor. Anchors are host nodes created on first use.
// A value of the form {$handle: name} is replaced by the named back-reference
// handle, shared across every root of the playback.
package playback
