// Package mutation applies diff-engine edit-scripts to the host graph.
//
// A script is a finite, ordered list of ops drawn from a closed vocabulary.
// The machine keeps a LIFO stack of graph nodes: creation ops push, splice
// ops pop, and a few ops address nodes by element id through the root's
// registry. Later ops address stack entries positionally, so ops are never
// reordered or batched.
//
// CRITICAL PATTERNS:
//   - The stack starts empty and must be empty when the script ends
//   - Popped nodes keep push order: the deepest popped entry becomes the first child
//   - Splice positions are measured after the popped nodes are detached
//   - Paths resolve against live children at the moment of the walk
//   - Removal goes through registry.RemoveTree so handles clear before nodes free
//
// Wire forms: Fields/FromFields give the flat map journaled per op and
// hashed per script; EncodeScript/DecodeScript give the msgpack payload.
package mutation
