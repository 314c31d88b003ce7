// Package compiler turns CUE kind and template definitions into ir types.
//
// Input layout:
//
//	kind: panel: {
//		attrs: {
//			gap:   {type: "int", default: 0}
//			title: "text"
//		}
//	}
//
//	template: row: {
//		roots: [{
//			kind: "panel"
//			attrs: {gap: 4}
//			children: [{kind: "label"}, {kind: "label"}]
//		}]
//	}
//
// Compilation reports the first structural problem as a *CompileError with a
// CUE source position. Validate then checks cross-references (template kinds,
// attribute names and types) and returns every problem it finds.
package compiler
