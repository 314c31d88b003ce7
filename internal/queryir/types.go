package queryir

import "github.com/roach88/nodesync/internal/ir"

// Query represents an abstract query over the journal.
//
// This is a sealed interface - only types in this package implement it.
// Backend compilers rely on exhaustive type switches.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition in a Select.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = literal
//   - Range: lower and upper bounds on an integer field
//   - And: all predicates must be true
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select reads rows of one journal table.
//
// Semantics:
//
//	SELECT <columns> FROM <from> WHERE <filter>
//
// Example:
//
//	Select{
//	  From:    "ops",
//	  Columns: OpColumns,
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: "run_id", Value: ir.Text("run-1")},
//	    Equals{Field: "op", Value: ir.Text("SetAttribute")},
//	  }},
//	}
//
// Columns must be explicit. Row order is chosen by the backend and is
// always total within a run.
type Select struct {
	From    string    // Journal table (e.g., "ops")
	Columns []string  // Selected columns, in scan order
	Filter  Predicate // WHERE conditions (nil = no filter)
}

func (Select) queryNode() {}

// Equals represents a field-equals-literal predicate.
//
// A None value matches rows where the field is NULL; element is NULL for
// path-addressed ops.
type Equals struct {
	Field string   // Column name
	Value ir.Value // Text, Int, Bool or None
}

func (Equals) predicateNode() {}

// Range bounds an integer column. Nil bounds are open.
// Both bounds are inclusive.
type Range struct {
	Field string
	From  *int64
	To    *int64
}

func (Range) predicateNode() {}

// And represents a conjunction of predicates.
// An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
