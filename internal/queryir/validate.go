package queryir

import (
	"fmt"

	"github.com/roach88/nodesync/internal/ir"
)

// columnType is the storage class of a journal column.
type columnType int

const (
	colText columnType = iota
	colInt
)

// Tables lists the queryable journal tables and their columns.
var Tables = map[string]map[string]columnType{
	"ops": {
		"run_id": colText, "seq": colInt, "idx": colInt, "tick": colInt,
		"root": colText, "op": colText, "element": colInt, "fields": colText,
	},
	"scripts": {
		"run_id": colText, "seq": colInt, "tick": colInt, "root": colText,
		"kind": colText, "hash": colText, "op_count": colInt,
	},
	"ticks": {
		"run_id": colText, "tick": colInt, "seq": colInt, "commands": colInt,
		"graph_hash": colText, "roots": colText,
	},
	"roots": {
		"run_id": colText, "root": colText, "anchor": colText, "seq": colInt,
	},
}

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	Problems []string
}

// Validate checks a query against the journal tables.
//
// Rules:
//  1. From names a journal table
//  2. Columns are explicit and exist in the table
//  3. Predicates reference existing columns
//  4. Literal types match the column (Text for text, Int or Bool for integer)
//  5. Range applies to integer columns only, with From <= To
//
// Column and table names are interpolated by backends, so a query must
// pass Validate before it is compiled.
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateQuery(query)

	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

type validator struct {
	problems []string
	columns  map[string]columnType
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	columns, ok := Tables[sel.From]
	if !ok {
		v.addProblem("unknown table %q", sel.From)
		return
	}
	v.columns = columns

	if len(sel.Columns) == 0 {
		v.addProblem("empty column list - columns must be explicit")
	}
	for _, c := range sel.Columns {
		if _, ok := columns[c]; !ok {
			v.addProblem("unknown column %q in table %q", c, sel.From)
		}
	}

	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case Range:
		v.validateRange(pred)
	case *Range:
		v.validateRange(*pred)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	typ, ok := v.columns[eq.Field]
	if !ok {
		v.addProblem("unknown column %q", eq.Field)
		return
	}
	switch eq.Value.(type) {
	case ir.None:
	case ir.Text:
		if typ != colText {
			v.addProblem("column %q is an integer, got text", eq.Field)
		}
	case ir.Int, ir.Bool:
		if typ != colInt {
			v.addProblem("column %q is text, got %s", eq.Field, ir.TypeOf(eq.Value))
		}
	default:
		v.addProblem("column %q compared to %s - only text, int, bool and none are queryable",
			eq.Field, ir.TypeOf(eq.Value))
	}
}

func (v *validator) validateRange(r Range) {
	typ, ok := v.columns[r.Field]
	if !ok {
		v.addProblem("unknown column %q", r.Field)
		return
	}
	if typ != colInt {
		v.addProblem("range on text column %q", r.Field)
	}
	if r.From != nil && r.To != nil && *r.From > *r.To {
		v.addProblem("empty range on %q: %d > %d", r.Field, *r.From, *r.To)
	}
}
