package queryir

import "github.com/roach88/nodesync/internal/ir"

// OpColumns are the columns of the ops table, in the order store.QueryOps
// scans them.
var OpColumns = []string{"run_id", "seq", "idx", "tick", "root", "op", "element", "fields"}

// OpFilter selects journaled ops of one run. Zero fields do not filter.
type OpFilter struct {
	RunID    string
	Op       string
	Root     string
	FromTick *int64
	ToTick   *int64
	Element  *int64
}

// Query builds the Select for the filter.
func (f OpFilter) Query() Select {
	preds := []Predicate{Equals{Field: "run_id", Value: ir.Text(f.RunID)}}
	if f.Op != "" {
		preds = append(preds, Equals{Field: "op", Value: ir.Text(f.Op)})
	}
	if f.Root != "" {
		preds = append(preds, Equals{Field: "root", Value: ir.Text(f.Root)})
	}
	if f.FromTick != nil || f.ToTick != nil {
		preds = append(preds, Range{Field: "tick", From: f.FromTick, To: f.ToTick})
	}
	if f.Element != nil {
		preds = append(preds, Equals{Field: "element", Value: ir.Int(*f.Element)})
	}
	return Select{
		From:    "ops",
		Columns: OpColumns,
		Filter:  And{Predicates: preds},
	}
}

// Bound returns n as a range bound.
func Bound(n int64) *int64 {
	return &n
}
