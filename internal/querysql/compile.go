package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/queryir"
)

// orderKeys is the total order of each journal table within a run.
// seq is the engine's logical clock; wall time never orders rows.
var orderKeys = map[string]string{
	"ops":     "seq ASC, idx ASC",
	"scripts": "seq ASC",
	"ticks":   "tick ASC",
	"roots":   "seq ASC, root ASC COLLATE BINARY",
}

// SQLCompiler compiles queryir queries to parameterized SQL for SQLite.
//
// CRITICAL: ALL queries include ORDER BY for deterministic results.
// CRITICAL: All values are parameterized (never interpolated).
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a query to parameterized SQL.
// Returns (sql, params, error) tuple. The query is validated first;
// validation problems are returned as one error.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if res := queryir.Validate(q); !res.Valid {
		return "", nil, fmt.Errorf("invalid query: %s", strings.Join(res.Problems, "; "))
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// compileSelect compiles a queryir.Select to SQL.
func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	var whereClause string
	var params []any
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		whereClause = " WHERE " + filterSQL
		params = filterParams
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		strings.Join(q.Columns, ", "),
		q.From,
		whereClause,
		orderKeys[q.From])

	return sql, params, nil
}

// compilePredicate compiles a predicate to a WHERE clause fragment.
// CRITICAL: Values NEVER interpolated - always use ? placeholders.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return c.compileEquals(pred)
	case *queryir.Equals:
		return c.compileEquals(*pred)
	case queryir.Range:
		return c.compileRange(pred)
	case *queryir.Range:
		return c.compileRange(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals compiles an Equals predicate to "field = ?".
// None compiles to "field IS NULL", which has no parameter.
func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	if _, ok := eq.Value.(ir.None); ok {
		return eq.Field + " IS NULL", nil, nil
	}

	param, err := valueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}
	return eq.Field + " = ?", []any{param}, nil
}

// compileRange compiles a Range predicate to one or two comparisons.
func (c *SQLCompiler) compileRange(r queryir.Range) (string, []any, error) {
	var parts []string
	var params []any
	if r.From != nil {
		parts = append(parts, r.Field+" >= ?")
		params = append(params, *r.From)
	}
	if r.To != nil {
		parts = append(parts, r.Field+" <= ?")
		params = append(params, *r.To)
	}
	if len(parts) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(parts, " AND "), params, nil
}

// compileAnd compiles an And predicate to a conjunction.
func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}

	return strings.Join(sqlParts, " AND "), allParams, nil
}

// valueToParam converts an ir.Value to a Go native SQL parameter.
func valueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.Text:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %s", ir.TypeOf(v))
	}
}
