// Package queryir provides an abstract query representation over the
// nodesync journal.
//
// ARCHITECTURE:
//
// The trace command and the test harness describe what they want to read
// from the journal as queryir values; backends compile them:
//
//	[trace flags / assertions] -> [queryir.OpFilter] -> [queryir.Select] -> [querysql]
//
// The fragment is deliberately small:
//   - Select(from, columns, filter) over one journal table
//   - Predicates: Equals, Range, And
//   - Explicit columns (no SELECT *)
//
// It EXCLUDES joins, OR predicates, aggregations and subqueries. Ordering
// is not part of a query; every backend orders rows by the journal's
// logical clock (seq, then op index).
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package implement them, so backends can switch
// exhaustively:
//
//	switch p := pred.(type) {
//	case queryir.Equals:
//	case queryir.Range:
//	case queryir.And:
//	}
//
// CRITICAL PATTERNS:
//
// Validate before compile. Table and column names end up in SQL text;
// Validate restricts them to the journal schema in Tables. Literal values
// are always bound as parameters.
package queryir
