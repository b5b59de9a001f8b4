// Package queryir is the query intermediate representation used to list
// entities out of a persistent document.
//
// Queries are built from signature entity filters and inspection flags,
// checked with Validate, and compiled to SQL by package querysql. Keeping
// the IR separate from SQL lets the memory backend evaluate the same
// queries with Match.
//
// Query and Predicate are sealed: only types in this package implement
// them, so backends can switch exhaustively.
//
//	switch p := pred.(type) {
//	case Equals:
//	case In:
//	case And:
//	}
//
// Every query selects from the entities of one document. Results are
// always ordered by entity id.
package queryir
