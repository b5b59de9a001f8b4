// Package querysql compiles queryir queries to parameterized SQLite SQL
// over the store's entities table.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/recon/internal/queryir"
	"github.com/roach88/recon/internal/value"
)

// Columns is the column list of every compiled query, in scan order.
var Columns = []string{"id", "unique_id", "kind", "name", "attrs", "refs", "pinned", "generation"}

// Table is the entities table.
const Table = "entities"

// Compile converts q to SQL and its parameters.
//
// Every query is scoped to its document and ordered by id. Values are
// always parameterized, never interpolated.
func Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, fmt.Errorf("invalid query: %w", err)
	}
	sel, ok := q.(queryir.Select)
	if !ok {
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}

	where := "document = ?"
	params := []any{sel.Document}
	if sel.Filter != nil {
		filterSQL, filterParams, err := compilePredicate(sel.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where += " AND " + filterSQL
		params = append(params, filterParams...)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY id ASC",
		strings.Join(Columns, ", "), Table, where)
	if sel.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, sel.Limit)
	}
	return sql, params, nil
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		param, err := toParam(pred.Value)
		if err != nil {
			return "", nil, err
		}
		return pred.Field + " = ?", []any{param}, nil

	case queryir.In:
		if len(pred.Values) == 0 {
			return "1 = 0", nil, nil
		}
		params := make([]any, 0, len(pred.Values))
		for _, v := range pred.Values {
			param, err := toParam(v)
			if err != nil {
				return "", nil, err
			}
			params = append(params, param)
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(params)), ", ")
		return fmt.Sprintf("%s IN (%s)", pred.Field, marks), params, nil

	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		var parts []string
		var params []any
		for _, sub := range pred.Predicates {
			sql, subParams, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, subParams...)
		}
		return "(" + strings.Join(parts, " AND ") + ")", params, nil

	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// toParam converts a value to its SQL parameter. Booleans are stored as
// 0 and 1.
func toParam(v value.Value) (any, error) {
	switch val := v.(type) {
	case value.Text:
		return string(val), nil
	case value.Int:
		return int64(val), nil
	case value.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("unsupported value kind for SQL parameter: %s", v.Kind())
	}
}
