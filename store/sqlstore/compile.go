package sqlstore

import (
	"fmt"
	"strings"
	"time"

	"pkt.systems/sift/api"
)

// compileFilter renders a filter tree as a parameterized SQL condition over
// json_extract. Negations are written so rows missing the field still
// match, keeping the engines' answers identical: NOT over a NULL comparison
// would otherwise drop the row.
func compileFilter(f *api.Filter) (string, []any, error) {
	if f == nil {
		return "", nil, nil
	}
	switch f.Kind {
	case api.KindAnd:
		return compileChildren(f.Children, " AND ")
	case api.KindOr:
		return compileChildren(f.Children, " OR ")
	case api.KindNot:
		child, args, err := compileFilter(f.Child)
		if err != nil {
			return "", nil, err
		}
		if child == "" {
			return "", nil, fmt.Errorf("sqlstore: negation without child")
		}
		return fmt.Sprintf("(%s) IS NOT TRUE", child), args, nil
	case api.KindPredicate:
		return compilePredicate(f.Pred)
	}
	return "", nil, fmt.Errorf("sqlstore: unknown filter kind %s", f.Kind)
}

func compileChildren(children []*api.Filter, sep string) (string, []any, error) {
	if len(children) == 0 {
		return "", nil, fmt.Errorf("sqlstore: combinator with no children")
	}
	parts := make([]string, 0, len(children))
	var args []any
	for _, child := range children {
		sql, childArgs, err := compileFilter(child)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		args = append(args, childArgs...)
	}
	return "(" + strings.Join(parts, sep) + ")", args, nil
}

func compilePredicate(pred api.Predicate) (string, []any, error) {
	if pred.Path.Depth() == 0 {
		return "", nil, fmt.Errorf("sqlstore: predicate with empty path")
	}
	col := fmt.Sprintf("json_extract(doc, '$.%s')", pred.Path.String())

	switch pred.Op {
	case api.OpEq:
		return col + " = ?", []any{bindValue(pred.Value())}, nil
	case api.OpNotEq:
		return fmt.Sprintf("(%s IS NULL OR %s != ?)", col, col), []any{bindValue(pred.Value())}, nil
	case api.OpIn, api.OpNotIn:
		if len(pred.Values) == 0 {
			return "", nil, fmt.Errorf("sqlstore: %s on %s requires at least one value", pred.Op, pred.Path)
		}
		marks := strings.Repeat("?, ", len(pred.Values))
		marks = marks[:len(marks)-2]
		args := make([]any, 0, len(pred.Values))
		for _, v := range pred.Values {
			args = append(args, bindValue(v))
		}
		if pred.Op == api.OpNotIn {
			return fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))", col, col, marks), args, nil
		}
		return fmt.Sprintf("%s IN (%s)", col, marks), args, nil
	case api.OpPrefix:
		needle, ok := pred.Value().(string)
		if !ok {
			return "", nil, fmt.Errorf("sqlstore: prefix on %s requires a string value", pred.Path)
		}
		return col + ` LIKE ? ESCAPE '\'`, []any{escapeLike(needle) + "%"}, nil
	case api.OpContains:
		needle, ok := pred.Value().(string)
		if !ok {
			return "", nil, fmt.Errorf("sqlstore: contains on %s requires a string value", pred.Path)
		}
		return col + ` LIKE ? ESCAPE '\'`, []any{"%" + escapeLike(needle) + "%"}, nil
	case api.OpGT:
		return col + " > ?", []any{bindValue(pred.Value())}, nil
	case api.OpGE:
		return col + " >= ?", []any{bindValue(pred.Value())}, nil
	case api.OpLT:
		return col + " < ?", []any{bindValue(pred.Value())}, nil
	case api.OpLE:
		return col + " <= ?", []any{bindValue(pred.Value())}, nil
	case api.OpIsNull:
		return col + " IS NULL", nil, nil
	case api.OpNotNull:
		return col + " IS NOT NULL", nil, nil
	}
	return "", nil, fmt.Errorf("sqlstore: unsupported operator %s", pred.Op)
}

// compileSort renders the ORDER BY expression, ending with the primary key
// so equal sort values page deterministically. No sort means identity
// order.
func compileSort(spec api.Sort) string {
	parts := make([]string, 0, len(spec)+1)
	for _, key := range spec {
		dir := "ASC"
		if key.Desc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("json_extract(doc, '$.%s') %s", key.Path.String(), dir))
	}
	parts = append(parts, "id ASC")
	return strings.Join(parts, ", ")
}

// bindValue converts comparison values to the representation json_extract
// yields: timestamps become the RFC 3339 strings json.Marshal stores.
func bindValue(v any) any {
	if ts, ok := v.(time.Time); ok {
		return ts.Format(time.RFC3339Nano)
	}
	return v
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
