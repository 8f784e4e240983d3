package bleveindex

import (
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2/search/query"

	"pkt.systems/sift/api"
	"pkt.systems/sift/schema"
)

// TranslateFilter maps a filter tree onto bleve's composable query types by
// recursive descent, one case per variant. Eligibility is assumed to have
// been confirmed already: any failure here is a translation fault
// (api.TranslationError) that the caller surfaces instead of falling back.
func TranslateFilter(reg *schema.Registry, entity string, f *api.Filter) (query.Query, error) {
	if f == nil {
		return nil, &api.TranslationError{Entity: entity, Reason: "nil filter"}
	}
	switch f.Kind {
	case api.KindAnd:
		children, err := translateChildren(reg, entity, f.Children)
		if err != nil {
			return nil, err
		}
		return query.NewConjunctionQuery(children), nil
	case api.KindOr:
		children, err := translateChildren(reg, entity, f.Children)
		if err != nil {
			return nil, err
		}
		return query.NewDisjunctionQuery(children), nil
	case api.KindNot:
		child, err := TranslateFilter(reg, entity, f.Child)
		if err != nil {
			return nil, err
		}
		return negate(child), nil
	case api.KindPredicate:
		return translatePredicate(reg, entity, f.Pred)
	}
	return nil, &api.TranslationError{Entity: entity, Reason: fmt.Sprintf("unknown filter kind %s", f.Kind)}
}

func translateChildren(reg *schema.Registry, entity string, children []*api.Filter) ([]query.Query, error) {
	if len(children) == 0 {
		return nil, &api.TranslationError{Entity: entity, Reason: "combinator with no children"}
	}
	out := make([]query.Query, 0, len(children))
	for _, child := range children {
		q, err := TranslateFilter(reg, entity, child)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// negate wraps q so documents matching it are excluded. Bleve boolean
// queries need a positive leg, so the negation pairs a match-all must with
// the must-not.
func negate(q query.Query) query.Query {
	return query.NewBooleanQuery(
		[]query.Query{query.NewMatchAllQuery()},
		nil,
		[]query.Query{q},
	)
}

func translatePredicate(reg *schema.Registry, entity string, pred api.Predicate) (query.Query, error) {
	terr := func(reason string) error {
		return &api.TranslationError{Entity: entity, Path: pred.Path, Op: pred.Op, Reason: reason}
	}
	field := pred.Path.Field()
	alias, ok := reg.IndexAlias(entity, field)
	if !ok {
		return nil, terr("field is not indexed")
	}
	decl, _ := reg.Field(entity, field)

	switch pred.Op {
	case api.OpEq:
		return equalityQuery(alias, decl.Type, pred, terr)
	case api.OpNotEq:
		eq, err := equalityQuery(alias, decl.Type, pred, terr)
		if err != nil {
			return nil, err
		}
		return negate(eq), nil
	case api.OpIn, api.OpNotIn:
		if len(pred.Values) == 0 {
			return nil, terr("in requires at least one value")
		}
		disjuncts := make([]query.Query, 0, len(pred.Values))
		for _, v := range pred.Values {
			one := pred
			one.Values = []any{v}
			q, err := equalityQuery(alias, decl.Type, one, terr)
			if err != nil {
				return nil, err
			}
			disjuncts = append(disjuncts, q)
		}
		disjunction := query.NewDisjunctionQuery(disjuncts)
		if pred.Op == api.OpNotIn {
			return negate(disjunction), nil
		}
		return disjunction, nil
	case api.OpPrefix:
		s, ok := toString(pred.Value())
		if !ok {
			return nil, terr("prefix requires a string value")
		}
		if decl.Type != schema.FieldKeyword && decl.Type != schema.FieldText {
			return nil, terr(fmt.Sprintf("prefix is not defined for %s fields", decl.Type))
		}
		if decl.Type == schema.FieldText {
			s = strings.ToLower(s)
		}
		q := query.NewPrefixQuery(s)
		q.SetField(alias)
		return q, nil
	case api.OpContains:
		s, ok := toString(pred.Value())
		if !ok {
			return nil, terr("contains requires a string value")
		}
		if decl.Type != schema.FieldKeyword && decl.Type != schema.FieldText {
			return nil, terr(fmt.Sprintf("contains is not defined for %s fields", decl.Type))
		}
		if decl.Type == schema.FieldText {
			s = strings.ToLower(s)
		}
		q := query.NewWildcardQuery("*" + s + "*")
		q.SetField(alias)
		return q, nil
	case api.OpGT, api.OpGE, api.OpLT, api.OpLE:
		return rangeQuery(alias, decl.Type, pred, terr)
	case api.OpIsNull, api.OpNotNull:
		// Field absence has no reliable index-side representation; the
		// primary store evaluates these.
		return nil, terr("no index-side mapping for field absence checks")
	}
	return nil, terr("unsupported operator")
}

func equalityQuery(alias string, t schema.FieldType, pred api.Predicate, terr func(string) error) (query.Query, error) {
	if len(pred.Values) == 0 {
		return nil, terr("equality requires a value")
	}
	v := pred.Value()
	switch t {
	case schema.FieldKeyword:
		s, ok := toString(v)
		if !ok {
			return nil, terr(fmt.Sprintf("keyword field cannot compare to %T", v))
		}
		q := query.NewTermQuery(s)
		q.SetField(alias)
		return q, nil
	case schema.FieldText:
		s, ok := toString(v)
		if !ok {
			return nil, terr(fmt.Sprintf("text field cannot compare to %T", v))
		}
		q := query.NewMatchQuery(s)
		q.SetField(alias)
		return q, nil
	case schema.FieldNumber:
		n, ok := toFloat(v)
		if !ok {
			return nil, terr(fmt.Sprintf("number field cannot compare to %T", v))
		}
		inclusive := true
		q := query.NewNumericRangeInclusiveQuery(&n, &n, &inclusive, &inclusive)
		q.SetField(alias)
		return q, nil
	case schema.FieldBool:
		b, ok := toBool(v)
		if !ok {
			return nil, terr(fmt.Sprintf("bool field cannot compare to %T", v))
		}
		q := query.NewBoolFieldQuery(b)
		q.SetField(alias)
		return q, nil
	case schema.FieldTime:
		ts, ok := toTime(v)
		if !ok {
			return nil, terr(fmt.Sprintf("time field cannot compare to %T", v))
		}
		inclusive := true
		q := query.NewDateRangeInclusiveQuery(ts, ts, &inclusive, &inclusive)
		q.SetField(alias)
		return q, nil
	}
	return nil, terr(fmt.Sprintf("unknown field type %s", t))
}

func rangeQuery(alias string, t schema.FieldType, pred api.Predicate, terr func(string) error) (query.Query, error) {
	v := pred.Value()
	lower := pred.Op == api.OpGT || pred.Op == api.OpGE
	inclusive := pred.Op == api.OpGE || pred.Op == api.OpLE

	switch t {
	case schema.FieldNumber:
		n, ok := toFloat(v)
		if !ok {
			return nil, terr(fmt.Sprintf("number field cannot compare to %T", v))
		}
		var q *query.NumericRangeQuery
		if lower {
			q = query.NewNumericRangeInclusiveQuery(&n, nil, &inclusive, nil)
		} else {
			q = query.NewNumericRangeInclusiveQuery(nil, &n, nil, &inclusive)
		}
		q.SetField(alias)
		return q, nil
	case schema.FieldTime:
		ts, ok := toTime(v)
		if !ok {
			return nil, terr(fmt.Sprintf("time field cannot compare to %T", v))
		}
		var q *query.DateRangeQuery
		if lower {
			q = query.NewDateRangeInclusiveQuery(ts, time.Time{}, &inclusive, nil)
		} else {
			q = query.NewDateRangeInclusiveQuery(time.Time{}, ts, nil, &inclusive)
		}
		q.SetField(alias)
		return q, nil
	case schema.FieldKeyword:
		s, ok := toString(v)
		if !ok {
			return nil, terr(fmt.Sprintf("keyword field cannot compare to %T", v))
		}
		var q *query.TermRangeQuery
		if lower {
			q = query.NewTermRangeInclusiveQuery(s, "", &inclusive, nil)
		} else {
			q = query.NewTermRangeInclusiveQuery("", s, nil, &inclusive)
		}
		q.SetField(alias)
		return q, nil
	}
	return nil, terr(fmt.Sprintf("range comparison is not defined for %s fields", t))
}

// TranslateSort renders a sort spec as bleve sort strings, in spec order,
// resolving each key through the registry's sort alias chain. A leading
// minus marks a descending key. Eligibility already vetted the keys, and
// the alias fallback is total, so this cannot fail.
func TranslateSort(reg *schema.Registry, entity string, sort api.Sort) []string {
	if len(sort) == 0 {
		return nil
	}
	out := make([]string, 0, len(sort))
	for _, key := range sort {
		alias := reg.SortAlias(entity, key.Path.Field())
		if key.Desc {
			alias = "-" + alias
		}
		out = append(out, alias)
	}
	return out
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func toTime(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case time.Time:
		return ts, true
	case string:
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}
