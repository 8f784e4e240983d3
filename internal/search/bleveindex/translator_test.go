package bleveindex

import (
	"errors"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2/search/query"

	"pkt.systems/sift/api"
	"pkt.systems/sift/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Build(map[string]schema.Entity{
		"article": {Fields: map[string]schema.Field{
			"title":   {Type: schema.FieldText, Indexed: true, Sortable: true},
			"status":  {Type: schema.FieldKeyword, Indexed: true, Sortable: true},
			"age":     {Type: schema.FieldNumber, Indexed: true, Sortable: true},
			"pinned":  {Type: schema.FieldBool, Indexed: true},
			"created": {Type: schema.FieldTime, Indexed: true, Sortable: true},
			"slug":    {Type: schema.FieldKeyword, Indexed: true, Sortable: true, Alias: "slug_k", SortAlias: "slug_sort"},
			"body":    {Type: schema.FieldText, SubFields: []schema.SubField{{Name: "body_ngram", Indexed: true}}},
			"notes":   {Type: schema.FieldKeyword},
		}},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func translate(t *testing.T, reg *schema.Registry, f *api.Filter) query.Query {
	t.Helper()
	q, err := TranslateFilter(reg, "article", f)
	if err != nil {
		t.Fatalf("translate %s: %v", f, err)
	}
	return q
}

func TestTranslateKeywordEquality(t *testing.T) {
	reg := testRegistry(t)
	q := translate(t, reg, api.Eq("status", "published"))
	term, ok := q.(*query.TermQuery)
	if !ok {
		t.Fatalf("expected term query, got %T", q)
	}
	if term.Term != "published" || term.Field() != "status" {
		t.Fatalf("unexpected term query: %+v", term)
	}
}

func TestTranslateTextEquality(t *testing.T) {
	reg := testRegistry(t)
	q := translate(t, reg, api.Eq("title", "go concurrency"))
	match, ok := q.(*query.MatchQuery)
	if !ok {
		t.Fatalf("expected match query, got %T", q)
	}
	if match.Match != "go concurrency" || match.Field() != "title" {
		t.Fatalf("unexpected match query: %+v", match)
	}
}

func TestTranslateNumberEqualityIsClosedRange(t *testing.T) {
	reg := testRegistry(t)
	q := translate(t, reg, api.Eq("age", 21))
	nr, ok := q.(*query.NumericRangeQuery)
	if !ok {
		t.Fatalf("expected numeric range query, got %T", q)
	}
	if nr.Min == nil || nr.Max == nil || *nr.Min != 21 || *nr.Max != 21 {
		t.Fatalf("expected closed range at 21, got min=%v max=%v", nr.Min, nr.Max)
	}
	if nr.InclusiveMin == nil || !*nr.InclusiveMin || nr.InclusiveMax == nil || !*nr.InclusiveMax {
		t.Fatalf("expected inclusive bounds on both ends")
	}
}

func TestTranslateBoolAndTimeEquality(t *testing.T) {
	reg := testRegistry(t)

	q := translate(t, reg, api.Eq("pinned", true))
	bf, ok := q.(*query.BoolFieldQuery)
	if !ok {
		t.Fatalf("expected bool field query, got %T", q)
	}
	if !bf.Bool || bf.Field() != "pinned" {
		t.Fatalf("unexpected bool query: %+v", bf)
	}

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	q = translate(t, reg, api.Eq("created", ts))
	dr, ok := q.(*query.DateRangeQuery)
	if !ok {
		t.Fatalf("expected date range query, got %T", q)
	}
	if dr.Field() != "created" {
		t.Fatalf("unexpected date range field: %q", dr.Field())
	}
	if dr.InclusiveStart == nil || !*dr.InclusiveStart || dr.InclusiveEnd == nil || !*dr.InclusiveEnd {
		t.Fatalf("expected closed date range")
	}
}

func TestTranslateTimeEqualityFromRFC3339String(t *testing.T) {
	reg := testRegistry(t)
	q := translate(t, reg, api.Eq("created", "2024-03-01T12:00:00Z"))
	if _, ok := q.(*query.DateRangeQuery); !ok {
		t.Fatalf("expected date range query from string timestamp, got %T", q)
	}
}

func TestTranslateCombinatorsPreserveShape(t *testing.T) {
	reg := testRegistry(t)
	f := api.And(
		api.Or(api.Eq("status", "published"), api.Eq("status", "review")),
		api.Not(api.Eq("pinned", true)),
	)
	q := translate(t, reg, f)
	conj, ok := q.(*query.ConjunctionQuery)
	if !ok {
		t.Fatalf("expected conjunction, got %T", q)
	}
	if len(conj.Conjuncts) != 2 {
		t.Fatalf("expected 2 conjuncts, got %d", len(conj.Conjuncts))
	}
	if _, ok := conj.Conjuncts[0].(*query.DisjunctionQuery); !ok {
		t.Fatalf("expected first conjunct to be a disjunction, got %T", conj.Conjuncts[0])
	}
	if _, ok := conj.Conjuncts[1].(*query.BooleanQuery); !ok {
		t.Fatalf("expected negation to be a boolean query, got %T", conj.Conjuncts[1])
	}
}

func TestTranslateNegationsPairMatchAllWithMustNot(t *testing.T) {
	reg := testRegistry(t)
	cases := []struct {
		name   string
		filter *api.Filter
	}{
		{"not eq", api.Pred(api.ParsePath("status"), api.OpNotEq, "draft")},
		{"not in", api.Pred(api.ParsePath("status"), api.OpNotIn, "draft", "review")},
		{"not combinator", api.Not(api.Eq("status", "draft"))},
	}
	for _, tc := range cases {
		q := translate(t, reg, tc.filter)
		bq, ok := q.(*query.BooleanQuery)
		if !ok {
			t.Fatalf("%s: expected boolean query, got %T", tc.name, q)
		}
		if bq.Must == nil || bq.MustNot == nil {
			t.Fatalf("%s: expected both a positive leg and a must-not leg", tc.name)
		}
	}
}

func TestTranslateInFansOut(t *testing.T) {
	reg := testRegistry(t)
	q := translate(t, reg, api.Pred(api.ParsePath("status"), api.OpIn, "draft", "review", "published"))
	disj, ok := q.(*query.DisjunctionQuery)
	if !ok {
		t.Fatalf("expected disjunction, got %T", q)
	}
	if len(disj.Disjuncts) != 3 {
		t.Fatalf("expected 3 disjuncts, got %d", len(disj.Disjuncts))
	}
}

func TestTranslatePrefixAndContains(t *testing.T) {
	reg := testRegistry(t)

	q := translate(t, reg, api.Pred(api.ParsePath("slug"), api.OpPrefix, "Go-"))
	prefix, ok := q.(*query.PrefixQuery)
	if !ok {
		t.Fatalf("expected prefix query, got %T", q)
	}
	if prefix.Prefix != "Go-" {
		t.Fatalf("keyword prefix should keep its case, got %q", prefix.Prefix)
	}
	if prefix.Field() != "slug_k" {
		t.Fatalf("expected alias slug_k, got %q", prefix.Field())
	}

	q = translate(t, reg, api.Pred(api.ParsePath("title"), api.OpPrefix, "Go"))
	prefix, ok = q.(*query.PrefixQuery)
	if !ok {
		t.Fatalf("expected prefix query, got %T", q)
	}
	if prefix.Prefix != "go" {
		t.Fatalf("text prefix should be lowercased to match the analyzer, got %q", prefix.Prefix)
	}

	q = translate(t, reg, api.Pred(api.ParsePath("title"), api.OpContains, "Conc"))
	wild, ok := q.(*query.WildcardQuery)
	if !ok {
		t.Fatalf("expected wildcard query, got %T", q)
	}
	if wild.Wildcard != "*conc*" {
		t.Fatalf("unexpected wildcard pattern %q", wild.Wildcard)
	}
}

func TestTranslateRangeBounds(t *testing.T) {
	reg := testRegistry(t)
	cases := []struct {
		name      string
		op        api.Operator
		wantLower bool
		inclusive bool
	}{
		{"gt", api.OpGT, true, false},
		{"ge", api.OpGE, true, true},
		{"lt", api.OpLT, false, false},
		{"le", api.OpLE, false, true},
	}
	for _, tc := range cases {
		q := translate(t, reg, api.Pred(api.ParsePath("age"), tc.op, 18))
		nr, ok := q.(*query.NumericRangeQuery)
		if !ok {
			t.Fatalf("%s: expected numeric range query, got %T", tc.name, q)
		}
		if tc.wantLower {
			if nr.Min == nil || *nr.Min != 18 || nr.Max != nil {
				t.Fatalf("%s: expected lower bound only, got min=%v max=%v", tc.name, nr.Min, nr.Max)
			}
			if nr.InclusiveMin == nil || *nr.InclusiveMin != tc.inclusive {
				t.Fatalf("%s: wrong min inclusivity", tc.name)
			}
		} else {
			if nr.Max == nil || *nr.Max != 18 || nr.Min != nil {
				t.Fatalf("%s: expected upper bound only, got min=%v max=%v", tc.name, nr.Min, nr.Max)
			}
			if nr.InclusiveMax == nil || *nr.InclusiveMax != tc.inclusive {
				t.Fatalf("%s: wrong max inclusivity", tc.name)
			}
		}
	}
}

func TestTranslateKeywordAndTimeRanges(t *testing.T) {
	reg := testRegistry(t)

	q := translate(t, reg, api.Pred(api.ParsePath("slug"), api.OpGE, "m"))
	tr, ok := q.(*query.TermRangeQuery)
	if !ok {
		t.Fatalf("expected term range query, got %T", q)
	}
	if tr.Min != "m" || tr.Max != "" {
		t.Fatalf("unexpected term range bounds: %+v", tr)
	}

	q = translate(t, reg, api.Pred(api.ParsePath("created"), api.OpLT, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	if _, ok := q.(*query.DateRangeQuery); !ok {
		t.Fatalf("expected date range query, got %T", q)
	}
}

func TestTranslateSubFieldResolution(t *testing.T) {
	reg := testRegistry(t)
	q := translate(t, reg, api.Eq("body", "needle"))
	match, ok := q.(*query.MatchQuery)
	if !ok {
		t.Fatalf("expected match query, got %T", q)
	}
	if match.Field() != "body_ngram" {
		t.Fatalf("expected indexed subfield name, got %q", match.Field())
	}
}

func TestTranslateFaults(t *testing.T) {
	reg := testRegistry(t)
	cases := []struct {
		name   string
		filter *api.Filter
	}{
		{"nil filter", nil},
		{"is null", api.Pred(api.ParsePath("status"), api.OpIsNull)},
		{"not null", api.Pred(api.ParsePath("status"), api.OpNotNull)},
		{"field not indexed", api.Eq("notes", "x")},
		{"field unknown", api.Eq("ghost", "x")},
		{"number vs string", api.Eq("age", "twenty")},
		{"bool vs string", api.Eq("pinned", "yes")},
		{"prefix on number", api.Pred(api.ParsePath("age"), api.OpPrefix, "2")},
		{"contains on bool", api.Pred(api.ParsePath("pinned"), api.OpContains, "tr")},
		{"range on bool", api.Pred(api.ParsePath("pinned"), api.OpGT, false)},
		{"range on text", api.Pred(api.ParsePath("title"), api.OpGT, "a")},
		{"in without values", api.Pred(api.ParsePath("status"), api.OpIn)},
		{"eq without value", api.Pred(api.ParsePath("status"), api.OpEq)},
		{"empty and", api.And()},
		{"bad time string", api.Eq("created", "yesterday")},
	}
	for _, tc := range cases {
		_, err := TranslateFilter(reg, "article", tc.filter)
		if err == nil {
			t.Fatalf("%s: expected translation error", tc.name)
		}
		var terr *api.TranslationError
		if !errors.As(err, &terr) {
			t.Fatalf("%s: expected TranslationError, got %T: %v", tc.name, err, err)
		}
		if terr.Entity != "article" {
			t.Fatalf("%s: expected entity on error, got %+v", tc.name, terr)
		}
	}
}

func TestTranslateSortAliases(t *testing.T) {
	reg := testRegistry(t)
	got := TranslateSort(reg, "article", api.Sort{}.Desc("age").Asc("slug").Asc("title"))
	want := []string{"-age", "slug_sort", "title"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if TranslateSort(reg, "article", nil) != nil {
		t.Fatalf("expected nil for empty sort")
	}
}
