package search

import (
	"testing"

	"pkt.systems/sift/api"
	"pkt.systems/sift/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Build(map[string]schema.Entity{
		"article": {
			Fields: map[string]schema.Field{
				"title": {Type: schema.FieldText, Indexed: true, Sortable: true},
				"age":   {Type: schema.FieldNumber, Indexed: true, Sortable: true},
				"name":  {Type: schema.FieldKeyword, Indexed: true, Sortable: true},
				"views": {Type: schema.FieldNumber, Indexed: true},
				"notes": {Type: schema.FieldText},
				"body": {
					Type:      schema.FieldText,
					SubFields: []schema.SubField{{Name: "body_ngram", Indexed: true}},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func TestExtractPredicatesFlattensTree(t *testing.T) {
	filter := api.And(
		api.Eq("title", "foo"),
		api.Or(
			api.Pred(api.ParsePath("age"), api.OpGE, 30),
			api.Not(api.Eq("name", "bar")),
		),
	)
	preds := ExtractPredicates(filter)
	if len(preds) != 3 {
		t.Fatalf("extracted %d predicates, want 3: %v", len(preds), preds)
	}
	if ExtractPredicates(nil) != nil {
		t.Fatal("nil filter should extract nothing")
	}
}

func TestCanFilter(t *testing.T) {
	reg := testRegistry(t)
	cases := []struct {
		name   string
		filter *api.Filter
		want   bool
	}{
		{"depth-1 indexed", api.Eq("title", "foo"), true},
		{"depth-2 traversal", api.Eq("author.name", "foo"), false},
		{"non-indexed field", api.Eq("notes", "foo"), false},
		{"unknown field", api.Eq("missing", "foo"), false},
		{"subfield-only indexed counts", api.Eq("body", "needle"), true},
		{"one bad leaf disqualifies all", api.And(api.Eq("title", "foo"), api.Eq("author.name", "x")), false},
		{"nested all-indexed", api.Or(api.Not(api.Eq("name", "a")), api.Eq("views", 7)), true},
	}
	for _, tc := range cases {
		if got := CanFilter(reg, "article", tc.filter); got != tc.want {
			t.Fatalf("%s: canFilter = %t, want %t", tc.name, got, tc.want)
		}
	}
}

func TestCanSort(t *testing.T) {
	reg := testRegistry(t)
	cases := []struct {
		name string
		sort api.Sort
		want bool
	}{
		{"sortable fields", api.Sort{}.Desc("age").Asc("name"), true},
		{"non-sortable field", api.Sort{}.Asc("views"), false},
		{"depth-2 key", api.Sort{}.Asc("author.name"), false},
		{"empty", nil, true},
	}
	for _, tc := range cases {
		if got := CanSort(reg, "article", tc.sort); got != tc.want {
			t.Fatalf("%s: canSort = %t, want %t", tc.name, got, tc.want)
		}
	}
}

func TestDecideBranches(t *testing.T) {
	reg := testRegistry(t)
	cases := []struct {
		name   string
		filter *api.Filter
		sort   api.Sort
		route  bool
		reason string
	}{
		{"no filter", nil, api.Sort{}.Desc("age"), false, ReasonNoFilter},
		{"ineligible filter", api.Eq("author.name", "x"), nil, false, ReasonFilterIneligible},
		{"eligible filter, ineligible sort", api.Eq("title", "foo"), api.Sort{}.Asc("views"), false, ReasonSortIneligible},
		{"eligible filter, no sort", api.Eq("title", "foo"), nil, true, ReasonIndex},
		{"eligible filter and sort", api.Eq("title", "foo"), api.Sort{}.Desc("age").Asc("name"), true, ReasonIndex},
	}
	for _, tc := range cases {
		d := Decide(reg, "article", tc.filter, tc.sort)
		if d.Route != tc.route || d.Reason != tc.reason {
			t.Fatalf("%s: decision = %+v, want route=%t reason=%s", tc.name, d, tc.route, tc.reason)
		}
	}
}
