// Package search decides, per query, whether the full-text index can serve
// a filter and sort entirely. The policy is fail-closed: one predicate the
// index cannot honor disqualifies the whole query, because index-sourced
// and store-sourced rows cannot be merged without breaking pagination and
// ordering guarantees.
package search

import (
	"pkt.systems/sift/api"
	"pkt.systems/sift/schema"
)

// Routing reasons reported by Decide. They feed logs and metrics.
const (
	ReasonNoFilter         = "no_filter"
	ReasonFilterIneligible = "filter_ineligible"
	ReasonSortIneligible   = "sort_ineligible"
	ReasonIndex            = "index"
)

// Decision is the routing verdict for one query.
type Decision struct {
	// Route is true when the index serves the query.
	Route bool
	// Reason names the branch taken, one of the Reason* constants.
	Reason string
}

// ExtractPredicates flattens a filter tree into its leaf predicates,
// ignoring combinator structure. A nil filter yields nothing.
func ExtractPredicates(filter *api.Filter) []api.Predicate {
	var preds []api.Predicate
	filter.Walk(func(node *api.Filter) bool {
		if node.Kind == api.KindPredicate {
			preds = append(preds, node.Pred)
		}
		return true
	})
	return preds
}

// CanFilter reports whether every leaf predicate targets a depth-1 path
// whose field the registry marks indexed on the entity. A single
// disqualifying predicate fails the whole filter.
func CanFilter(reg *schema.Registry, entity string, filter *api.Filter) bool {
	for _, pred := range ExtractPredicates(filter) {
		if pred.Path.Depth() != 1 {
			return false
		}
		if !reg.IsIndexed(entity, pred.Path.Field()) {
			return false
		}
	}
	return true
}

// CanSort reports whether every sort key targets a depth-1 path whose
// field the registry marks sortable on the entity.
func CanSort(reg *schema.Registry, entity string, sort api.Sort) bool {
	for _, key := range sort {
		if key.Path.Depth() != 1 {
			return false
		}
		if !reg.IsSortable(entity, key.Path.Field()) {
			return false
		}
	}
	return true
}

// Decide evaluates the three dispatch branches in order: no filter
// delegates immediately without capability checks; an ineligible filter or
// sort delegates unchanged; otherwise the query routes to the index. Sort
// eligibility only gates routing when a sort is present.
func Decide(reg *schema.Registry, entity string, filter *api.Filter, sort api.Sort) Decision {
	if filter == nil {
		return Decision{Reason: ReasonNoFilter}
	}
	if !CanFilter(reg, entity, filter) {
		return Decision{Reason: ReasonFilterIneligible}
	}
	if len(sort) > 0 && !CanSort(reg, entity, sort) {
		return Decision{Reason: ReasonSortIneligible}
	}
	return Decision{Route: true, Reason: ReasonIndex}
}
