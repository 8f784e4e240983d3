package memstore

import (
	"strings"
	"time"

	"pkt.systems/sift/api"
)

// matchFilter walks the filter tree against one document. Negations match
// absent fields, mirroring how the index evaluates a negation as
// "everything except"; the comparison operators require a present value.
func matchFilter(doc map[string]any, f *api.Filter) bool {
	if f == nil {
		return true
	}
	switch f.Kind {
	case api.KindAnd:
		for _, child := range f.Children {
			if !matchFilter(doc, child) {
				return false
			}
		}
		return true
	case api.KindOr:
		for _, child := range f.Children {
			if matchFilter(doc, child) {
				return true
			}
		}
		return false
	case api.KindNot:
		return !matchFilter(doc, f.Child)
	case api.KindPredicate:
		return matchPredicate(doc, f.Pred)
	}
	return false
}

func matchPredicate(doc map[string]any, pred api.Predicate) bool {
	value, present := valueAtPath(doc, pred.Path)
	switch pred.Op {
	case api.OpIsNull:
		return !present || value == nil
	case api.OpNotNull:
		return present && value != nil
	case api.OpNotEq:
		return !matchEq(value, present, pred.Value())
	case api.OpNotIn:
		for _, want := range pred.Values {
			if matchEq(value, present, want) {
				return false
			}
		}
		return true
	}
	if !present || value == nil {
		return false
	}
	switch pred.Op {
	case api.OpEq:
		return matchEq(value, present, pred.Value())
	case api.OpIn:
		for _, want := range pred.Values {
			if matchEq(value, present, want) {
				return true
			}
		}
		return false
	case api.OpPrefix:
		have, ok1 := valueToString(value)
		want, ok2 := valueToString(pred.Value())
		return ok1 && ok2 && strings.HasPrefix(have, want)
	case api.OpContains:
		have, ok1 := valueToString(value)
		want, ok2 := valueToString(pred.Value())
		return ok1 && ok2 && strings.Contains(have, want)
	case api.OpGT:
		return compareValues(value, pred.Value()) > 0
	case api.OpGE:
		return compareValues(value, pred.Value()) >= 0
	case api.OpLT:
		return compareValues(value, pred.Value()) < 0
	case api.OpLE:
		return compareValues(value, pred.Value()) <= 0
	}
	return false
}

func matchEq(value any, present bool, want any) bool {
	if !present || value == nil {
		return false
	}
	if a, ok := valueToFloat(value); ok {
		if b, ok := valueToFloat(want); ok {
			return a == b
		}
		return false
	}
	if a, ok := value.(bool); ok {
		b, isBool := want.(bool)
		return isBool && a == b
	}
	a, ok1 := valueToString(value)
	b, ok2 := valueToString(want)
	return ok1 && ok2 && a == b
}

// valueAtPath walks nested maps hop by hop. The second return is false when
// any hop is missing or not a map.
func valueAtPath(doc map[string]any, path api.Path) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	var current any = doc
	for _, hop := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[hop]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// compareValues orders two values: numerically when both are numbers,
// chronologically for times, lexically for strings, false-before-true for
// bools. Values with no string form sort before those with one, keeping
// mixed-type ordering deterministic.
func compareValues(a, b any) int {
	if af, ok := valueToFloat(a); ok {
		if bf, ok := valueToFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case !ab && bb:
				return -1
			case ab && !bb:
				return 1
			}
			return 0
		}
	}
	as, okA := valueToString(a)
	bs, okB := valueToString(b)
	if okA && okB {
		return strings.Compare(as, bs)
	}
	switch {
	case !okA && okB:
		return -1
	case okA && !okB:
		return 1
	}
	return 0
}

func valueToString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case time.Time:
		return s.UTC().Format(time.RFC3339Nano), true
	}
	return "", false
}

func valueToFloat(v any) (float64, bool) {
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
