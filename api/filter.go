// Package api defines the request shapes accepted by the sift read path:
// filter expressions, sort specifications, pagination windows, and the
// errors and capability answers the engine reports back. The types here are
// constructed by callers (or by the fql parser) and are read-only inputs to
// the engine; nothing in sift mutates them after construction.
package api

import (
	"fmt"
	"strings"
)

// Path names a field by its hops from the queried entity. A depth-1 path is
// a field directly on the entity; deeper paths traverse relationships and
// are never index-eligible.
type Path []string

// ParsePath splits a dotted field reference ("author.name") into a Path.
func ParsePath(s string) Path {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "."))
}

// Depth returns the number of hops in the path.
func (p Path) Depth() int { return len(p) }

// Field returns the terminal field name, or "" for an empty path.
func (p Path) Field() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// String renders the path in dotted form.
func (p Path) String() string { return strings.Join(p, ".") }

// Operator enumerates the comparison operators a predicate may carry.
type Operator int

const (
	// OpEq matches values equal to the single comparison value.
	OpEq Operator = iota
	// OpNotEq matches values different from the single comparison value.
	OpNotEq
	// OpIn matches values equal to any of the comparison values.
	OpIn
	// OpNotIn matches values equal to none of the comparison values.
	OpNotIn
	// OpPrefix matches string values starting with the comparison value.
	OpPrefix
	// OpContains matches string values containing the comparison value.
	OpContains
	// OpGT matches values strictly greater than the comparison value.
	OpGT
	// OpGE matches values greater than or equal to the comparison value.
	OpGE
	// OpLT matches values strictly less than the comparison value.
	OpLT
	// OpLE matches values less than or equal to the comparison value.
	OpLE
	// OpIsNull matches records where the field is absent or null.
	OpIsNull
	// OpNotNull matches records where the field is present and non-null.
	OpNotNull
)

var operatorNames = map[Operator]string{
	OpEq:       "eq",
	OpNotEq:    "neq",
	OpIn:       "in",
	OpNotIn:    "notin",
	OpPrefix:   "prefix",
	OpContains: "contains",
	OpGT:       "gt",
	OpGE:       "ge",
	OpLT:       "lt",
	OpLE:       "le",
	OpIsNull:   "isnull",
	OpNotNull:  "notnull",
}

// String returns the lowercase operator name used in logs and errors.
func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return fmt.Sprintf("operator(%d)", int(o))
}

// FilterKind tags the variant held by a Filter node.
type FilterKind int

const (
	// KindAnd combines children conjunctively.
	KindAnd FilterKind = iota
	// KindOr combines children disjunctively.
	KindOr
	// KindNot negates its single child.
	KindNot
	// KindPredicate is a leaf comparison.
	KindPredicate
)

// String returns the lowercase kind name.
func (k FilterKind) String() string {
	switch k {
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindNot:
		return "not"
	case KindPredicate:
		return "predicate"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Predicate is a leaf comparison: a field path, an operator, and the
// comparison values the operator needs (one for most operators, one or more
// for OpIn/OpNotIn, none for OpIsNull/OpNotNull).
type Predicate struct {
	Path   Path
	Op     Operator
	Values []any
}

// Value returns the first comparison value, or nil when none was given.
func (p Predicate) Value() any {
	if len(p.Values) == 0 {
		return nil
	}
	return p.Values[0]
}

// String renders the predicate for logs and error messages.
func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %v", p.Path, p.Op, p.Values)
}

// Filter is a boolean expression tree over predicates. Exactly one variant
// is populated according to Kind: And/Or use Children, Not uses Child,
// Predicate uses Pred. Filters are immutable once built; the engine walks
// them but never writes to them.
type Filter struct {
	Kind     FilterKind
	Children []*Filter
	Child    *Filter
	Pred     Predicate
}

// And builds a conjunction node. At least one child is expected.
func And(children ...*Filter) *Filter {
	return &Filter{Kind: KindAnd, Children: children}
}

// Or builds a disjunction node. At least one child is expected.
func Or(children ...*Filter) *Filter {
	return &Filter{Kind: KindOr, Children: children}
}

// Not negates child.
func Not(child *Filter) *Filter {
	return &Filter{Kind: KindNot, Child: child}
}

// Pred builds a leaf predicate node.
func Pred(path Path, op Operator, values ...any) *Filter {
	return &Filter{Kind: KindPredicate, Pred: Predicate{Path: path, Op: op, Values: values}}
}

// Eq is shorthand for a depth-parsed equality predicate on a dotted path.
func Eq(path string, value any) *Filter {
	return Pred(ParsePath(path), OpEq, value)
}

// Walk visits every node in depth-first order. Traversal stops when visit
// returns false. A nil filter is a no-op.
func (f *Filter) Walk(visit func(*Filter) bool) {
	if f == nil || visit == nil {
		return
	}
	if !visit(f) {
		return
	}
	switch f.Kind {
	case KindAnd, KindOr:
		for _, child := range f.Children {
			child.Walk(visit)
		}
	case KindNot:
		f.Child.Walk(visit)
	}
}

// String renders the expression tree in a compact prefix form.
func (f *Filter) String() string {
	if f == nil {
		return "<nil>"
	}
	switch f.Kind {
	case KindPredicate:
		return f.Pred.String()
	case KindNot:
		return fmt.Sprintf("not(%s)", f.Child.String())
	case KindAnd, KindOr:
		parts := make([]string, 0, len(f.Children))
		for _, child := range f.Children {
			parts = append(parts, child.String())
		}
		return fmt.Sprintf("%s(%s)", f.Kind, strings.Join(parts, ", "))
	}
	return f.Kind.String()
}
