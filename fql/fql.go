// Package fql parses the filter shorthand used by the CLI and the HTTP
// query endpoint into api filter trees. The grammar is one or more
// whitespace-separated clauses, each `path OP value`, joined conjunctively:
//
//	status==published age>=21 title=~"go concurrency" tag!=null
//
// Operators: == != > >= < <= =^ (prefix) =~ (contains). Comparing a path
// to the bare word null turns == into an is-null check and != into a
// not-null check. Values may be double-quoted; bare numeric literals become
// numbers and true/false become booleans.
package fql

import (
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"pkt.systems/sift/api"
)

const parseCacheSize = 256

// Parsing is pure and filters are immutable once built, so cached trees
// are shared between callers.
var parseCache = newParseCache()

func newParseCache() *lru.Cache[string, *api.Filter] {
	cache, err := lru.New[string, *api.Filter](parseCacheSize)
	if err != nil {
		panic(fmt.Sprintf("fql: create parse cache: %v", err))
	}
	return cache
}

// Parse parses a filter expression. An empty or blank expression yields a
// nil filter, meaning no filtering.
func Parse(expr string) (*api.Filter, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	if cached, ok := parseCache.Get(expr); ok {
		return cached, nil
	}
	clauses, err := splitClauses(expr)
	if err != nil {
		return nil, err
	}
	children := make([]*api.Filter, 0, len(clauses))
	for _, clause := range clauses {
		f, err := parseClause(clause)
		if err != nil {
			return nil, err
		}
		children = append(children, f)
	}
	var filter *api.Filter
	if len(children) == 1 {
		filter = children[0]
	} else {
		filter = api.And(children...)
	}
	parseCache.Add(expr, filter)
	return filter, nil
}

// splitClauses splits on whitespace outside double quotes.
func splitClauses(expr string) ([]string, error) {
	var clauses []string
	var current strings.Builder
	inQuotes := false
	escaped := false
	for _, r := range expr {
		switch {
		case escaped:
			escaped = false
			current.WriteRune(r)
		case r == '\\' && inQuotes:
			escaped = true
			current.WriteRune(r)
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case (r == ' ' || r == '\t' || r == '\n') && !inQuotes:
			if current.Len() > 0 {
				clauses = append(clauses, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("fql: unterminated quote in %q", expr)
	}
	if current.Len() > 0 {
		clauses = append(clauses, current.String())
	}
	return clauses, nil
}

var operators = map[string]api.Operator{
	"==": api.OpEq,
	"!=": api.OpNotEq,
	">=": api.OpGE,
	"<=": api.OpLE,
	">":  api.OpGT,
	"<":  api.OpLT,
	"=^": api.OpPrefix,
	"=~": api.OpContains,
}

func parseClause(clause string) (*api.Filter, error) {
	field, op, raw, found := scanOperator(clause)
	if !found {
		return nil, fmt.Errorf("fql: clause %q has no operator", clause)
	}
	if strings.TrimSpace(field) == "" {
		return nil, fmt.Errorf("fql: clause %q has no field", clause)
	}
	path := api.ParsePath(field)

	if strings.EqualFold(strings.TrimSpace(raw), "null") && !isQuoted(raw) {
		switch op {
		case api.OpEq:
			return api.Pred(path, api.OpIsNull), nil
		case api.OpNotEq:
			return api.Pred(path, api.OpNotNull), nil
		}
		return nil, fmt.Errorf("fql: clause %q compares null with a range operator", clause)
	}

	value, err := parseValue(clause, raw)
	if err != nil {
		return nil, err
	}
	return api.Pred(path, op, value), nil
}

// scanOperator finds the first operator occurrence outside quotes, longest
// token first so == is not read as two assignments.
func scanOperator(clause string) (field string, op api.Operator, value string, found bool) {
	inQuotes := false
	escaped := false
	runes := []rune(clause)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if escaped {
			escaped = false
			continue
		}
		if r == '\\' && inQuotes {
			escaped = true
			continue
		}
		if r == '"' {
			inQuotes = !inQuotes
		}
		if inQuotes {
			continue
		}
		if i+1 < len(runes) {
			two := string(runes[i : i+2])
			if o, ok := operators[two]; ok {
				return string(runes[:i]), o, string(runes[i+2:]), true
			}
		}
		one := string(r)
		if o, ok := operators[one]; ok {
			return string(runes[:i]), o, string(runes[i+1:]), true
		}
	}
	return "", 0, "", false
}

func isQuoted(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	return len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`)
}

// parseValue types a literal: quoted strings stay strings, numbers become
// float64, true/false become bool, anything else is a bare string.
func parseValue(clause, raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("fql: clause %q has no value", clause)
	}
	if isQuoted(trimmed) {
		unquoted, err := strconv.Unquote(trimmed)
		if err != nil {
			return nil, fmt.Errorf("fql: clause %q has a malformed quoted value: %w", clause, err)
		}
		return unquoted, nil
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return n, nil
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return trimmed, nil
}

// ParseSort parses a comma-separated sort list ("age:desc,name") into an
// api.Sort. Direction defaults to ascending.
func ParseSort(expr string) (api.Sort, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, nil
	}
	var sort api.Sort
	for _, part := range strings.Split(trimmed, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, dir, hasDir := strings.Cut(part, ":")
		field = strings.TrimSpace(field)
		if field == "" {
			return nil, fmt.Errorf("fql: sort key %q has no field", part)
		}
		if !hasDir {
			sort = sort.Asc(field)
			continue
		}
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "asc":
			sort = sort.Asc(field)
		case "desc":
			sort = sort.Desc(field)
		default:
			return nil, fmt.Errorf("fql: sort key %q has unknown direction %q", part, dir)
		}
	}
	return sort, nil
}
