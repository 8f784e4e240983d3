package api

import "strings"

// SortKey orders results by one field. Desc false means ascending.
type SortKey struct {
	Path Path
	Desc bool
}

// Sort is an ordered list of sort keys. The first key is the primary sort;
// entry order is semantically significant and preserved end-to-end through
// translation and execution.
type Sort []SortKey

// Asc appends an ascending key for the dotted path.
func (s Sort) Asc(path string) Sort {
	return append(s, SortKey{Path: ParsePath(path)})
}

// Desc appends a descending key for the dotted path.
func (s Sort) Desc(path string) Sort {
	return append(s, SortKey{Path: ParsePath(path), Desc: true})
}

// String renders the sort in "field:asc,other:desc" form.
func (s Sort) String() string {
	if len(s) == 0 {
		return ""
	}
	parts := make([]string, 0, len(s))
	for _, key := range s {
		dir := "asc"
		if key.Desc {
			dir = "desc"
		}
		parts = append(parts, key.Path.String()+":"+dir)
	}
	return strings.Join(parts, ",")
}
