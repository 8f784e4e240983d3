package api

import "fmt"

// TranslationError reports that an eligibility-approved filter or sort could
// not be mapped to the index's native query representation. It is a
// validation-style fault surfaced to the caller: eligibility already
// promised translatability, so hitting this means a real defect or an
// operator with no index-side equivalent, and it must never be downgraded
// to a silent fallback.
type TranslationError struct {
	Entity string
	Path   Path
	Op     Operator
	Reason string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("api: cannot translate %s %s on %s: %s", e.Path, e.Op, e.Entity, e.Reason)
}
