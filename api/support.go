package api

// FilterSupport reports how completely a store layer accelerates filter
// evaluation. A PARTIAL answer tells callers that some filter shapes are
// served by the search index while others fall back to the primary store.
type FilterSupport int

const (
	// FilterSupportNone means no filter acceleration at all.
	FilterSupportNone FilterSupport = iota
	// FilterSupportPartial means some, but not all, filters are accelerated.
	FilterSupportPartial
	// FilterSupportFull means every filter shape is accelerated.
	FilterSupportFull
)

// String returns the uppercase support level name.
func (s FilterSupport) String() string {
	switch s {
	case FilterSupportNone:
		return "NONE"
	case FilterSupportPartial:
		return "PARTIAL"
	case FilterSupportFull:
		return "FULL"
	}
	return "UNKNOWN"
}
