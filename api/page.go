package api

// Page describes the pagination window for a read. Offset rows are skipped
// after ordering; Limit caps the returned rows, with Limit <= 0 meaning
// unbounded. WantTotal asks the executing side to also report the full
// match count, independent of the window. Page is a read-only input; totals
// come back on the result, never by writing into this struct.
type Page struct {
	Offset    int
	Limit     int
	WantTotal bool
}

// Window returns offset/limit normalized: negative offsets become 0 and
// non-positive limits report unbounded via the second return.
func (p *Page) Window() (offset int, limit int, bounded bool) {
	if p == nil {
		return 0, 0, false
	}
	offset = p.Offset
	if offset < 0 {
		offset = 0
	}
	if p.Limit > 0 {
		return offset, p.Limit, true
	}
	return offset, 0, false
}
