package feed

import "net/url"

// Page is one bounded slice of a fragment enumeration.
type Page struct {
	Fragments []*Fragment
	// HasNext is true iff the backend returned more candidates than fit.
	HasNext bool
	// Next holds the query parameters of the next page; nil when final.
	Next url.Values
}

// Continuation derives the next page's parameters from the last fragment
// on the page and the first one that did not fit.
type Continuation func(last, excluded *Fragment) url.Values

// KeysetContinuation resumes strictly after the last returned fragment by
// (updated, id), so fragments sharing a timestamp are neither skipped nor
// repeated.
func KeysetContinuation(last, _ *Fragment) url.Values {
	return url.Values{"since": {last.Updated}, "after": {last.ID}}
}

// SinceContinuation resumes at the update time of the first fragment that
// did not fit. Fragments sharing that timestamp and already returned on
// this page are returned again.
func SinceContinuation(_, excluded *Fragment) url.Values {
	return url.Values{"since": {excluded.Updated}}
}

// NewPage bounds candidates to size. Backends fetch size+1 candidates; the
// presence of the extra one marks the page non-final and it is dropped.
func NewPage(candidates []*Fragment, size int, next Continuation) *Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	if len(candidates) <= size {
		return &Page{Fragments: candidates}
	}
	frags := candidates[:size]
	return &Page{
		Fragments: frags,
		HasNext:   true,
		Next:      next(frags[len(frags)-1], candidates[size]),
	}
}

// IDs returns the fragment ids in page order.
func (p *Page) IDs() []string {
	ids := make([]string, len(p.Fragments))
	for i, f := range p.Fragments {
		ids[i] = f.ID
	}
	return ids
}
