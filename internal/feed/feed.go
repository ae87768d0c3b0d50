// Package feed implements the backends behind SDShare collections.
//
// Every backend satisfies Feed: it enumerates fragments changed since a
// point in time, fetches a single fragment, and streams a snapshot of
// everything it holds. Two backends ship here: CSVFeed, which keeps a whole
// file in memory, and SQLFeed, which queries a relational table through a
// fault-tolerant query.Channel.
package feed

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/sdshare/sdshare/internal/query"
	"github.com/sdshare/sdshare/internal/rdf"
)

// DefaultPageSize bounds the fragments returned per page.
const DefaultPageSize = 1000

var (
	// ErrNotFound is returned for unknown fragment ids.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSince is returned when a since value is not a wire timestamp.
	ErrInvalidSince = errors.New("invalid since timestamp")
)

// Feed is the capability surface shared by all backends.
type Feed interface {
	// FetchPage returns at most one page of fragments updated at or after
	// req.Since, ordered by update time.
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)

	// FetchOne returns the fragment with the given id or ErrNotFound.
	FetchOne(ctx context.Context, id string) (*Fragment, error)

	// Snapshot streams the full RDF/XML export of the feed.
	Snapshot(ctx context.Context) iter.Seq2[[]byte, error]
}

// PageRequest selects a page. The zero value requests the first page of
// the full history.
type PageRequest struct {
	// Since is an inclusive lower bound on the update time, in wire format.
	Since string

	// After is the id of the last fragment of the previous page. Backends
	// that order by (updated, id) use it with Since to resume strictly
	// after that fragment.
	After string
}

// Validate checks Since.
func (r PageRequest) Validate() error {
	if r.Since == "" {
		return nil
	}
	_, err := ParseSince(r.Since)
	return err
}

// ParseSince parses a wire timestamp (YYYY-MM-DDTHH:MM:SSZ).
func ParseSince(s string) (time.Time, error) {
	t, err := time.Parse(query.TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidSince, s)
	}
	return t, nil
}

// FormatTime formats t in the wire format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(query.TimeLayout)
}

// Fragment is one record as seen by the fragment feed. Fragments are built
// on demand and never stored independently of their backend.
type Fragment struct {
	ID      string
	Updated string
	// URI is the subject URI of the record.
	URI string

	resource *rdf.Resource
}

// NewFragment wraps a rendered resource.
func NewFragment(id, updated string, res *rdf.Resource) *Fragment {
	return &Fragment{ID: id, Updated: updated, URI: res.URI, resource: res}
}

// Resource returns the record as an RDF resource.
func (f *Fragment) Resource() *rdf.Resource {
	return f.resource
}

// Document renders the fragment as a standalone RDF/XML document.
func (f *Fragment) Document() ([]byte, error) {
	return f.resource.Document()
}
