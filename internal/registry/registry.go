// Package registry is the in-memory directory of collections served by one
// process. A Registry is built once at startup and then only read, so it is
// safe for concurrent use without locking.
package registry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/sdshare/sdshare/internal/feed"
)

// ErrNotFound is returned for unknown collection ids. It wraps
// feed.ErrNotFound so callers can test for either.
var ErrNotFound = fmt.Errorf("collection %w", feed.ErrNotFound)

// Collection is a titled, ordered list of feeds.
type Collection struct {
	ID    string
	Title string
	Feeds []feed.Feed

	registry *Registry
}

// Author returns the server author.
func (c *Collection) Author() string {
	return c.registry.Author
}

// Primary returns the feed that serves the collection's fragments and
// snapshots: the first one.
func (c *Collection) Primary() feed.Feed {
	return c.Feeds[0]
}

// FetchPage delegates to the primary feed.
func (c *Collection) FetchPage(ctx context.Context, req feed.PageRequest) (*feed.Page, error) {
	return c.Primary().FetchPage(ctx, req)
}

// FetchOne delegates to the primary feed.
func (c *Collection) FetchOne(ctx context.Context, id string) (*feed.Fragment, error) {
	return c.Primary().FetchOne(ctx, id)
}

// Snapshot delegates to the primary feed.
func (c *Collection) Snapshot(ctx context.Context) iter.Seq2[[]byte, error] {
	return c.Primary().Snapshot(ctx)
}

// Registry holds the server metadata and its collections.
type Registry struct {
	Title  string
	Author string

	order       []*Collection
	collections map[string]*Collection
	closers     []func() error
}

// New creates an empty registry.
func New(title, author string) *Registry {
	return &Registry{
		Title:       title,
		Author:      author,
		collections: make(map[string]*Collection),
	}
}

// Add registers a collection. Ids must be unique and every collection needs
// at least one feed.
func (r *Registry) Add(id, title string, feeds ...feed.Feed) (*Collection, error) {
	if id == "" {
		return nil, errors.New("collection id is required")
	}
	if _, ok := r.collections[id]; ok {
		return nil, fmt.Errorf("duplicate collection id %q", id)
	}
	if len(feeds) == 0 {
		return nil, fmt.Errorf("collection %q has no feeds", id)
	}
	c := &Collection{ID: id, Title: title, Feeds: feeds, registry: r}
	r.collections[id] = c
	r.order = append(r.order, c)
	return c, nil
}

// Collection looks up a collection by id.
func (r *Registry) Collection(id string) (*Collection, error) {
	c, ok := r.collections[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return c, nil
}

// Collections returns the collections in registration order.
func (r *Registry) Collections() []*Collection {
	return r.order
}

// IDs returns the collection ids sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.order))
	for _, c := range r.order {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}

// OnClose registers a resource released by Close.
func (r *Registry) OnClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

// Close releases registered resources, newest first.
func (r *Registry) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
