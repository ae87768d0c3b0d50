package registry

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdshare/sdshare/internal/feed"
	"github.com/sdshare/sdshare/internal/rdf"
)

// stubFeed answers every call with a fixed sentinel.
type stubFeed struct{ name string }

func (s stubFeed) FetchPage(ctx context.Context, req feed.PageRequest) (*feed.Page, error) {
	frag := feed.NewFragment(s.name, "2020-01-01T00:00:00Z", rdf.NewResource("urn:"+s.name, "urn:T"))
	return feed.NewPage([]*feed.Fragment{frag}, 10, feed.KeysetContinuation), nil
}

func (s stubFeed) FetchOne(ctx context.Context, id string) (*feed.Fragment, error) {
	return nil, feed.ErrNotFound
}

func (s stubFeed) Snapshot(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) { yield([]byte(s.name), nil) }
}

func TestRegistry_AddAndLookup(t *testing.T) {
	r := New("Server", "Ann")
	_, err := r.Add("people", "People", stubFeed{"first"}, stubFeed{"second"})
	require.NoError(t, err)
	_, err = r.Add("places", "Places", stubFeed{"p"})
	require.NoError(t, err)

	c, err := r.Collection("people")
	require.NoError(t, err)
	assert.Equal(t, "People", c.Title)
	assert.Equal(t, "Ann", c.Author())
	assert.Len(t, r.Collections(), 2)
	assert.Equal(t, []string{"people", "places"}, r.IDs())

	page, err := c.FetchPage(context.Background(), feed.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, page.IDs(), "collections delegate to their first feed")

	for chunk, err := range c.Snapshot(context.Background()) {
		require.NoError(t, err)
		assert.Equal(t, "first", string(chunk))
	}
}

func TestRegistry_NotFound(t *testing.T) {
	r := New("Server", "Ann")
	_, err := r.Collection("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, feed.ErrNotFound))
}

func TestRegistry_AddValidation(t *testing.T) {
	r := New("Server", "Ann")
	_, err := r.Add("", "x", stubFeed{})
	assert.Error(t, err)
	_, err = r.Add("a", "A")
	assert.Error(t, err)
	_, err = r.Add("a", "A", stubFeed{})
	require.NoError(t, err)
	_, err = r.Add("a", "again", stubFeed{})
	assert.Error(t, err)
}

func TestRegistry_CloseOrder(t *testing.T) {
	r := New("Server", "Ann")
	var order []int
	r.OnClose(func() error { order = append(order, 1); return nil })
	r.OnClose(func() error { order = append(order, 2); return errors.New("boom") })

	err := r.Close()
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, r.Close())
}
