package feed

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdshare/sdshare/internal/rdf"
)

func frags(n int) []*Fragment {
	out := make([]*Fragment, n)
	for i := range out {
		id := fmt.Sprint(i + 1)
		out[i] = NewFragment(id, fmt.Sprintf("2020-01-%02dT00:00:00Z", i+1), rdf.NewResource("urn:"+id, "urn:T"))
	}
	return out
}

func TestNewPage_Boundary(t *testing.T) {
	for n := 0; n <= 6; n++ {
		for size := 1; size <= 5; size++ {
			// A backend hands over at most size+1 candidates.
			candidates := frags(min(n, size+1))
			page := NewPage(candidates, size, KeysetContinuation)

			assert.Equal(t, n > size, page.HasNext, "n=%d size=%d", n, size)
			assert.Len(t, page.Fragments, min(n, size), "n=%d size=%d", n, size)
			assert.Equal(t, page.HasNext, page.Next != nil, "n=%d size=%d", n, size)
		}
	}
}

func TestNewPage_Continuations(t *testing.T) {
	page := NewPage(frags(3), 2, KeysetContinuation)
	assert.Equal(t, url.Values{"since": {"2020-01-02T00:00:00Z"}, "after": {"2"}}, page.Next)
	assert.Equal(t, []string{"1", "2"}, page.IDs())

	page = NewPage(frags(3), 2, SinceContinuation)
	assert.Equal(t, url.Values{"since": {"2020-01-03T00:00:00Z"}}, page.Next)
}

func TestNewPage_EmptyIsFinal(t *testing.T) {
	page := NewPage(nil, 10, KeysetContinuation)
	assert.False(t, page.HasNext)
	assert.Nil(t, page.Next)
	assert.Empty(t, page.Fragments)
}

func TestParseSince(t *testing.T) {
	ts, err := ParseSince("2020-01-02T03:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, "2020-01-02T03:04:05Z", FormatTime(ts))

	for _, bad := range []string{"2020-01-02", "2020-01-02 03:04:05Z", "2020-01-02T03:04:05+01:00", "yesterday"} {
		_, err := ParseSince(bad)
		assert.True(t, errors.Is(err, ErrInvalidSince), bad)
	}
}
