package orderbook

import (
	"context"
	"errors"
	"testing"

	"github.com/sawpanic/arbrouter/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls int
	raw   RawBook
	err   error
}

func (f *countingFetcher) FetchBook(ctx context.Context, venue router.Venue, tokenID string) (RawBook, error) {
	f.calls++
	return f.raw, f.err
}

func TestCache_FetchMemoisesSecondCall(t *testing.T) {
	fetcher := &countingFetcher{raw: RawBook{
		Bids: []RawEntry{{Price: "0.40", Size: "10"}},
		Asks: []RawEntry{{Price: "0.41", Size: "10"}},
	}}
	cache := New(fetcher, 10)

	first := cache.Fetch(context.Background(), router.VenuePredict, "tok")
	second := cache.Fetch(context.Background(), router.VenuePredict, "tok")

	require.NotNil(t, first)
	assert.Same(t, first, second)
	assert.Equal(t, 1, fetcher.calls)
}

func TestCache_FetchErrorCachesNilBook(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("boom")}
	cache := New(fetcher, 10)

	book := cache.Fetch(context.Background(), router.VenuePredict, "tok")
	assert.Nil(t, book)

	book2 := cache.Fetch(context.Background(), router.VenuePredict, "tok")
	assert.Nil(t, book2)
	assert.Equal(t, 1, fetcher.calls, "nil result must still be memoised, not retried")
}

func TestCache_InvalidateForcesRefetch(t *testing.T) {
	fetcher := &countingFetcher{raw: RawBook{
		Bids: []RawEntry{{Price: "0.40", Size: "10"}},
		Asks: []RawEntry{{Price: "0.41", Size: "10"}},
	}}
	cache := New(fetcher, 10)

	cache.Fetch(context.Background(), router.VenuePredict, "tok")
	cache.Invalidate(router.VenuePredict, "tok")
	cache.Fetch(context.Background(), router.VenuePredict, "tok")

	assert.Equal(t, 2, fetcher.calls)
}

func TestCache_DistinctKeysDoNotCollide(t *testing.T) {
	fetcher := &countingFetcher{raw: RawBook{
		Bids: []RawEntry{{Price: "0.40", Size: "10"}},
		Asks: []RawEntry{{Price: "0.41", Size: "10"}},
	}}
	cache := New(fetcher, 10)

	cache.Fetch(context.Background(), router.VenuePredict, "tok-a")
	cache.Fetch(context.Background(), router.VenuePredict, "tok-b")
	cache.Fetch(context.Background(), router.VenuePolymarket, "tok-a")

	assert.Equal(t, 3, fetcher.calls)
}
