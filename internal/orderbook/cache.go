package orderbook

import (
	"context"
	"sync"

	"github.com/sawpanic/arbrouter/internal/router"
)

// Fetcher is the subset of VenueAdapter capability C1 needs: fetch a
// raw book for one (venue, tokenId). Declared here (rather than
// importing the venue package) to keep orderbook a leaf package.
type Fetcher interface {
	FetchBook(ctx context.Context, venue router.Venue, tokenID string) (RawBook, error)
}

// Cache memoises one Book per (venue, tokenId) for the lifetime of a
// single execution attempt; it is discarded at the end of the attempt
// (spec.md section 4.1).
type Cache struct {
	fetcher     Fetcher
	depthLevels int

	mu    sync.Mutex
	books map[cacheKey]*Book
}

type cacheKey struct {
	venue   router.Venue
	tokenID string
}

// New creates a fresh per-attempt cache.
func New(fetcher Fetcher, depthLevels int) *Cache {
	return &Cache{
		fetcher:     fetcher,
		depthLevels: depthLevels,
		books:       make(map[cacheKey]*Book),
	}
}

// Fetch returns the memoised book for (venue, tokenID), fetching and
// normalising it on first use. A nil book (no error) signals "missing
// orderbook" per spec.md section 4.1; callers must treat that as a
// preflight failure, not retry internally.
func (c *Cache) Fetch(ctx context.Context, venue router.Venue, tokenID string) *Book {
	key := cacheKey{venue: venue, tokenID: tokenID}

	c.mu.Lock()
	if book, ok := c.books[key]; ok {
		c.mu.Unlock()
		return book
	}
	c.mu.Unlock()

	raw, err := c.fetcher.FetchBook(ctx, venue, tokenID)
	var book *Book
	if err == nil {
		book, err = Normalize(raw, c.depthLevels)
	}
	if err != nil {
		book = nil
	}

	c.mu.Lock()
	c.books[key] = book
	c.mu.Unlock()

	return book
}

// Invalidate drops a cached entry so the next Fetch re-fetches fresh
// (used by preflight's stability sampling, consistency re-sampling and
// VWAP re-check, which need a genuinely new snapshot rather than the
// attempt's memoised one).
func (c *Cache) Invalidate(venue router.Venue, tokenID string) {
	c.mu.Lock()
	delete(c.books, cacheKey{venue: venue, tokenID: tokenID})
	c.mu.Unlock()
}
