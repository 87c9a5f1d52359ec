// Package orderbook normalises raw venue book payloads into a common
// shape and memoises snapshots within one execution attempt, grounded
// on the teacher's internal/microstructure order-book handling
// (descending bids, ascending asks, best-of-side caching).
package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Level is one (price, size) entry on a book side.
type Level struct {
	Price float64
	Size  float64
}

// Book is an ordered snapshot of one venue/token order book: bids
// descending, asks ascending by price, with best-of-side cached.
type Book struct {
	Bids    []Level
	Asks    []Level
	BestBid float64
	BestAsk float64
}

// Side returns Asks for a buy (taking liquidity from sellers) or Bids
// for a sell.
func (b *Book) Side(buy bool) []Level {
	if buy {
		return b.Asks
	}
	return b.Bids
}

// RawEntry is the wire shape a venue adapter hands back: price and
// size as strings, to avoid floating-point loss at the wire boundary
// (spec.md section 9, "Numeric precision").
type RawEntry struct {
	Price string
	Size  string
}

// RawBook is what a VenueAdapter's book fetch returns before
// normalisation.
type RawBook struct {
	Bids []RawEntry
	Asks []RawEntry
}

// Normalize parses string entries into floats via decimal.Decimal (so
// parsing itself never loses precision), caps each side to depthLevels,
// and derives best bid/ask from the top of each side. Malformed
// entries are skipped rather than aborting the whole snapshot; an
// empty result on both sides signals the caller to treat the book as
// missing.
func Normalize(raw RawBook, depthLevels int) (*Book, error) {
	bids, err := parseLevels(raw.Bids, depthLevels)
	if err != nil {
		return nil, fmt.Errorf("normalize bids: %w", err)
	}
	asks, err := parseLevels(raw.Asks, depthLevels)
	if err != nil {
		return nil, fmt.Errorf("normalize asks: %w", err)
	}
	if len(bids) == 0 && len(asks) == 0 {
		return nil, fmt.Errorf("empty order book")
	}
	book := &Book{Bids: bids, Asks: asks}
	if len(bids) > 0 {
		book.BestBid = bids[0].Price
	}
	if len(asks) > 0 {
		book.BestAsk = asks[0].Price
	}
	return book, nil
}

func parseLevels(entries []RawEntry, cap int) ([]Level, error) {
	levels := make([]Level, 0, min(len(entries), cap))
	for _, e := range entries {
		if len(levels) >= cap {
			break
		}
		price, err := decimal.NewFromString(e.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(e.Size)
		if err != nil {
			continue
		}
		p, _ := price.Float64()
		s, _ := size.Float64()
		if p <= 0 || s <= 0 {
			continue
		}
		levels = append(levels, Level{Price: p, Size: s})
	}
	return levels, nil
}
