package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_OrdersAndCapsLevels(t *testing.T) {
	raw := RawBook{
		Bids: []RawEntry{{Price: "0.50", Size: "100"}, {Price: "0.49", Size: "50"}, {Price: "0.48", Size: "10"}},
		Asks: []RawEntry{{Price: "0.52", Size: "80"}, {Price: "0.53", Size: "20"}},
	}
	book, err := Normalize(raw, 2)
	require.NoError(t, err)
	assert.Len(t, book.Bids, 2)
	assert.Equal(t, 0.50, book.BestBid)
	assert.Equal(t, 0.52, book.BestAsk)
}

func TestNormalize_SkipsMalformedEntries(t *testing.T) {
	raw := RawBook{
		Bids: []RawEntry{{Price: "not-a-number", Size: "100"}, {Price: "0.30", Size: "10"}},
		Asks: []RawEntry{{Price: "0.40", Size: "0"}},
	}
	book, err := Normalize(raw, 10)
	require.NoError(t, err)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, 0.30, book.BestBid)
	assert.Empty(t, book.Asks)
	assert.Zero(t, book.BestAsk)
}

func TestNormalize_EmptyBothSidesErrors(t *testing.T) {
	_, err := Normalize(RawBook{}, 10)
	assert.Error(t, err)
}

func TestBook_SideSelectsAsksForBuyBidsForSell(t *testing.T) {
	book := &Book{
		Bids: []Level{{Price: 0.1, Size: 1}},
		Asks: []Level{{Price: 0.2, Size: 1}},
	}
	assert.Equal(t, book.Asks, book.Side(true))
	assert.Equal(t, book.Bids, book.Side(false))
}
