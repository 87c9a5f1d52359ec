package venue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/arbrouter/internal/orderbook"
	"github.com/sawpanic/arbrouter/internal/router"
)

func TestMockAdapter_ExecuteThenCheckOpenThenCancel(t *testing.T) {
	ctx := context.Background()
	a := NewMockAdapter(router.VenuePredict)
	a.SeedBook("T1", orderbook.RawBook{
		Asks: []orderbook.RawEntry{{Price: "0.40", Size: "100"}},
		Bids: []orderbook.RawEntry{{Price: "0.39", Size: "100"}},
	})

	book, err := a.FetchBook(ctx, router.VenuePredict, "T1")
	require.NoError(t, err)
	assert.Len(t, book.Asks, 1)

	legs := []router.Leg{{Venue: router.VenuePredict, TokenID: "T1", Side: router.SideBuy, LimitPrice: 0.40, Size: 10}}
	res, err := a.Execute(ctx, legs, router.ExecutionOptions{OrderType: "FOK"})
	require.NoError(t, err)
	require.Len(t, res.OrderIDs, 1)

	open, err := a.CheckOpenOrders(ctx, res.OrderIDs)
	require.NoError(t, err)
	assert.Equal(t, res.OrderIDs, open)

	require.NoError(t, a.CancelOrders(ctx, res.OrderIDs))
	open2, err := a.CheckOpenOrders(ctx, res.OrderIDs)
	require.NoError(t, err)
	assert.Empty(t, open2)
}

func TestMockAdapter_FetchBookUnseededErrors(t *testing.T) {
	a := NewMockAdapter(router.VenueOpinion)
	_, err := a.FetchBook(context.Background(), router.VenueOpinion, "missing")
	assert.Error(t, err)
}

func TestRegistry_FetchBookDispatchesToCorrectVenue(t *testing.T) {
	predict := NewMockAdapter(router.VenuePredict)
	predict.SeedBook("T1", orderbook.RawBook{Asks: []orderbook.RawEntry{{Price: "0.5", Size: "10"}}})
	reg := NewRegistry(map[router.Venue]Adapter{router.VenuePredict: predict})

	book, err := reg.FetchBook(context.Background(), router.VenuePredict, "T1")
	require.NoError(t, err)
	assert.Len(t, book.Asks, 1)

	_, err = reg.FetchBook(context.Background(), router.VenueOpinion, "T1")
	assert.Error(t, err)
}
