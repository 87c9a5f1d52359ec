package sizing

import (
	"testing"

	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/orderbook"
	"github.com/sawpanic/arbrouter/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func legBook(venue router.Venue, side router.Side, limit float64, asks []orderbook.Level) LegBook {
	return LegBook{
		Leg: router.Leg{Venue: venue, TokenID: "tok", Side: side, LimitPrice: limit},
		Book: &orderbook.Book{
			Asks: asks,
			Bids: asks,
		},
	}
}

func TestSize_AdaptiveDisabledReturnsLegsUnchanged(t *testing.T) {
	cfg := config.SizingConfig{AdaptiveSize: false}
	lb := legBook(router.VenuePredict, router.SideBuy, 0.5, nil)
	lb.Leg.Size = 42

	result, err := Size(cfg, 0, nil, 0, []LegBook{lb}, 1.0)
	require.NoError(t, err)
	require.Len(t, result.Legs, 1)
	assert.Equal(t, 42.0, result.Legs[0].Size)
}

func TestSize_NoLegsErrors(t *testing.T) {
	cfg := config.SizingConfig{AdaptiveSize: true}
	_, err := Size(cfg, 0, nil, 0, nil, 1.0)
	assert.Error(t, err)
}

func TestSize_MissingBookErrors(t *testing.T) {
	cfg := config.SizingConfig{AdaptiveSize: true}
	lb := LegBook{Leg: router.Leg{Venue: router.VenuePredict, TokenID: "tok", Side: router.SideBuy, LimitPrice: 0.5}}
	_, err := Size(cfg, 0, nil, 100, []LegBook{lb}, 1.0)
	assert.Error(t, err)
}

func TestSize_BoundsToThinnestVenueDepth(t *testing.T) {
	cfg := config.SizingConfig{AdaptiveSize: true, DepthUsage: 1.0, MaxShares: 1000, MinDepthShares: 1}
	thin := legBook(router.VenuePredict, router.SideBuy, 0.60, []orderbook.Level{{Price: 0.40, Size: 30}})
	deep := legBook(router.VenuePolymarket, router.SideBuy, 0.60, []orderbook.Level{{Price: 0.40, Size: 300}})

	result, err := Size(cfg, 0, nil, 10000, []LegBook{thin, deep}, 1.0)
	require.NoError(t, err)
	assert.LessOrEqual(t, result.CommonShares, 30.0)
	for _, l := range result.Legs {
		assert.Equal(t, result.CommonShares, l.Size)
	}
}

func TestSize_QualityFactorShrinksSize(t *testing.T) {
	cfg := config.SizingConfig{AdaptiveSize: true, DepthUsage: 1.0, MaxShares: 1000, MinDepthShares: 0.01}
	lb := legBook(router.VenuePredict, router.SideBuy, 0.60, []orderbook.Level{{Price: 0.40, Size: 100}})

	full, err := Size(cfg, 0, nil, 10000, []LegBook{lb}, 1.0)
	require.NoError(t, err)
	half, err := Size(cfg, 0, nil, 10000, []LegBook{lb}, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, full.CommonShares/2, half.CommonShares, 1e-6)
}

func TestSize_CappedAtMaxShares(t *testing.T) {
	cfg := config.SizingConfig{AdaptiveSize: true, DepthUsage: 1.0, MaxShares: 5, MinDepthShares: 0.01}
	lb := legBook(router.VenuePredict, router.SideBuy, 0.60, []orderbook.Level{{Price: 0.40, Size: 1000}})

	result, err := Size(cfg, 0, nil, 10000, []LegBook{lb}, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, result.CommonShares)
}

func TestSize_BelowMinDepthErrors(t *testing.T) {
	cfg := config.SizingConfig{AdaptiveSize: true, DepthUsage: 1.0, MaxShares: 1000, MinDepthShares: 500}
	lb := legBook(router.VenuePredict, router.SideBuy, 0.60, []orderbook.Level{{Price: 0.40, Size: 10}})

	_, err := Size(cfg, 0, nil, 10000, []LegBook{lb}, 1.0)
	assert.Error(t, err)
}

func TestShrinkToNotionalCap_ScalesProportionally(t *testing.T) {
	legs := []router.Leg{
		{Venue: router.VenuePredict, LimitPrice: 0.5, Size: 100},
		{Venue: router.VenuePolymarket, LimitPrice: 0.5, Size: 100},
	}
	out := ShrinkToNotionalCap(legs, 50)
	total := 0.0
	for _, l := range out {
		total += l.Size * l.LimitPrice
	}
	assert.InDelta(t, 50, total, 1e-6)
}

func TestShrinkToNotionalCap_NoopWhenUnderCap(t *testing.T) {
	legs := []router.Leg{{LimitPrice: 0.5, Size: 10}}
	out := ShrinkToNotionalCap(legs, 1000)
	assert.Equal(t, legs, out)
}

func TestShrinkToNotionalCap_ZeroCapIsNoop(t *testing.T) {
	legs := []router.Leg{{LimitPrice: 0.5, Size: 10}}
	out := ShrinkToNotionalCap(legs, 0)
	assert.Equal(t, legs, out)
}

func TestShrinkToDepthRatio_ScalesDownOnImbalance(t *testing.T) {
	thin := legBook(router.VenuePredict, router.SideBuy, 0.5, []orderbook.Level{{Price: 0.4, Size: 10}})
	deep := legBook(router.VenuePolymarket, router.SideBuy, 0.5, []orderbook.Level{{Price: 0.4, Size: 1000}})
	legs := []router.Leg{{Size: 5, LimitPrice: 0.5}, {Size: 5, LimitPrice: 0.5}}

	out := ShrinkToDepthRatio(legs, []LegBook{thin, deep}, 0.5, 0.1)
	assert.Less(t, out[0].Size, legs[0].Size)
}

func TestShrinkToDepthRatio_NoopWhenBalanced(t *testing.T) {
	a := legBook(router.VenuePredict, router.SideBuy, 0.5, []orderbook.Level{{Price: 0.4, Size: 100}})
	b := legBook(router.VenuePolymarket, router.SideBuy, 0.5, []orderbook.Level{{Price: 0.4, Size: 100}})
	legs := []router.Leg{{Size: 5, LimitPrice: 0.5}, {Size: 5, LimitPrice: 0.5}}

	out := ShrinkToDepthRatio(legs, []LegBook{a, b}, 0.5, 0.1)
	assert.Equal(t, legs, out)
}

func TestShrinkToDepthRatio_RespectsMinFactorFloor(t *testing.T) {
	thin := legBook(router.VenuePredict, router.SideBuy, 0.5, []orderbook.Level{{Price: 0.4, Size: 1}})
	deep := legBook(router.VenuePolymarket, router.SideBuy, 0.5, []orderbook.Level{{Price: 0.4, Size: 10000}})
	legs := []router.Leg{{Size: 100, LimitPrice: 0.5}, {Size: 100, LimitPrice: 0.5}}

	out := ShrinkToDepthRatio(legs, []LegBook{thin, deep}, 0.9, 0.2)
	assert.InDelta(t, 20, out[0].Size, 1e-6)
}
