package vwap

import (
	"testing"

	"github.com/sawpanic/arbrouter/internal/orderbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func asks() []orderbook.Level {
	return []orderbook.Level{
		{Price: 0.40, Size: 60},
		{Price: 0.41, Size: 40},
		{Price: 0.45, Size: 100},
	}
}

func TestFill_HappyPath(t *testing.T) {
	est, ok := Fill(asks(), 50, 100, nil, 0, true)
	require.True(t, ok)
	assert.InDelta(t, 50, est.FilledShares, 1e-9)
	assert.InDelta(t, 0.40, est.AvgRaw, 1e-9)
	assert.Greater(t, est.AvgAllIn, est.AvgRaw, "all-in price must include fee")
}

func TestFill_InsufficientDepth(t *testing.T) {
	_, ok := Fill(asks(), 1000, 100, nil, 0, true)
	assert.False(t, ok)
}

func TestFill_Monotonic(t *testing.T) {
	e1, ok1 := Fill(asks(), 50, 100, nil, 10, true)
	e2, ok2 := Fill(asks(), 90, 100, nil, 10, true)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.LessOrEqual(t, e1.FilledShares, e2.FilledShares)
	assert.LessOrEqual(t, e1.AvgAllIn, e2.AvgAllIn)
}

func TestMaxSharesForLimit_RoundTrip(t *testing.T) {
	levels := asks()
	shares := MaxSharesForLimit(levels, 0.41, 200, 100, nil, 0, true)
	require.Greater(t, shares, 0.0)

	est, ok := Fill(levels, shares, 100, nil, 0, true)
	require.True(t, ok)

	devBps := (est.AvgAllIn - 0.41) / 0.41 * 10000
	if devBps < 0 {
		devBps = -devBps
	}
	assert.LessOrEqual(t, devBps, 200.5, "deviation at returned size must stay within the cap")
}

func TestMaxSharesForLimit_TightCapLimitsToTopOfBook(t *testing.T) {
	levels := asks()
	shares := MaxSharesForLimit(levels, 0.40, 5, 100, nil, 0, true)
	assert.Less(t, shares, 60.0, "a tight cap should not consume the full first level once fees bite")
}

func TestFeeCurve_IncreasesAwayFromHalf(t *testing.T) {
	curve := &FeeCurve{Rate: 1.0, Exponent: 1.0}
	near := allInPrice(0.50, 0, curve, 0, true)
	far := allInPrice(0.10, 0, curve, 0, true)
	assert.Less(t, near-0.50, far-0.10, "curve surcharge should grow further from 0.5")
}
