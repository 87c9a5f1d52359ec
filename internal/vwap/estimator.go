// Package vwap computes all-in fill prices over order-book depth
// (including fee curve and slippage) and its inverse, the largest size
// fillable within a deviation cap from a limit price. Grounded on the
// teacher's internal/microstructure depth/market-impact walk
// (internal/microstructure/depth.go's EstimateMarketImpact), generalised
// from a USD-notional walk to a fee-curve-and-slippage-aware share walk.
package vwap

import (
	"math"

	"github.com/sawpanic/arbrouter/internal/orderbook"
)

// FeeCurve is the convex surcharge on top of the flat fee, steeper the
// further a level's price sits from 0.5 (spec.md section 4.2).
type FeeCurve struct {
	Rate     float64
	Exponent float64
}

// Estimate is the result of walking book depth for a target size.
type Estimate struct {
	FilledShares float64
	AvgRaw       float64
	AvgAllIn     float64
}

// perShareFee is the fee charged on one unit at raw price p, flat plus
// the convex curve term, clamped to non-negative.
func perShareFee(p, feeBps float64, curve *FeeCurve) float64 {
	fee := p * feeBps / 10000
	if curve != nil && curve.Rate != 0 {
		fee += p * curve.Rate * math.Pow(math.Abs(p-0.5), curve.Exponent)
	}
	if fee < 0 {
		fee = 0
	}
	return fee
}

// allInPrice is the per-share price after fee and slippage, at one
// book level's raw price.
func allInPrice(p, feeBps float64, curve *FeeCurve, slippageBps float64, buy bool) float64 {
	allIn := p + perShareFee(p, feeBps, curve)
	slip := p * slippageBps / 10000
	if buy {
		allIn += slip
	} else {
		allIn -= slip
	}
	return allIn
}

// Fill walks levels (asks for a buy, bids for a sell) accumulating up
// to targetShares. Returns ok=false if the book cannot fill the full
// target size.
func Fill(levels []orderbook.Level, targetShares, feeBps float64, curve *FeeCurve, slippageBps float64, buy bool) (Estimate, bool) {
	if targetShares <= 0 {
		return Estimate{}, false
	}

	var filled, rawSum, allInSum float64
	for _, lvl := range levels {
		remaining := targetShares - filled
		if remaining <= 0 {
			break
		}
		take := math.Min(remaining, lvl.Size)
		rawSum += lvl.Price * take
		allInSum += allInPrice(lvl.Price, feeBps, curve, slippageBps, buy) * take
		filled += take
	}

	if filled+1e-9 < targetShares {
		return Estimate{}, false
	}

	return Estimate{
		FilledShares: filled,
		AvgRaw:       rawSum / filled,
		AvgAllIn:     allInSum / filled,
	}, true
}

// MaxSharesForLimit walks levels while the running all-in average,
// compared to limit, stays within maxDeviationBps. A level is included
// in full only if its entire depth keeps the running deviation within
// the cap; otherwise only the fractional shares that saturate the cap
// exactly are included, via linear interpolation on the running total
// (spec.md section 4.2).
func MaxSharesForLimit(levels []orderbook.Level, limit, maxDeviationBps, feeBps float64, curve *FeeCurve, slippageBps float64, buy bool) float64 {
	if limit <= 0 || maxDeviationBps < 0 {
		return 0
	}
	capAbs := limit * maxDeviationBps / 10000

	var cumShares, cumAllIn float64
	for _, lvl := range levels {
		levelAllIn := allInPrice(lvl.Price, feeBps, curve, slippageBps, buy)

		fullShares := cumShares + lvl.Size
		fullAllIn := cumAllIn + levelAllIn*lvl.Size
		fullAvg := fullAllIn / fullShares
		if math.Abs(fullAvg-limit) <= capAbs {
			cumShares = fullShares
			cumAllIn = fullAllIn
			continue
		}

		// Saturating fraction x of this level's depth such that the
		// running average lands exactly on the deviation boundary in
		// the direction this level is pushing it.
		target := limit + capAbs
		if fullAvg < limit {
			target = limit - capAbs
		}
		denom := levelAllIn - target
		if denom == 0 {
			break
		}
		x := (target*cumShares - cumAllIn) / denom
		if x < 0 {
			x = 0
		}
		if x > lvl.Size {
			x = lvl.Size
		}
		cumShares += x
		cumAllIn += levelAllIn * x
		break
	}

	return cumShares
}
