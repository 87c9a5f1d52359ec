// Package sizing implements the adaptive sizer (C4): it shrinks an
// opportunity's legs to a single common share count bounded by the
// thinnest venue's executable depth, the way the teacher's
// internal/microstructure.LiquidityTierManager.EstimatePositionSize
// bounds position size off measured depth and a venue-health haircut.
package sizing

import (
	"fmt"
	"math"

	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/orderbook"
	"github.com/sawpanic/arbrouter/internal/router"
	"github.com/sawpanic/arbrouter/internal/vwap"
)

// LegBook pairs a leg with the order-book snapshot its side trades
// against, so the sizer can reuse the same memoised snapshot preflight
// already fetched instead of re-querying C1.
type LegBook struct {
	Leg  router.Leg
	Book *orderbook.Book
}

// Result is the outcome of one adaptive-sizing pass.
type Result struct {
	Legs         []router.Leg
	CommonShares float64
}

// Size computes the common executable share count across all legs and
// returns a new leg-set with every leg's size set to it. qualityFactor
// scales the depth usage down as the opportunity's recent quality
// score degrades (spec.md section 4.8's quality score feeding into C4).
func Size(cfg config.SizingConfig, feeBps float64, curve *vwap.FeeCurve, slippageBps float64, legBooks []LegBook, qualityFactor float64) (Result, error) {
	if !cfg.AdaptiveSize {
		legs := make([]router.Leg, len(legBooks))
		for i, lb := range legBooks {
			legs[i] = lb.Leg
		}
		return Result{Legs: legs}, nil
	}
	if len(legBooks) == 0 {
		return Result{}, fmt.Errorf("sizing: no legs")
	}

	minShares := math.Inf(1)
	for _, lb := range legBooks {
		if lb.Book == nil {
			return Result{}, fmt.Errorf("sizing: missing order book for %s", lb.Leg.Key())
		}
		buy := lb.Leg.Side == router.SideBuy
		levels := lb.Book.Side(buy)
		shares := vwap.MaxSharesForLimit(levels, lb.Leg.LimitPrice, slippageBps, feeBps, curve, 0, buy)
		if shares < minShares {
			minShares = shares
		}
	}
	if math.IsInf(minShares, 1) || minShares <= 0 {
		return Result{}, fmt.Errorf("sizing: no executable depth at limit price")
	}

	common := minShares * cfg.DepthUsage * qualityFactor
	if common > cfg.MaxShares {
		common = cfg.MaxShares
	}
	if common < cfg.MinDepthShares {
		return Result{}, fmt.Errorf("sizing: insufficient depth (%.4f < min %.4f)", common, cfg.MinDepthShares)
	}

	legs := make([]router.Leg, len(legBooks))
	for i, lb := range legBooks {
		legs[i] = lb.Leg.WithSize(common)
	}
	return Result{Legs: legs, CommonShares: common}, nil
}

// ShrinkToNotionalCap scales every leg's size down proportionally if
// the aggregate notional exceeds maxNotional (spec.md section 4.3
// step 6, "notional cap").
func ShrinkToNotionalCap(legs []router.Leg, maxNotional float64) []router.Leg {
	if maxNotional <= 0 {
		return legs
	}
	total := 0.0
	for _, l := range legs {
		total += l.Size * l.LimitPrice
	}
	if total <= maxNotional {
		return legs
	}
	factor := maxNotional / total
	out := make([]router.Leg, len(legs))
	for i, l := range legs {
		out[i] = l.WithSize(l.Size * factor)
	}
	return out
}

// ShrinkToDepthRatio scales every leg's size down when the cross-leg
// depth ratio (min depth / max depth across legs) falls below the
// soft threshold (spec.md section 4.3 step 4).
func ShrinkToDepthRatio(legs []router.Leg, legBooks []LegBook, ratioSoft, minFactor float64) []router.Leg {
	if len(legBooks) == 0 {
		return legs
	}
	minDepth, maxDepth := math.Inf(1), 0.0
	for _, lb := range legBooks {
		if lb.Book == nil {
			continue
		}
		d := sideDepthUsd(lb.Book.Side(lb.Leg.Side == router.SideBuy))
		if d < minDepth {
			minDepth = d
		}
		if d > maxDepth {
			maxDepth = d
		}
	}
	if maxDepth <= 0 || math.IsInf(minDepth, 1) {
		return legs
	}
	ratio := minDepth / maxDepth
	if ratio >= ratioSoft {
		return legs
	}
	factor := ratio / ratioSoft
	if factor < minFactor {
		factor = minFactor
	}
	out := make([]router.Leg, len(legs))
	for i, l := range legs {
		out[i] = l.WithSize(l.Size * factor)
	}
	return out
}

func sideDepthUsd(levels []orderbook.Level) float64 {
	total := 0.0
	for _, lv := range levels {
		total += lv.Price * lv.Size
	}
	return total
}
