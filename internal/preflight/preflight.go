// Package preflight implements C3, the router's pre-execution
// validation pipeline: gates, stability, adaptive sizing, depth and
// notional shrinks, consistency resampling, the main VWAP check with
// re-check, net-risk budgeting, and the min-notional/min-profit gate.
// Grounded on the teacher's internal/application.ScanPipeline.ScanUniverse,
// which chains independent pipeline stages (universe load,
// orthogonalization, scoring) and aborts on the first wrapped failure
// rather than collecting all of them.
package preflight

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/orderbook"
	"github.com/sawpanic/arbrouter/internal/reputation"
	"github.com/sawpanic/arbrouter/internal/router"
	"github.com/sawpanic/arbrouter/internal/sizing"
	"github.com/sawpanic/arbrouter/internal/vwap"
)

// FeeLookup resolves the per-venue fee curve used by VWAP and sizing.
type FeeLookup func(venue router.Venue) (feeBps float64, curve *vwap.FeeCurve)

// Result is the adjusted leg-set the dispatcher hands to C6 on success.
type Result struct {
	Legs    []router.Leg
	Quality float64
}

// Engine runs the eleven preflight stages against one opportunity.
type Engine struct {
	cfg     *config.Config
	cache   *orderbook.Cache
	rep     *reputation.Reputation
	fees    FeeLookup
	netRisk *NetRiskTracker

	// FailureExtraBps and FailureBumps are C9-controlled values that
	// widen tolerances and bump required profit after recent failures;
	// zero values behave as if no failures had occurred recently.
	FailureExtraBps   float64
	FailureProfitBps  float64
	FailureProfitUsd  float64
	FailureDepthUsd   float64
	FailureMinNotUsd  float64
}

// NewEngine wires the preflight engine to its C1/C8 collaborators.
func NewEngine(cfg *config.Config, cache *orderbook.Cache, rep *reputation.Reputation, fees FeeLookup, netRisk *NetRiskTracker) *Engine {
	return &Engine{cfg: cfg, cache: cache, rep: rep, fees: fees, netRisk: netRisk}
}

// legSample is one leg's current book, best price, and VWAP fit,
// recomputed on every sample taken during stability/consistency/recheck.
type legSample struct {
	leg      router.Leg
	book     *orderbook.Book
	best     float64
	est      vwap.Estimate
	hasEst   bool
	levels   int
}

func (e *Engine) qualityFactor(quality float64) float64 {
	if quality <= 0 {
		return 1
	}
	return quality
}

// Run executes stages 1-11 in order. quality is C9's current quality
// score, which C9 keeps within [autoTuneMinFactor, autoTuneMaxFactor];
// 1 applies no extra shrink, and a value <= 0 is treated as 1.
func (e *Engine) Run(ctx context.Context, legs []router.Leg, quality float64) (Result, *router.RouterError) {
	// Stage 1: gates.
	if rerr := e.rep.AssertGates(legs); rerr != nil {
		return Result{}, rerr
	}

	qf := e.qualityFactor(quality)

	// Stage 2: stability.
	if rerr := e.stability(ctx, legs, qf); rerr != nil {
		return Result{}, rerr
	}

	legBooks, rerr := e.fetchAll(ctx, legs)
	if rerr != nil {
		return Result{}, rerr
	}

	// Stage 3: adaptive sizing.
	if e.cfg.Sizing.AdaptiveSize {
		sized, err := e.sizeAll(legBooks, qf)
		if err != nil {
			return Result{}, router.RouterErrorFrom(router.ReasonPreflight, false, err)
		}
		legs = sized.Legs
		legBooks = rebind(legBooks, legs)
	}

	// Stage 4: depth-ratio shrink.
	legs = sizing.ShrinkToDepthRatio(legs, legBooks, e.cfg.Preflight.LegDepthRatioSoft, e.cfg.Preflight.LegDepthRatioShrinkMinFactor)
	legBooks = rebind(legBooks, legs)

	// Stage 5: usage cap.
	legs = e.shrinkToUsageCap(legs, legBooks, qf)
	legBooks = rebind(legBooks, legs)

	// Stage 6: notional cap.
	legs = sizing.ShrinkToNotionalCap(legs, e.cfg.Sizing.MaxNotional)
	legBooks = rebind(legBooks, legs)

	// Stage 7: consistency.
	if rerr := e.consistency(ctx, legs, qf); rerr != nil {
		return Result{}, rerr
	}

	// Stage 8/9: main VWAP check with re-check.
	samples, rerr := e.vwapCheck(ctx, legBooks, qf)
	if rerr != nil {
		return Result{}, rerr
	}

	// Stage 10: net-risk budget.
	if !e.netRisk.Check(legs, quality) {
		return Result{}, router.NewGateErr(router.ReasonPreflight, "net risk budget exceeded")
	}

	// Stage 11: min notional + min profit.
	if rerr := e.profitCheck(legs, samples, qf); rerr != nil {
		return Result{}, rerr
	}

	return Result{Legs: legs, Quality: quality}, nil
}

func (e *Engine) fetchAll(ctx context.Context, legs []router.Leg) ([]sizing.LegBook, *router.RouterError) {
	out := make([]sizing.LegBook, len(legs))
	for i, l := range legs {
		book := e.cache.Fetch(ctx, l.Venue, l.TokenID)
		if book == nil {
			return nil, router.RouterErrorFrom(router.ReasonPreflight, false, fmt.Errorf("missing order book for %s", l.Key()))
		}
		out[i] = sizing.LegBook{Leg: l, Book: book}
	}
	return out, nil
}

func rebind(legBooks []sizing.LegBook, legs []router.Leg) []sizing.LegBook {
	out := make([]sizing.LegBook, len(legs))
	for i, l := range legs {
		b := legBooks[i].Book
		if i < len(legBooks) && legBooks[i].Leg.Key() != l.Key() {
			for _, lb := range legBooks {
				if lb.Leg.Key() == l.Key() {
					b = lb.Book
					break
				}
			}
		}
		out[i] = sizing.LegBook{Leg: l, Book: b}
	}
	return out
}

func (e *Engine) sizeAll(legBooks []sizing.LegBook, qf float64) (sizing.Result, error) {
	if len(legBooks) == 0 {
		return sizing.Result{}, fmt.Errorf("no legs")
	}
	feeBps, curve := e.fees(legBooks[0].Leg.Venue)
	slip := e.dynamicSlippage(qf)
	return sizing.Size(e.cfg.Sizing, feeBps, curve, slip, legBooks, qf)
}

func (e *Engine) dynamicSlippage(qf float64) float64 {
	s := e.cfg.Preflight.SlippageBps*qf + e.FailureExtraBps
	if s < e.cfg.Preflight.SlippageFloorBps {
		s = e.cfg.Preflight.SlippageFloorBps
	}
	if s > e.cfg.Preflight.SlippageCeilBps {
		s = e.cfg.Preflight.SlippageCeilBps
	}
	return s
}

// shrinkToUsageCap caps each leg to legDepthUsageMax*qf of its
// side-depth in shares, scaling the whole set proportionally by the
// tightest leg so the arbitrage stays balanced (spec.md section 4.3
// step 5).
func (e *Engine) shrinkToUsageCap(legs []router.Leg, legBooks []sizing.LegBook, qf float64) []router.Leg {
	usageCap := e.cfg.Preflight.LegDepthUsageMax * qf
	factor := 1.0
	for _, lb := range legBooks {
		if lb.Book == nil || lb.Leg.Size <= 0 {
			continue
		}
		levels := lb.Book.Side(lb.Leg.Side == router.SideBuy)
		depth := sideShares(levels)
		if depth <= 0 {
			continue
		}
		usage := lb.Leg.Size / depth
		if usage > usageCap {
			f := usageCap / usage
			if f < factor {
				factor = f
			}
		}
	}
	if factor >= 1 {
		return legs
	}
	out := make([]router.Leg, len(legs))
	for i, l := range legs {
		out[i] = l.WithSize(l.Size * factor)
	}
	return out
}

func sideShares(levels []orderbook.Level) float64 {
	total := 0.0
	for _, lv := range levels {
		total += lv.Size
	}
	return total
}

// stability samples best bid/ask stabilitySamples times with an
// inter-sample delay, failing if any leg's price moves more than
// stabilityBps*qf between the first and any later sample (spec.md
// section 4.3 step 2). The sample count and interval are widened when
// the circuit has failed recently, approximated here by FailureExtraBps
// being non-zero.
func (e *Engine) stability(ctx context.Context, legs []router.Leg, qf float64) *router.RouterError {
	n := e.cfg.Preflight.StabilitySamples
	interval := time.Duration(e.cfg.Preflight.StabilityIntervalMs) * time.Millisecond
	if e.FailureExtraBps > 0 {
		n++
		interval = interval * 3 / 2
	}

	first := make(map[router.LegKey]float64, len(legs))
	for i := 0; i < n; i++ {
		for _, l := range legs {
			e.cache.Invalidate(l.Venue, l.TokenID)
			book := e.cache.Fetch(ctx, l.Venue, l.TokenID)
			if book == nil {
				return router.RouterErrorFrom(router.ReasonPreflight, false, fmt.Errorf("missing order book for %s", l.Key()))
			}
			p := bestOfSide(book, l.Side)
			if i == 0 {
				first[l.Key()] = p
				continue
			}
			p0 := first[l.Key()]
			if p0 == 0 {
				continue
			}
			devBps := math.Abs(p-p0) / p0 * 10000
			if devBps > e.cfg.Preflight.StabilityBps*qf {
				return router.NewGateErr(router.ReasonPreflight, "stability breach on %s: %.2fbps", l.Key(), devBps)
			}
		}
		if i < n-1 {
			if err := sleepCtx(ctx, interval); err != nil {
				return router.RouterErrorFrom(router.ReasonPreflight, false, err)
			}
		}
	}
	return nil
}

func bestOfSide(book *orderbook.Book, side router.Side) float64 {
	if side == router.SideBuy {
		return book.BestAsk
	}
	return book.BestBid
}

// consistency repeats the VWAP/depth-ratio computation
// consistencySamples times, failing if the per-leg VWAP deviation or
// the cross-leg depth ratio drifts more than the configured bps
// between samples (spec.md section 4.3 step 7).
func (e *Engine) consistency(ctx context.Context, legs []router.Leg, qf float64) *router.RouterError {
	k := e.cfg.Preflight.ConsistencySamples
	if k < 2 {
		k = 2
	}
	interval := time.Duration(e.cfg.Preflight.ConsistencyIntervalMs) * time.Millisecond

	var prevDev map[router.LegKey]float64
	var prevRatio float64
	haveRatio := false

	for i := 0; i < k; i++ {
		legBooks, rerr := e.fetchFresh(ctx, legs)
		if rerr != nil {
			return rerr
		}

		dev := make(map[router.LegKey]float64, len(legs))
		minDepth, maxDepth := math.Inf(1), 0.0
		for _, lb := range legBooks {
			feeBps, curve := e.fees(lb.Leg.Venue)
			buy := lb.Leg.Side == router.SideBuy
			levels := lb.Book.Side(buy)
			est, ok := vwap.Fill(levels, lb.Leg.Size, feeBps, curve, e.dynamicSlippage(qf), buy)
			if ok {
				dev[lb.Leg.Key()] = math.Abs(est.AvgAllIn-lb.Leg.LimitPrice) / lb.Leg.LimitPrice * 10000
			}
			d := sideDepthUsd(levels)
			if d < minDepth {
				minDepth = d
			}
			if d > maxDepth {
				maxDepth = d
			}
		}
		ratio := 1.0
		if maxDepth > 0 && !math.IsInf(minDepth, 1) {
			ratio = minDepth / maxDepth
		}

		if prevDev != nil {
			for key, d := range dev {
				pd, ok := prevDev[key]
				if !ok {
					continue
				}
				if math.Abs(d-pd) > e.cfg.Preflight.ConsistencyVwapDriftBps {
					return router.NewGateErr(router.ReasonPreflight, "consistency VWAP drift on %s", key)
				}
				if d > e.cfg.Preflight.ConsistencyVwapBps*qf {
					return router.NewGateErr(router.ReasonPreflight, "consistency VWAP deviation on %s", key)
				}
			}
		}
		if haveRatio && math.Abs(ratio-prevRatio) > e.cfg.Preflight.ConsistencyDepthRatioDrift {
			return router.NewGateErr(router.ReasonPreflight, "consistency depth-ratio drift")
		}
		if ratio < e.cfg.Preflight.ConsistencyDepthRatioMin {
			return router.NewGateErr(router.ReasonPreflight, "consistency depth-ratio below minimum")
		}

		prevDev = dev
		prevRatio = ratio
		haveRatio = true

		if i < k-1 {
			if err := sleepCtx(ctx, interval); err != nil {
				return router.RouterErrorFrom(router.ReasonPreflight, false, err)
			}
		}
	}
	return nil
}

func (e *Engine) fetchFresh(ctx context.Context, legs []router.Leg) ([]sizing.LegBook, *router.RouterError) {
	out := make([]sizing.LegBook, len(legs))
	for i, l := range legs {
		e.cache.Invalidate(l.Venue, l.TokenID)
		book := e.cache.Fetch(ctx, l.Venue, l.TokenID)
		if book == nil {
			return nil, router.RouterErrorFrom(router.ReasonPreflight, false, fmt.Errorf("missing order book for %s", l.Key()))
		}
		out[i] = sizing.LegBook{Leg: l, Book: book}
	}
	return out, nil
}

func sideDepthUsd(levels []orderbook.Level) float64 {
	total := 0.0
	for _, lv := range levels {
		total += lv.Price * lv.Size
	}
	return total
}

// vwapCheck runs the main VWAP check (stage 8) and, if the observed
// deviation or drift crosses the re-check trigger, waits recheckMs and
// re-runs it once against a fresh snapshot (stage 9).
func (e *Engine) vwapCheck(ctx context.Context, legBooks []sizing.LegBook, qf float64) ([]legSample, *router.RouterError) {
	samples, maxDev, rerr := e.vwapCheckOnce(legBooks, qf)
	if rerr != nil {
		return nil, rerr
	}
	maxDrift := 0.0
	for _, s := range samples {
		if d := math.Abs(s.best-s.leg.LimitPrice) / s.leg.LimitPrice * 10000; d > maxDrift {
			maxDrift = d
		}
	}
	if maxDev < e.cfg.Preflight.DeviationRecheckTriggerBps && maxDrift < e.cfg.Preflight.DriftRecheckTriggerBps {
		return samples, nil
	}

	if err := sleepCtx(ctx, time.Duration(e.cfg.Preflight.RecheckMs)*time.Millisecond); err != nil {
		return nil, router.RouterErrorFrom(router.ReasonPreflight, false, err)
	}
	legs := make([]router.Leg, len(legBooks))
	for i, lb := range legBooks {
		legs[i] = lb.Leg
	}
	fresh, rerr := e.fetchFresh(ctx, legs)
	if rerr != nil {
		return nil, rerr
	}
	samples, _, rerr = e.vwapCheckOnce(fresh, qf)
	return samples, rerr
}

func (e *Engine) vwapCheckOnce(legBooks []sizing.LegBook, qf float64) ([]legSample, float64, *router.RouterError) {
	samples := make([]legSample, len(legBooks))
	maxDevBps := 0.0
	minDevBps, maxDevBps2 := math.Inf(1), 0.0
	minDriftBps, maxDriftBps := math.Inf(1), 0.0

	for i, lb := range legBooks {
		feeBps, curve := e.fees(lb.Leg.Venue)
		buy := lb.Leg.Side == router.SideBuy
		levels := lb.Book.Side(buy)
		slip := e.dynamicSlippage(qf)

		est, ok := vwap.Fill(levels, lb.Leg.Size, feeBps, curve, slip, buy)
		best := bestOfSide(lb.Book, lb.Leg.Side)
		used := 0
		for need := lb.Leg.Size; used < len(levels) && need > 0; used++ {
			need -= levels[used].Size
		}
		s := legSample{leg: lb.Leg, book: lb.Book, best: best, est: est, hasEst: ok, levels: used}
		samples[i] = s

		driftBps := math.Abs(best-lb.Leg.LimitPrice) / lb.Leg.LimitPrice * 10000
		if driftBps > e.cfg.Preflight.PriceDriftBps {
			return nil, 0, router.NewGateErr(router.ReasonPreflight, "price drift on %s", lb.Leg.Key())
		}
		if driftBps < minDriftBps {
			minDriftBps = driftBps
		}
		if driftBps > maxDriftBps {
			maxDriftBps = driftBps
		}

		if !ok {
			continue
		}
		if s.levels > e.cfg.Preflight.MaxVwapLevels {
			return nil, 0, router.NewGateErr(router.ReasonPreflight, "VWAP levels exceeded on %s", lb.Leg.Key())
		}
		devBps := math.Abs(est.AvgAllIn-lb.Leg.LimitPrice) / lb.Leg.LimitPrice * 10000
		if devBps > maxDevBps {
			maxDevBps = devBps
		}
		if devBps < minDevBps {
			minDevBps = devBps
		}
		if devBps > maxDevBps2 {
			maxDevBps2 = devBps
		}
		devCap := e.dynamicSlippage(qf)
		if devBps > devCap {
			return nil, 0, router.NewGateErr(router.ReasonPreflight, "VWAP deviation on %s: %.2fbps > %.2fbps", lb.Leg.Key(), devBps, devCap)
		}
	}

	if !math.IsInf(minDevBps, 1) {
		spread := maxDevBps2 - minDevBps
		if spread > e.cfg.Preflight.LegDeviationSpreadBps {
			return nil, 0, router.NewGateErr(router.ReasonPreflight, "cross-leg deviation spread exceeded: %.2fbps", spread)
		}
	}
	if !math.IsInf(minDriftBps, 1) {
		driftSpread := maxDriftBps - minDriftBps
		if driftSpread > e.cfg.Preflight.LegDriftSpreadBps {
			return nil, 0, router.NewGateErr(router.ReasonPreflight, "cross-leg drift spread exceeded: %.2fbps", driftSpread)
		}
	}
	return samples, maxDevBps, nil
}

// profitCheck implements stage 11: compute expected profit from the
// VWAP samples (or a per-share estimate when a leg lacks a fit),
// compare against the required profit and minimum notional.
func (e *Engine) profitCheck(legs []router.Leg, samples []legSample, qf float64) *router.RouterError {
	byKey := make(map[router.LegKey]legSample, len(samples))
	for _, s := range samples {
		byKey[s.leg.Key()] = s
	}

	notional := 0.0
	profit := 0.0
	missingVwap := false

	for _, l := range legs {
		notional += l.Size * l.LimitPrice
		s, ok := byKey[l.Key()]
		var allIn float64
		if ok && s.hasEst {
			allIn = s.est.AvgAllIn
		} else {
			missingVwap = true
			feeBps, curve := e.fees(l.Venue)
			buy := l.Side == router.SideBuy
			fee := l.LimitPrice * feeBps / 10000
			if curve != nil {
				fee += l.LimitPrice * curve.Rate * math.Pow(math.Abs(l.LimitPrice-0.5), curve.Exponent)
			}
			slip := l.LimitPrice * e.dynamicSlippage(qf) / 10000
			if buy {
				allIn = l.LimitPrice + fee + slip
			} else {
				allIn = l.LimitPrice - fee - slip
			}
		}
		if l.Side == router.SideBuy {
			profit -= allIn * l.Size
		} else {
			profit += allIn * l.Size
		}
	}
	profit -= e.cfg.Profit.TransferCost

	qualityMult := 1 + (1-qf)*e.cfg.Profit.QualityProfitMult
	if qualityMult > e.cfg.Profit.QualityProfitMax {
		qualityMult = e.cfg.Profit.QualityProfitMax
	}

	required := e.cfg.Profit.MinProfitUsd + e.FailureProfitUsd +
		notional*(e.cfg.Profit.MinProfitBps+e.FailureProfitBps)/10000 +
		notional*e.cfg.Profit.ImpactBps*e.cfg.Profit.MinProfitImpactMult/10000
	if missingVwap {
		required += notional * e.cfg.Preflight.MissingVwapPenaltyBps / 10000
	}
	required *= qualityMult

	requiredNotional := e.cfg.Profit.MinNotionalUsd + e.FailureMinNotUsd

	if profit < required {
		log.Debug().Float64("profit", profit).Float64("required", required).Msg("preflight: profit below required")
		return router.NewGateErr(router.ReasonPreflight, "profit %.4f below required %.4f", profit, required)
	}
	if notional < requiredNotional {
		return router.NewGateErr(router.ReasonPreflight, "notional %.4f below required minimum %.4f", notional, requiredNotional)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
