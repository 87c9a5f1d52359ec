// Package posttrade implements C7: after a group of legs fills, it
// re-fetches books to measure drift, flags penalised and
// spread-penalised legs, checks for residual open orders, and submits
// hedges through the venue adapters, priced from each leg's limit price
// plus or minus the hedge slippage (the venue's current best quote is
// not fetched for the hedge price). Grounded on the teacher's
// internal/application/guards.LateFillGuard post-signal timing/fill
// check, generalised from a single late-fill threshold to the router's
// multi-venue, multi-leg drift/hedge model.
package posttrade

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/orderbook"
	"github.com/sawpanic/arbrouter/internal/reputation"
	"github.com/sawpanic/arbrouter/internal/router"
	"github.com/sawpanic/arbrouter/internal/venue"
)

// LegFill pairs an executed leg with the order ids it was submitted
// under and the venue it filled on.
type LegFill struct {
	Leg      router.Leg
	OrderIDs []string
}

// DriftReport is one leg's measured post-trade drift and penalty flags.
type DriftReport struct {
	Leg               router.Leg
	DriftBps          float64
	Penalised         bool
	SpreadPenalised   bool
}

// Result is the outcome of one post-trade pass.
type Result struct {
	Reports    []DriftReport
	MaxDriftBps float64
	ResidualOpenOrders []string
	HedgeResults []router.ExecutionResult
}

// Monitor runs C7 against one completed execution group.
type Monitor struct {
	cfg            config.PostTradeConfig
	driftSpreadBps float64
	vwapDeviation  float64
	registry       *venue.Registry
	rep            *reputation.Reputation
}

// NewMonitor wires the post-trade monitor to its venue registry and C8.
// driftSpreadBps and vwapDeviationBps are the preflight engine's
// cross-leg deviation thresholds (legDriftSpreadBps, legVwapDeviationBps);
// spec.md section 4.7 reuses them here rather than defining a separate
// post-trade-local pair.
func NewMonitor(cfg config.PostTradeConfig, driftSpreadBps, vwapDeviationBps float64, registry *venue.Registry, rep *reputation.Reputation) *Monitor {
	return &Monitor{cfg: cfg, driftSpreadBps: driftSpreadBps, vwapDeviation: vwapDeviationBps, registry: registry, rep: rep}
}

// Run re-fetches each leg's book, computes drift, penalises outliers,
// checks for residual open orders, and submits hedges where warranted
// (spec.md section 4.7). fills must cover every leg that was actually
// submitted.
func (m *Monitor) Run(ctx context.Context, fills []LegFill) (Result, *router.RouterError) {
	reports := m.measureDrift(ctx, fills)
	m.applySpreadPenalty(reports)
	m.applyReputation(reports)

	residual, rerr := m.checkResidualOrders(ctx, fills)
	if rerr != nil {
		return Result{Reports: reports}, rerr
	}

	var hedges []router.ExecutionResult
	if m.cfg.HedgeOnFailure {
		if m.cfg.PostTradeHedge {
			hedges = append(hedges, m.hedgePenalised(ctx, reports)...)
		}
		if m.cfg.PostTradeNetHedge {
			hedges = append(hedges, m.hedgeNetResidual(ctx, fills)...)
		}
	}

	maxDrift := 0.0
	for _, r := range reports {
		if r.DriftBps > maxDrift {
			maxDrift = r.DriftBps
		}
	}

	result := Result{Reports: reports, MaxDriftBps: maxDrift, ResidualOpenOrders: residual, HedgeResults: hedges}

	if len(residual) > 0 {
		return result, &router.RouterError{Kind: router.ReasonPostTrade, Message: "open orders remain after fill check", HadSuccess: true}
	}
	return result, nil
}

func (m *Monitor) measureDrift(ctx context.Context, fills []LegFill) []DriftReport {
	reports := make([]DriftReport, 0, len(fills))
	for _, f := range fills {
		adapter := m.registry.Get(f.Leg.Venue)
		if adapter == nil {
			continue
		}
		raw, err := adapter.FetchBook(ctx, f.Leg.Venue, f.Leg.TokenID)
		if err != nil {
			log.Warn().Err(err).Str("leg", f.Leg.Key().String()).Msg("post-trade: book refetch failed")
			continue
		}
		book, err := orderbook.Normalize(raw, 10)
		if err != nil {
			continue
		}
		ref := book.BestAsk
		if f.Leg.Side == router.SideSell {
			ref = book.BestBid
		}
		drift := math.Abs(ref-f.Leg.LimitPrice) / f.Leg.LimitPrice * 10000
		reports = append(reports, DriftReport{
			Leg:       f.Leg,
			DriftBps:  drift,
			Penalised: drift >= m.cfg.PostTradeDriftBps,
		})
	}
	return reports
}

// applySpreadPenalty flags legs whose drift sits within
// legDriftSpreadBps/2 of the observed max once the max-min spread
// exceeds legDriftSpreadBps, and separately flags any leg whose drift
// alone exceeds legVwapDeviationBps (spec.md section 4.7).
func (m *Monitor) applySpreadPenalty(reports []DriftReport) {
	if len(reports) == 0 {
		return
	}
	maxDrift, minDrift := 0.0, math.Inf(1)
	for _, r := range reports {
		if r.DriftBps > maxDrift {
			maxDrift = r.DriftBps
		}
		if r.DriftBps < minDrift {
			minDrift = r.DriftBps
		}
	}
	spread := maxDrift - minDrift
	for i := range reports {
		if spread > m.driftSpreadBps && reports[i].DriftBps >= maxDrift-m.driftSpreadBps/2 {
			reports[i].SpreadPenalised = true
		}
		if m.vwapDeviation > 0 && reports[i].DriftBps >= m.vwapDeviation {
			reports[i].SpreadPenalised = true
		}
	}
}

func (m *Monitor) applyReputation(reports []DriftReport) {
	for _, r := range reports {
		if r.Penalised || r.SpreadPenalised {
			m.rep.OnPostTradeDrift(r.Leg.TokenID, r.Leg.Venue)
		}
		if r.SpreadPenalised {
			m.rep.OnSpreadBreach(r.Leg.Venue)
		}
	}
}

func (m *Monitor) checkResidualOrders(ctx context.Context, fills []LegFill) ([]string, *router.RouterError) {
	var residual []string
	for _, f := range fills {
		adapter := m.registry.Get(f.Leg.Venue)
		if adapter == nil || len(f.OrderIDs) == 0 {
			continue
		}
		stillOpen, err := adapter.CheckOpenOrders(ctx, f.OrderIDs)
		if err != nil {
			continue
		}
		if len(stillOpen) > 0 {
			if cerr := adapter.CancelOrders(ctx, stillOpen); cerr != nil {
				log.Warn().Err(cerr).Str("venue", string(f.Leg.Venue)).Msg("post-trade: residual cancel failed")
			}
			residual = append(residual, stillOpen...)
		}
	}
	return residual, nil
}

// hedgePenalised submits an opposite-side hedge for every penalised or
// spread-penalised leg, gated by hedgeMinEdgeBps (the leg's drift in
// bps is used as its hedge edge) unless hedgeForceOnPartial is set;
// hedgeMinProfitUsd is not consulted.
func (m *Monitor) hedgePenalised(ctx context.Context, reports []DriftReport) []router.ExecutionResult {
	var results []router.ExecutionResult
	for _, r := range reports {
		if !r.Penalised && !r.SpreadPenalised {
			continue
		}
		if m.cfg.HedgePredictOnly && r.Leg.Venue != router.VenuePredict {
			continue
		}
		edgeBps := r.DriftBps
		if !m.cfg.HedgeForceOnPartial && edgeBps < m.cfg.HedgeMinEdgeBps {
			continue
		}
		adapter := m.registry.Get(r.Leg.Venue)
		if adapter == nil {
			continue
		}
		res, err := adapter.HedgeLegs(ctx, []router.Leg{r.Leg}, m.cfg.HedgeSlippageBps)
		if err != nil {
			log.Warn().Err(err).Str("leg", r.Leg.Key().String()).Msg("post-trade: hedge failed")
			continue
		}
		results = append(results, res)
	}
	return results
}

// hedgeNetResidual nets exposure per token across every filled leg and
// submits one opposite-side hedge per token whose |net| clears
// netHedgeMinShares, sized to |net| capped at netHedgeMaxShares (spec.md section 4.7's
// "net-residual across legs for postTradeNetHedge"). It runs alongside
// hedgePenalised rather than instead of it: both are independently
// gated by their own enable flag (spec.md section 9's open question on
// their combination).
func (m *Monitor) hedgeNetResidual(ctx context.Context, fills []LegFill) []router.ExecutionResult {
	net := NetResidual(legsFrom(fills))

	var results []router.ExecutionResult
	for tokenID, signed := range net {
		size := math.Abs(signed)
		if size < m.cfg.NetHedgeMinShares {
			continue
		}
		if size > m.cfg.NetHedgeMaxShares {
			size = m.cfg.NetHedgeMaxShares
		}
		rep := representativeLeg(fills, tokenID, m.cfg.NetHedgePredictOnly)
		if rep == nil {
			continue
		}
		if !m.cfg.NetHedgeForce {
			edgeBps := math.Abs(signed-rep.Size) / rep.Size * 10000
			if rep.Size == 0 || edgeBps < m.cfg.HedgeMinEdgeBps {
				continue
			}
		}
		adapter := m.registry.Get(rep.Venue)
		if adapter == nil {
			continue
		}
		side := router.SideSell
		if signed < 0 {
			side = router.SideBuy
		}
		hedgeLeg := router.Leg{Venue: rep.Venue, TokenID: tokenID, Side: side, LimitPrice: rep.LimitPrice, Size: size}
		res, err := adapter.HedgeLegs(ctx, []router.Leg{hedgeLeg}, m.cfg.NetHedgeSlippageBps)
		if err != nil {
			log.Warn().Err(err).Str("token_id", tokenID).Msg("post-trade: net hedge failed")
			continue
		}
		results = append(results, res)
	}
	return results
}

func legsFrom(fills []LegFill) []router.Leg {
	legs := make([]router.Leg, len(fills))
	for i, f := range fills {
		legs[i] = f.Leg
	}
	return legs
}

// representativeLeg picks the leg whose venue anchors a token's net
// hedge order: the first matching leg, or the first on Predict when
// netHedgePredictOnly restricts hedging to that venue.
func representativeLeg(fills []LegFill, tokenID string, predictOnly bool) *router.Leg {
	for i := range fills {
		l := fills[i].Leg
		if l.TokenID != tokenID {
			continue
		}
		if predictOnly && l.Venue != router.VenuePredict {
			continue
		}
		return &l
	}
	return nil
}

// NetResidual computes the signed net exposure across legs for
// postTradeNetHedge, summing buy exposure positive and sell exposure
// negative per token.
func NetResidual(legs []router.Leg) map[string]float64 {
	net := make(map[string]float64)
	for _, l := range legs {
		signed := l.Size
		if l.Side == router.SideSell {
			signed = -signed
		}
		net[l.TokenID] += signed
	}
	return net
}
