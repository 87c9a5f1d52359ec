// Package app wires C1-C10 together into the single entry point
// cmd/arbrouter drives: one Reputation, one Controller, and one
// telemetry Registry/Persister live for the process; every call to
// ExecuteOpportunity builds a fresh per-attempt orderbook.Cache and
// preflight.Engine, the way spec.md section 4.1 scopes the book cache
// to one execute() call. Grounded on the teacher's
// internal/application package, which plays the same "own every
// collaborator, expose one method the CLI calls" role for its scan
// pipeline.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/arbrouter/internal/chunk"
	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/controller"
	"github.com/sawpanic/arbrouter/internal/orderbook"
	"github.com/sawpanic/arbrouter/internal/posttrade"
	"github.com/sawpanic/arbrouter/internal/preflight"
	"github.com/sawpanic/arbrouter/internal/reputation"
	"github.com/sawpanic/arbrouter/internal/router"
	"github.com/sawpanic/arbrouter/internal/telemetry"
	"github.com/sawpanic/arbrouter/internal/venue"
)

// App owns the long-lived router state and exposes ExecuteOpportunity
// as the single entry point the CLI and any future API surface call.
type App struct {
	cfg       *config.Config
	rep       *reputation.Reputation
	ctrl      *controller.Controller
	registry  *venue.Registry
	metrics   *telemetry.Registry
	persister *telemetry.Persister
	fees      preflight.FeeLookup
}

// New builds an App from a populated config and venue registry. fees
// resolves each venue's maker/taker fee curve for VWAP and sizing.
func New(cfg *config.Config, registry *venue.Registry, fees preflight.FeeLookup) *App {
	rep := reputation.New(cfg)
	ctrl := controller.New(cfg)

	if snap, ok := telemetry.Restore(cfg.Persistence.StatePath); ok {
		ctrl.Restore(snap.Controller)
		rep.RestoreScores(snap.TokenScores, snap.VenueScores, snap.BlockedTokens, snap.BlockedVenues)
	}

	metrics := telemetry.NewRegistry()
	a := &App{cfg: cfg, rep: rep, ctrl: ctrl, registry: registry, metrics: metrics, fees: fees}
	a.persister = telemetry.NewPersister(cfg.Persistence, metrics, a.stateSnapshot)
	return a
}

func (a *App) stateSnapshot() telemetry.StateSnapshot {
	return telemetry.StateSnapshot{
		Controller:    a.ctrl.Snapshot(),
		TokenScores:   a.rep.AllTokenScores(),
		VenueScores:   a.rep.AllVenueScores(),
		BlockedTokens: a.rep.AllBlockedTokens(),
		BlockedVenues: a.rep.AllBlockedVenues(),
	}
}

// Healthy reports whether the router is fit to accept new attempts,
// for httpserver's /health endpoint.
func (a *App) Healthy() (bool, string) {
	if a.rep.Circuit().IsOpen() {
		return false, "circuit open"
	}
	if until := a.rep.GlobalCooldownUntil(); !until.IsZero() && time.Now().Before(until) {
		return false, "global cooldown active"
	}
	return true, "ok"
}

// Metrics exposes the telemetry registry (its Snapshot and LogSummary);
// cmd/arbrouter does not call it.
func (a *App) Metrics() *telemetry.Registry { return a.metrics }

// ExecuteOpportunity runs the full C1-C10 pipeline against one
// arbitrage opportunity's legs.
func (a *App) ExecuteOpportunity(ctx context.Context, legs []router.Leg) *router.RouterError {
	cache := orderbook.New(a.registry, a.cfg.Sizing.DepthLevels)
	netRisk := preflight.NewNetRiskTracker(a.cfg.NetRisk)
	engine := preflight.NewEngine(a.cfg, cache, a.rep, a.fees, netRisk)

	monitor := posttrade.NewMonitor(a.cfg.PostTrade, a.cfg.Preflight.LegDriftSpreadBps, a.cfg.Preflight.LegVwapDeviationBps, a.registry, a.rep)
	scheduler := chunk.NewScheduler(a.cfg.Chunk, a.ctrl, a.rep, monitor, a.cfg.Circuit.AbortPostTradeDriftBps, a.cfg.Circuit.AbortCooldownMs)

	resolve := func(v router.Venue) router.VenueGroupExecutor {
		ad := a.registry.Get(v)
		if ad == nil {
			return nil
		}
		return ad
	}

	scoreResolver := func(l router.Leg) (float64, float64) {
		return a.rep.TokenScore(l.TokenID), a.rep.VenueScore(l.Venue)
	}

	applyFailureBumps := func() {
		snap := a.ctrl.Snapshot()
		extra := snap.SlippageBps - a.cfg.Preflight.SlippageBps
		if extra < 0 {
			extra = 0
		}
		engine.FailureExtraBps = extra
		engine.FailureProfitBps = snap.FailureBumpProfitBps
		engine.FailureProfitUsd = snap.FailureBumpProfitUsd
		engine.FailureDepthUsd = snap.FailureBumpDepthUsd
		engine.FailureMinNotUsd = snap.FailureBumpMinNotional
	}

	preflightFn := func(ctx context.Context, attemptLegs []router.Leg, quality float64) ([]router.Leg, float64, *router.RouterError) {
		applyFailureBumps()
		res, rerr := engine.Run(ctx, attemptLegs, quality)
		if rerr != nil {
			a.metrics.RecordPreflightStage("run", "fail")
			return nil, quality, rerr
		}
		a.metrics.RecordPreflightStage("run", "pass")
		return res.Legs, res.Quality, nil
	}

	runChunks := func(ctx context.Context, sized []router.Leg, mode router.Mode, opts router.ExecutionOptions) *router.RouterError {
		chunkPreflight := func(ctx context.Context, chunkLegs []router.Leg) ([]router.Leg, *router.RouterError) {
			res, rerr := engine.Run(ctx, chunkLegs, a.ctrl.Snapshot().Quality)
			if rerr != nil {
				return nil, rerr
			}
			return res.Legs, nil
		}
		dispatchFn := func(ctx context.Context, chunkLegs []router.Leg) ([]posttrade.LegFill, *router.RouterError) {
			groups := router.GroupLegs(chunkLegs, scoreResolver)
			dres, rerr := router.Dispatch(ctx, mode, groups, opts, resolve, a.cfg.PostTrade.HedgeSlippageBps, a.cfg.PostTrade.HedgeForceOnPartial)
			if rerr != nil {
				if dres.HadSuccess {
					netRisk.Commit(chunkLegs)
				}
				return nil, rerr
			}
			netRisk.Commit(chunkLegs)
			return legFillsFrom(dres.Succeeded), nil
		}
		return scheduler.Run(ctx, sized, chunkPreflight, dispatchFn)
	}

	deps := router.Deps{
		Config: execConfigFrom(a.cfg),

		Preflight: preflightFn,
		RunChunks: runChunks,

		OnAttemptSuccess: func(successLegs []router.Leg) {
			a.ctrl.OnSuccess()
			a.rep.OnAttemptSuccess()
			netRisk.OnSuccess()
			for _, l := range successLegs {
				a.rep.OnTokenSuccess(l.TokenID)
				a.rep.OnVenueSuccess(l.Venue)
			}
			a.metrics.RecordAttempt("success", "total", 0)
			a.metrics.SetQuality(a.ctrl.Snapshot().Quality)
			a.metrics.SetCircuitState(a.rep.Circuit().State())
			a.persister.MaybeFlush()
		},
		OnAttemptFailure: func(failedLegs []router.Leg, kind router.ErrorKind) {
			a.ctrl.OnFailure(kind)
			a.rep.OnAttemptFailure()
			netRisk.OnFailure()
			for _, l := range failedLegs {
				a.rep.OnTokenFailure(l.TokenID)
				a.rep.OnVenueFailure(l.Venue)
			}
			a.metrics.RecordFailure(kind)
			a.metrics.RecordAttempt("failure", "total", 0)
			a.metrics.SetQuality(a.ctrl.Snapshot().Quality)
			a.metrics.SetCircuitState(a.rep.Circuit().State())
			a.persister.MaybeFlush()
		},

		IsDegraded:     a.rep.IsDegraded,
		DegradeQuality: func() float64 { return a.ctrl.Snapshot().Quality },
		// Reports true only while the breaker is not closed; failures
		// recorded while it is still closed do not count.
		CircuitHasFailures: func() bool {
			return a.rep.Circuit().State() != "closed"
		},

		ConsistencyOverrideType: func() (string, bool) {
			if a.rep.ConsistencyOverrideActive() {
				return a.cfg.Consistency.OrderType, true
			}
			return "", false
		},
		ConsistencyTemplateActive: a.rep.ConsistencyTemplateActive,
		DegradeOrderType: func() (string, bool) {
			if a.rep.IsDegraded() && a.cfg.Degrade.OrderType != "" {
				return a.cfg.Degrade.OrderType, true
			}
			return "", false
		},

		Score: scoreResolver,
	}

	if !a.rep.Circuit().Allow() {
		return router.NewGateErr(router.ReasonPreflight, "circuit breaker rejected attempt")
	}
	rerr := router.Execute(ctx, legs, deps)
	if rerr != nil {
		a.rep.Circuit().RecordFailure()
		log.Warn().Err(rerr).Msg("app: opportunity execution failed")
		return rerr
	}
	a.rep.Circuit().RecordSuccess()
	return nil
}

func execConfigFrom(cfg *config.Config) router.ExecConfig {
	fallbackMode := ""
	if cfg.Execution.FallbackMode != "AUTO" {
		fallbackMode = cfg.Execution.FallbackMode
	}
	return router.ExecConfig{
		MaxRetries:         cfg.Retry.MaxRetries,
		RetryDelayMs:       cfg.Retry.RetryDelayMs,
		RetrySizeFactor:    cfg.Retry.RetrySizeFactor,
		RetryAggressiveBps: cfg.Execution.RetryAggressiveBps,
		OrderTypeDefault:   cfg.Execution.OrderType,
		OrderTypeFallback:  cfg.Execution.OrderTypeFallback,
		MinQuality:         cfg.Circuit.GlobalMinQuality,
		SingleLegTopN:      cfg.Execution.SingleLegTopN,
		FallbackModeFixed:  fallbackMode,
		UseFok:             cfg.Execution.UseFok,
		LimitOrders:        cfg.Execution.LimitOrders,
		BatchOrders:        cfg.Execution.BatchOrders,
	}
}

func legFillsFrom(results []router.ExecutionResult) []posttrade.LegFill {
	var fills []posttrade.LegFill
	for _, res := range results {
		for i, l := range res.Legs {
			fill := posttrade.LegFill{Leg: l}
			if i < len(res.OrderIDs) {
				fill.OrderIDs = []string{res.OrderIDs[i]}
			}
			fills = append(fills, fill)
		}
	}
	return fills
}
