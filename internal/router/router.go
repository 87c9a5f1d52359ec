package router

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// Deps is every collaborator Execute needs but that router.go cannot
// import directly without a cycle (preflight, sizing, chunk, posttrade
// all depend on this package). Supplied by internal/app's wiring.
type Deps struct {
	Config ExecConfig

	// Preflight runs C3 against the current leg-set and returns the
	// adjusted, sized legs plus the prevailing quality score.
	Preflight func(ctx context.Context, legs []Leg, quality float64) ([]Leg, float64, *RouterError)

	// RunChunks runs C6 over the preflighted leg-set: chunking,
	// per-chunk preflight, dispatch, and post-trade.
	RunChunks func(ctx context.Context, legs []Leg, mode Mode, opts ExecutionOptions) *RouterError

	OnAttemptSuccess func(legs []Leg)
	OnAttemptFailure func(legs []Leg, kind ErrorKind)

	IsDegraded    func() bool
	DegradeQuality func() float64
	CircuitHasFailures func() bool

	ConsistencyOverrideType  func() (string, bool)
	ConsistencyTemplateActive func() bool
	DegradeOrderType          func() (string, bool)

	// Score resolves a leg's live token/venue reputation scores for
	// SINGLE_LEG top-N composite ranking (spec.md section 4.5). nil
	// falls back to a neutral score for every leg.
	Score ScoreResolver
}

// ExecConfig is the subset of config.Config Execute consumes directly
// (retry geometry, order-type fallback, single-leg selection); kept
// as a flat struct here so router.go has no config package import,
// mirroring the rest of this package's dependency-free leaf style.
type ExecConfig struct {
	MaxRetries         int
	RetryDelayMs       int
	RetrySizeFactor    float64
	RetryAggressiveBps float64
	OrderTypeDefault   string
	OrderTypeFallback  []string
	MinQuality         float64
	SingleLegTopN      int
	FallbackModeFixed  string // "" means auto-derive per spec.md section 4.5
	UseFok             bool
	LimitOrders        bool
	BatchOrders        bool
}

// Execute runs the attempt loop (spec.md section 4.5): geometric
// size/price scaling per attempt, mode and order-type derivation, and
// termination on hadSuccess.
func Execute(ctx context.Context, legs []Leg, deps Deps) *RouterError {
	quality := 1.0
	var lastErr *RouterError

	for a := 0; a <= deps.Config.MaxRetries; a++ {
		scaled := scaleAttempt(legs, a, deps.Config)

		sized, q, rerr := deps.Preflight(ctx, scaled, quality)
		if rerr != nil {
			lastErr = rerr
			notifyFailure(deps, scaled, rerr.Kind)
			if rerr.HadSuccess {
				break
			}
			if !waitRetry(ctx, a, deps.Config) {
				break
			}
			continue
		}
		quality = q

		mode := deriveMode(a, deps)
		opts := deriveOptions(a, deps)

		if mode == ModeSingleLeg {
			sized = restrictToTopN(sized, deps.Config.SingleLegTopN, quality, deps.Score)
		}

		rerr = deps.RunChunks(ctx, sized, mode, opts)
		if rerr == nil {
			log.Info().Int("attempt", a).Msg("execute: attempt succeeded")
			notifySuccess(deps, sized)
			return nil
		}

		lastErr = rerr
		notifyFailure(deps, sized, rerr.Kind)
		if rerr.HadSuccess {
			log.Error().Int("attempt", a).Err(rerr).Msg("execute: partial submission, aborting retries")
			break
		}
		log.Warn().Int("attempt", a).Err(rerr).Msg("execute: attempt failed, retrying")
		if !waitRetry(ctx, a, deps.Config) {
			break
		}
	}
	if lastErr == nil {
		lastErr = NewGateErr(ReasonExecution, "execution exhausted retries with no recorded error")
	}
	return lastErr
}

// scaleAttempt applies the per-attempt geometric size/price scaling:
// sizeFactor^a on size, retryAggressiveBps*a on price in the attempt's
// favour direction, clamped to (0,1) (spec.md section 4.5). The
// controller's retry factor is not applied to the size.
func scaleAttempt(legs []Leg, a int, cfg ExecConfig) []Leg {
	if a == 0 {
		return legs
	}
	sizeFactor := math.Pow(cfg.RetrySizeFactor, float64(a))
	priceBumpBps := cfg.RetryAggressiveBps * float64(a)

	out := make([]Leg, len(legs))
	for i, l := range legs {
		size := l.Size * sizeFactor
		price := l.LimitPrice
		bump := price * priceBumpBps / 10000
		if l.Side == SideBuy {
			price += bump
		} else {
			price -= bump
		}
		out[i] = l.WithSize(size).WithPrice(price)
	}
	return out
}

// deriveMode picks AUTO/SEQUENTIAL/SINGLE_LEG per spec.md section 4.5:
// an explicit fixed mode always wins; otherwise attempt 0 is AUTO,
// later attempts escalate based on degrade state, quality, and
// whether the circuit has recent failures.
func deriveMode(a int, deps Deps) Mode {
	if deps.Config.FallbackModeFixed != "" {
		return Mode(deps.Config.FallbackModeFixed)
	}
	if a == 0 {
		return ModeAuto
	}
	degraded := deps.IsDegraded != nil && deps.IsDegraded()
	quality := 1.0
	if deps.DegradeQuality != nil {
		quality = deps.DegradeQuality()
	}
	if degraded {
		if quality >= deps.Config.MinQuality {
			return ModeSequential
		}
		return ModeSingleLeg
	}
	if a > 1 {
		return ModeSingleLeg
	}
	if deps.CircuitHasFailures != nil && deps.CircuitHasFailures() {
		return ModeSequential
	}
	return ModeAuto
}

// deriveOptions resolves order type and the useLimit/useFok/batch
// flags from the fallback chain spec.md section 4.5 specifies:
// consistency override -> consistency template -> degrade -> retry
// fallback sequence -> configured default.
func deriveOptions(a int, deps Deps) ExecutionOptions {
	opts := ExecutionOptions{
		UseFok:   deps.Config.UseFok,
		UseLimit: deps.Config.LimitOrders,
		Batch:    deps.Config.BatchOrders,
	}

	if deps.ConsistencyOverrideType != nil {
		if t, ok := deps.ConsistencyOverrideType(); ok {
			opts.OrderType = t
			return opts
		}
	}
	if deps.ConsistencyTemplateActive != nil && deps.ConsistencyTemplateActive() {
		opts.OrderType = "FOK"
		opts.UseFok = true
		opts.UseLimit = true
		return opts
	}
	if deps.DegradeOrderType != nil {
		if t, ok := deps.DegradeOrderType(); ok {
			opts.OrderType = t
			return opts
		}
	}
	if a > 0 && a-1 < len(deps.Config.OrderTypeFallback) {
		opts.OrderType = deps.Config.OrderTypeFallback[a-1]
		return opts
	}
	opts.OrderType = deps.Config.OrderTypeDefault
	return opts
}

// restrictToTopN scores every leg as its own single-leg group using
// live reputation scores from score (spec.md section 4.5's composite
// ranking) and keeps the configured top-N; a nil score resolver falls
// back to a neutral 100/100 score for every leg.
func restrictToTopN(legs []Leg, n int, quality float64, score ScoreResolver) []Leg {
	if n <= 0 || n >= len(legs) {
		return legs
	}
	scored := make([]LegQuality, len(legs))
	for i, l := range legs {
		tokenScore, venueScore := 100.0, 100.0
		if score != nil {
			tokenScore, venueScore = score(l)
		}
		scored[i] = LegQuality{Leg: l, TokenScore: tokenScore, VenueScore: venueScore, LiquidityScore: l.Size * l.LimitPrice, MarketQuality: quality}
	}
	return SelectTopN(scored, n)
}

func notifySuccess(deps Deps, legs []Leg) {
	if deps.OnAttemptSuccess != nil {
		deps.OnAttemptSuccess(legs)
	}
}

func notifyFailure(deps Deps, legs []Leg, kind ErrorKind) {
	if deps.OnAttemptFailure != nil {
		deps.OnAttemptFailure(legs, kind)
	}
}

func waitRetry(ctx context.Context, a int, cfg ExecConfig) bool {
	d := time.Duration(cfg.RetryDelayMs) * time.Millisecond
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
