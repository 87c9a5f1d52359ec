// Package controller implements C9, the router's self-tuning feedback
// loops: chunk factor/delay, retry factor, dynamic slippage/stability,
// retry delay, the four failure-bump scalars, the depth-ratio penalty,
// and the master quality score. Grounded on the teacher's
// internal/infrastructure/providers.RateLimiter budget/backoff
// bookkeeping, generalised from one provider's request budget to a
// family of independently bounded scalars that all move toward a tight
// or relaxed bound on every attempt outcome.
package controller

import (
	"sync"

	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/router"
)

// scalar is one bounded, two-speed tunable: it steps toward Max on
// success and toward Min on failure, at independent rates.
type scalar struct {
	value              float64
	min, max           float64
	stepUp, stepDown   float64
	multiplicativeDown bool
}

func newScalar(value, min, max, stepUp, stepDown float64, multiplicativeDown bool) *scalar {
	return &scalar{value: value, min: min, max: max, stepUp: stepUp, stepDown: stepDown, multiplicativeDown: multiplicativeDown}
}

func (s *scalar) onSuccess() {
	s.value += s.stepUp
	s.clamp()
}

func (s *scalar) onFailure() {
	if s.multiplicativeDown {
		s.value *= s.stepDown
	} else {
		s.value -= s.stepDown
	}
	s.clamp()
}

func (s *scalar) clamp() {
	if s.value < s.min {
		s.value = s.min
	}
	if s.value > s.max {
		s.value = s.max
	}
}

// inverseScalar is the mirror shape used by bps thresholds that widen
// on failure and tighten on success (slippage, stability, retry
// delay, failure bumps): it moves toward Max on failure, Min on success.
type inverseScalar struct {
	value            float64
	min, max         float64
	stepUp, stepDown float64
}

func newInverseScalar(value, min, max, stepUp, stepDown float64) *inverseScalar {
	return &inverseScalar{value: value, min: min, max: max, stepUp: stepUp, stepDown: stepDown}
}

func (s *inverseScalar) onFailure() {
	s.value += s.stepUp
	s.clamp()
}

func (s *inverseScalar) onSuccess() {
	s.value -= s.stepDown
	s.clamp()
}

func (s *inverseScalar) clamp() {
	if s.value < s.min {
		s.value = s.min
	}
	if s.value > s.max {
		s.value = s.max
	}
}

// Controller owns every C9 scalar for one running router instance.
type Controller struct {
	mu sync.Mutex

	chunkFactor *scalar
	chunkDelay  *scalar

	retryFactor *scalar

	slippage   *inverseScalar
	stability  *inverseScalar
	retryDelay *inverseScalar

	failureBumpProfitBps   *inverseScalar
	failureBumpProfitUsd   *inverseScalar
	failureBumpDepthUsd    *inverseScalar
	failureBumpMinNotional *inverseScalar
	bumpRecoverFactor      float64

	depthRatioPenalty    float64
	depthRatioPenaltyUp  float64
	depthRatioPenaltyDown float64
	depthRatioPenaltyMax float64

	quality       float64
	qualityUp     float64
	qualityDown   float64
	qualityMin    float64
	qualityMax    float64
	reasonWeights map[router.ErrorKind]float64
}

// New builds a Controller with every scalar at its starting value:
// chunk/retry factors start at their max (full aggression), bps
// widenings start at their base config value.
func New(cfg *config.Config) *Controller {
	c := &Controller{
		chunkFactor: newScalar(cfg.Chunk.FactorMax, cfg.Chunk.FactorMin, cfg.Chunk.FactorMax, cfg.Chunk.FactorUp, cfg.Chunk.FactorDown, true),
		chunkDelay:  newScalar(float64(cfg.Chunk.DelayMinMs), float64(cfg.Chunk.DelayMinMs), float64(cfg.Chunk.DelayMaxMs), -float64(cfg.Chunk.DelayDownMs), -float64(cfg.Chunk.DelayUpMs), false),

		retryFactor: newScalar(cfg.Retry.RetryFactorMax, cfg.Retry.RetryFactorMin, cfg.Retry.RetryFactorMax, cfg.Retry.RetryFactorUp, cfg.Retry.RetryFactorDown, false),

		slippage:   newInverseScalar(cfg.Preflight.SlippageBps, cfg.Preflight.SlippageFloorBps, cfg.Preflight.SlippageCeilBps, cfg.Reputation.DynamicSlippageUp, cfg.Reputation.DynamicSlippageDown),
		stability:  newInverseScalar(cfg.Preflight.StabilityBps, cfg.Preflight.StabilityBps, cfg.Preflight.StabilityBps*4, cfg.Reputation.DynamicStabilityUp, cfg.Reputation.DynamicStabilityDown),
		retryDelay: newInverseScalar(float64(cfg.Retry.RetryDelayMs), cfg.Reputation.RetryDelayFloorMs, cfg.Reputation.RetryDelayCeilMs, cfg.Reputation.DynamicRetryDelayUpMs, cfg.Reputation.DynamicRetryDelayDownMs),

		failureBumpProfitBps:   newInverseScalar(0, 0, cfg.Reputation.FailureBumpProfitBpsCap, cfg.Reputation.FailureBumpProfitBpsStep, cfg.Reputation.FailureBumpProfitBpsStep*cfg.Reputation.FailureBumpRecoverFactor),
		failureBumpProfitUsd:   newInverseScalar(0, 0, cfg.Reputation.FailureBumpProfitUsdCap, cfg.Reputation.FailureBumpProfitUsdStep, cfg.Reputation.FailureBumpProfitUsdStep*cfg.Reputation.FailureBumpRecoverFactor),
		failureBumpDepthUsd:    newInverseScalar(0, 0, cfg.Reputation.FailureBumpDepthUsdCap, cfg.Reputation.FailureBumpDepthUsdStep, cfg.Reputation.FailureBumpDepthUsdStep*cfg.Reputation.FailureBumpRecoverFactor),
		failureBumpMinNotional: newInverseScalar(0, 0, cfg.Reputation.FailureBumpMinNotionalCap, cfg.Reputation.FailureBumpMinNotionalStep, cfg.Reputation.FailureBumpMinNotionalStep*cfg.Reputation.FailureBumpRecoverFactor),
		bumpRecoverFactor:      cfg.Reputation.FailureBumpRecoverFactor,

		depthRatioPenaltyUp:   cfg.Reputation.DepthRatioPenaltyUp,
		depthRatioPenaltyDown: cfg.Reputation.DepthRatioPenaltyDown,
		depthRatioPenaltyMax:  cfg.Reputation.DepthRatioPenaltyMax,

		quality:     1.0,
		qualityUp:   cfg.Reputation.AutoTuneUp,
		qualityDown: cfg.Reputation.AutoTuneDown,
		qualityMin:  cfg.Reputation.AutoTuneMinFactor,
		qualityMax:  cfg.Reputation.AutoTuneMaxFactor,
		reasonWeights: map[router.ErrorKind]float64{
			router.ReasonPreflight: cfg.Reputation.ReasonPreflightPenalty,
			router.ReasonExecution: cfg.Reputation.ReasonExecutionPenalty,
			router.ReasonPostTrade: cfg.Reputation.ReasonPostTradePenalty,
			router.ReasonHedge:     cfg.Reputation.ReasonHedgePenalty,
		},
	}
	return c
}

// OnSuccess relaxes every controller toward its aggressive bound.
func (c *Controller) OnSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunkFactor.onSuccess()
	c.chunkDelay.onSuccess()
	c.retryFactor.onSuccess()
	c.slippage.onSuccess()
	c.stability.onSuccess()
	c.retryDelay.onSuccess()
	c.failureBumpProfitBps.onSuccess()
	c.failureBumpProfitUsd.onSuccess()
	c.failureBumpDepthUsd.onSuccess()
	c.failureBumpMinNotional.onSuccess()
	c.depthRatioPenalty -= c.depthRatioPenaltyDown
	if c.depthRatioPenalty < 0 {
		c.depthRatioPenalty = 0
	}
	c.quality += c.qualityUp
	c.clampQuality()
}

// OnFailure tightens every controller toward its conservative bound,
// weighted by the failure's reason (spec.md section 4.9's "per-reason
// multiplier").
func (c *Controller) OnFailure(kind router.ErrorKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunkFactor.onFailure()
	c.chunkDelay.onFailure()
	c.retryFactor.onFailure()
	c.slippage.onFailure()
	c.stability.onFailure()
	c.retryDelay.onFailure()
	c.failureBumpProfitBps.onFailure()
	c.failureBumpProfitUsd.onFailure()
	c.failureBumpDepthUsd.onFailure()
	c.failureBumpMinNotional.onFailure()
	c.depthRatioPenalty += c.depthRatioPenaltyUp
	if c.depthRatioPenalty > c.depthRatioPenaltyMax {
		c.depthRatioPenalty = c.depthRatioPenaltyMax
	}
	weight := c.reasonWeights[kind]
	if weight == 0 {
		weight = 1
	}
	c.quality -= c.qualityDown * weight
	c.clampQuality()
}

func (c *Controller) clampQuality() {
	if c.quality < c.qualityMin {
		c.quality = c.qualityMin
	}
	if c.quality > c.qualityMax {
		c.quality = c.qualityMax
	}
}

// Snapshot is a read of every controller scalar, consumed by
// preflight/dispatch/chunk and serialised by C10.
type Snapshot struct {
	ChunkFactor            float64
	ChunkDelayMs           float64
	RetryFactor            float64
	SlippageBps            float64
	StabilityBps           float64
	RetryDelayMs           float64
	FailureBumpProfitBps   float64
	FailureBumpProfitUsd   float64
	FailureBumpDepthUsd    float64
	FailureBumpMinNotional float64
	DepthRatioPenalty      float64
	Quality                float64
}

// Snapshot returns a consistent read of every scalar under one lock.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ChunkFactor:            c.chunkFactor.value,
		ChunkDelayMs:           c.chunkDelay.value,
		RetryFactor:            c.retryFactor.value,
		SlippageBps:            c.slippage.value,
		StabilityBps:           c.stability.value,
		RetryDelayMs:           c.retryDelay.value,
		FailureBumpProfitBps:   c.failureBumpProfitBps.value,
		FailureBumpProfitUsd:   c.failureBumpProfitUsd.value,
		FailureBumpDepthUsd:    c.failureBumpDepthUsd.value,
		FailureBumpMinNotional: c.failureBumpMinNotional.value,
		DepthRatioPenalty:      c.depthRatioPenalty,
		Quality:                c.quality,
	}
}

// Restore clamps and applies a persisted snapshot at startup (spec.md
// section 4.10: "non-finite or out-of-range values are clamped to
// their controller bounds").
func (c *Controller) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunkFactor.value = clampFinite(s.ChunkFactor, c.chunkFactor.min, c.chunkFactor.max, c.chunkFactor.value)
	c.chunkDelay.value = clampFinite(s.ChunkDelayMs, c.chunkDelay.min, c.chunkDelay.max, c.chunkDelay.value)
	c.retryFactor.value = clampFinite(s.RetryFactor, c.retryFactor.min, c.retryFactor.max, c.retryFactor.value)
	c.slippage.value = clampFinite(s.SlippageBps, c.slippage.min, c.slippage.max, c.slippage.value)
	c.stability.value = clampFinite(s.StabilityBps, c.stability.min, c.stability.max, c.stability.value)
	c.retryDelay.value = clampFinite(s.RetryDelayMs, c.retryDelay.min, c.retryDelay.max, c.retryDelay.value)
	c.failureBumpProfitBps.value = clampFinite(s.FailureBumpProfitBps, c.failureBumpProfitBps.min, c.failureBumpProfitBps.max, 0)
	c.failureBumpProfitUsd.value = clampFinite(s.FailureBumpProfitUsd, c.failureBumpProfitUsd.min, c.failureBumpProfitUsd.max, 0)
	c.failureBumpDepthUsd.value = clampFinite(s.FailureBumpDepthUsd, c.failureBumpDepthUsd.min, c.failureBumpDepthUsd.max, 0)
	c.failureBumpMinNotional.value = clampFinite(s.FailureBumpMinNotional, c.failureBumpMinNotional.min, c.failureBumpMinNotional.max, 0)
	c.depthRatioPenalty = clampFinite(s.DepthRatioPenalty, 0, c.depthRatioPenaltyMax, 0)
	c.quality = clampFinite(s.Quality, c.qualityMin, c.qualityMax, 1.0)
}

func clampFinite(v, min, max, fallback float64) float64 {
	if v != v || v < min-1e9 || v > max+1e9 {
		// NaN check (v != v) and a sanity bound for wildly out-of-range
		// persisted values; ordinary out-of-bounds values still clamp below.
		return fallback
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
