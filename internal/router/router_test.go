package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleAttempt_AttemptZeroIsUnchanged(t *testing.T) {
	legs := []Leg{{Side: SideBuy, LimitPrice: 0.4, Size: 10}}
	out := scaleAttempt(legs, 0, ExecConfig{RetrySizeFactor: 0.5, RetryAggressiveBps: 10})
	assert.Equal(t, legs, out)
}

func TestScaleAttempt_GeometricSizeAndFavourablePriceBump(t *testing.T) {
	cfg := ExecConfig{RetrySizeFactor: 0.8, RetryAggressiveBps: 100}
	buy := []Leg{{Side: SideBuy, LimitPrice: 0.40, Size: 100}}
	out := scaleAttempt(buy, 2, cfg)
	require.Len(t, out, 1)
	assert.InDelta(t, 100*0.8*0.8, out[0].Size, 1e-9)
	// buy bumps price up (more aggressive = willing to pay more)
	assert.Greater(t, out[0].LimitPrice, 0.40)

	sell := []Leg{{Side: SideSell, LimitPrice: 0.60, Size: 100}}
	out = scaleAttempt(sell, 1, cfg)
	// sell bumps price down (more aggressive = willing to accept less)
	assert.Less(t, out[0].LimitPrice, 0.60)
}

func TestDeriveMode_FixedOverrideWins(t *testing.T) {
	deps := Deps{Config: ExecConfig{FallbackModeFixed: "SEQUENTIAL"}}
	assert.Equal(t, ModeSequential, deriveMode(3, deps))
}

func TestDeriveMode_AttemptZeroIsAlwaysAuto(t *testing.T) {
	deps := Deps{Config: ExecConfig{MinQuality: 0.5}, IsDegraded: func() bool { return true }}
	assert.Equal(t, ModeAuto, deriveMode(0, deps))
}

func TestDeriveMode_DegradedHighQualityIsSequential(t *testing.T) {
	deps := Deps{
		Config:         ExecConfig{MinQuality: 0.5},
		IsDegraded:     func() bool { return true },
		DegradeQuality: func() float64 { return 0.9 },
	}
	assert.Equal(t, ModeSequential, deriveMode(1, deps))
}

func TestDeriveMode_DegradedLowQualityIsSingleLeg(t *testing.T) {
	deps := Deps{
		Config:         ExecConfig{MinQuality: 0.5},
		IsDegraded:     func() bool { return true },
		DegradeQuality: func() float64 { return 0.1 },
	}
	assert.Equal(t, ModeSingleLeg, deriveMode(1, deps))
}

func TestDeriveMode_AttemptTwoIsSingleLegEvenWhenHealthy(t *testing.T) {
	deps := Deps{Config: ExecConfig{MinQuality: 0.5}, IsDegraded: func() bool { return false }}
	assert.Equal(t, ModeSingleLeg, deriveMode(2, deps))
}

func TestDeriveMode_CircuitFailuresForceSequentialOnAttemptOne(t *testing.T) {
	deps := Deps{
		Config:             ExecConfig{MinQuality: 0.5},
		IsDegraded:         func() bool { return false },
		CircuitHasFailures: func() bool { return true },
	}
	assert.Equal(t, ModeSequential, deriveMode(1, deps))
}

func TestDeriveOptions_ConsistencyOverrideWinsOverEverything(t *testing.T) {
	deps := Deps{
		Config:                  ExecConfig{OrderTypeDefault: "GTC", OrderTypeFallback: []string{"FAK"}},
		ConsistencyOverrideType: func() (string, bool) { return "GTD", true },
		DegradeOrderType:        func() (string, bool) { return "FOK", true },
	}
	opts := deriveOptions(1, deps)
	assert.Equal(t, "GTD", opts.OrderType)
}

func TestDeriveOptions_ConsistencyTemplateForcesFokAndLimit(t *testing.T) {
	deps := Deps{
		Config:                    ExecConfig{OrderTypeDefault: "GTC"},
		ConsistencyTemplateActive: func() bool { return true },
	}
	opts := deriveOptions(1, deps)
	assert.Equal(t, "FOK", opts.OrderType)
	assert.True(t, opts.UseFok)
	assert.True(t, opts.UseLimit)
}

func TestDeriveOptions_DegradeBeatsRetryFallbackChain(t *testing.T) {
	deps := Deps{
		Config:           ExecConfig{OrderTypeDefault: "GTC", OrderTypeFallback: []string{"FAK"}},
		DegradeOrderType: func() (string, bool) { return "FOK", true },
	}
	opts := deriveOptions(1, deps)
	assert.Equal(t, "FOK", opts.OrderType)
}

func TestDeriveOptions_RetryFallbackChainThenDefault(t *testing.T) {
	deps := Deps{Config: ExecConfig{OrderTypeDefault: "GTC", OrderTypeFallback: []string{"FAK", "GTD"}}}
	assert.Equal(t, "FAK", deriveOptions(1, deps).OrderType)
	assert.Equal(t, "GTD", deriveOptions(2, deps).OrderType)
	assert.Equal(t, "GTC", deriveOptions(3, deps).OrderType, "falls through to default past the fallback chain's length")
	assert.Equal(t, "GTC", deriveOptions(0, deps).OrderType)
}

func TestExecute_SucceedsOnFirstAttempt(t *testing.T) {
	legs := []Leg{{Venue: VenuePredict, TokenID: "A", Side: SideBuy, LimitPrice: 0.4, Size: 10}}
	var successCalls int
	deps := Deps{
		Config: ExecConfig{MaxRetries: 2, RetrySizeFactor: 0.8},
		Preflight: func(_ context.Context, l []Leg, q float64) ([]Leg, float64, *RouterError) {
			return l, q, nil
		},
		RunChunks:        func(_ context.Context, _ []Leg, _ Mode, _ ExecutionOptions) *RouterError { return nil },
		OnAttemptSuccess: func(_ []Leg) { successCalls++ },
	}
	rerr := Execute(context.Background(), legs, deps)
	assert.Nil(t, rerr)
	assert.Equal(t, 1, successCalls)
}

func TestExecute_HadSuccessTerminatesWithoutFurtherRetries(t *testing.T) {
	legs := []Leg{{Venue: VenuePredict, TokenID: "A", Side: SideBuy, LimitPrice: 0.4, Size: 10}}
	var runChunkCalls int
	var failureCalls int
	deps := Deps{
		Config: ExecConfig{MaxRetries: 5, RetrySizeFactor: 0.8, RetryDelayMs: 0},
		Preflight: func(_ context.Context, l []Leg, q float64) ([]Leg, float64, *RouterError) {
			return l, q, nil
		},
		RunChunks: func(_ context.Context, _ []Leg, _ Mode, _ ExecutionOptions) *RouterError {
			runChunkCalls++
			return &RouterError{Kind: ReasonExecution, HadSuccess: true, Message: "partial fill then sibling failure"}
		},
		OnAttemptFailure: func(_ []Leg, _ ErrorKind) { failureCalls++ },
	}
	rerr := Execute(context.Background(), legs, deps)
	require.NotNil(t, rerr)
	assert.True(t, rerr.HadSuccess)
	assert.Equal(t, 1, runChunkCalls, "a hadSuccess failure must stop the retry loop immediately")
	assert.Equal(t, 1, failureCalls)
}

func TestExecute_RetriesUntilMaxRetriesExhausted(t *testing.T) {
	legs := []Leg{{Venue: VenuePredict, TokenID: "A", Side: SideBuy, LimitPrice: 0.4, Size: 10}}
	var attempts int
	deps := Deps{
		Config: ExecConfig{MaxRetries: 2, RetrySizeFactor: 0.8, RetryDelayMs: 0},
		Preflight: func(_ context.Context, l []Leg, q float64) ([]Leg, float64, *RouterError) {
			return l, q, nil
		},
		RunChunks: func(_ context.Context, _ []Leg, _ Mode, _ ExecutionOptions) *RouterError {
			attempts++
			return &RouterError{Kind: ReasonExecution, HadSuccess: false, Message: "no fills, retry"}
		},
	}
	rerr := Execute(context.Background(), legs, deps)
	require.NotNil(t, rerr)
	assert.False(t, rerr.HadSuccess)
	assert.Equal(t, 3, attempts, "attempt 0 plus two retries")
}

func TestExecute_PreflightFailureWithHadSuccessStopsImmediately(t *testing.T) {
	legs := []Leg{{Venue: VenuePredict, TokenID: "A", Side: SideBuy, LimitPrice: 0.4, Size: 10}}
	var preflightCalls, chunkCalls int
	deps := Deps{
		Config: ExecConfig{MaxRetries: 3, RetrySizeFactor: 0.8, RetryDelayMs: 0},
		Preflight: func(_ context.Context, l []Leg, q float64) ([]Leg, float64, *RouterError) {
			preflightCalls++
			return nil, q, &RouterError{Kind: ReasonPreflight, HadSuccess: true, Message: "residual order surfaced mid-retry"}
		},
		RunChunks: func(_ context.Context, _ []Leg, _ Mode, _ ExecutionOptions) *RouterError {
			chunkCalls++
			return nil
		},
	}
	rerr := Execute(context.Background(), legs, deps)
	require.NotNil(t, rerr)
	assert.Equal(t, 1, preflightCalls)
	assert.Equal(t, 0, chunkCalls)
}

func TestExecute_SingleLegModeRestrictsToTopN(t *testing.T) {
	legs := []Leg{
		{Venue: VenuePredict, TokenID: "A", Side: SideBuy, LimitPrice: 0.4, Size: 100},
		{Venue: VenueOpinion, TokenID: "B", Side: SideSell, LimitPrice: 0.6, Size: 5},
	}
	var gotLegs []Leg
	deps := Deps{
		Config: ExecConfig{MaxRetries: 0, FallbackModeFixed: "SINGLE_LEG", SingleLegTopN: 1},
		Preflight: func(_ context.Context, l []Leg, q float64) ([]Leg, float64, *RouterError) {
			return l, q, nil
		},
		RunChunks: func(_ context.Context, l []Leg, mode Mode, _ ExecutionOptions) *RouterError {
			gotLegs = l
			assert.Equal(t, ModeSingleLeg, mode)
			return nil
		},
	}
	rerr := Execute(context.Background(), legs, deps)
	require.Nil(t, rerr)
	require.Len(t, gotLegs, 1, "SINGLE_LEG must restrict dispatch to the configured top-N")
}
