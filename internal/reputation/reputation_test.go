package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/router"
)

func testRep() *Reputation {
	return New(config.Default())
}

func TestScoreMonotonicity_SuccessNonDecreasing(t *testing.T) {
	r := testRep()
	before := r.TokenScore("T1")
	r.OnTokenSuccess("T1")
	after := r.TokenScore("T1")
	assert.GreaterOrEqual(t, after, before)
}

func TestScoreMonotonicity_FailureNonIncreasing(t *testing.T) {
	r := testRep()
	before := r.TokenScore("T1")
	r.OnTokenFailure("T1")
	after := r.TokenScore("T1")
	assert.LessOrEqual(t, after, before)
}

func TestScoreClampedTo0And100(t *testing.T) {
	r := testRep()
	for i := 0; i < 1000; i++ {
		r.OnTokenFailure("T1")
	}
	assert.GreaterOrEqual(t, r.TokenScore("T1"), 0.0)

	r2 := testRep()
	for i := 0; i < 1000; i++ {
		r2.OnTokenSuccess("T2")
	}
	assert.LessOrEqual(t, r2.TokenScore("T2"), 100.0)
}

func TestTokenCooldownEngagesAtMaxFailures(t *testing.T) {
	cfg := config.Default()
	cfg.Circuit.TokenMaxFailures = 3
	r := New(cfg)

	for i := 0; i < 2; i++ {
		r.OnTokenFailure("T1")
	}
	assert.True(t, r.TokenCooldownUntil("T1").IsZero(), "cooldown should not engage before the threshold")

	r.OnTokenFailure("T1")
	assert.False(t, r.TokenCooldownUntil("T1").IsZero(), "cooldown must engage on the Nth consecutive failure, not earlier")
}

func TestCircuitOpensOnMaxConsecutiveFailures(t *testing.T) {
	cfg := config.Default()
	cfg.Circuit.MaxFailures = 3
	r := New(cfg)

	for i := 0; i < 2; i++ {
		require.True(t, r.Circuit().Allow())
		r.Circuit().RecordFailure()
	}
	assert.False(t, r.Circuit().IsOpen(), "circuit must not open before the Nth consecutive failure")

	require.True(t, r.Circuit().Allow())
	r.Circuit().RecordFailure()
	assert.True(t, r.Circuit().IsOpen(), "circuit must open on exactly the Nth consecutive failure")
}

func TestFailurePauseFirstFailureUsesBase(t *testing.T) {
	cfg := config.Default()
	cfg.Circuit.FailurePauseMs = 1000
	cfg.Circuit.FailurePauseBackoff = 2.0
	r := New(cfg)

	r.OnAttemptFailure()
	assert.InDelta(t, 1000, r.failurePauseMs, 1e-6, "first failure must set pause to the base, not 0*backoff")

	r.OnAttemptFailure()
	assert.InDelta(t, 2000, r.failurePauseMs, 1e-6, "subsequent failures grow the pause geometrically")
}

func TestFailurePauseClearsOnSuccess(t *testing.T) {
	r := testRep()
	r.OnAttemptFailure()
	assert.False(t, r.FailurePauseUntil().IsZero())
	r.OnAttemptSuccess()
	assert.True(t, r.FailurePauseUntil().IsZero())
}

func TestGatePrecedence_CircuitBeforeGlobalCooldown(t *testing.T) {
	cfg := config.Default()
	cfg.Circuit.MaxFailures = 1
	r := New(cfg)

	r.SetGlobalCooldown(1e9) // nanoseconds is fine for "far future" in a test
	require.True(t, r.Circuit().Allow())
	r.Circuit().RecordFailure()
	require.True(t, r.Circuit().IsOpen())

	legs := []router.Leg{{Venue: router.VenuePredict, TokenID: "T1", Side: router.SideBuy, LimitPrice: 0.4, Size: 10}}
	err := r.AssertGates(legs)
	require.NotNil(t, err)
	assert.Equal(t, router.GateCircuitOpen, err.Gate, "circuit gate must win over a simultaneously active global cooldown")
}

func TestAutoBlocklistEngagesBelowScore(t *testing.T) {
	cfg := config.Default()
	cfg.Reputation.AutoBlocklist = true
	cfg.Reputation.AutoBlocklistScore = 90
	cfg.Reputation.TokenScoreOnFailure = 50
	r := New(cfg)

	r.OnTokenFailure("T1")
	assert.True(t, r.IsTokenBlocked("T1"))
}
