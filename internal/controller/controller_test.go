package controller

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/router"
)

func TestOnSuccess_RelaxesChunkFactorAndQuality(t *testing.T) {
	cfg := config.Default()
	c := New(cfg)
	c.OnFailure(router.ReasonExecution)
	after1 := c.Snapshot()
	c.OnSuccess()
	after2 := c.Snapshot()
	assert.Greater(t, after2.ChunkFactor, after1.ChunkFactor)
	assert.Greater(t, after2.Quality, after1.Quality)
}

func TestOnFailure_TightensAndBumps(t *testing.T) {
	cfg := config.Default()
	c := New(cfg)
	before := c.Snapshot()
	c.OnFailure(router.ReasonPostTrade)
	after := c.Snapshot()
	assert.Less(t, after.ChunkFactor, before.ChunkFactor)
	assert.Greater(t, after.SlippageBps, before.SlippageBps)
	assert.Greater(t, after.FailureBumpProfitBps, before.FailureBumpProfitBps)
	assert.Less(t, after.Quality, before.Quality)
}

func TestQuality_ClampedToConfiguredBounds(t *testing.T) {
	cfg := config.Default()
	c := New(cfg)
	for i := 0; i < 1000; i++ {
		c.OnFailure(router.ReasonExecution)
	}
	assert.GreaterOrEqual(t, c.Snapshot().Quality, cfg.Reputation.AutoTuneMinFactor)

	c2 := New(cfg)
	for i := 0; i < 1000; i++ {
		c2.OnSuccess()
	}
	assert.LessOrEqual(t, c2.Snapshot().Quality, cfg.Reputation.AutoTuneMaxFactor)
}

func TestRestore_ClampsOutOfRangeAndNaN(t *testing.T) {
	cfg := config.Default()
	c := New(cfg)
	c.Restore(Snapshot{Quality: 999, ChunkFactor: -5, SlippageBps: 1e18, RetryFactor: math.NaN()})
	s := c.Snapshot()
	assert.LessOrEqual(t, s.Quality, cfg.Reputation.AutoTuneMaxFactor)
	assert.GreaterOrEqual(t, s.ChunkFactor, cfg.Chunk.FactorMin)
	assert.LessOrEqual(t, s.SlippageBps, cfg.Preflight.SlippageCeilBps)
	assert.GreaterOrEqual(t, s.RetryFactor, cfg.Retry.RetryFactorMin)
	assert.LessOrEqual(t, s.RetryFactor, cfg.Retry.RetryFactorMax)
}

func TestReasonWeight_PostTradeHitsQualityHarderThanPreflight(t *testing.T) {
	cfg := config.Default()
	c1 := New(cfg)
	c1.OnFailure(router.ReasonPreflight)
	c2 := New(cfg)
	c2.OnFailure(router.ReasonPostTrade)
	assert.Less(t, c2.Snapshot().Quality, c1.Snapshot().Quality, "postTrade's reason weight is configured higher than preflight's")
}
