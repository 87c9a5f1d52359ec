package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/controller"
	"github.com/sawpanic/arbrouter/internal/orderbook"
	"github.com/sawpanic/arbrouter/internal/posttrade"
	"github.com/sawpanic/arbrouter/internal/reputation"
	"github.com/sawpanic/arbrouter/internal/router"
	"github.com/sawpanic/arbrouter/internal/venue"
)

func newTestScheduler(t *testing.T, cfg config.ChunkConfig, driftBps float64) (*Scheduler, *reputation.Reputation, *venue.MockAdapter) {
	t.Helper()
	full := config.Default()
	// Preserve the self-tuning bounds (factor/delay min-max) from the
	// defaults; only override the per-test sizing knobs, otherwise a
	// bare ChunkConfig{} zeroes FactorMax and the scheduler sees a
	// permanently zero chunk factor.
	full.Chunk.MaxShares = cfg.MaxShares
	full.Chunk.MaxNotional = cfg.MaxNotional
	full.Chunk.Preflight = cfg.Preflight
	full.Chunk.DelayMinMs = 0
	full.Chunk.DelayMaxMs = 0
	cfg = full.Chunk

	ctrl := controller.New(full)
	rep := reputation.New(full)

	adapter := venue.NewMockAdapter(router.VenuePredict)
	adapter.SeedBook("T1", orderbook.RawBook{
		Asks: []orderbook.RawEntry{{Price: "0.40", Size: "1000"}},
		Bids: []orderbook.RawEntry{{Price: "0.39", Size: "1000"}},
	})
	reg := venue.NewRegistry(map[router.Venue]venue.Adapter{router.VenuePredict: adapter})

	postCfg := full.PostTrade
	postCfg.PostTradeDriftBps = driftBps
	postCfg.HedgeOnFailure = false
	monitor := posttrade.NewMonitor(postCfg, full.Preflight.LegDriftSpreadBps, full.Preflight.LegVwapDeviationBps, reg, rep)

	s := NewScheduler(cfg, ctrl, rep, monitor, full.Circuit.AbortPostTradeDriftBps, full.Circuit.AbortCooldownMs)
	return s, rep, adapter
}

func TestChunkShareCount_BoundedByMaxSharesAndNotional(t *testing.T) {
	cfg := config.ChunkConfig{MaxShares: 50, MaxNotional: 10, Preflight: false}
	s := &Scheduler{cfg: cfg}
	legs := []router.Leg{{LimitPrice: 0.40, Size: 1000}, {LimitPrice: 0.39, Size: 1000}}

	got := s.chunkShareCount(legs, 1.0)
	// notional cap: 10 / (0.40+0.39) = 12.66..., tighter than MaxShares=50
	assert.InDelta(t, 10/(0.40+0.39), got, 1e-6)
}

func TestRun_SplitsIntoMultipleChunksAndDispatchesEach(t *testing.T) {
	cfg := config.ChunkConfig{MaxShares: 100, MaxNotional: 1000000, DelayMs: 0, Preflight: false}
	s, _, _ := newTestScheduler(t, cfg, 100000) // limit 0.40 equals the seeded ask, so drift is 0 and no abort trips

	legs := []router.Leg{
		{Venue: router.VenuePredict, TokenID: "T1", Side: router.SideBuy, LimitPrice: 0.40, Size: 250},
	}

	var dispatched []float64
	dispatch := func(ctx context.Context, chunkLegs []router.Leg) ([]posttrade.LegFill, *router.RouterError) {
		dispatched = append(dispatched, chunkLegs[0].Size)
		return []posttrade.LegFill{{Leg: chunkLegs[0]}}, nil
	}

	rerr := s.Run(context.Background(), legs, nil, dispatch)
	require.Nil(t, rerr)

	total := 0.0
	for _, d := range dispatched {
		assert.LessOrEqual(t, d, 100.0+1e-9)
		total += d
	}
	assert.InDelta(t, 250.0, total, 1e-6)
	assert.GreaterOrEqual(t, len(dispatched), 3)
}

func TestRun_AbortsOnDriftBreachAndSetsGlobalCooldown(t *testing.T) {
	cfg := config.ChunkConfig{MaxShares: 1000, MaxNotional: 1000000, DelayMs: 0, Preflight: false}
	s, rep, _ := newTestScheduler(t, cfg, 10) // limit 0.20 vs seeded ask 0.40 is 10000bps drift, past the default 80bps abort threshold

	legs := []router.Leg{
		{Venue: router.VenuePredict, TokenID: "T1", Side: router.SideBuy, LimitPrice: 0.20, Size: 10},
	}

	dispatch := func(ctx context.Context, chunkLegs []router.Leg) ([]posttrade.LegFill, *router.RouterError) {
		return []posttrade.LegFill{{Leg: chunkLegs[0]}}, nil
	}

	require.True(t, rep.GlobalCooldownUntil().IsZero())
	rerr := s.Run(context.Background(), legs, nil, dispatch)
	require.NotNil(t, rerr)
	assert.True(t, rerr.HadSuccess)
	assert.False(t, rep.GlobalCooldownUntil().IsZero(), "abort must engage the global cooldown")
}
