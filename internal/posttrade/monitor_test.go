package posttrade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/orderbook"
	"github.com/sawpanic/arbrouter/internal/reputation"
	"github.com/sawpanic/arbrouter/internal/router"
	"github.com/sawpanic/arbrouter/internal/venue"
)

func TestRun_FlagsDriftBeyondThreshold(t *testing.T) {
	cfg := config.Default().PostTrade
	cfg.PostTradeDriftBps = 40
	cfg.HedgeOnFailure = false

	adapter := venue.NewMockAdapter(router.VenuePredict)
	adapter.SeedBook("T1", orderbook.RawBook{
		Asks: []orderbook.RawEntry{{Price: "0.45", Size: "100"}},
		Bids: []orderbook.RawEntry{{Price: "0.44", Size: "100"}},
	})
	reg := venue.NewRegistry(map[router.Venue]venue.Adapter{router.VenuePredict: adapter})
	rep := reputation.New(config.Default())

	mon := NewMonitor(cfg, config.Default().Preflight.LegDriftSpreadBps, config.Default().Preflight.LegVwapDeviationBps, reg, rep)
	fills := []LegFill{{Leg: router.Leg{Venue: router.VenuePredict, TokenID: "T1", Side: router.SideBuy, LimitPrice: 0.40, Size: 10}}}

	res, rerr := mon.Run(context.Background(), fills)
	require.Nil(t, rerr)
	require.Len(t, res.Reports, 1)
	assert.True(t, res.Reports[0].Penalised, "0.45 vs limit 0.40 is 1250bps drift, well past the 40bps threshold")
}

func TestRun_ResidualOpenOrdersSurfacesHadSuccess(t *testing.T) {
	cfg := config.Default().PostTrade

	adapter := venue.NewMockAdapter(router.VenuePredict)
	adapter.SeedBook("T1", orderbook.RawBook{
		Asks: []orderbook.RawEntry{{Price: "0.40", Size: "100"}},
		Bids: []orderbook.RawEntry{{Price: "0.39", Size: "100"}},
	})
	reg := venue.NewRegistry(map[router.Venue]venue.Adapter{router.VenuePredict: adapter})
	rep := reputation.New(config.Default())

	execRes, err := adapter.Execute(context.Background(), []router.Leg{
		{Venue: router.VenuePredict, TokenID: "T1", Side: router.SideBuy, LimitPrice: 0.40, Size: 10},
	}, router.ExecutionOptions{})
	require.NoError(t, err)

	mon := NewMonitor(cfg, config.Default().Preflight.LegDriftSpreadBps, config.Default().Preflight.LegVwapDeviationBps, reg, rep)
	fills := []LegFill{{Leg: execRes.Legs[0], OrderIDs: execRes.OrderIDs}}

	res, rerr := mon.Run(context.Background(), fills)
	require.NotNil(t, rerr, "the mock adapter always reports orders open, so residual-order check must fire")
	assert.True(t, rerr.HadSuccess)
	assert.NotEmpty(t, res.ResidualOpenOrders)
}

func TestRun_NetHedgeSubmitsOppositeSideForNetExposure(t *testing.T) {
	cfg := config.Default().PostTrade
	cfg.HedgeOnFailure = true
	cfg.PostTradeHedge = false
	cfg.PostTradeNetHedge = true
	cfg.NetHedgeForce = true
	cfg.NetHedgeMinShares = 1
	cfg.NetHedgeMaxShares = 1000

	adapter := venue.NewMockAdapter(router.VenuePredict)
	adapter.SeedBook("T1", orderbook.RawBook{
		Asks: []orderbook.RawEntry{{Price: "0.40", Size: "100"}},
		Bids: []orderbook.RawEntry{{Price: "0.39", Size: "100"}},
	})
	reg := venue.NewRegistry(map[router.Venue]venue.Adapter{router.VenuePredict: adapter})
	rep := reputation.New(config.Default())

	mon := NewMonitor(cfg, config.Default().Preflight.LegDriftSpreadBps, config.Default().Preflight.LegVwapDeviationBps, reg, rep)
	fills := []LegFill{
		{Leg: router.Leg{Venue: router.VenuePredict, TokenID: "T1", Side: router.SideBuy, LimitPrice: 0.40, Size: 20}},
		{Leg: router.Leg{Venue: router.VenuePredict, TokenID: "T1", Side: router.SideSell, LimitPrice: 0.40, Size: 5}},
	}

	res, rerr := mon.Run(context.Background(), fills)
	require.Nil(t, rerr)
	require.Len(t, res.HedgeResults, 1, "net exposure of 15 shares long must produce one opposite-side hedge")
}

func TestNetResidual_SignsBuySellOpposite(t *testing.T) {
	legs := []router.Leg{
		{TokenID: "T1", Side: router.SideBuy, Size: 10},
		{TokenID: "T1", Side: router.SideSell, Size: 4},
	}
	net := NetResidual(legs)
	assert.InDelta(t, 6.0, net["T1"], 1e-9)
}
