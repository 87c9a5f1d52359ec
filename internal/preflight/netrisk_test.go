package preflight

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/router"
)

func TestNetRiskTracker_ChecksAggregateBudget(t *testing.T) {
	cfg := config.NetRiskConfig{Usd: 1000, PerTokenUsd: 1000, MinFactor: 0.1, MaxFactor: 1.0, ScaleOnQuality: false}
	tr := NewNetRiskTracker(cfg)

	legs := []router.Leg{{Venue: router.VenuePredict, TokenID: "T1", Side: router.SideBuy, LimitPrice: 0.5, Size: 1000}}
	assert.True(t, tr.Check(legs, 1.0), "500usd notional fits within the 1000usd budget")

	legs2 := []router.Leg{{Venue: router.VenuePredict, TokenID: "T1", Side: router.SideBuy, LimitPrice: 0.5, Size: 2500}}
	assert.False(t, tr.Check(legs2, 1.0), "1250usd notional exceeds the 1000usd budget")
}

func TestNetRiskTracker_TightenAndRelax(t *testing.T) {
	cfg := config.NetRiskConfig{Usd: 1000, PerTokenUsd: 1000, MinFactor: 0.2, MaxFactor: 1.0, TightenOnFailure: 0.3, RelaxOnSuccess: 0.1}
	tr := NewNetRiskTracker(cfg)

	tr.OnFailure()
	agg1, _ := tr.Budget(1.0)
	tr.OnFailure()
	agg2, _ := tr.Budget(1.0)
	assert.Less(t, agg2, agg1, "repeated failures must keep tightening the budget")

	tr.OnSuccess()
	agg3, _ := tr.Budget(1.0)
	assert.Greater(t, agg3, agg2, "a success must relax the budget back up")
}

func TestNetRiskTracker_CommitAccumulates(t *testing.T) {
	cfg := config.NetRiskConfig{Usd: 10000, PerTokenUsd: 10000, MinFactor: 0.1, MaxFactor: 1.0}
	tr := NewNetRiskTracker(cfg)

	legs := []router.Leg{{Venue: router.VenuePredict, TokenID: "T1", Side: router.SideBuy, LimitPrice: 0.5, Size: 100}}
	tr.Commit(legs)
	tr.Commit(legs)
	assert.InDelta(t, 100.0, tr.total, 1e-9)
}
