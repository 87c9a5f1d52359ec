package preflight

import (
	"sync"

	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/router"
)

// NetRiskTracker holds the running signed net exposure per token and
// in aggregate, plus the self-tightening scale factor spec.md section
// 4.3 step 10 describes: it tightens after a failed attempt and relaxes
// after a successful one, independent of C9's other controllers.
type NetRiskTracker struct {
	mu sync.Mutex

	cfg config.NetRiskConfig

	perToken map[string]float64
	total    float64

	factor float64
}

// NewNetRiskTracker creates a tracker starting at full scale.
func NewNetRiskTracker(cfg config.NetRiskConfig) *NetRiskTracker {
	return &NetRiskTracker{cfg: cfg, perToken: make(map[string]float64), factor: cfg.MaxFactor}
}

// Budget returns the currently scaled aggregate and per-token budgets,
// optionally further scaled by quality.
func (t *NetRiskTracker) Budget(quality float64) (aggregate, perToken float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := t.factor
	if t.cfg.ScaleOnQuality {
		f *= quality
	}
	return t.cfg.Usd * f, t.cfg.PerTokenUsd * f
}

// Check reports whether adding the signed notionals implied by legs
// would exceed either budget, without committing them.
func (t *NetRiskTracker) Check(legs []router.Leg, quality float64) bool {
	aggBudget, perTokenBudget := t.Budget(quality)

	t.mu.Lock()
	defer t.mu.Unlock()

	deltas := make(map[string]float64)
	totalDelta := 0.0
	for _, l := range legs {
		signed := l.Size * l.LimitPrice
		if l.Side == router.SideSell {
			signed = -signed
		}
		deltas[l.TokenID] += signed
		totalDelta += signed
	}

	if abs(t.total+totalDelta) > aggBudget {
		return false
	}
	for tok, d := range deltas {
		if abs(t.perToken[tok]+d) > perTokenBudget {
			return false
		}
	}
	return true
}

// Commit records the legs' signed notionals once an attempt actually
// executes.
func (t *NetRiskTracker) Commit(legs []router.Leg) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range legs {
		signed := l.Size * l.LimitPrice
		if l.Side == router.SideSell {
			signed = -signed
		}
		t.perToken[l.TokenID] += signed
		t.total += signed
	}
}

// OnFailure tightens the scale factor toward the configured floor.
func (t *NetRiskTracker) OnFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.factor -= t.cfg.TightenOnFailure
	if t.factor < t.cfg.MinFactor {
		t.factor = t.cfg.MinFactor
	}
}

// OnSuccess relaxes the scale factor toward the configured ceiling.
func (t *NetRiskTracker) OnSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.factor += t.cfg.RelaxOnSuccess
	if t.factor > t.cfg.MaxFactor {
		t.factor = t.cfg.MaxFactor
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
