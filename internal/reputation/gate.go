package reputation

import (
	"time"

	"github.com/sawpanic/arbrouter/internal/router"
)

// AssertGates runs C8's gate checks in the fixed order spec.md section
// 5 requires: circuit -> global cooldown -> failure pause ->
// allow/blocklist -> per-token cooldown -> per-venue cooldown -> score
// floors. The first active gate wins; legs are checked in order too so
// the result is deterministic.
func (r *Reputation) AssertGates(legs []router.Leg) *router.RouterError {
	now := time.Now()

	if r.circuit.IsOpen() {
		return &router.RouterError{Kind: router.ReasonPreflight, Gate: router.GateCircuitOpen, Message: "circuit breaker open"}
	}

	if until := r.GlobalCooldownUntil(); !until.IsZero() && now.Before(until) {
		return &router.RouterError{Kind: router.ReasonPreflight, Gate: router.GateGlobalCooldown, Message: "global cooldown active"}
	}

	if until := r.FailurePauseUntil(); !until.IsZero() && now.Before(until) {
		return &router.RouterError{Kind: router.ReasonPreflight, Gate: router.GateFailurePause, Message: "failure pause active"}
	}

	for _, leg := range legs {
		if r.IsTokenBlocked(leg.TokenID) {
			return &router.RouterError{Kind: router.ReasonPreflight, Gate: router.GateBlocklist, Message: "token blocklisted: " + leg.TokenID}
		}
		if r.IsVenueBlocked(leg.Venue) {
			return &router.RouterError{Kind: router.ReasonPreflight, Gate: router.GateBlocklist, Message: "venue blocklisted: " + string(leg.Venue)}
		}
	}

	for _, leg := range legs {
		if until := r.TokenCooldownUntil(leg.TokenID); !until.IsZero() && now.Before(until) {
			return &router.RouterError{Kind: router.ReasonPreflight, Gate: router.GateTokenCooldown, Message: "token cooldown active: " + leg.TokenID}
		}
	}

	for _, leg := range legs {
		if until := r.VenueCooldownUntil(leg.Venue); !until.IsZero() && now.Before(until) {
			return &router.RouterError{Kind: router.ReasonPreflight, Gate: router.GateVenueCooldown, Message: "venue cooldown active: " + string(leg.Venue)}
		}
	}

	for _, leg := range legs {
		if r.TokenScore(leg.TokenID) < r.cfgCir.TokenMinScore {
			return &router.RouterError{Kind: router.ReasonPreflight, Gate: router.GateScoreFloor, Message: "token score below floor: " + leg.TokenID}
		}
		if r.VenueScore(leg.Venue) < r.cfgCir.PlatformMinScore {
			return &router.RouterError{Kind: router.ReasonPreflight, Gate: router.GateScoreFloor, Message: "venue score below floor: " + string(leg.Venue)}
		}
	}

	return nil
}
