package reputation

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/arbrouter/internal/config"
)

// Circuit wraps github.com/sony/gobreaker's two-step form to implement
// spec.md section 4.8's circuit breaker: opens on circuitMaxFailures
// consecutive failures, stays open for circuitCooldownMs, and clears
// its counter if no success is seen for circuitWindowMs. Grounded on
// the teacher's internal/infrastructure/providers/circuitbreakers.go
// CircuitBreakerManager, adapted from a per-provider map (and gobreaker's
// plain Execute) to the router's single global gate, using the two-step
// API because the router's own attempt loop — not a wrapped closure —
// decides success or failure.
type Circuit struct {
	breaker *gobreaker.TwoStepCircuitBreaker

	mu   sync.Mutex
	done func(success bool)
}

// NewCircuit builds the gobreaker-backed circuit for the router's
// single global gate.
func NewCircuit(cfg config.CircuitConfig) *Circuit {
	settings := gobreaker.Settings{
		Name:        "arbrouter",
		MaxRequests: 1,
		Interval:    time.Duration(cfg.WindowMs) * time.Millisecond,
		Timeout:     time.Duration(cfg.CooldownMs) * time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("circuit", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	return &Circuit{breaker: gobreaker.NewTwoStepCircuitBreaker(settings)}
}

// Allow reports whether an attempt may proceed. On true, the caller
// must eventually call RecordSuccess or RecordFailure exactly once to
// score the attempt (or the half-open probe slot never clears).
func (c *Circuit) Allow() bool {
	done, err := c.breaker.Allow()
	if err != nil {
		return false
	}
	c.mu.Lock()
	c.done = done
	c.mu.Unlock()
	return true
}

// State returns the human-readable breaker state.
func (c *Circuit) State() string {
	return c.breaker.State().String()
}

// IsOpen reports whether the breaker is fully open (not a half-open probe).
func (c *Circuit) IsOpen() bool {
	return c.breaker.State() == gobreaker.StateOpen
}

// RecordSuccess scores the most recent Allow() as successful.
func (c *Circuit) RecordSuccess() { c.finish(true) }

// RecordFailure scores the most recent Allow() as failed.
func (c *Circuit) RecordFailure() { c.finish(false) }

func (c *Circuit) finish(success bool) {
	c.mu.Lock()
	done := c.done
	c.done = nil
	c.mu.Unlock()
	if done != nil {
		done(success)
	}
}
