package telemetry

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/arbrouter/internal/atomicio"
	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/controller"
)

// StateSnapshot is the full persisted shape written to
// persistence.state_path: controller scalars plus the reputation
// scores and token/venue blocklist deadlines C8 needs to survive a
// restart without starting every token/venue back at full trust.
// Cooldowns and the failure pause are not persisted.
type StateSnapshot struct {
	Controller    controller.Snapshot  `json:"controller"`
	TokenScores   map[string]float64   `json:"token_scores"`
	VenueScores   map[string]float64   `json:"venue_scores"`
	BlockedTokens map[string]time.Time `json:"blocked_tokens"`
	BlockedVenues map[string]time.Time `json:"blocked_venues"`
	SavedAt       time.Time            `json:"saved_at"`
}

// Persister owns the flush cadence and atomic-write discipline for
// both the metrics snapshot and the state snapshot (spec.md section
// 4.10: "every write increments a last-flush counter; if the elapsed
// time since the previous flush exceeds metricsFlushMs the snapshot
// is atomically written").
type Persister struct {
	cfg      config.PersistenceConfig
	registry *Registry

	mu         sync.Mutex
	lastFlush  time.Time
	stateFn    func() StateSnapshot
}

// NewPersister wires a Persister to the metrics registry and a
// callback that produces the current state snapshot on demand.
func NewPersister(cfg config.PersistenceConfig, registry *Registry, stateFn func() StateSnapshot) *Persister {
	return &Persister{cfg: cfg, registry: registry, stateFn: stateFn}
}

// MaybeFlush writes both snapshots if metricsFlushMs has elapsed since
// the last flush. Safe to call after every attempt; it is a no-op most
// of the time.
func (p *Persister) MaybeFlush() {
	p.mu.Lock()
	due := time.Since(p.lastFlush) >= time.Duration(p.cfg.MetricsFlushMs)*time.Millisecond
	if !due {
		p.mu.Unlock()
		return
	}
	p.lastFlush = time.Now()
	p.mu.Unlock()

	p.Flush()
}

// Flush writes both snapshots unconditionally.
func (p *Persister) Flush() {
	if err := atomicio.WriteJSON(p.cfg.MetricsPath, p.registry.Snapshot()); err != nil {
		log.Warn().Err(err).Str("path", p.cfg.MetricsPath).Msg("metrics flush failed")
	}
	if err := atomicio.WriteJSON(p.cfg.StatePath, p.stateFn()); err != nil {
		log.Warn().Err(err).Str("path", p.cfg.StatePath).Msg("state flush failed")
	}
}

// Restore reads the state file if present and returns it; a missing
// file is not an error (fresh deployment). Non-finite or
// out-of-bounds controller fields are clamped by controller.Restore,
// and expired blocklist entries are dropped here before the caller
// re-applies them to a fresh Reputation instance.
func Restore(path string) (StateSnapshot, bool) {
	var snap StateSnapshot
	if err := atomicio.ReadJSON(path, &snap); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("state restore failed; starting fresh")
		}
		return StateSnapshot{}, false
	}

	now := time.Now()
	for k, until := range snap.BlockedTokens {
		if now.After(until) {
			delete(snap.BlockedTokens, k)
		}
	}
	for k, until := range snap.BlockedVenues {
		if now.After(until) {
			delete(snap.BlockedVenues, k)
		}
	}
	log.Info().Time("saved_at", snap.SavedAt).Msg("restored persisted router state")
	return snap, true
}
