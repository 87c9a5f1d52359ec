// Package reputation owns the process-wide mutable state the router
// gates on: per-token/per-venue scores, failure-window cooldowns,
// auto-blocklists, the circuit breaker, global cooldown, failure-pause
// backoff, and degrade/consistency deadlines (spec.md section 4.8).
//
// All of it lives on one Reputation instance created once at startup,
// the same "fields of one instance, no singleton" discipline the
// teacher applies to its guards.CircuitBreaker (internal/providers/guards/circuit.go).
package reputation

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/router"
)

// ScoreEntry is one token or venue's reputation score.
type ScoreEntry struct {
	Score    float64
	LastSeen time.Time
}

type failureWindow struct {
	count         int
	windowStart   time.Time
	cooldownUntil time.Time
}

// Reputation is the router's single gating and scoring instance.
type Reputation struct {
	mu sync.Mutex

	cfgRep config.ReputationConfig
	cfgCir config.CircuitConfig
	cfgCon config.ConsistencyConfig
	cfgDeg config.DegradeConfig

	tokenScores map[string]*ScoreEntry
	venueScores map[router.Venue]*ScoreEntry

	tokenFailures map[string]*failureWindow
	venueFailures map[router.Venue]*failureWindow

	blockedTokens map[string]time.Time
	blockedVenues map[router.Venue]time.Time

	circuit *Circuit

	globalCooldownUntil time.Time
	failurePauseUntil   time.Time
	failurePauseMs      float64

	degradedUntil               time.Time
	degradeReason               string
	degradeAt                   time.Time
	degradeConsecutiveSuccesses int

	consistencyOverrideUntil       time.Time
	consistencyTemplateActiveUntil time.Time
	lastConsistencyFailureAt       time.Time
	lastConsistencyFailureReason   string
	consistencyFailCount           int
	consistencyFailWindowStart     time.Time
}

// New creates an empty Reputation instance (before any restore).
func New(cfg *config.Config) *Reputation {
	return &Reputation{
		cfgRep:        cfg.Reputation,
		cfgCir:        cfg.Circuit,
		cfgCon:        cfg.Consistency,
		cfgDeg:        cfg.Degrade,
		tokenScores:   make(map[string]*ScoreEntry),
		venueScores:   make(map[router.Venue]*ScoreEntry),
		tokenFailures: make(map[string]*failureWindow),
		venueFailures: make(map[router.Venue]*failureWindow),
		blockedTokens: make(map[string]time.Time),
		blockedVenues: make(map[router.Venue]time.Time),
		circuit:       NewCircuit(cfg.Circuit),
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func (r *Reputation) tokenEntry(tokenID string) *ScoreEntry {
	e, ok := r.tokenScores[tokenID]
	if !ok {
		e = &ScoreEntry{Score: 100}
		r.tokenScores[tokenID] = e
	}
	return e
}

func (r *Reputation) venueEntry(v router.Venue) *ScoreEntry {
	e, ok := r.venueScores[v]
	if !ok {
		e = &ScoreEntry{Score: 100}
		r.venueScores[v] = e
	}
	return e
}

// TokenScore returns the current score for a token (100 if unseen).
func (r *Reputation) TokenScore(tokenID string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokenEntry(tokenID).Score
}

// VenueScore returns the current score for a venue (100 if unseen).
func (r *Reputation) VenueScore(v router.Venue) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.venueEntry(v).Score
}

func (r *Reputation) bumpToken(tokenID string, delta float64) {
	e := r.tokenEntry(tokenID)
	e.Score = clampScore(e.Score + delta)
	e.LastSeen = time.Now()
	if delta < 0 {
		r.maybeAutoBlockToken(tokenID, e.Score)
	}
}

func (r *Reputation) bumpVenue(v router.Venue, delta float64) {
	e := r.venueEntry(v)
	e.Score = clampScore(e.Score + delta)
	e.LastSeen = time.Now()
	if delta < 0 {
		r.maybeAutoBlockVenue(v, e.Score)
	}
}

func (r *Reputation) maybeAutoBlockToken(tokenID string, score float64) {
	if !r.cfgRep.AutoBlocklist || score > r.cfgRep.AutoBlocklistScore {
		return
	}
	until := time.Now().Add(time.Duration(r.cfgRep.AutoBlocklistCooldownMs) * time.Millisecond)
	r.blockedTokens[tokenID] = until
	log.Warn().Str("token_id", tokenID).Float64("score", score).Time("until", until).Msg("token auto-blocklisted")
}

func (r *Reputation) maybeAutoBlockVenue(v router.Venue, score float64) {
	if !r.cfgRep.AutoBlocklist || score > r.cfgRep.AutoBlocklistScore {
		return
	}
	until := time.Now().Add(time.Duration(r.cfgRep.AutoBlocklistCooldownMs) * time.Millisecond)
	r.blockedVenues[v] = until
	log.Warn().Str("venue", string(v)).Float64("score", score).Time("until", until).Msg("venue auto-blocklisted")
}

// OnTokenSuccess records a successful attempt touching tokenID: resets
// its failure counter and bumps its score up (monotone non-decreasing
// absent a simultaneous post-trade penalty, spec.md section 3).
func (r *Reputation) OnTokenSuccess(tokenID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokenFailures, tokenID)
	r.bumpToken(tokenID, r.cfgRep.TokenScoreOnSuccess)
}

// OnTokenFailure increments the rolling failure counter for tokenID
// and sets a cooldown once it reaches the configured max.
func (r *Reputation) OnTokenFailure(tokenID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	fw, ok := r.tokenFailures[tokenID]
	if !ok || now.Sub(fw.windowStart) > time.Duration(r.cfgCir.TokenFailureWindowMs)*time.Millisecond {
		fw = &failureWindow{windowStart: now}
		r.tokenFailures[tokenID] = fw
	}
	fw.count++
	if fw.count >= r.cfgCir.TokenMaxFailures {
		fw.cooldownUntil = now.Add(time.Duration(r.cfgCir.TokenCooldownMs) * time.Millisecond)
	}
	r.bumpToken(tokenID, -r.cfgRep.TokenScoreOnFailure)
}

// OnVenueSuccess is the venue analogue of OnTokenSuccess.
func (r *Reputation) OnVenueSuccess(v router.Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.venueFailures, v)
	r.bumpVenue(v, r.cfgRep.PlatformScoreOnSuccess)
}

// OnVenueFailure is the venue analogue of OnTokenFailure.
func (r *Reputation) OnVenueFailure(v router.Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	fw, ok := r.venueFailures[v]
	if !ok || now.Sub(fw.windowStart) > time.Duration(r.cfgCir.PlatformFailureWindowMs)*time.Millisecond {
		fw = &failureWindow{windowStart: now}
		r.venueFailures[v] = fw
	}
	fw.count++
	if fw.count >= r.cfgCir.PlatformMaxFailures {
		fw.cooldownUntil = now.Add(time.Duration(r.cfgCir.PlatformCooldownMs) * time.Millisecond)
	}
	r.bumpVenue(v, -r.cfgRep.PlatformScoreOnFailure)
}

// OnVolatility penalises both the token and the venue for a stability
// breach during preflight.
func (r *Reputation) OnVolatility(tokenID string, v router.Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bumpToken(tokenID, -r.cfgRep.TokenScoreOnVolatility)
	r.bumpVenue(v, -r.cfgRep.PlatformScoreOnVolatility)
}

// OnPostTradeDrift penalises both the token and the venue for a leg
// whose post-trade drift crossed the threshold (spec.md section 4.7).
func (r *Reputation) OnPostTradeDrift(tokenID string, v router.Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bumpToken(tokenID, -r.cfgRep.TokenScoreOnPostTrade)
	r.bumpVenue(v, -r.cfgRep.PlatformScoreOnPostTrade)
}

// OnSpreadBreach penalises a venue whose leg was flagged by the
// cross-leg drift-spread check.
func (r *Reputation) OnSpreadBreach(v router.Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bumpVenue(v, -r.cfgRep.PlatformScoreOnSpread)
}

// TokenCooldownUntil returns the active cooldown deadline for a token,
// or the zero time if none.
func (r *Reputation) TokenCooldownUntil(tokenID string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fw, ok := r.tokenFailures[tokenID]; ok {
		return fw.cooldownUntil
	}
	return time.Time{}
}

// VenueCooldownUntil returns the active cooldown deadline for a venue,
// or the zero time if none.
func (r *Reputation) VenueCooldownUntil(v router.Venue) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fw, ok := r.venueFailures[v]; ok {
		return fw.cooldownUntil
	}
	return time.Time{}
}

// IsTokenBlocked reports whether tokenID is currently on the
// auto-blocklist; an expired entry reports false.
func (r *Reputation) IsTokenBlocked(tokenID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.blockedTokens[tokenID]
	return ok && time.Now().Before(until)
}

// IsVenueBlocked reports whether v is currently on the auto-blocklist;
// an expired entry reports false.
func (r *Reputation) IsVenueBlocked(v router.Venue) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.blockedVenues[v]
	return ok && time.Now().Before(until)
}

// SetGlobalCooldown arms a global cooldown until now+d.
func (r *Reputation) SetGlobalCooldown(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globalCooldownUntil = time.Now().Add(d)
}

// GlobalCooldownUntil returns the current global cooldown deadline.
func (r *Reputation) GlobalCooldownUntil() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.globalCooldownUntil
}

// OnAttemptFailure grows the exponential failure-pause backoff. Per
// spec.md section 9's open question, the first failure sets the pause
// to the configured base (current starts at 0, and max(base,
// round(0*backoff)) collapses to base); subsequent consecutive
// failures grow it geometrically.
func (r *Reputation) OnAttemptFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	grown := math.Round(r.failurePauseMs * r.cfgCir.FailurePauseBackoff)
	next := float64(r.cfgCir.FailurePauseMs)
	if grown > next {
		next = grown
	}
	if next > float64(r.cfgCir.FailurePauseMaxMs) {
		next = float64(r.cfgCir.FailurePauseMaxMs)
	}
	r.failurePauseMs = next
	r.failurePauseUntil = time.Now().Add(time.Duration(next) * time.Millisecond)
}

// OnAttemptSuccess clears the failure-pause backoff.
func (r *Reputation) OnAttemptSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failurePauseMs = 0
	r.failurePauseUntil = time.Time{}
}

// FailurePauseUntil returns the current failure-pause deadline.
func (r *Reputation) FailurePauseUntil() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failurePauseUntil
}

// Circuit exposes the gobreaker-backed circuit gate (spec.md section 4.8).
func (r *Reputation) Circuit() *Circuit { return r.circuit }

// IsDegraded reports whether the router is currently in degrade mode,
// and exits degrade mode once enough time and consecutive successes
// have accumulated (spec.md section 4.8).
func (r *Reputation) IsDegraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isDegradedLocked()
}

func (r *Reputation) isDegradedLocked() bool {
	if r.degradedUntil.IsZero() || time.Now().After(r.degradedUntil) {
		return false
	}
	elapsed := time.Since(r.degradeAt)
	if elapsed >= time.Duration(r.cfgDeg.ExitMs)*time.Millisecond && r.degradeConsecutiveSuccesses >= r.cfgDeg.ExitSuccesses {
		return false
	}
	return true
}

// EnterDegrade arms degrade mode for cfgDeg.Ms.
func (r *Reputation) EnterDegrade(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degradedUntil = time.Now().Add(time.Duration(r.cfgDeg.Ms) * time.Millisecond)
	r.degradeReason = reason
	r.degradeAt = time.Now()
	r.degradeConsecutiveSuccesses = 0
}

// RecordDegradeOutcome tracks consecutive successes for degrade exit.
func (r *Reputation) RecordDegradeOutcome(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.degradeConsecutiveSuccesses++
	} else {
		r.degradeConsecutiveSuccesses = 0
	}
}

// RecordConsistencyFailure accumulates consistency failures within the
// configured window; once the limit is reached it either engages
// degrade mode or sets a standalone consistency-override deadline,
// and optionally engages the tighter consistency template.
func (r *Reputation) RecordConsistencyFailure(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if r.consistencyFailWindowStart.IsZero() || now.Sub(r.consistencyFailWindowStart) > time.Duration(r.cfgCon.FailWindowMs)*time.Millisecond {
		r.consistencyFailWindowStart = now
		r.consistencyFailCount = 0
	}
	r.consistencyFailCount++
	r.lastConsistencyFailureAt = now
	r.lastConsistencyFailureReason = reason

	if r.consistencyFailCount < r.cfgCon.FailLimit {
		return
	}

	if r.cfgCon.UseDegradeProfile {
		r.degradedUntil = now.Add(time.Duration(r.cfgCon.DegradeMs) * time.Millisecond)
		r.degradeReason = "consistency:" + reason
		r.degradeAt = now
		r.degradeConsecutiveSuccesses = 0
	} else {
		r.consistencyOverrideUntil = now.Add(time.Duration(r.cfgCon.DegradeMs) * time.Millisecond)
	}

	if r.cfgCon.TemplateEnabled {
		r.consistencyTemplateActiveUntil = now.Add(time.Duration(r.cfgCon.TemplateMs) * time.Millisecond)
	}

	r.consistencyFailCount = 0
	log.Warn().Str("reason", reason).Msg("consistency failure limit reached; degrading")
}

// ConsistencyOverrideActive reports whether a bare consistency
// override (no degrade profile) is currently active.
func (r *Reputation) ConsistencyOverrideActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.consistencyOverrideUntil.IsZero() && time.Now().Before(r.consistencyOverrideUntil)
}

// ConsistencyTemplateActive reports whether the tighter consistency
// template is currently engaged.
func (r *Reputation) ConsistencyTemplateActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.consistencyTemplateActiveUntil.IsZero() && time.Now().Before(r.consistencyTemplateActiveUntil)
}

// DegradeReason returns the last reason degrade mode was entered for.
func (r *Reputation) DegradeReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degradeReason
}

// AllTokenScores returns a snapshot of every known token's score, for
// C10 to persist.
func (r *Reputation) AllTokenScores() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64, len(r.tokenScores))
	for k, v := range r.tokenScores {
		out[k] = v.Score
	}
	return out
}

// AllVenueScores returns a snapshot of every known venue's score, for
// C10 to persist.
func (r *Reputation) AllVenueScores() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64, len(r.venueScores))
	for k, v := range r.venueScores {
		out[string(k)] = v.Score
	}
	return out
}

// AllBlockedTokens returns a snapshot of the token blocklist deadlines.
func (r *Reputation) AllBlockedTokens() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]time.Time, len(r.blockedTokens))
	for k, v := range r.blockedTokens {
		out[k] = v
	}
	return out
}

// AllBlockedVenues returns a snapshot of the venue blocklist deadlines.
func (r *Reputation) AllBlockedVenues() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]time.Time, len(r.blockedVenues))
	for k, v := range r.blockedVenues {
		out[string(k)] = v
	}
	return out
}

// RestoreScores seeds the token/venue score maps and blocklists from a
// persisted snapshot (spec.md section 4.10: "on start the state file
// is read if present ... expired blocks are ignored"). Callers must
// have already dropped expired entries from the blocklist maps.
func (r *Reputation) RestoreScores(tokenScores, venueScores map[string]float64, blockedTokens, blockedVenues map[string]time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range tokenScores {
		r.tokenScores[k] = &ScoreEntry{Score: clampScore(v)}
	}
	for k, v := range venueScores {
		r.venueScores[router.Venue(k)] = &ScoreEntry{Score: clampScore(v)}
	}
	for k, v := range blockedTokens {
		r.blockedTokens[k] = v
	}
	for k, v := range blockedVenues {
		r.blockedVenues[router.Venue(k)] = v
	}
}
