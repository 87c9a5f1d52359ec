// Package telemetry implements C10: prometheus counters/histograms for
// the router's attempt pipeline, EMA-smoothed latency and drift
// metrics, a failure-reason histogram, and atomic JSON persistence of
// both the metrics snapshot and the reputation/controller state.
// Grounded on the teacher's internal/interfaces/http.MetricsRegistry
// prometheus registry (MetricsRegistry, StepTimer), generalised from
// pipeline steps to router attempts/preflight stages/hedges.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/arbrouter/internal/router"
)

// Registry holds every prometheus metric the router exposes on
// /metrics, plus the EMA/histogram state C10 persists alongside them.
type Registry struct {
	AttemptsTotal   *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	PreflightStage  *prometheus.CounterVec
	HedgesTotal     *prometheus.CounterVec
	ReasonTotal     *prometheus.CounterVec
	QualityGauge    prometheus.Gauge
	CircuitState    prometheus.Gauge

	mu          sync.Mutex
	emaAlpha    float64
	emaLatency  map[string]float64
	emaDriftBps float64
	reasonCount map[router.ErrorKind]int64
}

// NewRegistry builds and registers every metric. Call once per process.
func NewRegistry() *Registry {
	r := &Registry{
		AttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbrouter_attempts_total",
			Help: "Total execution attempts by outcome.",
		}, []string{"outcome"}),
		AttemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbrouter_attempt_duration_seconds",
			Help:    "Wall-clock duration of one execute() attempt.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage"}),
		PreflightStage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbrouter_preflight_stage_total",
			Help: "Preflight stage outcomes.",
		}, []string{"stage", "result"}),
		HedgesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbrouter_hedges_total",
			Help: "Hedge orders submitted by venue and outcome.",
		}, []string{"venue", "outcome"}),
		ReasonTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbrouter_failure_reason_total",
			Help: "Failed attempts by reason kind.",
		}, []string{"reason"}),
		QualityGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbrouter_quality_score",
			Help: "Current C9 quality score in [minFactor, maxFactor].",
		}),
		CircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbrouter_circuit_state",
			Help: "0=closed 1=half-open 2=open.",
		}),
		emaAlpha:    0.2,
		emaLatency:  make(map[string]float64),
		reasonCount: make(map[router.ErrorKind]int64),
	}

	prometheus.MustRegister(
		r.AttemptsTotal, r.AttemptDuration, r.PreflightStage,
		r.HedgesTotal, r.ReasonTotal, r.QualityGauge, r.CircuitState,
	)
	return r
}

// RecordAttempt records one completed attempt's outcome and duration.
func (r *Registry) RecordAttempt(outcome string, stage string, seconds float64) {
	r.AttemptsTotal.WithLabelValues(outcome).Inc()
	r.AttemptDuration.WithLabelValues(stage).Observe(seconds)
	r.observeLatency(stage, seconds*1000)
}

// RecordPreflightStage records one preflight stage's pass/fail.
func (r *Registry) RecordPreflightStage(stage, result string) {
	r.PreflightStage.WithLabelValues(stage, result).Inc()
}

// RecordHedge records a hedge order outcome for a venue.
func (r *Registry) RecordHedge(venue router.Venue, outcome string) {
	r.HedgesTotal.WithLabelValues(string(venue), outcome).Inc()
}

// RecordFailure records a failed attempt's reason kind, both in
// prometheus and in the in-memory histogram C10 persists.
func (r *Registry) RecordFailure(kind router.ErrorKind) {
	r.ReasonTotal.WithLabelValues(string(kind)).Inc()
	r.mu.Lock()
	r.reasonCount[kind]++
	r.mu.Unlock()
}

// RecordDrift folds a post-trade drift observation (bps) into the EMA.
func (r *Registry) RecordDrift(bps float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emaDriftBps == 0 {
		r.emaDriftBps = bps
		return
	}
	r.emaDriftBps = r.emaAlpha*bps + (1-r.emaAlpha)*r.emaDriftBps
}

// SetQuality publishes C9's current quality score.
func (r *Registry) SetQuality(q float64) { r.QualityGauge.Set(q) }

// SetCircuitState publishes C8's circuit breaker state as a 0/1/2 gauge.
func (r *Registry) SetCircuitState(state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	r.CircuitState.Set(v)
}

func (r *Registry) observeLatency(stage string, ms float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.emaLatency[stage]
	if !ok {
		r.emaLatency[stage] = ms
		return
	}
	r.emaLatency[stage] = r.emaAlpha*ms + (1-r.emaAlpha)*prev
}

// Snapshot is what C10 persists to the metrics path every
// metricsFlushMs (spec.md section 4.10).
type Snapshot struct {
	EmaLatencyMs map[string]float64         `json:"ema_latency_ms"`
	EmaDriftBps  float64                    `json:"ema_drift_bps"`
	ReasonCounts map[router.ErrorKind]int64 `json:"reason_counts"`
}

// Snapshot returns a consistent read of the EMA/histogram state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	latency := make(map[string]float64, len(r.emaLatency))
	for k, v := range r.emaLatency {
		latency[k] = v
	}
	reasons := make(map[router.ErrorKind]int64, len(r.reasonCount))
	for k, v := range r.reasonCount {
		reasons[k] = v
	}
	return Snapshot{EmaLatencyMs: latency, EmaDriftBps: r.emaDriftBps, ReasonCounts: reasons}
}

// LogSummary writes a periodic human-readable summary, the way the
// teacher logs step timer completions (internal/infrastructure's
// StepTimer.Stop).
func (r *Registry) LogSummary() {
	snap := r.Snapshot()
	log.Info().
		Interface("ema_latency_ms", snap.EmaLatencyMs).
		Float64("ema_drift_bps", snap.EmaDriftBps).
		Interface("reason_counts", snap.ReasonCounts).
		Msg("metrics summary")
}
