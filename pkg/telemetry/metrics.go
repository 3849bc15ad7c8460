package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Engine API ──────────────────────────────────────────────────────────────

	APIQuestsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hustlexp",
		Subsystem: "api",
		Name:      "quests_broadcast_total",
		Help:      "Total quests published into the live broadcast pool.",
	}, []string{"category"})

	APILiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hustlexp",
		Subsystem: "api",
		Name:      "live_sessions",
		Help:      "Workers currently in live mode.",
	})

	// ─── Claim arbitration ───────────────────────────────────────────────────────

	ClaimAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hustlexp",
		Subsystem: "claims",
		Name:      "attempts_total",
		Help:      "Total claim attempts, labelled by terminal result.",
	}, []string{"result"})

	ClaimLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hustlexp",
		Subsystem: "claims",
		Name:      "latency_seconds",
		Help:      "Time from claim request to arbitration outcome.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	// ─── On-the-way sessions ─────────────────────────────────────────────────────

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hustlexp",
		Subsystem: "sessions",
		Name:      "active",
		Help:      "On-the-way sessions currently being tracked.",
	})

	SessionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hustlexp",
		Subsystem: "sessions",
		Name:      "outcomes_total",
		Help:      "Terminal session outcomes: arrived, ghosted or cancelled.",
	}, []string{"outcome"})

	// ─── Proof validation ────────────────────────────────────────────────────────

	ProofScores = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hustlexp",
		Subsystem: "proof",
		Name:      "scores_total",
		Help:      "Proof submissions scored, labelled by recommendation.",
	}, []string{"recommendation"})

	// ─── Heat map ────────────────────────────────────────────────────────────────

	HeatMapRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hustlexp",
		Subsystem: "heatmap",
		Name:      "rebuilds_total",
		Help:      "Total heat map snapshot rebuilds.",
	})

	// ─── Auditor ─────────────────────────────────────────────────────────────────

	AuditorEventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hustlexp",
		Subsystem: "auditor",
		Name:      "events_consumed_total",
		Help:      "Quest events consumed from the stream, labelled by type.",
	}, []string{"type"})

	AuditorDLQTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hustlexp",
		Subsystem: "auditor",
		Name:      "dlq_total",
		Help:      "Events forwarded to the dead-letter topic (malformed or unprocessable).",
	})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hustlexp",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the location-report rate limiter.",
	})
)
