// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics shared by the identity, lore and mythology services.
var (
	// Moderation counters.
	ModerationActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lore_moderation_actions_total",
			Help: "Total moderation decisions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	SideEffectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lore_side_effect_failures_total",
			Help: "Best-effort moderation side effects that failed after the primary change committed",
		},
		[]string{"effect"},
	)

	AuditLogFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lore_audit_log_failures_total",
			Help: "Audit log entries that could not be written",
		},
	)

	TestimoniesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lore_testimonies_created_total",
			Help: "Total testimonies submitted",
		},
	)

	TestimoniesRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lore_testimonies_rate_limited_total",
			Help: "Testimony submissions refused by the per-creature cooldown",
		},
	)

	LegendScoreRecomputesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lore_legend_score_recomputes_total",
			Help: "Legend score recomputations by trigger and status",
		},
		[]string{"trigger", "status"},
	)

	// Identity counters.
	ReputationUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_reputation_updates_total",
			Help: "Reputation deltas applied, by direction",
		},
		[]string{"direction"},
	)

	PromotionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "identity_promotions_total",
			Help: "Automatic USER to EXPERT promotions",
		},
	)

	IdentityClientRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_client_requests_total",
			Help: "Outbound calls to the identity service by operation and result",
		},
		[]string{"operation", "result"},
	)

	TokenCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lore_token_cache_lookups_total",
			Help: "Verified-token cache lookups by result",
		},
		[]string{"result"},
	)

	// Mythology counters.
	LoreClientRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mythology_lore_requests_total",
			Help: "Outbound calls to the lore service by operation and result",
		},
		[]string{"operation", "result"},
	)

	// HTTP metrics.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by service, method, route and status",
		},
		[]string{"service", "method", "route", "status"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "route"},
	)

	// Reconciliation job metrics.
	ReconcileJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lore_reconcile_jobs_run_total",
			Help: "Total legend score reconciliation runs",
		},
		[]string{"status"},
	)

	ReconcileCorrectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lore_reconcile_corrections_total",
			Help: "Legend scores found stale and rewritten by the reconciliation job",
		},
	)

	ReconcileLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lore_reconcile_last_run_timestamp",
			Help: "Unix timestamp of last reconciliation run",
		},
	)

	ReconcileDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lore_reconcile_duration_seconds",
			Help:    "Time taken to reconcile all legend scores",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)
)

// RecordModerationAction records a moderation decision and whether it committed.
func RecordModerationAction(action, outcome string) {
	ModerationActionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordSideEffectFailure records a failed best-effort side effect.
func RecordSideEffectFailure(effect string) {
	SideEffectFailuresTotal.WithLabelValues(effect).Inc()
}

// RecordAuditLogFailure records an audit entry that was dropped.
func RecordAuditLogFailure() {
	AuditLogFailuresTotal.Inc()
}

// RecordTestimonyCreated records a new testimony.
func RecordTestimonyCreated() {
	TestimoniesCreatedTotal.Inc()
}

// RecordTestimonyRateLimited records a refused testimony submission.
func RecordTestimonyRateLimited() {
	TestimoniesRateLimitedTotal.Inc()
}

// RecordLegendScoreRecompute records a recomputation triggered by moderation or reconciliation.
func RecordLegendScoreRecompute(trigger, status string) {
	LegendScoreRecomputesTotal.WithLabelValues(trigger, status).Inc()
}

// RecordReputationUpdate records an applied reputation delta.
func RecordReputationUpdate(delta int, promoted bool) {
	direction := "up"
	if delta < 0 {
		direction = "down"
	}
	ReputationUpdatesTotal.WithLabelValues(direction).Inc()
	if promoted {
		PromotionsTotal.Inc()
	}
}

// RecordIdentityClientRequest records an outbound identity-service call.
func RecordIdentityClientRequest(operation, result string) {
	IdentityClientRequestsTotal.WithLabelValues(operation, result).Inc()
}

// RecordTokenCacheLookup records a token cache hit, miss or error.
func RecordTokenCacheLookup(result string) {
	TokenCacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordLoreClientRequest records an outbound lore-service call.
func RecordLoreClientRequest(operation, result string) {
	LoreClientRequestsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(service, method, route, status string, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(service, method, route, status).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(service, route).Observe(seconds)
}

// RecordReconcileRun records a reconciliation job execution.
func RecordReconcileRun(status string) {
	ReconcileJobsRunTotal.WithLabelValues(status).Inc()
}

// RecordReconcileCorrections adds the number of stale scores fixed by a run.
func RecordReconcileCorrections(n int) {
	ReconcileCorrectionsTotal.Add(float64(n))
}

// SetReconcileLastRun sets the timestamp of the last reconciliation run.
func SetReconcileLastRun() {
	ReconcileLastRunTimestamp.SetToCurrentTime()
}

// ObserveReconcileDuration observes the duration of a reconciliation run.
func ObserveReconcileDuration(seconds float64) {
	ReconcileDurationSeconds.Observe(seconds)
}
