// Package metrics provides Prometheus metrics for Study Addict:
// progression events, study volume, sync outcomes, sessions, the save
// queue, health checks and HTTP requests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// ─── Progression ────────────────────────────────────────────────────────────

// EventsTotal counts emitted progression events by kind.
var EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyaddict",
	Name:      "events_total",
	Help:      "Total progression events by kind.",
}, []string{"kind"})

// XPGained counts XP granted after the prestige multiplier.
var XPGained = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "studyaddict",
	Name:      "xp_gained_total",
	Help:      "Total XP granted across sessions.",
})

// StudyMinutes counts recorded study minutes.
var StudyMinutes = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "studyaddict",
	Name:      "study_minutes_total",
	Help:      "Total study minutes recorded.",
})

// LevelReached tracks the distribution of levels reached on level-up.
var LevelReached = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "studyaddict",
	Name:      "level_reached",
	Help:      "Level reached at each level-up.",
	Buckets:   []float64{2, 5, 10, 20, 30, 50, 75, 100},
})

// BadgeUnlocks counts badge unlocks by badge.
var BadgeUnlocks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyaddict",
	Name:      "badge_unlocks_total",
	Help:      "Total badge unlocks by badge ID.",
}, []string{"badge"})

// MissionClaims counts mission payouts by mission.
var MissionClaims = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyaddict",
	Name:      "mission_claims_total",
	Help:      "Total mission claims by mission ID.",
}, []string{"mission"})

// RewardPurchases counts shop purchases by reward.
var RewardPurchases = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyaddict",
	Name:      "reward_purchases_total",
	Help:      "Total reward purchases by reward ID.",
}, []string{"reward"})

// ─── Sync ───────────────────────────────────────────────────────────────────

// SyncResults counts sync status reports by status (ok, guest, error).
var SyncResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyaddict",
	Name:      "sync_results_total",
	Help:      "Sync status reports by status.",
}, []string{"status"})

// SaveQueuePending tracks pending background saves.
var SaveQueuePending = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "studyaddict",
	Name:      "save_queue_pending",
	Help:      "Background saves waiting to be written.",
})

// SaveQueueDropped tracks saves evicted by a full queue.
var SaveQueueDropped = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "studyaddict",
	Name:      "save_queue_dropped",
	Help:      "Background saves dropped since start.",
})

// SessionsActive tracks live sessions held by the server.
var SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "studyaddict",
	Name:      "sessions_active",
	Help:      "Number of live progression sessions.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "studyaddict",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyaddict",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequestDuration tracks API request latency.
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "studyaddict",
	Name:      "http_request_duration_seconds",
	Help:      "API request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "code"})

// ─── Event Recorder ─────────────────────────────────────────────────────────

// Record updates the progression metrics for one event.
// It matches events.Handler.
func Record(ev domain.Event) {
	EventsTotal.WithLabelValues(string(ev.Kind)).Inc()

	switch ev.Kind {
	case domain.EventXPGained:
		XPGained.Add(float64(ev.Amount))
	case domain.EventLevelUp:
		LevelReached.Observe(float64(ev.Level))
	case domain.EventBadgeUnlocked:
		BadgeUnlocks.WithLabelValues(ev.BadgeID).Inc()
	case domain.EventMissionClaimed:
		MissionClaims.WithLabelValues(ev.MissionID).Inc()
	case domain.EventRewardPurchased:
		RewardPurchases.WithLabelValues(ev.RewardID).Inc()
	case domain.EventSyncStatus:
		SyncResults.WithLabelValues(string(ev.Status)).Inc()
	}
}
