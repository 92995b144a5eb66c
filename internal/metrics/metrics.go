// Package metrics declares the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by the counters below.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultFatal   = "fatal"
)

var (
	// SyncRuns counts completed property syncs by result.
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plutus_sync_runs_total",
		Help: "Property syncs by result",
	}, []string{"result"})

	// SyncDuration observes wall time per property sync.
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plutus_sync_duration_seconds",
		Help:    "Wall time of a single property sync",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// CursorResets counts sync token invalidations recovered by a full resync.
	CursorResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plutus_sync_cursor_resets_total",
		Help: "Sync cursor invalidations that forced a full resync",
	})

	// ReconciledEvents counts reconciler outcomes by action.
	ReconciledEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plutus_reconciled_events_total",
		Help: "Provider events reconciled into bookings, by action",
	}, []string{"action"})

	// WebhookNotifications counts inbound push deliveries by outcome.
	WebhookNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plutus_webhook_notifications_total",
		Help: "Inbound calendar push notifications by outcome",
	}, []string{"outcome"})

	// ChannelOperations counts watch/stop calls by operation and result.
	ChannelOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plutus_channel_operations_total",
		Help: "Notification channel operations by operation and result",
	}, []string{"operation", "result"})

	// Projections counts outbound projector calls by operation and result.
	Projections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plutus_projections_total",
		Help: "Outbound booking projections by operation and result",
	}, []string{"operation", "result"})
)

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
