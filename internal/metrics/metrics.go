package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created",
		},
	)

	OrdersReplayedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_replayed_total",
			Help: "Total number of duplicate submissions resolved to an existing order",
		},
	)

	WebhooksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_processed_total",
			Help: "Webhook deliveries by outcome (applied, skipped, flagged, failed)",
		},
		[]string{"outcome"},
	)

	ReconciliationRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_repairs_total",
			Help: "Reconciliation actions by kind (orphan_fixed, payment_expired, alert_raised)",
		},
		[]string{"kind"},
	)

	NotificationsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Notification queue dispatch outcomes (sent, retried, failed)",
		},
		[]string{"outcome"},
	)

	ProviderRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Duration of payment provider API calls",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register registers all collectors with the default registry.
func Register() {
	prometheus.MustRegister(OrdersCreatedTotal)
	prometheus.MustRegister(OrdersReplayedTotal)
	prometheus.MustRegister(WebhooksProcessedTotal)
	prometheus.MustRegister(ReconciliationRepairsTotal)
	prometheus.MustRegister(NotificationsDispatchedTotal)
	prometheus.MustRegister(ProviderRequestDuration)
}
