package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Number of open realtime connections in this process",
		},
	)

	RealtimeOnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_online_users",
			Help: "Number of users with at least one open realtime connection",
		},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of persisted notifications",
		},
		[]string{"type"},
	)

	NotificationDeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_failures_total",
			Help: "Best-effort notification deliveries that failed",
		},
		[]string{"channel"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maintenance_sweep_duration_seconds",
			Help:    "Duration of scheduled maintenance sweeps",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 15, 60},
		},
		[]string{"sweep"},
	)

	SweepItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_sweep_items_total",
			Help: "Records changed or notified by maintenance sweeps",
		},
		[]string{"sweep"},
	)
)
