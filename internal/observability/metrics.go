package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	apiRequestsTotal       *prometheus.CounterVec
	apiLatencySeconds      *prometheus.HistogramVec
	wsConnectionsTotal     prometheus.Counter
	wsConnectionsActive    prometheus.Gauge
	presenceUsersGauge     prometheus.Gauge
	messagesSentTotal      *prometheus.CounterVec
	notificationsTotal     *prometheus.CounterVec
	notificationsDelivered *prometheus.CounterVec
	mentionsResolvedTotal  prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		wsConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_connections_total",
			Help: "Total number of websocket connections accepted.",
		})

		wsConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of currently open websocket connections.",
		})

		presenceUsersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presence_users_online",
			Help: "Number of users with a registered realtime connection.",
		})

		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of chat messages persisted, by chat kind.",
		}, []string{"kind"})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of notification rows persisted, by type.",
		}, []string{"type"})

		notificationsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_pushed_total",
			Help: "Total number of notifications pushed to a live connection, by type.",
		}, []string{"type"})

		mentionsResolvedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_mentions_resolved_total",
			Help: "Total number of mention tokens resolved to users.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			wsConnectionsTotal,
			wsConnectionsActive,
			presenceUsersGauge,
			messagesSentTotal,
			notificationsTotal,
			notificationsDelivered,
			mentionsResolvedTotal,
		)
	})
}

// APIRequests exposes the request counter.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the request latency histogram.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// ConnectionsTotal exposes the accepted-connection counter.
func ConnectionsTotal() prometheus.Counter {
	RegisterMetrics()
	return wsConnectionsTotal
}

// ConnectionsActive exposes the open-connection gauge.
func ConnectionsActive() prometheus.Gauge {
	RegisterMetrics()
	return wsConnectionsActive
}

// PresenceUsers exposes the online-user gauge.
func PresenceUsers() prometheus.Gauge {
	RegisterMetrics()
	return presenceUsersGauge
}

// MessagesSent exposes the persisted-message counter.
func MessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

// NotificationsCreated exposes the persisted-notification counter.
func NotificationsCreated() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsTotal
}

// NotificationsPushed exposes the realtime-delivery counter.
func NotificationsPushed() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsDelivered
}

// MentionsResolved exposes the resolved-mention counter.
func MentionsResolved() prometheus.Counter {
	RegisterMetrics()
	return mentionsResolvedTotal
}
