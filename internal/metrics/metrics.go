// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package metrics exposes the Prometheus instruments shared by the gateway,
// the notification pipeline and the HTTP API. All collectors register on the
// default registry through promauto and are served at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parley_db_query_duration_seconds",
			Help:    "Duration of PostgreSQL queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_db_query_errors_total",
			Help: "Total number of PostgreSQL query errors",
		},
		[]string{"operation"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parley_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	// Gateway Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_ws_connections",
			Help: "Current number of open /chat connections on this node",
		},
	)

	WSEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_ws_events_received_total",
			Help: "Client events received by the gateway",
		},
		[]string{"event"},
	)

	WSEventsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_ws_events_sent_total",
			Help: "Server events delivered to gateway clients",
		},
		[]string{"event"},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_ws_errors_total",
			Help: "Error events returned to gateway clients",
		},
		[]string{"code"},
	)

	WSSlowClientDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_ws_slow_client_drops_total",
			Help: "Connections closed because their send buffer was full",
		},
	)

	ChatMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_chat_messages_total",
			Help: "Chat message mutations accepted by the store",
		},
		[]string{"action"}, // "created", "edited", "deleted"
	)

	PresenceOnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_presence_online_users",
			Help: "Users with at least one open connection, as last observed by this node",
		},
	)

	// Notification pipeline Metrics
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_notifications_published_total",
			Help: "Notification jobs enqueued by the producer",
		},
		[]string{"type"},
	)

	NotificationPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_notification_publish_failures_total",
			Help: "Notification jobs the producer failed to enqueue",
		},
		[]string{"type"},
	)

	NotificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_notifications_suppressed_total",
			Help: "Notifications dropped because the recipient disabled every channel",
		},
		[]string{"type"},
	)

	NotificationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_notifications_processed_total",
			Help: "Notification jobs handled by the consumer by outcome",
		},
		[]string{"topic", "outcome"}, // outcome: "ok", "retry", "dead_letter"
	)

	NotificationProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parley_notification_processing_duration_seconds",
			Help:    "Time to process one notification job",
			Buckets: prometheus.DefBuckets,
		},
	)

	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_emails_sent_total",
			Help: "Emails handed to the SMTP relay by result",
		},
		[]string{"kind", "result"}, // kind: "notification", "password_reset"
	)

	// Asset cleanup Metrics
	AssetCleanupQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_asset_cleanup_queued_total",
			Help: "Asset cleanup jobs enqueued after message deletion",
		},
	)

	AssetCleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_asset_cleanup_failures_total",
			Help: "Asset cleanup jobs that failed or were dropped",
		},
	)

	// Cache Metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_cache_lookups_total",
			Help: "In-memory cache lookups by cache and result",
		},
		[]string{"cache", "result"}, // result: "hit", "miss"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parley_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordNotificationProcessed records one consumer outcome and its latency.
func RecordNotificationProcessed(topic, outcome string, duration time.Duration) {
	NotificationsProcessed.WithLabelValues(topic, outcome).Inc()
	NotificationProcessingDuration.Observe(duration.Seconds())
}

// RecordEmail records an SMTP delivery attempt.
func RecordEmail(kind string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	EmailsSent.WithLabelValues(kind, result).Inc()
}
