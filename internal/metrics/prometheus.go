package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the notifier
type PrometheusMetrics struct {
	// Pipeline metrics
	EventsReceivedTotal         *prometheus.CounterVec
	NotificationsSentTotal      *prometheus.CounterVec
	NotificationFailuresTotal   *prometheus.CounterVec
	NotificationsThrottledTotal *prometheus.CounterVec
	NotificationDuration        *prometheus.HistogramVec

	// Queue metrics
	QueueDepth        prometheus.Gauge
	QueueDroppedTotal prometheus.Counter

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		EventsReceivedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_events_received_total",
				Help: "Total number of detection events received",
			},
			[]string{"event_type", "priority"},
		),

		NotificationsSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_notifications_sent_total",
				Help: "Total number of notifications delivered successfully",
			},
			[]string{"channel", "priority"},
		),

		NotificationFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_notification_failures_total",
				Help: "Total number of failed delivery attempts",
			},
			[]string{"channel", "priority"},
		),

		NotificationsThrottledTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_notifications_throttled_total",
				Help: "Total number of notifications suppressed by throttling",
			},
			[]string{"priority"},
		),

		NotificationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_notification_duration_seconds",
				Help:    "Time spent delivering individual notifications",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),

		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifier_queue_depth",
				Help: "Number of delivery jobs waiting in the queue",
			},
		),

		QueueDroppedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "notifier_queue_dropped_total",
				Help: "Total number of jobs shed because the queue was full",
			},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_database_operation_duration_seconds",
				Help:    "Time spent on database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_http_request_duration_seconds",
				Help:    "Time spent serving HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifier_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "notifier_component_health",
				Help: "Component health status (1 healthy, 0 unhealthy)",
			},
			[]string{"component"},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifier_goroutines",
				Help: "Number of goroutines",
			},
		),
	}
}

// RecordEventReceived records an incoming detection event
func (m *PrometheusMetrics) RecordEventReceived(eventType, priority string) {
	m.EventsReceivedTotal.WithLabelValues(eventType, priority).Inc()
}

// RecordNotificationSent records a successful delivery
func (m *PrometheusMetrics) RecordNotificationSent(channel, priority string, duration time.Duration) {
	m.NotificationsSentTotal.WithLabelValues(channel, priority).Inc()
	m.NotificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordNotificationFailure records a failed delivery attempt
func (m *PrometheusMetrics) RecordNotificationFailure(channel, priority string) {
	m.NotificationFailuresTotal.WithLabelValues(channel, priority).Inc()
}

// RecordThrottled records a suppressed notification
func (m *PrometheusMetrics) RecordThrottled(priority string) {
	m.NotificationsThrottledTotal.WithLabelValues(priority).Inc()
}

// UpdateQueueDepth updates the pending job gauge
func (m *PrometheusMetrics) UpdateQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// RecordQueueDrop records a job shed from a full queue
func (m *PrometheusMetrics) RecordQueueDrop() {
	m.QueueDroppedTotal.Inc()
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the uptime gauge
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates a component health gauge
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateGoroutineCount updates the goroutine gauge
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
