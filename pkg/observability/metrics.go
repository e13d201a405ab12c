// Package observability holds the Prometheus metrics for the service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// WebSocket metrics
	ActiveConnections prometheus.Gauge
	MessagesSent      prometheus.Counter
	MessagesFailed    prometheus.Counter
	MessagesDebounced prometheus.Counter

	// Graph metrics
	PodsCreated      prometheus.Counter
	PodsMoved        prometheus.Counter
	VersionConflicts prometheus.Counter
	LockConflicts    prometheus.Counter

	// Repository metrics
	DBOperations *prometheus.CounterVec
	DBDuration   *prometheus.HistogramVec
}

// NewCollector creates a metrics collector with its own registry, so tests
// can build as many as they like without duplicate registration panics.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	activeConnections := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_active_connections",
			Help:      "Current number of registered WebSocket connections",
		},
	)

	messagesSent := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_sent_total",
			Help:      "Total number of WebSocket messages delivered to a client channel",
		},
	)

	messagesFailed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_failed_total",
			Help:      "Total number of WebSocket messages dropped because a client channel was full",
		},
	)

	messagesDebounced := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_debounced_total",
			Help:      "Total number of duplicate events suppressed by the debounce window",
		},
	)

	podsCreated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pods_created_total",
			Help:      "Total number of pods created",
		},
	)

	podsMoved := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pods_moved_total",
			Help:      "Total number of pods moved across flows",
		},
	)

	versionConflicts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflicts_total",
			Help:      "Total number of writes rejected by the version check",
		},
	)

	lockConflicts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_conflicts_total",
			Help:      "Total number of lock acquisitions rejected because another holder had the pod",
		},
	)

	dbOperations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_operations_total",
			Help:      "Total number of database operations",
		},
		[]string{"operation", "table", "status"},
	)

	dbDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_operation_duration_seconds",
			Help:      "Database operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	registry.MustRegister(
		httpRequests,
		httpDuration,
		activeConnections,
		messagesSent,
		messagesFailed,
		messagesDebounced,
		podsCreated,
		podsMoved,
		versionConflicts,
		lockConflicts,
		dbOperations,
		dbDuration,
	)

	return &Collector{
		registry:          registry,
		HTTPRequests:      httpRequests,
		HTTPDuration:      httpDuration,
		ActiveConnections: activeConnections,
		MessagesSent:      messagesSent,
		MessagesFailed:    messagesFailed,
		MessagesDebounced: messagesDebounced,
		PodsCreated:       podsCreated,
		PodsMoved:         podsMoved,
		VersionConflicts:  versionConflicts,
		LockConflicts:     lockConflicts,
		DBOperations:      dbOperations,
		DBDuration:        dbDuration,
	}
}

// Registry returns the Prometheus registry backing this collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
