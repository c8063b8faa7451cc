package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biblio_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "biblio_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// RequestsCreated counts workflow requests accepted, by request type.
	RequestsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biblio_requests_created_total",
		Help: "Total number of workflow requests created",
	}, []string{"type"})

	// RequestsDecided counts terminal decisions, by request type and action.
	RequestsDecided = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biblio_requests_decided_total",
		Help: "Total number of workflow requests approved or rejected",
	}, []string{"type", "action"})

	// EmailsSent counts notification e-mails handed to the mailer, by event.
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biblio_emails_sent_total",
		Help: "Total number of notification e-mails sent",
	}, []string{"event"})

	// EmailsFailed counts notification e-mails that could not be rendered or
	// delivered, by event.
	EmailsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biblio_emails_failed_total",
		Help: "Total number of notification e-mails that failed",
	}, []string{"event"})

	// AccessCodesIssued counts download access codes issued.
	AccessCodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biblio_access_codes_issued_total",
		Help: "Total number of download access codes issued",
	})

	// EventFeedConnections is the gauge of live admin event-feed sockets.
	EventFeedConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "biblio_event_feed_connections",
		Help: "Number of active admin event feed WebSocket connections",
	})
)

// DatabaseMetrics wraps DB access for recording query latency.
type DatabaseMetrics struct {
	db *gorm.DB
}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics(db *gorm.DB) *DatabaseMetrics {
	return &DatabaseMetrics{db: db}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation, table string, start time.Time) {
	latency := time.Since(start).Seconds()
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(latency)
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, table, start)
	}
}
