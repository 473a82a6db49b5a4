// Package metrics provides Prometheus metrics for logmon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "logmon"
)

// Ingestion metrics
var (
	// IngestLinesTotal counts processed lines by outcome (stored, failed).
	IngestLinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "lines_total",
			Help:      "Total log lines processed by outcome",
		},
		[]string{"outcome"},
	)

	// IngestClassificationsTotal counts stored records by final classification.
	IngestClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "classifications_total",
			Help:      "Total stored log records by classification",
		},
		[]string{"classification"},
	)

	// IngestCommitsTotal counts transaction commits.
	IngestCommitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "commits_total",
			Help:      "Total ingestion transaction commits",
		},
	)

	// IngestRunsTotal counts ingestion runs by result (ok, failed).
	IngestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Total ingestion runs by result",
		},
		[]string{"result"},
	)
)

// Template metrics
var (
	// TemplatesCreatedTotal counts templates by kind (auto, manual).
	TemplatesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "templates",
			Name:      "created_total",
			Help:      "Total templates created by kind",
		},
		[]string{"kind"},
	)

	// ManualMatchesTotal counts lines bound by a manual template scan.
	ManualMatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "templates",
			Name:      "manual_matches_total",
			Help:      "Total lines bound to a manual template by search",
		},
	)

	// InvalidManualRegex tracks manual templates skipped for an invalid regex.
	InvalidManualRegex = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "templates",
			Name:      "invalid_manual_regex",
			Help:      "Manual templates skipped because their regex does not compile",
		},
	)
)

// Rule metrics
var (
	// RuleMatchesTotal counts rule matches by kind and severity.
	RuleMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "matches_total",
			Help:      "Total rule matches by kind and severity",
		},
		[]string{"kind", "severity"},
	)
)

// Alert metrics
var (
	// AlertsEnqueuedTotal counts alerts queued by type.
	AlertsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "enqueued_total",
			Help:      "Total alerts queued by type",
		},
		[]string{"type"},
	)

	// NotificationsTotal counts delivery attempts by channel and result.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "notifications_total",
			Help:      "Total notification attempts by channel and result",
		},
		[]string{"channel", "result"},
	)

	// NotificationsThrottledTotal counts deliveries deferred by rate limiting.
	NotificationsThrottledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "notifications_throttled_total",
			Help:      "Total notifications deferred by rate limiting",
		},
		[]string{"channel"},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
