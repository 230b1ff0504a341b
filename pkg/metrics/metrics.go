package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Scan metrics
	ScanRuns            *prometheus.CounterVec
	ScanDuration        prometheus.Histogram
	PatientsEvaluated   prometheus.Counter
	EvaluationFailures  *prometheus.CounterVec
	RuleFailures        *prometheus.CounterVec
	AlertsCreated       *prometheus.CounterVec
	AlertsSuppressed    *prometheus.CounterVec
	AlertsResolved      prometheus.Counter
	RecipientWarnings   prometheus.Counter
	AuditFailures       prometheus.Counter
	ProviderCallLatency *prometheus.HistogramVec

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxEventsPurged      prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all application metrics and registers them on reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		ScanRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of scan cycles by outcome",
		}, []string{"outcome"}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Time spent running one scan cycle",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PatientsEvaluated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "patients_evaluated_total",
			Help:      "Total number of patient evaluations",
		}),
		EvaluationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "evaluation_failures_total",
			Help:      "Patient evaluations that failed, by kind",
		}, []string{"kind"}),
		RuleFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "failures_total",
			Help:      "Rule predicates that returned an error or panicked",
		}, []string{"rule"}),
		AlertsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Alerts created",
		}, []string{"alert_type", "severity"}),
		AlertsSuppressed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Candidate alerts suppressed, by reason",
		}, []string{"reason"}),
		AlertsResolved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "resolved_total",
			Help:      "Alerts resolved",
		}),
		RecipientWarnings: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "recipient_warnings_total",
			Help:      "Alerts created without a required doctor recipient",
		}),
		AuditFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "failures_total",
			Help:      "Change log entries that could not be recorded",
		}),
		ProviderCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Clinical data provider call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),

		OutboxEventsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxEventsPurged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_purged_total",
			Help:      "Processed outbox events removed by retention cleanup",
		}),

		DatabaseOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// NewTestMetrics registers on a throwaway registry so tests can build many instances.
func NewTestMetrics() *Metrics {
	return NewMetrics("test", prometheus.NewRegistry())
}
