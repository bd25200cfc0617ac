package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetsync",
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Rows processed by the import pipeline, by collection, source and outcome.",
	}, []string{"collection", "source", "outcome"})

	importDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleetsync",
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Import invocation duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"collection", "trigger"})

	importFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetsync",
		Subsystem: "import",
		Name:      "failures_total",
		Help:      "Import invocations that failed, by collection and error type.",
	}, []string{"collection", "type"})

	diagnosticRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetsync",
		Subsystem: "import",
		Name:      "diagnostic_requests_total",
		Help:      "Requests short-circuited because they carried the diagnostic marker.",
	})

	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetsync",
		Subsystem: "webbook",
		Name:      "fetch_total",
		Help:      "Web book fetches by job and status.",
	}, []string{"job", "status"})

	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetsync",
		Subsystem: "webbook",
		Name:      "alerts_total",
		Help:      "Alerts raised by scheduled jobs.",
	}, []string{"job"})

	probeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetsync",
		Subsystem: "diagnostics",
		Name:      "probes_total",
		Help:      "Diagnostic probes by endpoint and status code.",
	}, []string{"endpoint", "code"})

	probeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fleetsync",
		Subsystem: "diagnostics",
		Name:      "probe_duration_seconds",
		Help:      "Diagnostic probe round trip in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
)

// RecordRows adds n rows with the given outcome (imported, skipped, skipped_existing)
func RecordRows(collection, source, outcome string, n int) {
	if n <= 0 {
		return
	}
	rowsTotal.WithLabelValues(collection, source, outcome).Add(float64(n))
}

// ObserveImport records one invocation's duration
func ObserveImport(collection, trigger string, d time.Duration) {
	importDuration.WithLabelValues(collection, trigger).Observe(d.Seconds())
}

// RecordImportFailure counts a failed invocation
func RecordImportFailure(collection, errType string) {
	importFailures.WithLabelValues(collection, errType).Inc()
}

// RecordDiagnosticRequest counts a short-circuited probe request
func RecordDiagnosticRequest() {
	diagnosticRequests.Inc()
}

// RecordFetch counts a web book fetch. status is "ok" or "error".
func RecordFetch(job, status string) {
	fetchTotal.WithLabelValues(job, status).Inc()
}

// RecordAlert counts an alert raised for job
func RecordAlert(job string) {
	alertsTotal.WithLabelValues(job).Inc()
}

// RecordProbe counts a probe result. A zero code means no response was received.
func RecordProbe(endpoint string, code int, d time.Duration) {
	probeTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	probeLatency.Observe(d.Seconds())
}
