package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	reportOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progress_reports",
		Subsystem: "orchestrator",
		Name:      "reports_total",
		Help:      "Number of orchestration runs by final status and failure kind.",
	}, []string{"status", "failure_kind"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "progress_reports",
		Subsystem: "orchestrator",
		Name:      "run_duration_seconds",
		Help:      "Wall time of one orchestration run.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	unstructuredReplyCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progress_reports",
		Subsystem: "orchestrator",
		Name:      "unstructured_replies_total",
		Help:      "Number of generated replies without recognised section markers.",
	})

	reportGeneratedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "progress_reports",
		Subsystem: "orchestrator",
		Name:      "last_report_generated_timestamp_seconds",
		Help:      "Unix timestamp of the most recent report transitioned to generated.",
	})
)

func init() {
	prometheus.MustRegister(reportOutcomeCounter, runDuration, unstructuredReplyCounter, reportGeneratedGauge)
}

// RecordReportOutcome counts a settled orchestration run.
func RecordReportOutcome(status, failureKind string, elapsed time.Duration) {
	reportOutcomeCounter.WithLabelValues(status, failureKind).Inc()
	runDuration.Observe(elapsed.Seconds())
}

// RecordUnstructuredReply counts a reply that fell back to a single section.
func RecordUnstructuredReply() {
	unstructuredReplyCounter.Inc()
}

// RecordReportGenerated updates the generated watermark gauge.
func RecordReportGenerated(ts time.Time) {
	if ts.IsZero() {
		return
	}
	reportGeneratedGauge.Set(float64(ts.Unix()))
}
