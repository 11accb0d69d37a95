package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	userOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progress_reports",
		Subsystem: "scheduler",
		Name:      "user_outcomes_total",
		Help:      "Per-user scheduler outcomes labeled by job and result.",
	}, []string{"job", "result"})

	prunedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progress_reports",
		Subsystem: "scheduler",
		Name:      "reports_pruned_total",
		Help:      "Number of reports deleted by the retention job.",
	})
)

func init() {
	prometheus.MustRegister(userOutcomeCounter, prunedCounter)
}

func recordRun(job string, s Summary) {
	userOutcomeCounter.WithLabelValues(job, "succeeded").Add(float64(s.Succeeded))
	userOutcomeCounter.WithLabelValues(job, "failed").Add(float64(s.Failed))
	userOutcomeCounter.WithLabelValues(job, "skipped").Add(float64(s.Skipped))
}

func recordPruned(n int) {
	prunedCounter.Add(float64(n))
}
