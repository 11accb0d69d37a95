package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"

	"example.com/progressreports/internal/domain"
)

var lookupErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "progress_reports",
	Subsystem: "aggregator",
	Name:      "lookup_errors_total",
	Help:      "Number of activity lookups that failed, labeled by domain.",
}, []string{"domain"})

func init() {
	prometheus.MustRegister(lookupErrorCounter)
}

func recordLookupError(d domain.InsightDomain) {
	lookupErrorCounter.WithLabelValues(string(d)).Inc()
}
