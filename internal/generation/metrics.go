package generation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "progress_reports",
		Subsystem: "generation",
		Name:      "request_duration_seconds",
		Help:      "Latency of text generation requests.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"model"})

	requestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progress_reports",
		Subsystem: "generation",
		Name:      "request_errors_total",
		Help:      "Number of failed text generation requests.",
	}, []string{"model"})
)

func init() {
	prometheus.MustRegister(requestDuration, requestErrors)
}

func observeRequest(model string, elapsed time.Duration, err error) {
	requestDuration.WithLabelValues(model).Observe(elapsed.Seconds())
	if err != nil {
		requestErrors.WithLabelValues(model).Inc()
	}
}
