package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progress_reports",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Number of Kafka messages successfully handled.",
	}, []string{"topic", "event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progress_reports",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Number of handler errors grouped by topic and event type.",
	}, []string{"topic", "event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progress_reports",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Number of decode failures per topic.",
	}, []string{"topic"})

	unroutedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progress_reports",
		Subsystem: "consumer",
		Name:      "unrouted_messages_total",
		Help:      "Number of messages acknowledged without a registered handler.",
	}, []string{"topic", "event_type"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "progress_reports",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed message per topic.",
	}, []string{"topic"})

	jobOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progress_reports",
		Subsystem: "jobs",
		Name:      "outcomes_total",
		Help:      "Report job outcomes: generated, failed, expired, invalid.",
	}, []string{"outcome"})

	jobRetryCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progress_reports",
		Subsystem: "jobs",
		Name:      "retries_total",
		Help:      "Number of report job retries after a transient failure.",
	})

	goalsUpdatedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progress_reports",
		Subsystem: "profiles",
		Name:      "goal_recalculations_total",
		Help:      "Nutrition goal recalculations triggered by profile updates, labeled by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		processedCounter, handlerErrorCounter, decodeErrorCounter, unroutedCounter, lastMessageGauge,
		jobOutcomeCounter, jobRetryCounter, goalsUpdatedCounter,
	)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}

func recordUnrouted(msg Message) {
	unroutedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordJobOutcome(outcome string) {
	jobOutcomeCounter.WithLabelValues(outcome).Inc()
}

func recordGoalsUpdate(result string) {
	goalsUpdatedCounter.WithLabelValues(result).Inc()
}
