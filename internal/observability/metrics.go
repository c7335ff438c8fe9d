package observability

import "github.com/prometheus/client_golang/prometheus"

// Send outcomes recorded by MessagesSent.
const (
	OutcomeStored   = "stored"
	OutcomeReplayed = "replayed"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	// messagesSent counts message send attempts by outcome.
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taalmeet_messages_sent_total",
			Help: "Message send attempts handled by the backend, by outcome.",
		},
		[]string{"outcome"},
	)

	// eventsPublished counts domain events by delivery result.
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taalmeet_events_published_total",
			Help: "Domain events handed to the publisher, by result.",
		},
		[]string{"type", "result"},
	)
)

func init() {
	prometheus.MustRegister(messagesSent, eventsPublished)
}

// RecordMessageSent increments the send counter for outcome.
func RecordMessageSent(outcome string) {
	messagesSent.WithLabelValues(outcome).Inc()
}

// RecordEventPublished increments the event counter. err == nil counts as "ok".
func RecordEventPublished(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	eventsPublished.WithLabelValues(eventType, result).Inc()
}
