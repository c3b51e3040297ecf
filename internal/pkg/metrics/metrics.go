package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CommitsTotal counts state store commits by field group and outcome
	// (significant vs redundant).
	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpgate_state_commits_total",
			Help: "Total number of state store updates, by field group and outcome.",
		},
		[]string{"field_group", "outcome"}, // outcome: significant/redundant
	)

	// PersistenceFailuresTotal counts best-effort history writes that failed.
	PersistenceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpgate_persistence_failures_total",
			Help: "Total number of failed history database writes.",
		},
		[]string{"table"},
	)

	// DroppedMessagesTotal counts inbound MQTT payloads dropped at the
	// ingestion boundary.
	DroppedMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpgate_dropped_messages_total",
			Help: "Total number of malformed or invalid inbound messages dropped.",
		},
		[]string{"topic"},
	)

	// StatusPublishesTotal counts periodic status publications.
	StatusPublishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpgate_status_publishes_total",
			Help: "Total number of periodic status publications, by result.",
		},
		[]string{"result"}, // result: ok/error
	)
)

// init registers the collectors on the default registry so they show up on
// the /metrics endpoint.
func init() {
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(PersistenceFailuresTotal)
	prometheus.MustRegister(DroppedMessagesTotal)
	prometheus.MustRegister(StatusPublishesTotal)
}
