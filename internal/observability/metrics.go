package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	intakeDedupHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "intake",
			Name:      "dedup_hits_total",
			Help:      "Submissions resolved to an existing correlation ID.",
		},
	)
	sagaConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "saga",
			Name:      "terminal_conflicts_total",
			Help:      "Late opposite-outcome terminal events absorbed by a finalized saga.",
		},
		[]string{"direction"},
	)
	outboxPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox records successfully published.",
		},
	)
	outboxSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "outbox",
			Name:      "skipped_total",
			Help:      "Outbox records force-skipped because their type is unknown.",
		},
	)
	partnerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "partner",
			Name:      "requests_total",
			Help:      "Partner dispatch outcomes after the resilience policy.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(intakeDedupHits, sagaConflicts, outboxPublished, outboxSkipped, partnerRequests)
	})
}

func RecordIntakeDedupHit() {
	RegisterMetrics()
	intakeDedupHits.Inc()
}

func RecordSagaConflict(direction string) {
	RegisterMetrics()
	sagaConflicts.WithLabelValues(direction).Inc()
}

func RecordOutboxPublished() {
	RegisterMetrics()
	outboxPublished.Inc()
}

func RecordOutboxSkipped() {
	RegisterMetrics()
	outboxSkipped.Inc()
}

func RecordPartnerRequest(outcome string) {
	RegisterMetrics()
	partnerRequests.WithLabelValues(outcome).Inc()
}
