package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics counts outbox dispatch outcomes.
type OutboxMetrics struct {
	dispatched *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_outbox_dispatch_total",
		Help: "Outbox rows handled by the publisher by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(dispatched)
	return &OutboxMetrics{dispatched: dispatched}
}

// IncDispatch records one published, retried or dead-lettered row.
func (m *OutboxMetrics) IncDispatch(eventType, outcome string) {
	if m == nil || m.dispatched == nil {
		return
	}
	m.dispatched.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
