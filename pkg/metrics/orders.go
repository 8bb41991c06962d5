package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics counts order lifecycle outcomes.
type OrderMetrics struct {
	webhookEvents  *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	stockConflicts *prometheus.CounterVec
	refunds        *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on reg. A nil registerer yields
// a no-op collector.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_webhook_events_total",
		Help: "Payment gateway webhook events by type and outcome.",
	}, []string{"type", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_order_transitions_total",
		Help: "Order status transitions by source and target status.",
	}, []string{"from", "to"})
	stockConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_stock_conflicts_total",
		Help: "Conditional stock updates that matched no row.",
	}, []string{"operation"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_refunds_total",
		Help: "Gateway refunds by purpose and outcome.",
	}, []string{"purpose", "outcome"})
	reg.MustRegister(webhookEvents, transitions, stockConflicts, refunds)
	return &OrderMetrics{
		webhookEvents:  webhookEvents,
		transitions:    transitions,
		stockConflicts: stockConflicts,
		refunds:        refunds,
	}
}

// IncWebhookEvent records the outcome of one webhook delivery.
func (m *OrderMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OrderMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *OrderMetrics) IncStockConflict(operation string) {
	if m == nil || m.stockConflicts == nil {
		return
	}
	m.stockConflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *OrderMetrics) IncRefund(purpose, outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(purpose), normalizeLabel(outcome)).Inc()
}
