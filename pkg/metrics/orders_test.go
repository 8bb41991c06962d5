package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOrderMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)

	m.IncWebhookEvent("checkout.session.completed", "confirmed")
	m.IncWebhookEvent("checkout.session.completed", "confirmed")
	m.IncStockConflict("reserve")
	m.IncRefund("cancel", "succeeded")
	m.IncTransition("PROCESSING", "CONFIRMED")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "storefront_webhook_events_total", "outcome", "confirmed"); err != nil {
		t.Fatalf("fetch webhook counter: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 webhook events, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "storefront_stock_conflicts_total", "operation", "reserve"); err != nil || got != 1 {
		t.Fatalf("expected 1 stock conflict, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_refunds_total", "purpose", "cancel"); err != nil || got != 1 {
		t.Fatalf("expected 1 refund, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_order_transitions_total", "to", "CONFIRMED"); err != nil || got != 1 {
		t.Fatalf("expected 1 transition, got %f (%v)", got, err)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var orders *OrderMetrics
	orders.IncWebhookEvent("x", "y")
	orders.IncRefund("cancel", "failed")

	var httpMetrics *HTTPMetrics
	httpMetrics.Observe(http.MethodGet, "/health/live", http.StatusOK, time.Millisecond)

	NewOrderMetrics(nil).IncStockConflict("release")
}

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe(http.MethodPost, "/api/v1/checkout", http.StatusCreated, 120*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchHistogramSum(mfs, "storefront_http_request_duration_seconds", "route", "/api/v1/checkout"); err != nil {
		t.Fatalf("fetch histogram: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected positive latency sum, got %f", got)
	}
}

func TestOutboxMetricsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncDispatch("order_confirmed", "published")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_outbox_dispatch_total", "outcome", "published"); err != nil || got != 1 {
		t.Fatalf("expected 1 dispatch, got %f (%v)", got, err)
	}

	var nilMetrics *OutboxMetrics
	nilMetrics.IncDispatch("order_confirmed", "published")
}
