package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_type", "invoice.payment_succeeded"),
		attribute.String("tunnel_domain", "a.example.com"),
		attribute.String("outcome", "processed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "tunnel_domain" {
			t.Fatalf("expected tunnel_domain to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordWebhookEvent(ctx, "customer.subscription.created", "processed")
	m.RecordUsageReport(ctx, "reported", 2)
	m.RecordNonPositiveDelta(ctx, "decreased")
	m.RecordRateLimitDenied(ctx, "/consumption/update-consumption", "domain-rate")
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoop()
	if m == nil {
		t.Fatal("expected noop metrics")
	}
	m.RecordUsageReport(context.Background(), "reported", 3)
}
