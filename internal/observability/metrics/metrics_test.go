package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("product_line", "face"),
		attribute.String("record_id", "r1"),
		attribute.String("outcome", "local_hit"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "record_id" {
			t.Fatalf("record_id must never become a label")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordReconcile(context.Background(), "face", "local_hit")
	m.RecordCouponRedemption(context.Background(), "all", "redeemed")

	built, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	built.RecordGateTransition(context.Background(), "face", "locked", "teaser_shown")
}
