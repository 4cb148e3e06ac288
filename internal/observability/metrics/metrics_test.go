package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_type", "started"),
		attribute.String("customer_id", "456"),
		attribute.String("payment_method", "cash"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "event_type" && attrs[1].Key != "event_type" {
		t.Fatalf("expected event_type to be retained")
	}
	if attrs[0].Key != "payment_method" && attrs[1].Key != "payment_method" {
		t.Fatalf("expected payment_method to be retained")
	}
}

func TestRecordersAreNilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordShiftEvent(ctx, "started")
	m.RecordSale(ctx, "cash")
	m.RecordInvoiceCreated(ctx, "pending")
	m.RecordPaymentEvent(ctx, "cash", "recorded")
	m.RecordLedgerEntry(ctx, "invoice")
	m.RecordPartialFailure(ctx, "record_payment", "balance_update")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "fuelledger"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordShiftEvent(context.Background(), "ended")
}
