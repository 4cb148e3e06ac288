package tracing

import (
	"context"
	"errors"

	"github.com/smallbiznis/fuelledger/internal/errs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var allowedSpanKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"request_id":              {},
	AttrErrorKind:             {},
	AttrErrorCode:             {},
	AttrStationID:             {},
	AttrEmployeeID:            {},
	AttrDispenserID:           {},
	AttrCustomerID:            {},
	AttrVehicleID:             {},
	AttrShiftID:               {},
	AttrSaleID:                {},
	AttrInvoiceID:             {},
	AttrPaymentID:             {},
}

// SafeAttributes keeps only attributes known to carry opaque ids or request
// metadata, never names or free text.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}

// SafeError reduces err to its classification so span events never carry raw driver messages.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(errs.CodeOf(err))
}

// ExtractContext reads W3C trace headers into ctx.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
