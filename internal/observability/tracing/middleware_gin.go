package tracing

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fuelledger/internal/errs"
	obscontext "github.com/smallbiznis/fuelledger/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys for the ledger entities a route addresses.
const (
	AttrStationID   attribute.Key = "fuelledger.station_id"
	AttrEmployeeID  attribute.Key = "fuelledger.employee_id"
	AttrDispenserID attribute.Key = "fuelledger.dispenser_id"
	AttrCustomerID  attribute.Key = "fuelledger.customer_id"
	AttrVehicleID   attribute.Key = "fuelledger.vehicle_id"
	AttrShiftID     attribute.Key = "fuelledger.shift_id"
	AttrSaleID      attribute.Key = "fuelledger.sale_id"
	AttrInvoiceID   attribute.Key = "fuelledger.invoice_id"
	AttrPaymentID   attribute.Key = "fuelledger.payment_id"
	AttrErrorKind   attribute.Key = "error.kind"
	AttrErrorCode   attribute.Key = "error.code"
)

// routeEntity maps the collection segment of a /v1 route to the key its
// :id parameter is recorded under.
var routeEntity = map[string]attribute.Key{
	"stations":  AttrStationID,
	"employees": AttrEmployeeID,
	"customers": AttrCustomerID,
	"vehicles":  AttrVehicleID,
	"shifts":    AttrShiftID,
	"sales":     AttrSaleID,
	"invoices":  AttrInvoiceID,
	"payments":  AttrPaymentID,
}

// GinMiddleware opens a server span per request and tags it with the station,
// employee, customer or document the route addresses.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("fuelledger/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		ctx, span := tracer.Start(ctx, "HTTP "+strings.ToUpper(c.Request.Method), trace.WithSpanKind(trace.SpanKindServer))

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + strings.ToUpper(c.Request.Method) + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		}
		attrs = append(attrs, RouteAttributes(route, c.Param("id"), c.Query)...)

		if lastErr := c.Errors.Last(); lastErr != nil && lastErr.Err != nil {
			var coded *errs.Error
			if errors.As(lastErr.Err, &coded) {
				attrs = append(attrs, AttrErrorKind.String(string(coded.Kind)), AttrErrorCode.String(coded.Code))
			}
			if status >= http.StatusInternalServerError {
				span.RecordError(SafeError(lastErr.Err))
			}
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, "request error")
		}
		span.End()
	}
}

// RouteAttributes derives entity attributes from a matched route such as
// /v1/stations/:id/cash-sales. query supplies the dispenser and employee
// filters of the cash-sales route.
func RouteAttributes(route, id string, query func(string) string) []attribute.KeyValue {
	segments := strings.Split(strings.Trim(route, "/"), "/")
	if len(segments) < 2 || segments[0] != "v1" {
		return nil
	}

	var attrs []attribute.KeyValue
	if key, ok := routeEntity[segments[1]]; ok && len(segments) > 2 && segments[2] == ":id" {
		if id = strings.TrimSpace(id); id != "" {
			attrs = append(attrs, key.String(id))
		}
	}
	if query != nil && strings.HasSuffix(route, "/cash-sales") {
		if v := strings.TrimSpace(query("dispenser_id")); v != "" {
			attrs = append(attrs, AttrDispenserID.String(v))
		}
		if v := strings.TrimSpace(query("employee_id")); v != "" {
			attrs = append(attrs, AttrEmployeeID.String(v))
		}
	}
	return attrs
}
