package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	shiftEvents     metric.Int64Counter
	salesRecorded   metric.Int64Counter
	invoicesCreated metric.Int64Counter
	paymentEvents   metric.Int64Counter
	ledgerEntries   metric.Int64Counter
	partialFailures metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "fuelledger"
	}
	meter := provider.Meter(name)

	shiftEvents, err := meter.Int64Counter("fuelledger_shift_events_total")
	if err != nil {
		return nil, err
	}
	salesRecorded, err := meter.Int64Counter("fuelledger_sales_recorded_total")
	if err != nil {
		return nil, err
	}
	invoicesCreated, err := meter.Int64Counter("fuelledger_invoices_created_total")
	if err != nil {
		return nil, err
	}
	paymentEvents, err := meter.Int64Counter("fuelledger_payment_events_total")
	if err != nil {
		return nil, err
	}
	ledgerEntries, err := meter.Int64Counter("fuelledger_ledger_entries_total")
	if err != nil {
		return nil, err
	}
	partialFailures, err := meter.Int64Counter("fuelledger_partial_failures_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		shiftEvents:     shiftEvents,
		salesRecorded:   salesRecorded,
		invoicesCreated: invoicesCreated,
		paymentEvents:   paymentEvents,
		ledgerEntries:   ledgerEntries,
		partialFailures: partialFailures,
	}, nil
}

// RecordShiftEvent increments shift lifecycle counts (started, ended, conflict).
func (m *Metrics) RecordShiftEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.shiftEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSale increments recorded sale counts.
func (m *Metrics) RecordSale(ctx context.Context, paymentMethod string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("payment_method", strings.TrimSpace(paymentMethod)))
	m.salesRecorded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoiceCreated increments invoice creation counts.
func (m *Metrics) RecordInvoiceCreated(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.invoicesCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentEvent increments payment event counts.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, method, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("payment_method", strings.TrimSpace(method)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerEntry increments ledger entry counts.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, sourceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source_type", strings.TrimSpace(sourceType)))
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPartialFailure counts operations that committed some writes but not all.
func (m *Metrics) RecordPartialFailure(ctx context.Context, operation, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.partialFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":       {},
	"status_code":    {},
	"status":         {},
	"event_type":     {},
	"payment_method": {},
	"source_type":    {},
	"operation":      {},
	"reason":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
