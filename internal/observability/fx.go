package observability

import (
	"github.com/smallbiznis/fuelledger/internal/observability/logger"
	"github.com/smallbiznis/fuelledger/internal/observability/metrics"
	"github.com/smallbiznis/fuelledger/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		provideLoggerConfig,
		logger.New,
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(logTelemetry),
	fx.Invoke(ensureSchedulerMetrics),
)

// logTelemetry forces the tracer provider and records where this replica
// sends its spans.
func logTelemetry(log *zap.Logger, cfg Config, _ *sdktrace.TracerProvider) {
	if !cfg.OtelEnabled {
		log.Info("tracing disabled", zap.String("store_backend", cfg.StoreBackend))
		return
	}
	log.Info("tracing enabled",
		zap.String("exporter_endpoint", cfg.OtelExporterEndpoint),
		zap.String("exporter_protocol", cfg.OtelExporterProtocol),
		zap.Float64("sampling_ratio", cfg.OtelSamplingRatio),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Int64("node_id", cfg.NodeID),
	)
}

func provideLoggerConfig(cfg Config) logger.Config {
	return logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		Debug:               cfg.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Debug(),
	}
}

func provideTracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		SamplingRatio:    cfg.OtelSamplingRatio,
		StoreBackend:     cfg.StoreBackend,
		NodeID:           cfg.NodeID,
	}
}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}

func ensureSchedulerMetrics(cfg metrics.Config) {
	metrics.SchedulerWithConfig(cfg)
}
