package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/fuelledger/internal/config"
)

const (
	defaultSamplingRatio    = 1.0
	productionSamplingRatio = 0.1
)

// Config is the observability view of the process configuration. Identity
// and the store backend come from config.Config; the standard OTEL_* and
// LOG_* variables tune the exporters.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	StoreBackend string
	NodeID       int64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "fuelledger"
	}

	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", ""); traces != "" {
		protocol = traces
	}

	// Every request is traced outside production unless a ratio is set.
	ratio := defaultSamplingRatio
	if cfg.IsProduction() {
		ratio = productionSamplingRatio
	}
	if raw := getenv("OTEL_SAMPLING_RATIO", ""); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 && parsed <= 1 {
			ratio = parsed
		}
	}

	enabled := false
	if raw := getenv("OTEL_ENABLED", ""); raw != "" {
		enabled, _ = strconv.ParseBool(raw)
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(getenv("LOG_FORMAT", "json")),
		OtelEnabled:          enabled,
		OtelExporterEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", strings.TrimSpace(cfg.OTLPEndpoint)),
		OtelExporterProtocol: strings.ToLower(protocol),
		OtelSamplingRatio:    ratio,
		StoreBackend:         cfg.StoreBackend,
		NodeID:               cfg.SnowflakeNode,
	}
}

// Debug reports whether debug logging applies: an explicit debug level or a
// development environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}
