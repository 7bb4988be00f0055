package observability

import (
	"strings"

	"github.com/OnnaSoft/real-sync/internal/config"
)

// Config is the telemetry view of the service configuration.
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
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "realsync"
	}
	t := cfg.Telemetry
	return Config{
		ServiceName:          name,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             t.LogLevel,
		LogFormat:            t.LogFormat,
		OtelEnabled:          t.OtelEnabled,
		OtelExporterEndpoint: t.OTLPEndpoint,
		OtelExporterProtocol: t.OTLPProtocol,
		OtelSamplingRatio:    t.SamplingRatio,
	}
}

// Debug reports whether verbose logging applies: an explicit debug level or a
// non-production environment.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
