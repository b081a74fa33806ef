package telemetry

import (
	"fmt"
	"time"
)

// Config bundles the logging, tracing, and metrics configuration for one
// process.
type Config struct {
	// ServiceName identifies the service in traces and metrics.
	ServiceName string

	// ServiceVersion is stamped on trace resources.
	ServiceVersion string

	// Environment is the deployment environment (development, staging,
	// production).
	Environment string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is the minimum level to emit (trace, debug, info, warn,
	// error, fatal).
	Level string

	// Format is "console" or "json".
	Format string

	// Output is "stdout", "stderr", or a file path.
	Output string

	// EnableCaller annotates records with file:line.
	EnableCaller bool

	// EnableSampling turns on burst sampling for high-volume logging.
	EnableSampling bool

	// SamplingInitial is the per-second burst allowed before sampling
	// kicks in.
	SamplingInitial int

	// SamplingThereafter keeps every Nth record once sampling is active.
	SamplingThereafter int

	// TimeFormat is "rfc3339", "unix", "unixms", or "unixmicro".
	TimeFormat string
}

// TracingConfig configures the OpenTelemetry tracer.
type TracingConfig struct {
	// Enabled turns span export on. Disabled tracing still hands out
	// no-op spans so call sites need no guards.
	Enabled bool

	// Exporter is "otlp", "stdout", or "none".
	Exporter string

	// Endpoint is the OTLP collector address.
	Endpoint string

	// SamplingRate is the fraction of traces kept, 0 through 1.
	SamplingRate float64

	// MaxExportBatchSize caps spans per export batch.
	MaxExportBatchSize int

	// ExportTimeout bounds one export call.
	ExportTimeout time.Duration

	// Headers are sent with every OTLP export request.
	Headers map[string]string

	// Insecure disables TLS on the OTLP connection.
	Insecure bool
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected at all. Disabled
	// yields a no-op collector.
	Enabled bool

	// ListenAddress is where StartMetricsServer serves.
	ListenAddress string

	// Path is the scrape path, normally /metrics.
	Path string

	// Namespace prefixes every metric name.
	Namespace string

	// DefaultHistogramBuckets are the duration buckets in seconds.
	DefaultHistogramBuckets []float64
}

// DefaultConfig returns the baseline configuration: console logs at info,
// stdout traces with full sampling, metrics on :9090.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "spendoptimo",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stderr",
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:            true,
			Exporter:           "stdout",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            map[string]string{},
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "spendoptimo",
			DefaultHistogramBuckets: []float64{
				0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
			},
		},
	}
}

// ProductionConfig tunes the defaults for production: JSON logs with
// sampling, OTLP export at 10% sampling, TLS on.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Logging.EnableSampling = true
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	return cfg
}

// DevelopmentConfig tunes the defaults for local work: debug console logs
// with caller info, stdout traces, everything sampled.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.EnableCaller = true
	return cfg
}

var (
	logLevels      = []string{"trace", "debug", "info", "warn", "error", "fatal"}
	traceExporters = []string{"otlp", "stdout", "none"}
)

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service version is required")
	}
	if !contains(logLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format %q, want console or json", c.Logging.Format)
	}
	if c.Tracing.Enabled && !contains(traceExporters, c.Tracing.Exporter) {
		return fmt.Errorf("invalid trace exporter %q", c.Tracing.Exporter)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate %f outside [0, 1]", c.Tracing.SamplingRate)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
