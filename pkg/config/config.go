// Package config loads the SpendOptimo application configuration from YAML.
// Defaults are explicit: loading starts from Default() and the file overrides
// it, so a partial config file is always valid.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ajosephmass/spendoptimo-agent/pkg/telemetry"
	"github.com/ajosephmass/spendoptimo-agent/pkg/workflow"
)

// Duration is a time.Duration that unmarshals YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\"")
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root application configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine" json:"engine"`
	Policy    PolicyConfig    `yaml:"policy" json:"policy"`
	Audit     AuditConfig     `yaml:"audit" json:"audit"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	AWS       AWSConfig       `yaml:"aws" json:"aws"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// EngineConfig configures the workflow engine.
type EngineConfig struct {
	// MaxParallel bounds concurrent recommendation execution.
	MaxParallel int `yaml:"max_parallel" json:"max_parallel" validate:"gte=1,lte=64"`

	// MaxAttempts bounds per-step attempts, counting the first.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" validate:"gte=1,lte=10"`

	// BaseBackoff is the base retry delay.
	BaseBackoff Duration `yaml:"base_backoff" json:"base_backoff" validate:"gt=0"`

	// MaxBackoff caps the retry delay.
	MaxBackoff Duration `yaml:"max_backoff" json:"max_backoff" validate:"gt=0"`

	// RecommendationTimeout bounds one recommendation's executing time.
	RecommendationTimeout Duration `yaml:"recommendation_timeout" json:"recommendation_timeout" validate:"gt=0"`

	// DryRun skips all mutate and verify steps.
	DryRun bool `yaml:"dry_run" json:"dry_run"`
}

// Options converts the engine section into workflow options.
func (c EngineConfig) Options() workflow.Options {
	return workflow.Options{
		MaxParallel:           c.MaxParallel,
		MaxAttempts:           c.MaxAttempts,
		BaseBackoff:           c.BaseBackoff.Std(),
		MaxBackoff:            c.MaxBackoff.Std(),
		RecommendationTimeout: c.RecommendationTimeout.Std(),
		DryRun:                c.DryRun,
	}
}

// PolicyConfig configures the policy store.
type PolicyConfig struct {
	// Paths lists CUE, YAML, and rego policy documents loaded over the
	// built-in defaults.
	Paths []string `yaml:"paths" json:"paths,omitempty"`

	// Watch reloads policy documents when they change on disk.
	Watch bool `yaml:"watch" json:"watch"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Backend selects the audit sink (sqlite, log, none).
	Backend string `yaml:"backend" json:"backend" validate:"oneof=sqlite log none"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path,omitempty"`

	// Buffer is the async write buffer size; zero writes synchronously.
	Buffer int `yaml:"buffer" json:"buffer" validate:"gte=0"`
}

// TelemetryConfig is the YAML surface for logging, metrics, and tracing.
type TelemetryConfig struct {
	Environment     string  `yaml:"environment" json:"environment"`
	LogLevel        string  `yaml:"log_level" json:"log_level" validate:"oneof=trace debug info warn error fatal"`
	LogFormat       string  `yaml:"log_format" json:"log_format" validate:"oneof=console json"`
	MetricsEnabled  bool    `yaml:"metrics_enabled" json:"metrics_enabled"`
	MetricsListen   string  `yaml:"metrics_listen" json:"metrics_listen,omitempty"`
	TracingEnabled  bool    `yaml:"tracing_enabled" json:"tracing_enabled"`
	TracingExporter string  `yaml:"tracing_exporter" json:"tracing_exporter,omitempty" validate:"omitempty,oneof=otlp stdout none"`
	TracingEndpoint string  `yaml:"tracing_endpoint" json:"tracing_endpoint,omitempty"`
	SamplingRate    float64 `yaml:"sampling_rate" json:"sampling_rate" validate:"gte=0,lte=1"`
}

// Build maps the section onto a full telemetry configuration.
func (t TelemetryConfig) Build(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	if t.Environment != "" {
		cfg.Environment = t.Environment
	}
	cfg.Logging.Level = t.LogLevel
	cfg.Logging.Format = t.LogFormat
	cfg.Metrics.Enabled = t.MetricsEnabled
	if t.MetricsListen != "" {
		cfg.Metrics.ListenAddress = t.MetricsListen
	}
	cfg.Tracing.Enabled = t.TracingEnabled
	if t.TracingExporter != "" {
		cfg.Tracing.Exporter = t.TracingExporter
	}
	cfg.Tracing.Endpoint = t.TracingEndpoint
	cfg.Tracing.SamplingRate = t.SamplingRate
	return cfg
}

// AWSConfig configures the provider clients.
type AWSConfig struct {
	// Region overrides the SDK's resolved region when set.
	Region string `yaml:"region" json:"region,omitempty"`

	// Endpoint points the SDK at a local stack for integration tests.
	Endpoint string `yaml:"endpoint" json:"endpoint,omitempty"`

	// Profile selects a shared credentials profile.
	Profile string `yaml:"profile" json:"profile,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string   `yaml:"addr" json:"addr" validate:"required"`
	ReadTimeout     Duration `yaml:"read_timeout" json:"read_timeout" validate:"gt=0"`
	WriteTimeout    Duration `yaml:"write_timeout" json:"write_timeout" validate:"gt=0"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"gt=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxParallel:           4,
			MaxAttempts:           3,
			BaseBackoff:           Duration(time.Second),
			MaxBackoff:            Duration(time.Minute),
			RecommendationTimeout: Duration(30 * time.Minute),
		},
		Policy: PolicyConfig{},
		Audit: AuditConfig{
			Backend:    "sqlite",
			SQLitePath: "spendoptimo-audit.db",
			Buffer:     256,
		},
		Telemetry: TelemetryConfig{
			Environment:     "development",
			LogLevel:        "info",
			LogFormat:       "console",
			MetricsEnabled:  true,
			MetricsListen:   ":9090",
			TracingEnabled:  false,
			TracingExporter: "stdout",
			SamplingRate:    1.0,
		},
		AWS: AWSConfig{},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(10 * time.Minute),
			ShutdownTimeout: Duration(15 * time.Second),
		},
	}
}

// Load reads a YAML config file over the defaults and validates the result.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("invalid config: %s fails %q", e.Namespace(), e.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Audit.Backend == "sqlite" && c.Audit.SQLitePath == "" {
		return fmt.Errorf("invalid config: audit.sqlite_path is required for the sqlite backend")
	}
	return nil
}
