package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/adapter"
	"github.com/ajosephmass/spendoptimo-agent/pkg/audit"
	"github.com/ajosephmass/spendoptimo-agent/pkg/config"
	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
	"github.com/ajosephmass/spendoptimo-agent/pkg/policy"
	"github.com/ajosephmass/spendoptimo-agent/pkg/telemetry"
	"github.com/ajosephmass/spendoptimo-agent/pkg/workflow"
)

// app wires the full execution stack for one command invocation.
type app struct {
	cfg       *config.Config
	tel       *telemetry.Telemetry
	gate      *policy.Gate
	store     *policy.Store
	sink      audit.Sink
	registry  *adapter.Registry
	validator *workflow.Validator
	planner   *workflow.Planner
	engine    *workflow.Engine
}

func newApp(ctx context.Context, version string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry.Build(version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	zlog := tel.Logger.Zerolog()

	gate, err := policy.NewGate(zlog)
	if err != nil {
		return nil, fmt.Errorf("initializing policy gate: %w", err)
	}
	store, err := policy.NewStore(zlog, gate)
	if err != nil {
		return nil, fmt.Errorf("initializing policy store: %w", err)
	}
	if len(cfg.Policy.Paths) > 0 {
		if err := store.LoadPaths(ctx, cfg.Policy.Paths...); err != nil {
			return nil, fmt.Errorf("loading policies: %w", err)
		}
		if cfg.Policy.Watch {
			if err := store.Watch(ctx); err != nil {
				return nil, fmt.Errorf("watching policies: %w", err)
			}
		}
	}

	sink, err := buildAuditSink(ctx, cfg.Audit, zlog)
	if err != nil {
		return nil, fmt.Errorf("initializing audit trail: %w", err)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	registry := adapter.NewRegistryFromClients(adapter.NewClients(awsCfg), zlog)

	validator := workflow.NewValidator(store, gate, registry, zlog)
	planner := workflow.NewPlanner()
	engine := workflow.NewEngine(validator, planner, registry, sink, tel.Metrics, tel.Tracer, zlog)

	return &app{
		cfg:       cfg,
		tel:       tel,
		gate:      gate,
		store:     store,
		sink:      sink,
		registry:  registry,
		validator: validator,
		planner:   planner,
		engine:    engine,
	}, nil
}

// Close flushes the audit trail and telemetry.
func (a *app) Close(ctx context.Context) {
	zlog := a.tel.Logger.Zerolog()
	if err := a.sink.Close(); err != nil {
		zlog.Error().Err(err).Msg("Failed to close audit sink")
	}
	if err := a.store.Close(); err != nil {
		zlog.Error().Err(err).Msg("Failed to close policy store")
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		zlog.Error().Err(err).Msg("Failed to shut down telemetry")
	}
}

func buildAuditSink(ctx context.Context, cfg config.AuditConfig, zlog zerolog.Logger) (audit.Sink, error) {
	switch cfg.Backend {
	case "none":
		return audit.NopSink{}, nil
	case "log":
		return audit.NewLogSink(zlog), nil
	case "sqlite":
		sqlSink, err := audit.NewSQLiteSink(audit.SQLiteConfig{Path: cfg.SQLitePath})
		if err != nil {
			return nil, err
		}
		if err := sqlSink.Init(ctx); err != nil {
			return nil, err
		}
		if cfg.Buffer > 0 {
			return audit.NewAsyncSink(sqlSink, cfg.Buffer, zlog), nil
		}
		return sqlSink, nil
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}

func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		optFns = append(optFns, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return awsCfg, nil
}

// batchFile is the on-disk recommendation batch format. A bare JSON array of
// recommendations is also accepted.
type batchFile struct {
	Recommendations []optimizer.Recommendation `json:"recommendations"`
}

func loadRecommendations(path string) ([]optimizer.Recommendation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}

	var file batchFile
	if err := json.Unmarshal(data, &file); err == nil && len(file.Recommendations) > 0 {
		return file.Recommendations, nil
	}

	var recs []optimizer.Recommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parsing batch file: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("batch file %s contains no recommendations", path)
	}
	return recs, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
