// Package app wires the engine's components from configuration. The api,
// worker and alertctl binaries share it.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jwalitptl/alert-engine/internal/config"
	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
	"github.com/jwalitptl/alert-engine/internal/repository/postgres"
	"github.com/jwalitptl/alert-engine/internal/rules"
	"github.com/jwalitptl/alert-engine/internal/service/alert"
	"github.com/jwalitptl/alert-engine/internal/service/audit"
	"github.com/jwalitptl/alert-engine/internal/service/clinical"
	"github.com/jwalitptl/alert-engine/pkg/logger"
	"github.com/jwalitptl/alert-engine/pkg/messaging/redis"
	"github.com/jwalitptl/alert-engine/pkg/metrics"
)

const metricsNamespace = "alert_engine"

type App struct {
	Config   *config.Config
	Log      *logger.Logger
	DB       *sqlx.DB
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Catalog   *rules.Catalog
	Alerts    repository.AlertRepository
	Outbox    repository.OutboxRepository
	Directory repository.PatientDirectory
	Provider  *clinical.GuardedProvider
	Audit     *audit.Service
	Service   *alert.Service
	Scanner   *alert.Scanner
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Format == "json",
	})
}

// New connects to postgres, loads the rule catalog and builds the services.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	a, err := build(ctx, cfg, log, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, log *logger.Logger, db *sqlx.DB) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(metricsNamespace, registry)

	base := postgres.NewBaseRepository(db)
	typeRepo := postgres.NewAlertTypeRepository(base)
	clinicalRepo := postgres.NewClinicalRepository(base)

	types, err := typeRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert types: %w", err)
	}
	catalog, err := LoadCatalog(cfg.Alerting.RulesFile, types)
	if err != nil {
		return nil, err
	}

	threshold, err := cfg.Alerting.DoctorThreshold()
	if err != nil {
		return nil, err
	}

	provider := clinical.NewGuardedProvider(clinicalRepo, clinical.Config{
		Timeout:         cfg.Scan.ProviderTimeout,
		BreakerFailures: cfg.Scan.BreakerFailures,
		BreakerTimeout:  cfg.Scan.BreakerTimeout,
	}, m, log)

	alerts := postgres.NewAlertRepository(base)
	outbox := postgres.NewOutboxRepository(base)
	auditSvc := audit.NewService(postgres.NewAuditRepository(base))

	service := alert.NewService(alert.Dependencies{
		Alerts:    alerts,
		Directory: clinicalRepo,
		Outbox:    outbox,
		Types:     alert.NewTypeLookup(typeRepo, cfg.Alerting.AlertTypeCacheTTL),
		Resolver:  alert.NewRecipientResolver(provider, threshold, log),
		Audit:     audit.NewAuditLogger(auditSvc, log, m),
		Metrics:   m,
		Logger:    log,
	})
	evaluator := alert.NewEvaluator(catalog, provider, m, log)
	scanner := alert.NewScanner(clinicalRepo, alerts, evaluator, service, catalog, alert.ScannerConfig{
		Workers:        cfg.Scan.Workers,
		PatientTimeout: cfg.Scan.PatientTimeout,
	}, m, log)

	log.Info("alert engine initialised",
		"rules", len(catalog.Rules()),
		"alert_types", len(types),
		"doctor_threshold", threshold.String(),
	)

	return &App{
		Config:    cfg,
		Log:       log,
		DB:        db,
		Registry:  registry,
		Metrics:   m,
		Catalog:   catalog,
		Alerts:    alerts,
		Outbox:    outbox,
		Directory: clinicalRepo,
		Provider:  provider,
		Audit:     auditSvc,
		Service:   service,
		Scanner:   scanner,
	}, nil
}

// LoadCatalog builds the rule catalog from path, or the built-in rules when
// path is empty, checked against the known alert types.
func LoadCatalog(path string, types []model.AlertType) (*rules.Catalog, error) {
	defs, err := rules.LoadDefinitions(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	catalog := rules.NewCatalog(types)
	if err := catalog.RegisterAll(defs); err != nil {
		return nil, fmt.Errorf("failed to register rules: %w", err)
	}
	return catalog, nil
}

// ConnectBroker opens the redis connection used for outbox delivery and the scan lock.
func (a *App) ConnectBroker() (*redis.RedisBroker, error) {
	return redis.NewRedisBroker(a.Config.Redis.ToBrokerConfig(), a.Log.WithComponent("redis").Zerolog())
}

func (a *App) Close() error {
	return a.DB.Close()
}
