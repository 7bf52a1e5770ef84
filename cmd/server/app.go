package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/insurai/compliance-engine/internal/audit"
	"github.com/insurai/compliance-engine/internal/auth"
	"github.com/insurai/compliance-engine/internal/compliance"
	"github.com/insurai/compliance-engine/internal/config"
	"github.com/insurai/compliance-engine/internal/metrics"
	"github.com/insurai/compliance-engine/internal/notification"
	"github.com/insurai/compliance-engine/internal/policy"
	"github.com/insurai/compliance-engine/internal/realtime"
	"github.com/insurai/compliance-engine/internal/reporting"
	"github.com/insurai/compliance-engine/internal/scheduler"
)

// app holds the wired service components
type app struct {
	config     *config.Config
	logger     *zap.Logger
	records    *compliance.RecordStore
	policies   *policy.Store
	audit      *audit.Logger
	auth       *auth.Service
	metrics    *metrics.Collector
	hub        *realtime.Hub
	dispatcher *notification.Dispatcher
	reports    *reporting.Engine
	scheduler  *scheduler.Scheduler
}

func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := cfg.InitLogger()
	if err != nil {
		return nil, nil, err
	}

	return cfg, logger, nil
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	records := compliance.NewRecordStore(logger.Named("records"))
	if err := seedRecords(cfg.Store, records); err != nil {
		return nil, err
	}

	policies, err := policy.NewDefaultStore()
	if err != nil {
		return nil, fmt.Errorf("failed to load policy catalog: %w", err)
	}

	collector := metrics.NewCollector(records)
	hub := realtime.NewHub(logger, cfg.Server.AllowedOrigins)

	mailer, err := notification.NewMailer(cfg.Notifications.Email, logger.Named("mailer"))
	if err != nil {
		return nil, err
	}
	dispatcher := notification.NewDispatcher(cfg.Notifications, mailer, logger.Named("dispatcher"),
		notification.WithBroadcaster(hub),
		notification.WithRecorder(collector),
	)

	auditLogger := audit.NewLogger(cfg.Audit, logger)

	sched, err := scheduler.NewScheduler(cfg.Scheduler, logger, collector)
	if err != nil {
		return nil, err
	}
	if cfg.Scheduler.Enabled {
		task := scheduler.NewPendingDigestTask(records, dispatcher, auditLogger)
		if err := sched.AddTask(cfg.Scheduler.DigestSchedule, task); err != nil {
			return nil, err
		}
	}

	return &app{
		config:     cfg,
		logger:     logger,
		records:    records,
		policies:   policies,
		audit:      auditLogger,
		auth:       auth.NewService(cfg.Auth),
		metrics:    collector,
		hub:        hub,
		dispatcher: dispatcher,
		reports:    reporting.NewEngine(cfg.Reporting, logger.Named("reporting")),
		scheduler:  sched,
	}, nil
}

func seedRecords(cfg config.StoreConfig, records *compliance.RecordStore) error {
	var (
		seed []compliance.ComplianceRecord
		err  error
	)

	switch {
	case cfg.SeedFile != "":
		seed, err = compliance.LoadSeedFile(cfg.SeedFile)
	case cfg.SeedDemoData:
		seed, err = compliance.DefaultSeed()
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load seed records: %w", err)
	}

	return records.Seed(seed)
}
