package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dkaragian/verdict/internal/clients/broker"
	"github.com/dkaragian/verdict/internal/clients/fillstream"
	"github.com/dkaragian/verdict/internal/config"
	"github.com/dkaragian/verdict/internal/database"
	"github.com/dkaragian/verdict/internal/domain"
	"github.com/dkaragian/verdict/internal/engines"
	"github.com/dkaragian/verdict/internal/events"
	"github.com/dkaragian/verdict/internal/modules/aggregation"
	"github.com/dkaragian/verdict/internal/modules/allocation"
	"github.com/dkaragian/verdict/internal/modules/calibration"
	"github.com/dkaragian/verdict/internal/modules/executions"
	"github.com/dkaragian/verdict/internal/modules/health"
	"github.com/dkaragian/verdict/internal/modules/reconciliation"
	"github.com/dkaragian/verdict/internal/modules/risk"
	"github.com/dkaragian/verdict/internal/modules/taxlots"
	"github.com/dkaragian/verdict/internal/reliability"
	"github.com/dkaragian/verdict/internal/scheduler"
	"github.com/dkaragian/verdict/internal/server"
	"github.com/dkaragian/verdict/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Verdict")

	// Databases
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	configDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "config.db"),
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open config database")
	}
	defer configDB.Close()

	for _, db := range []*database.DB{ledgerDB, configDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to run migrations")
		}
	}

	// Event bus
	eventBus := events.NewBus(log)

	// Strategy weight snapshots survive restarts
	weightBook, err := health.NewWeightBook(cfg.DataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load strategy weights")
	}

	// Repositories
	execRepo := executions.NewRepository(ledgerDB, log)
	healthRepo := health.NewRepository(configDB, log)
	taxRepo := taxlots.NewRepository(ledgerDB, log)
	reconRepo := reconciliation.NewRepository(ledgerDB, log)
	allocRepo := allocation.NewRepository(configDB, eventBus, log)

	// External clients
	brokerClient := broker.NewClient(cfg.BrokerAPIURL, cfg.BrokerAPIKey, cfg.BrokerAPISecret, cfg.BrokerCallTimeout, log)

	// Core engines
	calibrator := calibration.NewCalibrator(execRepo, eventBus, cfg.Calibration, log)
	healthMonitor := health.NewMonitor(healthRepo, execRepo, weightBook, eventBus, cfg.Health, log)
	riskScorer := risk.NewScorer(risk.NewMarketContext(brokerClient, log), risk.DefaultDimensionWeights, log)
	taxEngine := taxlots.NewEngine(taxRepo, eventBus, cfg.TaxLots, log)
	reconEngine := reconciliation.NewEngine(brokerClient, taxRepo, reconRepo, eventBus, cfg.Reconciliation, log)

	engineURLs := make(map[domain.EngineKind]string, len(cfg.EngineURLs))
	for kind, url := range cfg.EngineURLs {
		engineURLs[domain.EngineKind(kind)] = url
	}
	providers := engines.BuildProviders(engineURLs, cfg.EngineTimeout, log)
	aggregator := aggregation.NewAggregator(providers, weightBook, calibrator, riskScorer, eventBus, cfg.Aggregation, cfg.EngineTimeout, log)

	// Warm calibration curves from whatever outcomes the ledger already holds
	if strategies, err := execRepo.Strategies(); err == nil {
		for _, name := range strategies {
			if err := calibrator.Refresh(name); err != nil {
				log.Warn().Err(err).Str("strategy", name).Msg("Initial calibration refresh failed")
			}
		}
		if err := calibrator.Refresh("consensus"); err != nil {
			log.Warn().Err(err).Msg("Initial consensus calibration refresh failed")
		}
	}

	// Fill stream (optional; fills can also arrive via the API)
	var fillStreamClient *fillstream.Client
	var fillStreamStatus server.FillStreamStatus
	if cfg.FillStreamURL != "" {
		fillStreamClient = fillstream.NewClient(cfg.FillStreamURL, taxEngine, eventBus, log)
		if err := fillStreamClient.Start(); err != nil {
			log.Warn().Err(err).Msg("Fill stream unavailable at startup, reconnecting in background")
		}
		defer fillStreamClient.Stop()
		fillStreamStatus = fillStreamClient
	}

	// Scheduler and background jobs
	sched := scheduler.New(eventBus, log)

	reconciliationJob := scheduler.NewReconciliationJob(reconEngine, 2*time.Minute, log)
	healthJob := scheduler.NewHealthEvaluationJob(healthMonitor, calibrator, execRepo, log)
	walCheckpointsJob := scheduler.NewCheckWALCheckpointsJob(ledgerDB, configDB, log)

	if err := sched.AddJob(cfg.Reconciliation.Schedule, reconciliationJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register reconciliation job")
	}
	if err := sched.AddJob(cfg.Health.Schedule, healthJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register health evaluation job")
	}
	if err := sched.AddJob("0 */30 * * * *", walCheckpointsJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register WAL checkpoint job")
	}

	var backupJob scheduler.Job
	if cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Endpoint:  cfg.Backup.Endpoint,
			Region:    cfg.Backup.Region,
			Bucket:    cfg.Backup.Bucket,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup storage")
		}

		backupService := reliability.NewBackupService(s3Client, cfg.DataDir, ledgerDB, configDB, log)
		job := scheduler.NewBackupJob(backupService, cfg.Backup.RetentionDays, log)
		if err := sched.AddJob(cfg.Backup.Schedule, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
		backupJob = job
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Log:      log,
		Cfg:      cfg,
		LedgerDB: ledgerDB,
		ConfigDB: configDB,
		EventBus: eventBus,

		Aggregator:     aggregator,
		Calibrator:     calibrator,
		RiskScorer:     riskScorer,
		HealthRepo:     healthRepo,
		HealthMonitor:  healthMonitor,
		WeightBook:     weightBook,
		ExecutionsRepo: execRepo,
		ReconEngine:    reconEngine,
		ReconRepo:      reconRepo,
		TaxLotEngine:   taxEngine,
		AllocationRepo: allocRepo,

		Scheduler:  sched,
		FillStream: fillStreamStatus,
	})
	srv.SetJobs(reconciliationJob, healthJob, backupJob, walCheckpointsJob)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
