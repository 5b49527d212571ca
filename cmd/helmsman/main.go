// Package main is the entry point for the Helmsman portfolio automation
// engine. It wires the engine components (rebalancing, risk assessment,
// DCA scheduling, stop order management) to a SQLite-backed market data
// cache and order intent outbox, then runs them on cron schedules.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avasilakis/helmsman/internal/config"
	"github.com/avasilakis/helmsman/internal/database"
	"github.com/avasilakis/helmsman/internal/marketdata"
	"github.com/avasilakis/helmsman/internal/modules/dca"
	"github.com/avasilakis/helmsman/internal/modules/rebalancing"
	"github.com/avasilakis/helmsman/internal/modules/risk"
	"github.com/avasilakis/helmsman/internal/modules/stops"
	"github.com/avasilakis/helmsman/internal/outbox"
	"github.com/avasilakis/helmsman/internal/portfolio"
	"github.com/avasilakis/helmsman/internal/reliability"
	"github.com/avasilakis/helmsman/internal/scheduler"
	"github.com/avasilakis/helmsman/internal/services"
	"github.com/avasilakis/helmsman/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Helmsman")

	db, err := database.New(cfg.DatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Collaborators: cache-backed market data, operator-maintained
	// portfolio state, durable order intent outbox.
	market := marketdata.NewStore(db.Conn(), log)
	portfolioStore := portfolio.NewStore(db.Conn(), log)
	intents := outbox.New(db.Conn(), log)

	// Engine components.
	dcaService := dca.NewService(log)
	dcaRepo := dca.NewRepository(db.Conn(), log)
	stopService := stops.NewService(log)
	stopRepo := stops.NewRepository(db.Conn(), log)
	riskService := risk.NewService(risk.Policy{
		RiskFreeRate:         cfg.Engine.RiskFreeRate,
		VaRConfidence:        cfg.Engine.VaRConfidence,
		MaxPositionWeight:    cfg.Engine.MaxPositionWeight,
		ConcentrationWarning: cfg.Engine.ConcentrationWarning,
		KellyFraction:        cfg.Engine.KellyFraction,
		KellyMaxPortfolioPct: cfg.Engine.KellyMaxPortfolioPct,
	}, log)
	rebalancer := rebalancing.NewService(cfg.Engine.RebalanceThreshold, log)

	cycle := services.NewAutomationCycle(
		cfg.Engine,
		market, portfolioStore, intents,
		dcaService, dcaRepo,
		stopService, stopRepo,
		riskService, rebalancer,
		log,
	)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.Jobs.CycleSchedule, scheduler.NewCycleJob(cycle, 10*time.Minute)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cycle job")
	}
	if err := sched.AddJob(cfg.Jobs.HealthSchedule, scheduler.NewHealthCheckJob(db, cfg.DataDir, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register health check job")
	}
	if err := sched.AddJob(cfg.Jobs.MaintenanceSchedule, scheduler.NewMaintenanceJob(db, market, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}

	if cfg.Backup.Bucket != "" {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create backup client")
		}
		backupService := reliability.NewBackupService(s3Client, db, cfg.DataDir, cfg.Backup.RetainCount, log)
		if err := sched.AddJob(cfg.Jobs.BackupSchedule, scheduler.NewBackupJob(backupService, 0)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	} else {
		log.Warn().Msg("Backups disabled, no bucket configured")
	}

	sched.Start()
	log.Info().Msg("Helmsman running")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	sched.Stop()
	log.Info().Msg("Shutdown complete")
}
