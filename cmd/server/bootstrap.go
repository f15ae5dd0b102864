package main

import (
	"context"
	"time"

	"github.com/huangang/scanboard/internal/analysis"
	"github.com/huangang/scanboard/internal/config"
	"github.com/huangang/scanboard/internal/handlers"
	"github.com/huangang/scanboard/internal/middleware"
	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/services"
	"github.com/huangang/scanboard/internal/utils"
	"github.com/huangang/scanboard/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg          *config.Config
	orchestrator *services.ScanOrchestrator
	workflow     *services.IssueWorkflow
	dashboard    *services.DashboardService
	systemLogs   *services.SystemLogService
	hub          *services.SSEHub
	scheduler    *services.Scheduler
	taskQueue    services.TaskQueue
	worker       *services.Worker
	scanLimiter  *middleware.RateLimiter
	authHandler  *handlers.AuthHandler

	cancel context.CancelFunc
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	db := models.GetDB()

	services.InitSystemLogger(db)

	ctx, cancel := context.WithCancel(context.Background())

	client := analysis.NewClientFromConfig(&cfg.Analysis)
	orchestrator := services.NewScanOrchestrator(db, client, services.NewPushSource(client), cfg.Scan)
	workflow := services.NewIssueWorkflow(db, client)
	dashboard := services.NewDashboardService(db)

	hub := services.NewSSEHub()
	publisher := services.NewLivePublisher(hub, dashboard)
	publisher.Attach(orchestrator, workflow)
	go publisher.Run(ctx)

	// Reconcile tasks run through Redis when enabled, otherwise in-process
	taskQueue := services.NewTaskQueue(&cfg.Redis)
	processor := services.ReconcileProcessor(orchestrator)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(processor)
	}
	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis, processor)
		if worker != nil {
			if err := worker.Start(); err != nil {
				logger.Warn().Err(err).Msg("Failed to start worker")
			}
		}
	}

	scheduler := services.NewScheduler(db)
	sweeper := services.NewScanSweeper(db, taskQueue, cfg.Scan.StaleAfter)
	if err := scheduler.Add("scan-reconcile", cfg.Scan.ReconcileCron, time.Minute, func() {
		if _, err := sweeper.Sweep(ctx); err != nil {
			logger.Warn().Err(err).Msg("stale scan sweep failed")
		}
	}); err != nil {
		logger.Fatalf("Invalid scan.reconcile_cron %q: %v", cfg.Scan.ReconcileCron, err)
	}
	systemLogs := services.NewSystemLogService(db, cfg.Log.RetentionDays)
	if err := systemLogs.ScheduleCleanup(scheduler); err != nil {
		logger.Warn().Err(err).Msg("Failed to schedule system log cleanup")
	}
	scheduler.Start()

	scanLimiter := middleware.NewRateLimiter(cfg.Server.ScanRateLimit, cfg.Server.ScanRateBurst)
	go scanLimiter.RunCleanup(ctx, time.Minute)

	authHandler := handlers.NewAuthHandler(db, cfg)
	if err := authHandler.CreateAdminIfNotExists(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	// Scans left Scanning by a previous run are reconciled right away
	if n, err := sweeper.Sweep(ctx); err != nil {
		logger.Warn().Err(err).Msg("startup scan sweep failed")
	} else if n > 0 {
		logger.Info().Int("count", n).Msg("queued stale scans for reconciliation")
	}

	return &appServices{
		cfg:          cfg,
		orchestrator: orchestrator,
		workflow:     workflow,
		dashboard:    dashboard,
		systemLogs:   systemLogs,
		hub:          hub,
		scheduler:    scheduler,
		taskQueue:    taskQueue,
		worker:       worker,
		scanLimiter:  scanLimiter,
		authHandler:  authHandler,
		cancel:       cancel,
	}
}

// shutdown gracefully stops all services. Live scans stay Scanning and are
// reconciled on the next start.
func (s *appServices) shutdown() {
	s.scheduler.Stop()
	logger.Info().Msg("All schedulers stopped")

	s.orchestrator.Shutdown()
	s.cancel()

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
}
