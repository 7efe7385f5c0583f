package main

import (
	"github.com/lifetravel/cartguard/internal/config"
	"github.com/lifetravel/cartguard/internal/handlers"
	"github.com/lifetravel/cartguard/internal/models"
	"github.com/lifetravel/cartguard/internal/services"
	"github.com/lifetravel/cartguard/internal/utils"
	"github.com/lifetravel/cartguard/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	securityLog *services.SecurityLogger
	analyzer    *services.SecurityAnalyzer
	taskQueue   services.TaskQueue
	worker      *services.Worker

	authHandler     *handlers.AuthHandler
	cartHandler     *handlers.CartHandler
	recoveryHandler *handlers.RecoveryHandler
	eventHandler    *handlers.SecurityEventHandler
	dashboard       *handlers.DashboardHandler
	settings        *handlers.SettingsHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)
	utils.SetNonceSecret(cfg.Recovery.NonceSecret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Seed default data
	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	db := models.GetDB()

	// Security log plus hook registry; critical events alert the admin by mail
	hooks := services.NewHookRegistry()
	emailService := services.NewEmailService(db, &cfg.SMTP)
	securityLog := services.NewSecurityLogger(db, hooks, emailService, cfg.Recovery.AdminEmail, cfg.Recovery.SiteName)

	// Hourly analysis and daily retention cleanup
	analyzer := services.NewSecurityAnalyzer(db, securityLog, hooks)
	analyzer.StartScheduler()

	cartService := services.NewCartService(db, securityLog)
	recoveryService := services.NewRecoveryService(db, cartService, securityLog, emailService, &cfg.Recovery)

	// Initialize task queue (uses Redis if enabled, otherwise sync mode)
	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(recoveryService.ProcessRecoveryTask)
	}

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(recoveryService.ProcessRecoveryTask)
			worker.Start()
		}
	}

	// Create default admin user
	authService := services.NewAuthService(db, securityLog, &cfg.JWT)
	if err := authService.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	configService := services.NewSystemConfigService(db)
	eventService := services.NewSecurityEventService(db)
	dashboardService := services.NewDashboardService(db, analyzer, cartService)

	return &appServices{
		securityLog: securityLog,
		analyzer:    analyzer,
		taskQueue:   taskQueue,
		worker:      worker,

		authHandler:     handlers.NewAuthHandler(authService),
		cartHandler:     handlers.NewCartHandler(cartService, recoveryService, taskQueue),
		recoveryHandler: handlers.NewRecoveryHandler(recoveryService),
		eventHandler:    handlers.NewSecurityEventHandler(eventService, securityLog, configService),
		dashboard:       handlers.NewDashboardHandler(dashboardService),
		settings:        handlers.NewSettingsHandler(configService),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.analyzer.StopScheduler()
	logger.Info().Msg("Schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
}
