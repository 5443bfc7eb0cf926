package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/handlers"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/services/alerts"
	"github.com/ternarybob/vigil/internal/services/auth"
	"github.com/ternarybob/vigil/internal/services/dashboard"
	"github.com/ternarybob/vigil/internal/services/events"
	"github.com/ternarybob/vigil/internal/services/executions"
	"github.com/ternarybob/vigil/internal/services/heartbeat"
	"github.com/ternarybob/vigil/internal/services/ingest"
	"github.com/ternarybob/vigil/internal/services/jobs"
	"github.com/ternarybob/vigil/internal/services/retention"
	"github.com/ternarybob/vigil/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService

	InstanceID string
	StartedAt  time.Time

	clock     common.Clock
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Core services
	IngestService    *ingest.Service
	ExecutionService *executions.Service
	ExecutionSweeper *executions.Sweeper
	HeartbeatService *heartbeat.Service
	JobService       *jobs.Service
	AlertService     *alerts.Service
	AlertRunner      *alerts.Runner
	DashboardService *dashboard.Service
	RetentionService *retention.Service
	RetentionCron    *retention.Scheduler
	AuthService      *auth.Service

	// HTTP handlers
	LogHandler       *handlers.LogHandler
	JobHandler       *handlers.JobHandler
	ExecutionHandler *handlers.ExecutionHandler
	ServerHandler    *handlers.ServerHandler
	AlertHandler     *handlers.AlertHandler
	DashboardHandler *handlers.DashboardHandler
	AdminHandler     *handlers.AdminHandler
	AuthHandler      *handlers.AuthHandler
	StatusHandler    *handlers.StatusHandler
	WSHandler        *handlers.WSHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config:     cfg,
		Logger:     logger,
		InstanceID: common.NewInstanceID(),
		StartedAt:  time.Now().UTC(),
		clock:      common.RealClock{},
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)
	app.WSHandler = handlers.NewWSHandler(app.EventService, &cfg.WebSocket, app.InstanceID, app.Logger)

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("instance_id", app.InstanceID).
		Str("environment", cfg.Environment).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	a.IngestService = ingest.NewService(a.StorageManager, a.EventService, a.Logger, a.clock, &a.Config.Ingestion)

	a.ExecutionService = executions.NewService(a.StorageManager, a.EventService, a.Logger, a.clock)
	a.ExecutionSweeper = executions.NewSweeper(a.ExecutionService, a.Logger, a.Config.Executions.TimeoutCheckIntervalSeconds)

	a.HeartbeatService = heartbeat.NewService(a.StorageManager, a.EventService, a.Logger, a.clock, &a.Config.Heartbeat)

	a.JobService = jobs.NewService(a.StorageManager, a.Logger, a.clock)

	a.AlertService = alerts.NewService(a.StorageManager, a.EventService, a.Logger, a.clock, &a.Config.Alerts)
	a.AlertRunner = alerts.NewRunner(a.AlertService, a.Logger, a.Config.Alerts.EvaluationIntervalSeconds)

	a.DashboardService = dashboard.NewService(a.StorageManager, a.EventService, a.Logger, a.clock, &a.Config.Dashboard)

	a.RetentionService = retention.NewService(a.StorageManager, a.DashboardService, a.Logger, a.clock, a.Config.Retention)
	a.RetentionCron = retention.NewScheduler(a.RetentionService, a.Logger, a.Config.CleanupCronSpec())

	a.AuthService = auth.NewService(a.StorageManager, a.Logger, a.clock, &a.Config.Auth)
	if err := a.AuthService.EnsureBootstrapAdmin(context.Background(), a.Config.Auth.BootstrapAdminUser, a.Config.Auth.BootstrapAdminPass); err != nil {
		return fmt.Errorf("failed to seed bootstrap admin: %w", err)
	}

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.LogHandler = handlers.NewLogHandler(a.IngestService, a.StorageManager, a.clock, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.JobService, a.Logger)
	a.ExecutionHandler = handlers.NewExecutionHandler(a.ExecutionService, a.Logger)
	a.ServerHandler = handlers.NewServerHandler(a.HeartbeatService, a.Logger)
	a.AlertHandler = handlers.NewAlertHandler(a.AlertService, a.Logger)
	a.DashboardHandler = handlers.NewDashboardHandler(a.DashboardService, a.Logger)
	a.AdminHandler = handlers.NewAdminHandler(a.RetentionService, a.AuthService, a.Logger)
	a.AuthHandler = handlers.NewAuthHandler(a.AuthService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(
		a.IngestService,
		a.StorageManager,
		a.WSHandler,
		a.clock,
		a.Logger,
		a.InstanceID,
		a.StartedAt,
		func() bool { return a.Config.System.MaintenanceMode },
	)
}

// Start launches the background pipelines. Call after New succeeds.
func (a *App) Start() {
	a.ctx, a.cancelCtx = context.WithCancel(context.Background())

	a.IngestService.Start()
	a.ExecutionSweeper.Start()
	a.HeartbeatService.Start()
	a.AlertRunner.Start()
	a.RetentionCron.Start()

	// Periodic dashboard refresh keeps the summary topic flowing to
	// websocket subscribers between cache-miss recomputes.
	interval := time.Duration(a.Config.Dashboard.StatsCacheTtlSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	common.SafeGoWithContext(a.ctx, a.Logger, "dashboardRefresh", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := a.DashboardService.Refresh(a.ctx); err != nil {
					a.Logger.Warn().Err(err).Msg("Dashboard refresh failed")
				}
			case <-a.ctx.Done():
				return
			}
		}
	})

	a.Logger.Debug().Msg("Background services started")
}

// Close closes all application resources in reverse start order
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.RetentionCron != nil {
		a.RetentionCron.Stop()
	}
	if a.AlertRunner != nil {
		a.AlertRunner.Stop()
	}
	if a.HeartbeatService != nil {
		a.HeartbeatService.Stop()
	}
	if a.ExecutionSweeper != nil {
		a.ExecutionSweeper.Stop()
	}

	// Stop ingestion last among services so the final buffer drains to storage.
	if a.IngestService != nil {
		a.IngestService.Stop()
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
