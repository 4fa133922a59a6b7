package entrypoint

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mrlokans/librapp/internal/audit"
	"github.com/mrlokans/librapp/internal/auth"
	"github.com/mrlokans/librapp/internal/circulation"
	"github.com/mrlokans/librapp/internal/config"
	"github.com/mrlokans/librapp/internal/database"
	auditRepo "github.com/mrlokans/librapp/internal/database/audit"
	"github.com/mrlokans/librapp/internal/database/borrowers"
	"github.com/mrlokans/librapp/internal/database/catalog"
	"github.com/mrlokans/librapp/internal/database/loans"
	"github.com/mrlokans/librapp/internal/database/users"
	"github.com/mrlokans/librapp/internal/events"
	http_controllers "github.com/mrlokans/librapp/internal/http"
	"github.com/mrlokans/librapp/internal/logging"
	"github.com/mrlokans/librapp/internal/metrics"
	"github.com/mrlokans/librapp/internal/scheduler"
	"github.com/mrlokans/librapp/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

const (
	sweepJobTimeout   = 30 * time.Minute
	cleanupJobTimeout = 5 * time.Minute
)

// PolicyFrom maps the loan settings onto the circulation policy.
func PolicyFrom(cfg config.Loans) circulation.Policy {
	return circulation.Policy{
		MaxActiveLoans: cfg.MaxActive,
		LoanPeriodDays: cfg.PeriodDays,
		DailyFineRate:  cfg.DailyFineRate,
	}
}

// NewLogger builds the process logger from the log settings.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger("librapp", cfg.Log.Level, cfg.Log.Development)
}

// Serve runs the HTTP server until SIGINT or SIGTERM, then shuts it down
// within the configured timeout.
func Serve(router *gin.Engine, cfg *config.Config, log *zap.Logger, onShutdown ShutdownFunc) error {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// kill -9 cannot be caught
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()), zap.Duration("timeout", timeout))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop producers of background work first
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("server exiting")
	return nil
}

func Run(cfg *config.Config, version string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting librapp", zap.String("version", version), zap.String("driver", cfg.Database.Driver))

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("error closing database", zap.Error(err))
		}
	}()

	auditService := audit.NewService(auditRepo.NewRepository(db.DB), log)
	defer auditService.Wait()

	observers := []circulation.Observer{auditService}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		observers = append(observers, m)
	}

	publisher, err := events.NewPublisher(cfg.Events, log)
	if err != nil {
		return fmt.Errorf("failed to connect event publisher: %w", err)
	}
	if publisher != nil {
		observers = append(observers, publisher)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Error("error closing event publisher", zap.Error(err))
			}
		}()
	} else {
		log.Info("event publishing disabled, set EVENTS_AMQP_URL to enable")
	}

	engine := circulation.NewEngine(loans.NewRepository(db.DB),
		circulation.WithPolicy(PolicyFrom(cfg.Loans)),
		circulation.WithObserver(observers...),
		circulation.WithLogger(log),
	)

	authService := auth.NewService(users.NewRepository(db.DB), cfg.Auth)
	var (
		authMiddleware *auth.Middleware
		authController *auth.AuthController
		sessionManager *auth.SessionManager
		csrfSecret     []byte
	)

	if cfg.Auth.Mode == config.AuthModeLocal {
		log.Info("authentication mode: local")

		// Sessions share the SQLite database; other drivers keep them in memory
		var sqlDB *sql.DB
		if db.Driver == config.DriverSQLite {
			sqlDB, err = db.DB.DB()
			if err != nil {
				return fmt.Errorf("failed to get SQL DB for sessions: %w", err)
			}
		}

		sessionManager, err = auth.NewSessionManager(sqlDB, cfg.Auth)
		if err != nil {
			return fmt.Errorf("failed to initialize session manager: %w", err)
		}

		authMiddleware = auth.NewMiddleware(authService, sessionManager, cfg.Auth)
		authController = auth.NewAuthController(authService, sessionManager, auditService, cfg.Auth, log)
		defer authController.Stop()

		csrfSecret, err = sessionSecret(cfg.Auth.SessionSecret, log)
		if err != nil {
			return err
		}

		hasUsers, err := authService.HasUsers()
		if err != nil {
			return fmt.Errorf("failed to check for users: %w", err)
		}
		if !hasUsers {
			log.Warn("no users found, POST /api/auth/setup or run 'librapp create-user' to create an administrator")
		}
	} else {
		log.Info("authentication mode: none (no authentication required)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var taskClient *tasks.Client
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.TasksDatabasePath(), tasks.ConfigFrom(cfg.Tasks), log)
		if err != nil {
			return fmt.Errorf("failed to initialize task queue: %w", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Error("error closing task client", zap.Error(err))
			}
		}()

		taskClient.Register(
			tasks.NewSweepFinesQueue(engine, log),
			tasks.NewCleanupAuditEventsQueue(auditService, log),
		)
		go taskClient.Start(ctx)
	}

	sched := scheduler.New(log)
	if err := scheduleJobs(sched, cfg, engine, auditService, taskClient); err != nil {
		return err
	}
	sched.Start(ctx)

	routerCfg := http_controllers.RouterConfig{
		Engine:             engine,
		Catalog:            catalog.NewRepository(db.DB),
		Borrowers:          borrowers.NewRepository(db.DB),
		Database:           db,
		Logger:             log,
		AuditReader:        auditService,
		BorrowerAuditor:    auditService,
		InventoryAuditor:   auditService,
		AuthConfig:         cfg.Auth,
		AuthService:        authService,
		AuthMiddleware:     authMiddleware,
		AuthController:     authController,
		SessionManager:     sessionManager,
		CSRFSecret:         csrfSecret,
		Schedule:           sched,
		AuditRetentionDays: cfg.Audit.RetentionDays,
		Metrics:            m,
		Version:            version,
	}
	// A nil *tasks.Client must not become a non-nil interface
	if taskClient != nil {
		routerCfg.TaskClient = taskClient
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		sched.Stop()
		if taskClient != nil {
			taskClient.Stop(ctx)
		}
		cancel()
	}

	return Serve(router, cfg, log, onShutdown)
}

// scheduleJobs registers the fine sweep and audit cleanup. When the task
// queue is enabled the jobs only enqueue, so runs get the queue's retries.
func scheduleJobs(sched *scheduler.Scheduler, cfg *config.Config, engine *circulation.Engine, auditService *audit.Service, taskClient *tasks.Client) error {
	if cfg.FineSweep.Enabled {
		err := sched.Add("sweep_fines", cfg.FineSweep.Schedule, sweepJobTimeout, func(ctx context.Context) error {
			if taskClient != nil {
				_, err := taskClient.Add(tasks.SweepFinesTask{Trigger: "schedule"}).Save()
				return err
			}
			_, err := engine.SweepOverdue(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}

	if cfg.Audit.CleanupSchedule != "" {
		retentionDays := cfg.Audit.RetentionDays
		err := sched.Add("cleanup_audit_events", cfg.Audit.CleanupSchedule, cleanupJobTimeout, func(ctx context.Context) error {
			if taskClient != nil {
				_, err := taskClient.Add(tasks.CleanupAuditEventsTask{RetentionDays: retentionDays}).Save()
				return err
			}
			_, err := auditService.DeleteOldEvents(ctx, time.Duration(retentionDays)*24*time.Hour)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// sessionSecret decodes a hex AUTH_SESSION_SECRET, falling back to its raw
// bytes, or generates one for this process.
func sessionSecret(configured string, log *zap.Logger) ([]byte, error) {
	if configured != "" {
		if secret, err := hex.DecodeString(configured); err == nil {
			return secret, nil
		}
		return []byte(configured), nil
	}

	secret, err := auth.GenerateSessionSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSRF secret: %w", err)
	}
	log.Warn("generated session secret, set AUTH_SESSION_SECRET to persist sessions across restarts")
	return hex.DecodeString(secret)
}
