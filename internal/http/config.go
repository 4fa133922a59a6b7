package http

import (
	"go.uber.org/zap"

	"github.com/mrlokans/librapp/internal/auth"
	"github.com/mrlokans/librapp/internal/circulation"
	"github.com/mrlokans/librapp/internal/config"
	"github.com/mrlokans/librapp/internal/database"
	"github.com/mrlokans/librapp/internal/metrics"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Engine    *circulation.Engine
	Catalog   CatalogStore
	Borrowers BorrowerStore
	Database  *database.Database
	Logger    *zap.Logger

	// Audit trail (optional). Any of the three may be nil.
	AuditReader      AuditReader
	BorrowerAuditor  BorrowerAuditor
	InventoryAuditor InventoryAuditor

	// Authentication
	AuthConfig     config.Auth
	AuthService    *auth.Service
	AuthMiddleware *auth.Middleware
	AuthController *auth.AuthController
	SessionManager *auth.SessionManager
	CSRFSecret     []byte

	// Task queue client and cron schedule (optional)
	TaskClient         TaskQueue
	Schedule           ScheduleReporter
	AuditRetentionDays int

	// Prometheus metrics (optional)
	Metrics *metrics.Metrics

	// Application info
	Version string
}
