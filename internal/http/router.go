package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librapp/internal/auth"
	"github.com/mrlokans/librapp/internal/entities"
)

const hstsMaxAge = 365 * 24 * 60 * 60

// NewRouter creates and configures the HTTP router with all endpoints.
// Uses RouterConfig to receive all dependencies, improving testability
// and reducing parameter count.
func NewRouter(cfg RouterConfig) *gin.Engine {
	useJSONFieldNames()
	router := gin.New()
	router.Use(RequestLogger(cfg.Logger))
	router.Use(Recovery(cfg.Logger))

	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
	}

	// Apply security headers to all responses
	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.AuthConfig.SecureCookies {
		router.Use(auth.StrictTransportSecurityMiddleware(hstsMaxAge))
	}

	// Session must load before CSRF so the session cookie check sees it
	if cfg.SessionManager != nil {
		router.Use(cfg.SessionManager.SessionLoadSave())
	}
	if len(cfg.CSRFSecret) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.AuthConfig.SecureCookies, auth.SessionCookieName, cfg.AuthService))
	}

	authMiddleware := cfg.AuthMiddleware
	if authMiddleware == nil {
		authMiddleware = auth.NewMiddleware(cfg.AuthService, cfg.SessionManager, cfg.AuthConfig)
	}
	router.Use(authMiddleware.Handler())
	router.Use(ActorContext())

	staff := authMiddleware.RequireRole(entities.UserRoleAdmin, entities.UserRoleLibrarian)
	admin := authMiddleware.RequireRole(entities.UserRoleAdmin)

	// Health endpoints
	health := NewHealthController(cfg.Database, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", health.Ping)

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := router.Group("/api")

	if cfg.AuthController != nil {
		cfg.AuthController.RegisterRoutes(api, authMiddleware)
	}

	// Circulation
	loans := NewLoansController(cfg.Engine)
	fines := NewFinesController(cfg.Engine)
	api.POST("/loans", staff, loans.Checkout)
	api.GET("/loans", staff, loans.ListLoans)
	api.POST("/loans/:id/checkin", staff, loans.Checkin)
	api.GET("/fines", staff, fines.ListFines)
	api.POST("/fines/:id/payments", staff, fines.Pay)

	// Borrowers
	if cfg.Borrowers != nil {
		borrowers := NewBorrowersController(cfg.Borrowers, cfg.BorrowerAuditor)
		api.POST("/borrowers", staff, borrowers.Create)
		api.GET("/borrowers/:card_no", staff, borrowers.Get)
	}

	// Catalog
	if cfg.Catalog != nil {
		catalog := NewCatalogController(cfg.Catalog, cfg.InventoryAuditor)
		api.GET("/search", staff, catalog.Search)
		api.GET("/branches", staff, catalog.ListBranches)
		api.PUT("/copies", admin, catalog.SetCopies)
	}

	// Audit log
	if cfg.AuditReader != nil {
		auditController := NewAuditController(cfg.AuditReader)
		api.GET("/audit", admin, auditController.GetAuditEvents)
	}

	// Task management endpoints
	if cfg.TaskClient != nil {
		tasksController := NewTasksController(cfg.TaskClient, cfg.Schedule, cfg.AuditRetentionDays)
		tasksGroup := api.Group("/tasks", admin)
		tasksGroup.GET("/types", tasksController.ListTaskTypes)
		tasksGroup.GET("/schedule", tasksController.GetSchedule)
		tasksGroup.GET("/:id", tasksController.GetTaskStatus)
		tasksGroup.POST("/:id/run", tasksController.RunTask)
	}

	return router
}
