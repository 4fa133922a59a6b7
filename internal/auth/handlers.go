package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mrlokans/librapp/internal/config"
	"github.com/mrlokans/librapp/internal/entities"
)

// EventRecorder receives authentication events worth auditing.
type EventRecorder interface {
	RecordAuthEvent(ctx context.Context, userID uint, action string)
}

// AuthController serves the JSON authentication endpoints under /api/auth
// and staff account management under /api/users.
type AuthController struct {
	service        *Service
	sessionManager *SessionManager
	rateLimiter    *RateLimiter
	recorder       EventRecorder
	log            *zap.Logger
	config         config.Auth

	// setupMu serializes first-admin creation so concurrent requests
	// cannot both pass the HasUsers check.
	setupMu sync.Mutex
}

// NewAuthController creates the controller and its login rate limiter.
// sessionManager and recorder may be nil.
func NewAuthController(service *Service, sessionManager *SessionManager, recorder EventRecorder, cfg config.Auth, log *zap.Logger) *AuthController {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthController{
		service:        service,
		sessionManager: sessionManager,
		rateLimiter:    NewRateLimiter(RateLimitConfigFrom(cfg)),
		recorder:       recorder,
		log:            log,
		config:         cfg,
	}
}

// RegisterRoutes registers the authentication routes on group, which is
// expected to be mounted at /api.
func (ac *AuthController) RegisterRoutes(group *gin.RouterGroup, m *Middleware) {
	authGroup := group.Group("/auth")
	authGroup.GET("/status", ac.Status)
	authGroup.POST("/setup", ac.Setup)
	authGroup.POST("/login", ac.Login)
	authGroup.POST("/logout", ac.Logout)
	authGroup.GET("/me", ac.Me)
	authGroup.POST("/password", ac.ChangePassword)
	authGroup.POST("/token", ac.GenerateToken)
	authGroup.DELETE("/token", ac.RevokeToken)

	users := group.Group("/users", m.RequireRole(entities.UserRoleAdmin))
	users.GET("", ac.ListUsers)
	users.POST("", ac.CreateUser)
}

// Stop releases the rate limiter goroutine.
func (ac *AuthController) Stop() {
	ac.rateLimiter.Stop()
}

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type newUserRequest struct {
	Username string            `json:"username" binding:"required"`
	Email    string            `json:"email" binding:"required"`
	Password string            `json:"password" binding:"required"`
	Role     entities.UserRole `json:"role"`
}

type passwordChange struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// Status reports the auth mode and whether the first admin still has to
// be created.
func (ac *AuthController) Status(c *gin.Context) {
	hasUsers, err := ac.service.HasUsers()
	if err != nil {
		ac.internalError(c, "failed to count users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"auth_mode":      ac.service.GetAuthMode(),
		"setup_required": ac.service.IsAuthEnabled() && !hasUsers,
	})
}

// Setup creates the first admin account. It is refused once any account exists.
func (ac *AuthController) Setup(c *gin.Context) {
	var req newUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return
	}

	ac.setupMu.Lock()
	defer ac.setupMu.Unlock()

	hasUsers, err := ac.service.HasUsers()
	if err != nil {
		ac.internalError(c, "failed to count users", err)
		return
	}
	if hasUsers {
		c.JSON(http.StatusConflict, gin.H{"error": "setup already completed", "code": "setup_done"})
		return
	}

	user, err := ac.service.CreateUser(req.Username, req.Email, req.Password, entities.UserRoleAdmin)
	if err != nil {
		ac.userError(c, err)
		return
	}

	if ac.sessionManager != nil {
		if err := ac.sessionManager.CreateSession(c.Request, user); err != nil {
			ac.log.Warn("failed to create session after setup", zap.Error(err))
		}
	}
	ac.record(c, user.ID, "setup")
	c.JSON(http.StatusCreated, user)
}

// Login verifies credentials and opens a cookie session.
func (ac *AuthController) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return
	}
	clientIP := c.ClientIP()

	if allowed, retryAfter := ac.rateLimiter.Allow(clientIP, req.Username); !allowed {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "too many login attempts",
			"code":        "rate_limited",
			"retry_after": retryAfter.String(),
		})
		return
	}

	user, err := ac.service.Authenticate(req.Username, req.Password)
	if err != nil {
		ac.rateLimiter.RecordFailure(clientIP, req.Username)
		switch {
		case errors.Is(err, ErrAccountLocked):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account is locked, try again later", "code": "account_locked"})
		case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrInvalidPassword):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password", "code": "invalid_credentials"})
		default:
			ac.internalError(c, "authentication failed", err)
		}
		return
	}
	ac.rateLimiter.RecordSuccess(clientIP, req.Username)

	if ac.sessionManager != nil {
		if err := ac.sessionManager.CreateSession(c.Request, user); err != nil {
			ac.internalError(c, "failed to create session", err)
			return
		}
	}
	ac.record(c, user.ID, "login")
	c.JSON(http.StatusOK, gin.H{"user": user, "csrf_token": GetCSRFToken(c)})
}

// Logout destroys the session, if any.
func (ac *AuthController) Logout(c *gin.Context) {
	if ac.sessionManager != nil {
		if err := ac.sessionManager.DestroySession(c.Request); err != nil {
			ac.internalError(c, "failed to destroy session", err)
			return
		}
	}
	ac.record(c, GetUserID(c), "logout")
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the current account and a fresh CSRF token for cookie clients.
func (ac *AuthController) Me(c *gin.Context) {
	userID := GetUserID(c)
	if userID == DefaultUserID {
		c.JSON(http.StatusOK, gin.H{
			"user":       nil,
			"role":       GetUserRole(c),
			"auth_type":  GetAuthType(c),
			"csrf_token": GetCSRFToken(c),
		})
		return
	}
	user, err := ac.service.GetUserByID(userID)
	if err != nil {
		ac.userError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":       user,
		"role":       user.Role,
		"auth_type":  GetAuthType(c),
		"csrf_token": GetCSRFToken(c),
	})
}

func (ac *AuthController) ChangePassword(c *gin.Context) {
	if !ac.requireUser(c) {
		return
	}
	var req passwordChange
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return
	}
	if err := ac.service.ChangePassword(GetUserID(c), req.OldPassword, req.NewPassword); err != nil {
		ac.userError(c, err)
		return
	}
	ac.record(c, GetUserID(c), "password_changed")
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

// GenerateToken issues a bearer token for the authenticated user.
func (ac *AuthController) GenerateToken(c *gin.Context) {
	if !ac.requireUser(c) {
		return
	}
	token, err := ac.service.GenerateToken(GetUserID(c))
	if err != nil {
		ac.internalError(c, "failed to generate token", err)
		return
	}
	ac.record(c, GetUserID(c), "token_issued")
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"message": "Store this token securely - it will not be shown again",
	})
}

// RevokeToken revokes the API token for the authenticated user.
func (ac *AuthController) RevokeToken(c *gin.Context) {
	if !ac.requireUser(c) {
		return
	}
	if err := ac.service.RevokeToken(GetUserID(c)); err != nil {
		ac.internalError(c, "failed to revoke token", err)
		return
	}
	ac.record(c, GetUserID(c), "token_revoked")
	c.JSON(http.StatusOK, gin.H{"message": "token revoked"})
}

func (ac *AuthController) ListUsers(c *gin.Context) {
	users, err := ac.service.ListUsers()
	if err != nil {
		ac.internalError(c, "failed to list users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
}

// CreateUser adds a staff account. Role defaults to librarian.
func (ac *AuthController) CreateUser(c *gin.Context) {
	var req newUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return
	}
	if req.Role == "" {
		req.Role = entities.UserRoleLibrarian
	}

	user, err := ac.service.CreateUser(req.Username, req.Email, req.Password, req.Role)
	if err != nil {
		ac.userError(c, err)
		return
	}
	ac.record(c, GetUserID(c), "user_created:"+user.Username)
	c.JSON(http.StatusCreated, user)
}

func (ac *AuthController) requireUser(c *gin.Context) bool {
	if GetUserID(c) == DefaultUserID {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": "unauthorized"})
		return false
	}
	return true
}

// userError maps account validation failures onto 4xx responses.
func (ac *AuthController) userError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "user_exists"})
	case errors.Is(err, ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "not_found"})
	case errors.Is(err, ErrInvalidPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "invalid_credentials"})
	case errors.Is(err, ErrUsernameRequired), errors.Is(err, ErrUsernameInvalid),
		errors.Is(err, ErrEmailRequired), errors.Is(err, ErrEmailInvalid),
		errors.Is(err, ErrPasswordRequired), errors.Is(err, ErrPasswordTooShort),
		errors.Is(err, ErrPasswordTooLong), errors.Is(err, ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
	default:
		ac.internalError(c, "account operation failed", err)
	}
}

func (ac *AuthController) internalError(c *gin.Context, msg string, err error) {
	ac.log.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg, "code": "internal"})
}

func (ac *AuthController) record(c *gin.Context, userID uint, action string) {
	if ac.recorder != nil {
		ac.recorder.RecordAuthEvent(c.Request.Context(), userID, action)
	}
}
