// Package auth provides staff authentication and authorization for the
// circulation API.
//
// It supports two authentication modes:
//   - "none": No authentication required (default), every request acts as an anonymous admin
//   - "local": Staff accounts stored in the database, with session cookies and Bearer tokens
//
// Accounts carry one of two roles. Librarians run the desk operations
// (checkout, checkin, fine payment); admins additionally manage accounts,
// read the audit trail and trigger maintenance tasks.
//
// # Configuration
//
// Set AUTH_MODE environment variable to select the mode:
//
//	AUTH_MODE=none   # Default, no auth required
//	AUTH_MODE=local  # Requires the first admin to be created via /api/auth/setup
//
// For local mode, additional configuration:
//
//	AUTH_SESSION_SECRET=<base64-32-bytes>  # Auto-generated if empty
//	AUTH_SESSION_LIFETIME=24h              # Session duration
//	AUTH_TOKEN_EXPIRY=720h                 # API token expiry (30 days default)
//	AUTH_BCRYPT_COST=12                    # bcrypt cost factor
//	AUTH_SECURE_COOKIES=true               # HTTPS-only cookies
//	AUTH_MAX_LOGIN_ATTEMPTS=5              # Failures before lockout
//
// # Usage
//
//	authService := auth.NewService(users.NewRepository(db), cfg.Auth)
//	sessions, _ := auth.NewSessionManager(sqlDB, cfg.Auth)
//	mw := auth.NewMiddleware(authService, sessions, cfg.Auth)
//	router.Use(sessions.SessionLoadSave(), mw.Handler())
//
// Extract user in handlers:
//
//	userID := auth.GetUserID(c)  // Returns DefaultUserID in "none" mode
package auth
