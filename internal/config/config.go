package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type AuthMode string

const (
	AuthModeNone  AuthMode = "none"  // No authentication required (default)
	AuthModeLocal AuthMode = "local" // Local staff accounts with sessions and API tokens
)

type (
	Config struct {
		HTTP
		Global
		Log
		Database
		Loans
		FineSweep
		Audit
		Tasks
		Auth
		Events
		Metrics
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Log struct {
		Level       string // debug, info, warn, error
		Development bool
	}
	Database struct {
		Driver string // sqlite or postgres
		Path   string // SQLite file path
		DSN    string // PostgreSQL connection string
	}
	Loans struct {
		MaxActive     int
		PeriodDays    int
		DailyFineRate decimal.Decimal
	}
	FineSweep struct {
		Enabled  bool
		Schedule string // Cron format: "0 2 * * *" = daily at 02:00
	}
	Audit struct {
		RetentionDays   int    // Days to keep audit events (default: 90)
		CleanupSchedule string // Cron format, empty disables scheduled cleanup
	}
	Tasks struct {
		Enabled           bool
		DatabasePath      string // Defaults to "<database>-tasks.db" next to the SQLite database
		Workers           int
		MaxRetries        int
		RetryDelay        time.Duration
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
	Auth struct {
		Mode            AuthMode
		SessionSecret   string
		SessionLifetime time.Duration
		TokenExpiry     time.Duration
		BcryptCost      int
		SecureCookies   bool // Set to false for local dev without HTTPS

		// Rate limiting configuration
		MaxLoginAttempts int           // Max failed attempts before lockout (default: 5)
		RateLimitWindow  time.Duration // Time window for counting attempts (default: 15m)
		LockoutDuration  time.Duration // How long to lock out (default: 30m)
	}
	Events struct {
		AMQPURL  string // Empty disables event publishing
		Exchange string
	}
	Metrics struct {
		Enabled bool
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	// An empty AUDIT_CLEANUP_SCHEDULE disables the cleanup job
	v.AllowEmptyEnv(true)
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)
	v.SetDefault("database_driver", DriverSQLite)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("database_dsn", "")

	// Circulation policy
	v.SetDefault("loan_max_active", DefaultMaxActiveLoans)
	v.SetDefault("loan_period_days", DefaultLoanPeriodDays)
	v.SetDefault("fine_daily_rate", DefaultDailyFineRate)
	v.SetDefault("fine_sweep_enabled", true)
	v.SetDefault("fine_sweep_schedule", "0 2 * * *") // Daily at 02:00

	v.SetDefault("audit_retention_days", 90)
	v.SetDefault("audit_cleanup_schedule", "30 3 * * 0") // Sundays at 03:30

	// Auth defaults
	v.SetDefault("auth_mode", "none")
	v.SetDefault("auth_session_secret", "")       // Auto-generated if empty
	v.SetDefault("auth_session_lifetime", "12h")  // One working day
	v.SetDefault("auth_token_expiry", "720h")     // 30 days
	v.SetDefault("auth_bcrypt_cost", 12)          // bcrypt cost factor
	v.SetDefault("auth_secure_cookies", true)     // HTTPS-only cookies
	v.SetDefault("auth_max_login_attempts", 5)    // Max failed attempts
	v.SetDefault("auth_rate_limit_window", "15m") // Window for counting attempts
	v.SetDefault("auth_lockout_duration", "30m")  // Lockout duration

	v.SetDefault("events_amqp_url", "")
	v.SetDefault("events_exchange", "librapp.events")
	v.SetDefault("metrics_enabled", true)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_database_path", "")
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "1m")
	v.SetDefault("task_timeout", "5m")
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Log: Log{
			Level:       v.GetString("LOG_LEVEL"),
			Development: v.GetBool("LOG_DEVELOPMENT"),
		},
		Database: Database{
			Driver: v.GetString("DATABASE_DRIVER"),
			Path:   v.GetString("DATABASE_PATH"),
			DSN:    v.GetString("DATABASE_DSN"),
		},
		Loans: Loans{
			MaxActive:     v.GetInt("LOAN_MAX_ACTIVE"),
			PeriodDays:    v.GetInt("LOAN_PERIOD_DAYS"),
			DailyFineRate: parseRate(v.GetString("FINE_DAILY_RATE")),
		},
		FineSweep: FineSweep{
			Enabled:  v.GetBool("FINE_SWEEP_ENABLED"),
			Schedule: v.GetString("FINE_SWEEP_SCHEDULE"),
		},
		Audit: Audit{
			RetentionDays:   v.GetInt("AUDIT_RETENTION_DAYS"),
			CleanupSchedule: v.GetString("AUDIT_CLEANUP_SCHEDULE"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			DatabasePath:      v.GetString("TASK_DATABASE_PATH"),
			Workers:           v.GetInt("TASK_WORKERS"),
			MaxRetries:        v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("TASK_RETRY_DELAY"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Auth: Auth{
			Mode:             AuthMode(v.GetString("AUTH_MODE")),
			SessionSecret:    v.GetString("AUTH_SESSION_SECRET"),
			SessionLifetime:  v.GetDuration("AUTH_SESSION_LIFETIME"),
			TokenExpiry:      v.GetDuration("AUTH_TOKEN_EXPIRY"),
			BcryptCost:       v.GetInt("AUTH_BCRYPT_COST"),
			SecureCookies:    v.GetBool("AUTH_SECURE_COOKIES"),
			MaxLoginAttempts: v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS"),
			RateLimitWindow:  v.GetDuration("AUTH_RATE_LIMIT_WINDOW"),
			LockoutDuration:  v.GetDuration("AUTH_LOCKOUT_DURATION"),
		},
		Events: Events{
			AMQPURL:  v.GetString("EVENTS_AMQP_URL"),
			Exchange: v.GetString("EVENTS_EXCHANGE"),
		},
		Metrics: Metrics{
			Enabled: v.GetBool("METRICS_ENABLED"),
		},
	}
}

// Validate reports configuration values the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DATABASE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver)
	}
	if c.Loans.MaxActive <= 0 {
		return fmt.Errorf("LOAN_MAX_ACTIVE must be positive")
	}
	if c.Loans.PeriodDays <= 0 {
		return fmt.Errorf("LOAN_PERIOD_DAYS must be positive")
	}
	if !c.Loans.DailyFineRate.IsPositive() {
		return fmt.Errorf("FINE_DAILY_RATE must be a positive amount")
	}
	if !c.Loans.DailyFineRate.Equal(c.Loans.DailyFineRate.Truncate(2)) {
		return fmt.Errorf("FINE_DAILY_RATE must have at most two decimal places")
	}
	switch c.Auth.Mode {
	case AuthModeNone, AuthModeLocal:
	default:
		return fmt.Errorf("unsupported AUTH_MODE %q", c.Auth.Mode)
	}
	return nil
}

// TasksDatabasePath is where the task queue keeps its SQLite database. The
// queue always uses SQLite, even when the main database is PostgreSQL.
func (c *Config) TasksDatabasePath() string {
	if c.Tasks.DatabasePath != "" {
		return c.Tasks.DatabasePath
	}
	base := c.Database.Path
	if c.Database.Driver == DriverPostgres || base == "" || strings.HasPrefix(base, ":memory:") {
		base = DefaultDatabasePath
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-tasks" + ext
}

// parseRate returns a zero rate for malformed input so Validate can reject it.
func parseRate(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
