package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, int32(8188), cfg.HTTP.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, DefaultMaxActiveLoans, cfg.Loans.MaxActive)
	assert.Equal(t, DefaultLoanPeriodDays, cfg.Loans.PeriodDays)
	assert.True(t, cfg.Loans.DailyFineRate.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, "0 2 * * *", cfg.FineSweep.Schedule)
	assert.Equal(t, 90, cfg.Audit.RetentionDays)
	assert.Equal(t, AuthModeNone, cfg.Auth.Mode)
	require.NoError(t, cfg.Validate())
}

func TestNewConfig_Environment(t *testing.T) {
	t.Setenv("LOAN_MAX_ACTIVE", "5")
	t.Setenv("FINE_DAILY_RATE", "0.50")
	t.Setenv("AUTH_MODE", "local")
	t.Setenv("AUDIT_CLEANUP_SCHEDULE", "")

	cfg := NewConfig()

	assert.Equal(t, 5, cfg.Loans.MaxActive)
	assert.Equal(t, "0.5", cfg.Loans.DailyFineRate.String())
	assert.Equal(t, AuthModeLocal, cfg.Auth.Mode)
	assert.Empty(t, cfg.Audit.CleanupSchedule)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"missing sqlite path", func(c *Config) { c.Database.Path = "" }, "DATABASE_PATH"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = DriverPostgres }, "DATABASE_DSN"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported DATABASE_DRIVER"},
		{"zero loan limit", func(c *Config) { c.Loans.MaxActive = 0 }, "LOAN_MAX_ACTIVE"},
		{"zero loan period", func(c *Config) { c.Loans.PeriodDays = 0 }, "LOAN_PERIOD_DAYS"},
		{"malformed rate", func(c *Config) { c.Loans.DailyFineRate = parseRate("cheap") }, "FINE_DAILY_RATE"},
		{"sub-cent rate", func(c *Config) { c.Loans.DailyFineRate = parseRate("0.125") }, "two decimal places"},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "oauth" }, "AUTH_MODE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestTasksDatabasePath(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "explicit path",
			cfg:  Config{Tasks: Tasks{DatabasePath: "/var/lib/queue.db"}, Database: Database{Driver: DriverSQLite, Path: "/data/lib.db"}},
			want: "/var/lib/queue.db",
		},
		{
			name: "next to sqlite database",
			cfg:  Config{Database: Database{Driver: DriverSQLite, Path: "/data/lib.db"}},
			want: "/data/lib-tasks.db",
		},
		{
			name: "postgres uses default location",
			cfg:  Config{Database: Database{Driver: DriverPostgres, DSN: "postgres://localhost/lib"}},
			want: "./librapp-tasks.db",
		},
		{
			name: "in-memory sqlite uses default location",
			cfg:  Config{Database: Database{Driver: DriverSQLite, Path: ":memory:"}},
			want: "./librapp-tasks.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.TasksDatabasePath())
		})
	}
}
