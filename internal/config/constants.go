package config

// Default paths and circulation policy values
const (
	// DefaultDatabasePath is the default path for the SQLite database
	DefaultDatabasePath = "./librapp.db"

	// DefaultMaxActiveLoans is the number of open loans a borrower may hold
	DefaultMaxActiveLoans = 3

	// DefaultLoanPeriodDays is the time between checkout and due date
	DefaultLoanPeriodDays = 14

	// DefaultDailyFineRate is the fine accrued per overdue day, in currency units
	DefaultDailyFineRate = "0.25"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)
