// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup (sqlite or postgres) and migrations
//	├── catalog/         # Books, authors, branches, copies, search
//	├── borrowers/       # Borrower registration and lookup
//	├── loans/           # Loans and fines; implements circulation.Store
//	├── audit/           # Audit event log
//	└── users/           # Staff accounts
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type with domain-specific operations:
//
//	// Initialize database connection
//	db, err := database.NewDatabase(cfg.Database)
//
//	// Create domain-specific repositories
//	catalogRepo := catalog.NewRepository(db.DB)
//	loanStore := loans.NewRepository(db.DB)
//
//	// Use repositories
//	branches, err := catalogRepo.ListBranches(ctx)
//	engine := circulation.NewEngine(loanStore)
//
// # Interface Implementations
//
//   - loans.Repository: implements circulation.Store
//   - catalog.Repository: implements http.CatalogStore
//   - borrowers.Repository: implements http.BorrowerStore
//   - audit.Repository: backs audit.Service
//
// # SQLite
//
// SQLite connections use WAL, a busy timeout and immediate transactions so
// that concurrent writers queue up instead of failing. Lookups return
// (nil, nil) when a row is absent.
package database
