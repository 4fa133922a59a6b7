package circulation

import (
	"context"
	"time"

	"github.com/mrlokans/librapp/internal/entities"
)

// Store is the persistence port of the loan engine and fine ledger.
//
// Lookups return (nil, nil) when the row does not exist. Mutations that
// can lose a race report whether they applied instead of failing.
type Store interface {
	// Transaction runs fn against a Store bound to a single database
	// transaction. Returning an error from fn rolls everything back.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// GetCopy loads the copy of isbn held at branchID. Inside a transaction
	// the row stays locked until commit where the database supports it.
	GetCopy(ctx context.Context, isbn string, branchID uint) (*entities.BookCopy, error)
	// AdjustCopiesAvailable adds delta to the copy's counter unless the
	// result would drop below zero. It reports whether the row changed.
	AdjustCopiesAvailable(ctx context.Context, copyID uint, delta int) (bool, error)

	GetBorrower(ctx context.Context, cardNo uint) (*entities.Borrower, error)

	// GetLoan loads a loan together with its copy, book and borrower.
	GetLoan(ctx context.Context, id uint) (*entities.BookLoan, error)
	CreateLoan(ctx context.Context, loan *entities.BookLoan) error
	// CloseLoan sets date_in on an active loan. It reports false when the
	// loan was already closed.
	CloseLoan(ctx context.Context, id uint, at time.Time) (bool, error)
	// FindLoans returns loans ordered by id ascending.
	FindLoans(ctx context.Context, q LoanQuery) ([]entities.BookLoan, error)
	CountActiveLoans(ctx context.Context, cardNo uint) (int64, error)

	GetFine(ctx context.Context, id uint) (*entities.Fine, error)
	GetFineByLoan(ctx context.Context, loanID uint) (*entities.Fine, error)
	// UpsertAccruedFine inserts an unpaid fine for the loan or raises the
	// accrued amount of an existing unpaid one. Paid fines and fines that
	// already accrued at least accruedCents are left unchanged.
	UpsertAccruedFine(ctx context.Context, loanID uint, accruedCents int64, at time.Time) error
	// SettleFine writes the post-payment state of fine, provided the row
	// still holds the amounts fine was read with. It reports false when the
	// fine changed underneath.
	SettleFine(ctx context.Context, fine *entities.Fine, s Settlement) (bool, error)
}

// LoanQuery filters FindLoans. Zero values mean "no constraint".
type LoanQuery struct {
	CardNo     *uint
	CopyID     *uint
	ActiveOnly bool
	ClosedOnly bool
	DueBefore  *time.Time
	AfterID    uint
	Limit      int
}

// Settlement is the new state of a fine after a payment.
type Settlement struct {
	FineCents int64
	PaidCents int64
	Paid      bool
	At        time.Time
}
