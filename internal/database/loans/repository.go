// Package loans provides database operations for loans and fines.
//
// # Usage
//
//	repo := loans.NewRepository(db)
//	engine := circulation.NewEngine(repo)
//
// Repository implements circulation.Store. Inventory and loan state changes
// are conditional updates whose affected-row count tells the caller whether
// it won a race.
package loans

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librapp/internal/circulation"
	"github.com/mrlokans/librapp/internal/entities"
)

var _ circulation.Store = (*Repository)(nil)

// Repository handles all loan and fine database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new loans repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn with a repository bound to one database transaction.
func (r *Repository) Transaction(ctx context.Context, fn func(tx circulation.Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// forUpdate locks selected rows on databases with row locks. SQLite
// transactions already hold the database write lock.
func (r *Repository) forUpdate(q *gorm.DB) *gorm.DB {
	if r.db.Dialector.Name() == "postgres" {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (r *Repository) GetCopy(ctx context.Context, isbn string, branchID uint) (*entities.BookCopy, error) {
	var c entities.BookCopy
	err := r.forUpdate(r.db.WithContext(ctx)).
		Preload("Book").
		Where("book_isbn = ? AND branch_id = ?", isbn, branchID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) AdjustCopiesAvailable(ctx context.Context, copyID uint, delta int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entities.BookCopy{}).
		Where("id = ? AND copies_available + ? >= 0", copyID, delta).
		Updates(map[string]any{
			"copies_available": gorm.Expr("copies_available + ?", delta),
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *Repository) GetBorrower(ctx context.Context, cardNo uint) (*entities.Borrower, error) {
	var b entities.Borrower
	err := r.db.WithContext(ctx).Where("card_no = ?", cardNo).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) GetLoan(ctx context.Context, id uint) (*entities.BookLoan, error) {
	var loan entities.BookLoan
	err := r.db.WithContext(ctx).
		Preload("Copy.Book").
		Preload("Borrower").
		First(&loan, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *Repository) CreateLoan(ctx context.Context, loan *entities.BookLoan) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(loan).Error
}

func (r *Repository) CloseLoan(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entities.BookLoan{}).
		Where("id = ? AND date_in IS NULL", id).
		Update("date_in", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *Repository) FindLoans(ctx context.Context, q circulation.LoanQuery) ([]entities.BookLoan, error) {
	query := r.db.WithContext(ctx).
		Preload("Copy.Book").
		Preload("Borrower").
		Order("id ASC")

	if q.CardNo != nil {
		query = query.Where("card_no = ?", *q.CardNo)
	}
	if q.CopyID != nil {
		query = query.Where("copy_id = ?", *q.CopyID)
	}
	if q.ActiveOnly {
		query = query.Where("date_in IS NULL")
	}
	if q.ClosedOnly {
		query = query.Where("date_in IS NOT NULL")
	}
	if q.DueBefore != nil {
		query = query.Where("due_date < ?", q.DueBefore.UTC())
	}
	if q.AfterID > 0 {
		query = query.Where("id > ?", q.AfterID)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var loans []entities.BookLoan
	err := query.Find(&loans).Error
	return loans, err
}

func (r *Repository) CountActiveLoans(ctx context.Context, cardNo uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.BookLoan{}).
		Where("card_no = ? AND date_in IS NULL", cardNo).
		Count(&count).Error
	return count, err
}

func (r *Repository) GetFine(ctx context.Context, id uint) (*entities.Fine, error) {
	var fine entities.Fine
	err := r.forUpdate(r.db.WithContext(ctx)).First(&fine, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fine, nil
}

func (r *Repository) GetFineByLoan(ctx context.Context, loanID uint) (*entities.Fine, error) {
	var fine entities.Fine
	err := r.db.WithContext(ctx).Where("loan_id = ?", loanID).First(&fine).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fine, nil
}

// UpsertAccruedFine is a single INSERT ... ON CONFLICT statement keyed on
// the unique loan_id, so concurrent evaluations converge on one row.
func (r *Repository) UpsertAccruedFine(ctx context.Context, loanID uint, accruedCents int64, at time.Time) error {
	fine := entities.Fine{
		LoanID:       loanID,
		AccruedCents: accruedCents,
		FineCents:    accruedCents,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	return r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "loan_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"accrued_cents": gorm.Expr("excluded.accrued_cents"),
				"fine_cents":    gorm.Expr("excluded.accrued_cents - fines.paid_cents"),
				"updated_at":    at,
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("fines.paid = ? AND fines.accrued_cents < excluded.accrued_cents", false),
			}},
		}).
		Create(&fine).Error
}

func (r *Repository) SettleFine(ctx context.Context, fine *entities.Fine, s circulation.Settlement) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entities.Fine{}).
		Where("id = ? AND fine_cents = ? AND paid_cents = ? AND paid = ?",
			fine.ID, fine.FineCents, fine.PaidCents, fine.Paid).
		Updates(map[string]any{
			"fine_cents": s.FineCents,
			"paid_cents": s.PaidCents,
			"paid":       s.Paid,
			"updated_at": s.At,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
