// Package borrowers provides database operations for library card holders.
package borrowers

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librapp/internal/entities"
)

// ErrDuplicateSSN is returned when another borrower already holds the SSN.
var ErrDuplicateSSN = errors.New("a borrower with this ssn already exists")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the borrower and assigns its card number.
func (r *Repository) Create(ctx context.Context, b *entities.Borrower) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "ssn"}}, DoNothing: true}).
		Create(b)
	if result.Error != nil {
		return fmt.Errorf("failed to create borrower: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateSSN
	}
	return nil
}

// Get returns the borrower with cardNo, or nil if absent.
func (r *Repository) Get(ctx context.Context, cardNo uint) (*entities.Borrower, error) {
	return r.first(r.db.WithContext(ctx).Where("card_no = ?", cardNo))
}

// GetBySSN returns the borrower holding ssn, or nil if absent.
func (r *Repository) GetBySSN(ctx context.Context, ssn string) (*entities.Borrower, error) {
	return r.first(r.db.WithContext(ctx).Where("ssn = ?", ssn))
}

func (r *Repository) first(q *gorm.DB) (*entities.Borrower, error) {
	var b entities.Borrower
	err := q.First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// List returns borrowers ordered by card number, starting after afterCardNo.
func (r *Repository) List(ctx context.Context, afterCardNo uint, limit int) ([]entities.Borrower, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []entities.Borrower
	err := r.db.WithContext(ctx).
		Where("card_no > ?", afterCardNo).
		Order("card_no").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entities.Borrower{}).Count(&n).Error
	return n, err
}
