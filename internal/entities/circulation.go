package entities

import "time"

// BookLoan is created at checkout and closed exactly once at checkin.
// A loan with a nil DateIn is active.
type BookLoan struct {
	ID     uint     `gorm:"primaryKey" json:"id"`
	CopyID uint     `gorm:"index;not null" json:"copy_id"`
	Copy   BookCopy `gorm:"foreignKey:CopyID" json:"copy,omitempty"`
	// Named apart from Borrower.CardNo so the foreign key lands on book_loans.
	BorrowerCardNo uint       `gorm:"column:card_no;index;not null" json:"card_no"`
	Borrower       Borrower   `gorm:"foreignKey:BorrowerCardNo;references:CardNo" json:"borrower,omitempty"`
	DateOut        time.Time  `gorm:"not null" json:"date_out"`
	DueDate        time.Time  `gorm:"index;not null" json:"due_date"`
	DateIn         *time.Time `gorm:"index" json:"date_in,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (l BookLoan) Active() bool {
	return l.DateIn == nil
}

// Fine amounts are integer cents. FineCents is the outstanding balance,
// AccruedCents the total accrued so far and PaidCents the total settled.
type Fine struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	LoanID       uint      `gorm:"uniqueIndex;not null" json:"loan_id"`
	Loan         *BookLoan `gorm:"foreignKey:LoanID" json:"-"`
	AccruedCents int64     `gorm:"not null;default:0" json:"accrued_cents"`
	FineCents    int64     `gorm:"not null;default:0;check:chk_fine_cents,fine_cents >= 0" json:"fine_cents"`
	PaidCents    int64     `gorm:"not null;default:0" json:"paid_cents"`
	Paid         bool      `gorm:"not null;default:false;index" json:"paid"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
