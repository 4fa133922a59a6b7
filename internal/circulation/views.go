package circulation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mrlokans/librapp/internal/entities"
)

type FineStatus string

const (
	FineStatusUnpaid        FineStatus = "unpaid"
	FineStatusPaid          FineStatus = "paid"
	FineStatusNotApplicable FineStatus = "not_applicable"
)

// FineView is the fine state of one loan. Loans that never accrued a fine
// get a zero view with ID 0 and status not_applicable.
type FineView struct {
	ID      uint            `json:"id"`
	LoanID  uint            `json:"loan_id"`
	Amount  decimal.Decimal `json:"amount"`
	Accrued decimal.Decimal `json:"accrued"`
	Paid    bool            `json:"paid"`
	Status  FineStatus      `json:"status"`
}

type LoanView struct {
	ID           uint       `json:"id"`
	ISBN         string     `json:"isbn"`
	Title        string     `json:"title,omitempty"`
	BranchID     uint       `json:"branch_id"`
	CardNo       uint       `json:"card_no"`
	BorrowerName string     `json:"borrower_name,omitempty"`
	DateOut      time.Time  `json:"date_out"`
	DueDate      time.Time  `json:"due_date"`
	DateIn       *time.Time `json:"date_in,omitempty"`
	Active       bool       `json:"active"`
	OverdueDays  int        `json:"overdue_days"`
	Fine         FineView   `json:"fine"`
}

// PaymentResult is the fine after a payment and the change owed back.
type PaymentResult struct {
	Fine     FineView        `json:"fine"`
	Tendered decimal.Decimal `json:"tendered"`
	Change   decimal.Decimal `json:"change"`
}

func cents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

func notApplicable(loanID uint) FineView {
	return FineView{
		LoanID:  loanID,
		Amount:  decimal.Zero,
		Accrued: decimal.Zero,
		Status:  FineStatusNotApplicable,
	}
}

func fineView(f *entities.Fine) FineView {
	status := FineStatusUnpaid
	if f.Paid {
		status = FineStatusPaid
	}
	return FineView{
		ID:      f.ID,
		LoanID:  f.LoanID,
		Amount:  cents(f.FineCents),
		Accrued: cents(f.AccruedCents),
		Paid:    f.Paid,
		Status:  status,
	}
}

func loanView(loan *entities.BookLoan, fine FineView, now time.Time) LoanView {
	v := LoanView{
		ID:          loan.ID,
		ISBN:        loan.Copy.BookISBN,
		Title:       loan.Copy.Book.Title,
		BranchID:    loan.Copy.BranchID,
		CardNo:      loan.BorrowerCardNo,
		DateOut:     loan.DateOut.UTC(),
		DueDate:     loan.DueDate.UTC(),
		Active:      loan.Active(),
		OverdueDays: OverdueDays(loan, now),
		Fine:        fine,
	}
	if loan.Borrower.FirstName != "" {
		v.BorrowerName = loan.Borrower.FullName()
	}
	if loan.DateIn != nil {
		in := loan.DateIn.UTC()
		v.DateIn = &in
	}
	return v
}

// OverdueDays counts whole UTC calendar days between the due date and the
// return date, or now for loans still out. It is never negative.
func OverdueDays(loan *entities.BookLoan, now time.Time) int {
	ref := now
	if loan.DateIn != nil {
		ref = *loan.DateIn
	}
	days := civilDay(ref) - civilDay(loan.DueDate)
	if days < 0 {
		return 0
	}
	return int(days)
}

func civilDay(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400
}
