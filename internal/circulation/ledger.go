package circulation

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mrlokans/librapp/internal/entities"
	"github.com/mrlokans/librapp/internal/logging"
)

// Ledger computes, persists and settles overdue fines.
type Ledger struct {
	store Store
	opts  options
}

func NewLedger(store Store, opts ...Option) *Ledger {
	return &Ledger{store: store, opts: newOptions(opts)}
}

// Evaluate brings the persisted fine of loan up to date and returns it.
//
// A loan that is not overdue and never accrued a fine gets a
// not_applicable view and no row is written. Repeated evaluation at the
// same instant leaves the stored fine unchanged, and paid fines are never
// touched again.
func (l *Ledger) Evaluate(ctx context.Context, loan *entities.BookLoan) (FineView, error) {
	return l.evaluate(ctx, l.store, loan)
}

func (l *Ledger) evaluate(ctx context.Context, st Store, loan *entities.BookLoan) (FineView, error) {
	now := l.opts.now()
	if days := OverdueDays(loan, now); days > 0 {
		accrued := int64(days) * l.opts.policy.dailyRateCents()
		if err := st.UpsertAccruedFine(ctx, loan.ID, accrued, now); err != nil {
			return FineView{}, storageErr("upsert fine", err)
		}
	}

	fine, err := st.GetFineByLoan(ctx, loan.ID)
	if err != nil {
		return FineView{}, storageErr("load fine", err)
	}
	if fine == nil {
		return notApplicable(loan.ID), nil
	}
	return fineView(fine), nil
}

// Pay applies amount to the fine. The fine is re-evaluated first so the
// payment settles the balance as of now. Paying at least the balance marks
// the fine paid and returns the excess as change.
func (l *Ledger) Pay(ctx context.Context, fineID uint, amount decimal.Decimal) (PaymentResult, error) {
	if amount.IsNegative() || !amount.Equal(amount.Truncate(2)) {
		return PaymentResult{}, rejected(KindInvalidAmount, "fine", fineID,
			"payment must be a non-negative amount with at most two decimal places")
	}
	tendered := amount.Shift(2).IntPart()

	var result PaymentResult
	err := l.store.Transaction(ctx, func(tx Store) error {
		fine, err := tx.GetFine(ctx, fineID)
		if err != nil {
			return storageErr("load fine", err)
		}
		if fine == nil {
			return notFound("fine", fineID)
		}

		loan, err := tx.GetLoan(ctx, fine.LoanID)
		if err != nil {
			return storageErr("load loan", err)
		}
		if loan != nil {
			if _, err := l.evaluate(ctx, tx, loan); err != nil {
				return err
			}
			if fine, err = tx.GetFine(ctx, fineID); err != nil {
				return storageErr("reload fine", err)
			}
		}

		settlement, change := settle(fine, tendered)
		settlement.At = l.opts.now()
		ok, err := tx.SettleFine(ctx, fine, settlement)
		if err != nil {
			return storageErr("settle fine", err)
		}
		if !ok {
			return rejected(KindStorage, "fine", fineID, "modified concurrently")
		}

		fine.FineCents = settlement.FineCents
		fine.PaidCents = settlement.PaidCents
		fine.Paid = settlement.Paid
		result = PaymentResult{
			Fine:     fineView(fine),
			Tendered: cents(tendered),
			Change:   cents(change),
		}
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	logging.FromContext(ctx, l.opts.log).Info("fine payment recorded",
		zap.Uint("fine_id", fineID),
		zap.String("tendered", result.Tendered.StringFixed(2)),
		zap.String("balance", result.Fine.Amount.StringFixed(2)),
		zap.String("change", result.Change.StringFixed(2)),
	)
	for _, o := range l.opts.observers {
		o.FinePaid(ctx, result)
	}
	return result, nil
}

// settle computes the fine state after tendering cents against it.
func settle(fine *entities.Fine, tendered int64) (Settlement, int64) {
	balance := fine.FineCents
	if tendered >= balance {
		return Settlement{
			FineCents: 0,
			PaidCents: fine.PaidCents + balance,
			Paid:      true,
		}, tendered - balance
	}
	return Settlement{
		FineCents: balance - tendered,
		PaidCents: fine.PaidCents + tendered,
		Paid:      fine.Paid,
	}, 0
}
