// Package circulation implements the loan lifecycle and the fine ledger.
//
// # Usage
//
//	store := loans.NewRepository(db.DB)
//	engine := circulation.NewEngine(store,
//		circulation.WithPolicy(policy),
//		circulation.WithLogger(log),
//		circulation.WithObserver(auditObserver, metricsObserver),
//	)
//
//	loan, err := engine.Checkout(ctx, "9780262033848", branchID, cardNo)
//	if errors.Is(err, circulation.ErrNoCopiesAvailable) {
//		// ...
//	}
//
//	for loan, err := range engine.ListLoans(ctx, circulation.LoanFilter{Overdue: true}) {
//		// ...
//	}
//
// Every mutation runs in a single store transaction. Inventory changes are
// conditional updates, so concurrent checkouts of the last unit cannot both
// succeed and concurrent checkins cannot lose an increment.
package circulation

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/mrlokans/librapp/internal/entities"
	"github.com/mrlokans/librapp/internal/logging"
)

const pageSize = 100

// Engine performs checkouts and checkins and lists loans.
type Engine struct {
	store  Store
	ledger *Ledger
	opts   options
}

func NewEngine(store Store, opts ...Option) *Engine {
	o := newOptions(opts)
	return &Engine{
		store:  store,
		ledger: &Ledger{store: store, opts: o},
		opts:   o,
	}
}

// Ledger returns the fine ledger sharing the engine's store and options.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// LoanFilter narrows ListLoans. Nil fields are ignored.
type LoanFilter struct {
	CardNo   *uint
	BranchID *uint
	// Active selects open loans when true and returned loans when false.
	Active *bool
	// Overdue selects open loans whose due date has passed. It overrides Active.
	Overdue bool
}

// FineFilter narrows ListFines.
type FineFilter struct {
	CardNo   *uint
	BranchID *uint
	Status   FineStatusFilter
}

type FineStatusFilter string

const (
	FineFilterUnpaid FineStatusFilter = "unpaid"
	FineFilterPaid   FineStatusFilter = "paid"
	FineFilterBoth   FineStatusFilter = "both"
)

// Checkout lends one unit of isbn at branchID to the borrower with cardNo.
//
// Checks run in order and the first failure is returned: the copy and the
// borrower exist, the borrower does not already hold this copy, none of
// the borrower's active loans carries an unpaid fine, the borrower is under
// the active loan limit, and a unit is on the shelf.
func (e *Engine) Checkout(ctx context.Context, isbn string, branchID, cardNo uint) (LoanView, error) {
	log := logging.FromContext(ctx, e.opts.log).With(
		zap.String("isbn", isbn),
		zap.Uint("branch_id", branchID),
		zap.Uint("card_no", cardNo),
	)
	now := e.opts.now()

	var loan *entities.BookLoan
	err := e.store.Transaction(ctx, func(tx Store) error {
		bookCopy, err := tx.GetCopy(ctx, isbn, branchID)
		if err != nil {
			return storageErr("load copy", err)
		}
		if bookCopy == nil {
			return notFound("copy", fmt.Sprintf("%s@%d", isbn, branchID))
		}

		borrower, err := tx.GetBorrower(ctx, cardNo)
		if err != nil {
			return storageErr("load borrower", err)
		}
		if borrower == nil {
			return notFound("borrower", cardNo)
		}

		active, err := tx.FindLoans(ctx, LoanQuery{CardNo: &cardNo, ActiveOnly: true})
		if err != nil {
			return storageErr("load active loans", err)
		}
		for _, l := range active {
			if l.CopyID == bookCopy.ID {
				return rejected(KindDuplicateLoan, "borrower", cardNo, "already holds this copy")
			}
		}

		for i := range active {
			fine, err := e.ledger.evaluate(ctx, tx, &active[i])
			if err != nil {
				return err
			}
			if fine.Status == FineStatusUnpaid && fine.Amount.IsPositive() {
				return rejected(KindOutstandingFine, "borrower", cardNo, "has an unpaid fine")
			}
		}

		count, err := tx.CountActiveLoans(ctx, cardNo)
		if err != nil {
			return storageErr("count active loans", err)
		}
		if count >= int64(e.opts.policy.MaxActiveLoans) {
			return rejected(KindBorrowLimitExceeded, "borrower", cardNo,
				fmt.Sprintf("reached the limit of %d active loans", e.opts.policy.MaxActiveLoans))
		}

		if bookCopy.CopiesAvailable <= 0 {
			return rejected(KindNoCopiesAvailable, "copy", bookCopy.ID, "no units on the shelf")
		}
		ok, err := tx.AdjustCopiesAvailable(ctx, bookCopy.ID, -1)
		if err != nil {
			return storageErr("reserve copy", err)
		}
		if !ok {
			return rejected(KindNoCopiesAvailable, "copy", bookCopy.ID, "no units on the shelf")
		}

		loan = &entities.BookLoan{
			CopyID:         bookCopy.ID,
			BorrowerCardNo: cardNo,
			DateOut:        now,
			DueDate:        now.AddDate(0, 0, e.opts.policy.LoanPeriodDays),
		}
		if err := tx.CreateLoan(ctx, loan); err != nil {
			return storageErr("create loan", err)
		}
		bookCopy.CopiesAvailable--
		loan.Copy = *bookCopy
		loan.Borrower = *borrower
		return nil
	})
	if err != nil {
		e.logFailure(log, "checkout rejected", err)
		if kind := KindOf(err); kind != "" && kind != KindStorage {
			for _, o := range e.opts.observers {
				o.CheckoutRejected(ctx, kind)
			}
		}
		return LoanView{}, err
	}

	view := loanView(loan, notApplicable(loan.ID), now)
	log.Info("loan checked out", zap.Uint("loan_id", loan.ID), zap.Time("due_date", loan.DueDate))
	for _, o := range e.opts.observers {
		o.LoanCheckedOut(ctx, view)
	}
	return view, nil
}

// Checkin closes an active loan, returns the unit to its branch and
// settles the final fine amount.
func (e *Engine) Checkin(ctx context.Context, loanID uint) (LoanView, error) {
	log := logging.FromContext(ctx, e.opts.log).With(zap.Uint("loan_id", loanID))
	now := e.opts.now()

	var (
		loan *entities.BookLoan
		fine FineView
	)
	err := e.store.Transaction(ctx, func(tx Store) error {
		var err error
		loan, err = tx.GetLoan(ctx, loanID)
		if err != nil {
			return storageErr("load loan", err)
		}
		if loan == nil {
			return notFound("loan", loanID)
		}
		if !loan.Active() {
			return rejected(KindAlreadyCheckedIn, "loan", loanID, "already checked in")
		}

		closed, err := tx.CloseLoan(ctx, loanID, now)
		if err != nil {
			return storageErr("close loan", err)
		}
		if !closed {
			return rejected(KindAlreadyCheckedIn, "loan", loanID, "already checked in")
		}
		ok, err := tx.AdjustCopiesAvailable(ctx, loan.CopyID, 1)
		if err != nil {
			return storageErr("return copy", err)
		}
		if !ok {
			return rejected(KindStorage, "copy", loan.CopyID, "inventory row missing")
		}

		loan.DateIn = &now
		loan.Copy.CopiesAvailable++
		fine, err = e.ledger.evaluate(ctx, tx, loan)
		return err
	})
	if err != nil {
		e.logFailure(log, "checkin rejected", err)
		return LoanView{}, err
	}

	view := loanView(loan, fine, now)
	log.Info("loan checked in",
		zap.Int("overdue_days", view.OverdueDays),
		zap.String("fine", view.Fine.Amount.StringFixed(2)),
	)
	for _, o := range e.opts.observers {
		o.LoanCheckedIn(ctx, view)
	}
	return view, nil
}

// ListLoans lazily yields loans matching f in id order, fetching them in
// pages. Each loan's fine is refreshed before it is yielded. Ranging over
// the sequence again re-runs the query from the start.
func (e *Engine) ListLoans(ctx context.Context, f LoanFilter) iter.Seq2[LoanView, error] {
	q := LoanQuery{CardNo: f.CardNo}
	if f.Active != nil {
		q.ActiveOnly = *f.Active
		q.ClosedOnly = !*f.Active
	}
	overdue := f.Overdue

	return func(yield func(LoanView, error) bool) {
		q := q
		if overdue {
			now := e.opts.now()
			q.ActiveOnly, q.ClosedOnly, q.DueBefore = true, false, &now
		}
		e.walk(ctx, q, f.BranchID, func(view LoanView) bool {
			return yield(view, nil)
		}, func(err error) bool {
			return yield(LoanView{}, err)
		})
	}
}

// ListFines yields loans whose fine matches f.Status, including returned
// loans. With FineFilterBoth every matching loan is yielded, with a
// not_applicable fine when it never accrued one.
func (e *Engine) ListFines(ctx context.Context, f FineFilter) iter.Seq2[LoanView, error] {
	q := LoanQuery{CardNo: f.CardNo}
	return func(yield func(LoanView, error) bool) {
		e.walk(ctx, q, f.BranchID, func(view LoanView) bool {
			switch f.Status {
			case FineFilterPaid:
				if view.Fine.Status != FineStatusPaid {
					return true
				}
			case FineFilterUnpaid:
				if view.Fine.Status != FineStatusUnpaid {
					return true
				}
			}
			return yield(view, nil)
		}, func(err error) bool {
			return yield(LoanView{}, err)
		})
	}
}

// SweepOverdue refreshes the fine of every overdue loan and returns how
// many were evaluated. It keeps going past individual failures.
func (e *Engine) SweepOverdue(ctx context.Context) (int, error) {
	var (
		evaluated int
		errs      []error
	)
	for _, err := range e.ListLoans(ctx, LoanFilter{Overdue: true}) {
		if err != nil {
			if ctx.Err() != nil {
				return evaluated, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		evaluated++
	}
	e.opts.log.Info("fine sweep finished", zap.Int("evaluated", evaluated), zap.Int("failed", len(errs)))
	return evaluated, errors.Join(errs...)
}

// walk pages through loans matching q and hands each refreshed view to
// emit. Returning false from either callback stops the walk.
func (e *Engine) walk(ctx context.Context, q LoanQuery, branchID *uint, emit func(LoanView) bool, fail func(error) bool) {
	q.Limit = pageSize
	q.AfterID = 0
	for {
		if err := ctx.Err(); err != nil {
			fail(err)
			return
		}
		page, err := e.store.FindLoans(ctx, q)
		if err != nil {
			fail(storageErr("list loans", err))
			return
		}
		for i := range page {
			loan := &page[i]
			q.AfterID = loan.ID
			if branchID != nil && loan.Copy.BranchID != *branchID {
				continue
			}
			fine, err := e.ledger.Evaluate(ctx, loan)
			if err != nil {
				if !fail(err) {
					return
				}
				continue
			}
			if !emit(loanView(loan, fine, e.opts.now())) {
				return
			}
		}
		if len(page) < pageSize {
			return
		}
	}
}

func (e *Engine) logFailure(log *zap.Logger, msg string, err error) {
	if KindOf(err) == KindStorage || KindOf(err) == "" {
		log.Error(msg, zap.Error(err))
		return
	}
	log.Info(msg, zap.String("reason", string(KindOf(err))), zap.Error(err))
}
