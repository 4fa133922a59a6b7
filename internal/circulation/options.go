package circulation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Policy holds the circulation rules applied by the Engine and Ledger.
type Policy struct {
	MaxActiveLoans int
	LoanPeriodDays int
	DailyFineRate  decimal.Decimal
}

// DefaultPolicy is three active loans, fourteen day loans and 0.25 per overdue day.
func DefaultPolicy() Policy {
	return Policy{
		MaxActiveLoans: 3,
		LoanPeriodDays: 14,
		DailyFineRate:  decimal.New(25, -2),
	}
}

func (p Policy) dailyRateCents() int64 {
	return p.DailyFineRate.Shift(2).Round(0).IntPart()
}

// Observer is notified after a circulation change has been committed.
// Implementations must not block; they run on the caller's goroutine.
type Observer interface {
	LoanCheckedOut(ctx context.Context, loan LoanView)
	LoanCheckedIn(ctx context.Context, loan LoanView)
	CheckoutRejected(ctx context.Context, kind Kind)
	FinePaid(ctx context.Context, payment PaymentResult)
}

type options struct {
	clock     func() time.Time
	policy    Policy
	observers []Observer
	log       *zap.Logger
}

// Option configures an Engine or Ledger.
type Option func(*options)

// WithClock overrides time.Now. Returned times are converted to UTC.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithPolicy replaces the default circulation rules.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithObserver registers observers, in call order.
func WithObserver(observers ...Observer) Option {
	return func(o *options) {
		for _, obs := range observers {
			if obs != nil {
				o.observers = append(o.observers, obs)
			}
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		clock:  time.Now,
		policy: DefaultPolicy(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) now() time.Time {
	return o.clock().UTC()
}
