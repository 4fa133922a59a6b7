package circulation

import (
	"errors"
	"fmt"
)

// Kind classifies why a circulation operation was rejected.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindDuplicateLoan       Kind = "duplicate_loan"
	KindOutstandingFine     Kind = "outstanding_fine"
	KindBorrowLimitExceeded Kind = "borrow_limit_exceeded"
	KindNoCopiesAvailable   Kind = "no_copies_available"
	KindAlreadyCheckedIn    Kind = "already_checked_in"
	KindInvalidAmount       Kind = "invalid_amount"
	KindStorage             Kind = "storage_failure"
)

// Sentinels for errors.Is. Any *Error with the same Kind matches.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrDuplicateLoan       = &Error{Kind: KindDuplicateLoan}
	ErrOutstandingFine     = &Error{Kind: KindOutstandingFine}
	ErrBorrowLimitExceeded = &Error{Kind: KindBorrowLimitExceeded}
	ErrNoCopiesAvailable   = &Error{Kind: KindNoCopiesAvailable}
	ErrAlreadyCheckedIn    = &Error{Kind: KindAlreadyCheckedIn}
	ErrInvalidAmount       = &Error{Kind: KindInvalidAmount}
	ErrStorage             = &Error{Kind: KindStorage}
)

// Error is returned by every Engine and Ledger operation that fails.
type Error struct {
	Kind   Kind
	Entity string // "copy", "borrower", "loan" or "fine"
	ID     string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Entity != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Entity, e.ID, msg)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the Kind of err, or "" when err is not a circulation error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func notFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: fmt.Sprint(id), Msg: "not found"}
}

func rejected(kind Kind, entity string, id any, msg string) *Error {
	return &Error{Kind: kind, Entity: entity, ID: fmt.Sprint(id), Msg: msg}
}

// storageErr wraps a persistence failure, passing circulation errors through.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindStorage, Msg: op, Err: err}
}
