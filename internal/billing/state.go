// Package billing models the point-of-sale payment flow of one billing
// session as an explicit state machine:
//
//	IDLE -> METHOD_SELECTION -> {CASH_FLOW | UPI_FLOW | DIRECT_SUBMIT} -> SUBMITTING -> {DONE | FAILED}
//
// A session holds exactly one current State and at most one payment
// sub-state (cash or UPI), selected by the state itself.
package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

type State string

const (
	StateIdle            State = "IDLE"
	StateMethodSelection State = "METHOD_SELECTION"
	StateCashFlow        State = "CASH_FLOW"
	StateUPIFlow         State = "UPI_FLOW"
	StateDirectSubmit    State = "DIRECT_SUBMIT"
	StateSubmitting      State = "SUBMITTING"
	StateDone            State = "DONE"
	StateFailed          State = "FAILED"
)

var (
	ErrPrecondition      = errors.New("precondition failed")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidTender     = errors.New("enter a valid amount received")
	ErrPaymentExpired    = errors.New("payment request expired, cancel and choose a payment method again")
	ErrPaymentPending    = errors.New("payment not received yet")
	ErrSessionNotFound   = errors.New("billing session not found")
	ErrSessionLocked     = errors.New("billing session is locked")

	// ErrMissingBatchLot is returned when a cart line has no stock to sell against.
	ErrMissingBatchLot = fmt.Errorf("%w: %s", ErrPrecondition, MissingStockMessage)
)

// MissingStockMessage is shown when a cart line has no batch lot to sell against.
const MissingStockMessage = "add stock before billing"

// MethodKind identifies which sub-flow a payment method dispatches to.
type MethodKind int

const (
	MethodOther MethodKind = iota
	MethodCash
	MethodUPI
)

func (k MethodKind) String() string {
	switch k {
	case MethodCash:
		return "cash"
	case MethodUPI:
		return "upi"
	default:
		return "other"
	}
}

// ClassifyMethod matches the method name case-insensitively against CASH and UPI.
func ClassifyMethod(name string) MethodKind {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "CASH":
		return MethodCash
	case "UPI":
		return MethodUPI
	default:
		return MethodOther
	}
}

// Submission is handed to invoice submission when the flow enters SUBMITTING.
type Submission struct {
	SessionID  string
	LocationID string
	Customer   domain.Customer
	Lines      []domain.CartLine
	GSTRate    decimal.Decimal
	Total      decimal.Decimal
	Method     domain.PaymentMethod
	AmountPaid decimal.Decimal
}

// CanEditCart reports whether cart and customer may still change.
func (s State) CanEditCart() bool {
	switch s {
	case StateIdle, StateMethodSelection, StateFailed:
		return true
	default:
		return false
	}
}

func (s State) canSelectMethod() bool {
	return s == StateMethodSelection || s == StateFailed
}

func (s State) canCancel() bool {
	switch s {
	case StateMethodSelection, StateCashFlow, StateUPIFlow, StateDirectSubmit, StateFailed:
		return true
	default:
		return false
	}
}
