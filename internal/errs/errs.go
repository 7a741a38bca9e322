package errs

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInsufficientFunds = errors.New("insufficient balance")
var ErrInvalidQuantity = errors.New("invalid quantity")
var ErrInvalidAmount = errors.New("invalid amount")
var ErrInvalidState = errors.New("invalid order state")
var ErrAlreadyRefunded = errors.New("order already refunded")
var ErrConcurrentUpdateConflict = errors.New("concurrent update conflict")
var ErrStorageUnavailable = errors.New("storage unavailable")

var ErrAccountNotFound = errors.New("account not found")
var ErrAccountInactive = errors.New("account is not active")
var ErrOrderNotFound = errors.New("order not found")
var ErrServiceNotFound = errors.New("service not found")
var ErrServiceInactive = errors.New("service is inactive")
var ErrProviderNotFound = errors.New("provider not found")

var ErrEmailTaken = errors.New("email already registered")
var ErrInvalidToken = errors.New("invalid token")
var ErrForbidden = errors.New("forbidden")

// ErrWriteConflict is raised by storage when a versioned write loses a race.
// The balance guard retries it once and then reports ErrConcurrentUpdateConflict.
var ErrWriteConflict = errors.New("write conflict")

// ErrCommitIndeterminate marks a commit whose outcome is unknown. Never retried.
var ErrCommitIndeterminate = errors.New("commit outcome unknown")

type InsufficientFundsError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: available $%s, required $%s",
		e.Available.StringFixed(2), e.Required.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

type InvalidQuantityError struct {
	Quantity int64
	Min      int64
	Max      int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d: must be between %d and %d", e.Quantity, e.Min, e.Max)
}

func (e *InvalidQuantityError) Unwrap() error {
	return ErrInvalidQuantity
}

type InvalidStateError struct {
	OrderID int64
	Status  string
	Action  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s order #%d in status %s", e.Action, e.OrderID, e.Status)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}
