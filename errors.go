package subledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// Caller role errors
	ErrUnauthorized = errors.New("subledger: unauthorized")
	ErrForbidden    = errors.New("subledger: forbidden")

	// Subscription state errors
	ErrNotSubscribed = errors.New("subledger: not subscribed")

	// Value errors
	ErrInsufficientFunds = errors.New("subledger: insufficient funds")
	ErrInvalidParameter  = errors.New("subledger: invalid parameter")
	ErrTransferFailed    = errors.New("subledger: transfer failed")

	// Lookup errors
	ErrNotFound             = errors.New("subledger: not found")
	ErrAlreadyExists        = errors.New("subledger: already exists")
	ErrAccountNotFound      = errors.New("subledger: account not found")
	ErrSubscriptionNotFound = errors.New("subledger: subscription not found")

	// Store errors
	ErrStoreClosed       = errors.New("subledger: store is closed")
	ErrTransactionFailed = errors.New("subledger: transaction failed")
	ErrMigrationFailed   = errors.New("subledger: migration failed")

	// Engine errors
	ErrNotStarted     = errors.New("subledger: ledger not started")
	ErrAlreadyStarted = errors.New("subledger: ledger already started")
)

// ValidationError represents a rejected input with details.
// It matches ErrInvalidParameter under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("subledger: invalid %s: %s", e.Field, e.Message)
}

// Is reports ErrInvalidParameter as equivalent.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidParameter
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsAuthError returns true if the caller's role was rejected.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden)
}

// IsFundsError returns true if the error concerns balances or value movement.
func IsFundsError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrTransferFailed)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransferFailed) ||
		errors.Is(err, ErrTransactionFailed)
}
