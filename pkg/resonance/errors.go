package resonance

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the monetization engine.
var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrSelfTransaction     = errors.New("self transaction")
	ErrInadequateTier      = errors.New("inadequate tier")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyUnlocked     = errors.New("moment already unlocked")
	ErrNotPaywalled        = errors.New("moment not paywalled")
	ErrDuplicateOperation  = errors.New("duplicate operation")
	ErrDuplicateSettlement = errors.New("duplicate settlement")
	ErrTransactionAborted  = errors.New("transaction aborted")
	ErrSignatureInvalid    = errors.New("signature invalid")

	ErrInvalidAccountID          = errors.New("invalid account id")
	ErrInvalidMomentID           = errors.New("invalid moment id")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInvalidTier               = errors.New("invalid tier")
	ErrInvalidPersona            = errors.New("invalid persona")
	ErrInvalidMomentKind         = errors.New("invalid moment kind")
	ErrInvalidEntryType          = errors.New("invalid entry type")
	ErrInvalidEntryStatus        = errors.New("invalid entry status")
	ErrInvalidIdempotencyKey     = errors.New("invalid idempotency key")
	ErrInvalidMetadataJSON       = errors.New("invalid metadata json")
	ErrInvalidReference          = errors.New("invalid settlement reference")
	ErrInvalidServiceConfig      = errors.New("invalid service config")
	ErrInvalidSubscriptionStatus = errors.New("invalid subscription status")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
