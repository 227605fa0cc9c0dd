package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific error type
type ErrorCode string

const (
	// Request errors
	ErrValidation          ErrorCode = "VALIDATION_ERROR"
	ErrIdempotencyMismatch ErrorCode = "IDEMPOTENCY_MISMATCH"

	// Lookup errors
	ErrGameNotFound   ErrorCode = "GAME_NOT_FOUND"
	ErrWalletNotFound ErrorCode = "WALLET_NOT_FOUND"
	ErrResultNotFound ErrorCode = "RESULT_NOT_FOUND"
	ErrTxNotFound     ErrorCode = "TRANSACTION_NOT_FOUND"

	// Ledger errors
	ErrInsufficientFunds     ErrorCode = "INSUFFICIENT_FUNDS"
	ErrWalletClosed          ErrorCode = "WALLET_CLOSED"
	ErrDuplicateIdempotency  ErrorCode = "DUPLICATE_IDEMPOTENCY_KEY"
	ErrLedgerWriteConflict   ErrorCode = "LEDGER_WRITE_CONFLICT"
	ErrBusy                  ErrorCode = "BUSY"
	ErrLedgerMismatch        ErrorCode = "LEDGER_MISMATCH"
	ErrCompensationNotNeeded ErrorCode = "COMPENSATION_NOT_NEEDED"

	// Settlement errors
	ErrBetInProgress      ErrorCode = "BET_IN_PROGRESS"
	ErrEntropyUnavailable ErrorCode = "ENTROPY_UNAVAILABLE"
	ErrSettlementFailed   ErrorCode = "SETTLEMENT_FAILED"

	// System errors
	ErrPersistenceFailure ErrorCode = "PERSISTENCE_FAILURE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error is the error type surfaced by the services to their callers
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // Underlying error, if any

	// ResultID is set when the error concerns a persisted game result
	ResultID string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error in an Error
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithResult attaches the id of the game result the error refers to
func (e *Error) WithResult(resultID string) *Error {
	e.ResultID = resultID
	return e
}

// IsCode reports whether any error in err's chain is an *Error with the given code
func IsCode(err error, code ErrorCode) bool {
	var typed *Error
	if !errors.As(err, &typed) {
		return false
	}
	return typed.Code == code
}

// CodeOf returns the code of the first *Error in err's chain, or INTERNAL_ERROR
func CodeOf(err error) ErrorCode {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return ErrInternalError
}
