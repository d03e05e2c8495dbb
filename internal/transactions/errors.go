package transactions

import (
	"errors"
	"fmt"

	"github.com/Gazel/SecureKasir/internal/shared"
)

var (
	// ErrInvalidPayload rejects a sale before anything is written.
	ErrInvalidPayload = errors.New("invalid transaction payload")
	// ErrStorageFailure means the atomic write or a read could not complete.
	// Retrying a write is safe; it allocates a fresh id.
	ErrStorageFailure = errors.New("transaction storage failure")
	// ErrNotFound indicates the transaction does not exist.
	ErrNotFound = fmt.Errorf("transaction %w", shared.ErrNotFound)
	// ErrDuplicateIdempotencyKey is returned by storage when a key is bound
	// by a concurrent commit.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already bound")

	ErrEmptyItems         = invalid("items must not be empty")
	ErrMissingTotal       = invalid("total is required")
	ErrInvalidDate        = invalid("date must be an ISO-8601 timestamp")
	ErrInsufficientCash   = invalid("cash received is less than total")
	ErrUnknownProduct     = invalid("product not found")
	ErrInsufficientStock  = invalid("insufficient stock")
	ErrIdempotencyKeySize = invalid("idempotency key must be 1-128 characters")
	ErrAmountOverflow     = invalid("amount out of range")
)

// PayloadError describes why a payload was rejected. It matches both
// ErrInvalidPayload and shared.ErrValidation.
type PayloadError struct {
	Reason string
	cause  error
}

func invalid(reason string) *PayloadError {
	return &PayloadError{Reason: reason}
}

func (e *PayloadError) Error() string { return e.Reason }

func (e *PayloadError) Is(target error) bool {
	return target == ErrInvalidPayload || target == shared.ErrValidation
}

func (e *PayloadError) Unwrap() error { return e.cause }

// withDetail returns a copy of a sentinel carrying extra context, still
// matching the sentinel through Unwrap.
func (e *PayloadError) withDetail(format string, args ...any) *PayloadError {
	return &PayloadError{Reason: e.Reason + ": " + fmt.Sprintf(format, args...), cause: e}
}
