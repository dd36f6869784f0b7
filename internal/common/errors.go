package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	// ErrAlreadyInitialized means initialize was called for a record type
	// whose ledger already exists.
	ErrAlreadyInitialized = errors.New("record type already initialized")
	// ErrNotInitialized means claim/complete/status ran before initialize.
	ErrNotInitialized = errors.New("record type not initialized")
	// ErrStaleLease means a complete arrived for a lease the caller no
	// longer owns; the page was revoked and may belong to someone else.
	ErrStaleLease = errors.New("lease no longer owned by caller")
	// ErrNoEligiblePages is the normal "nothing to claim" outcome: every
	// page is completed or held under a live lease by another worker.
	ErrNoEligiblePages = errors.New("no eligible pages")
	// ErrStoreUnavailable wraps transient shared-store failures (locked or
	// unreachable database). Callers retry with their own backoff.
	ErrStoreUnavailable = errors.New("shared store unavailable")
	// ErrPartitionUnreadable marks a merge input that could not be opened
	// or read; the merge isolates it and continues.
	ErrPartitionUnreadable = errors.New("worker partition unreadable")
	// ErrMergeConflict is returned under the fail-on-conflict policy.
	ErrMergeConflict = errors.New("conflicting records across partitions")

	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
