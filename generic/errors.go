/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Engine operations wrap these sentinels with context; callers classify
  failures with errors.Is or KindOf and never parse messages.

ERROR KINDS:
  NotFound             employee or request id does not resolve
  InvalidInput         malformed date range, missing or oversized field
  PastDate             start date precedes the current date
  Conflict             overlapping request, duplicate username/email
  InsufficientBalance  day count exceeds the available balance
  AlreadyDecided       decision attempted on a non-PENDING request
  Forbidden            cancellation by someone other than the owner
  Internal             anything else (storage failures); never shown verbatim

USAGE:
  if errors.Is(err, generic.ErrAlreadyDecided) {
      // second reviewer lost the race
  }
  switch generic.KindOf(err) { ... }

SEE ALSO:
  - api/errors.go: Maps kinds to HTTP status codes
  - timeoff/request.go: Produces these errors
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when an employee or leave request id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for malformed ranges and missing or oversized fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPastDate is returned when a request starts before today.
	ErrPastDate = errors.New("start date is in the past")

	// ErrConflict is returned when a new record collides with an existing one.
	ErrConflict = errors.New("conflict")

	// ErrInsufficientBalance is returned when a request costs more days than are available.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAlreadyDecided is returned when a decision targets a request that left PENDING.
	ErrAlreadyDecided = errors.New("leave request is already processed")

	// ErrForbidden is returned when the caller does not own the request.
	ErrForbidden = errors.New("forbidden")

	// ErrConcurrentModification is returned by stores when a guarded update
	// finds the row in a different state than the one it was read in.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// KINDS
// =============================================================================

type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindInvalidInput        Kind = "INVALID_INPUT"
	KindPastDate            Kind = "PAST_DATE"
	KindConflict            Kind = "CONFLICT"
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	KindAlreadyDecided      Kind = "ALREADY_DECIDED"
	KindForbidden           Kind = "FORBIDDEN"
	KindInternal            Kind = "INTERNAL"
)

var kindSentinels = []struct {
	kind Kind
	err  error
}{
	{KindNotFound, ErrNotFound},
	{KindInvalidInput, ErrInvalidInput},
	{KindPastDate, ErrPastDate},
	{KindConflict, ErrConflict},
	{KindInsufficientBalance, ErrInsufficientBalance},
	{KindAlreadyDecided, ErrAlreadyDecided},
	{KindForbidden, ErrForbidden},
}

// KindOf classifies err. Errors that wrap none of the sentinels are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, ks := range kindSentinels {
		if errors.Is(err, ks.err) {
			return ks.kind
		}
	}
	return KindInternal
}

// IsClientError returns true if the error is due to the caller or its input.
func IsClientError(err error) bool {
	k := KindOf(err)
	return k != "" && k != KindInternal
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID string
	Available  Amount
	Requested  Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient leave balance: available %v, requested %v",
		e.Available.Value, e.Requested.Value)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// OverlapError names the existing request that blocks a submission.
type OverlapError struct {
	EmployeeID string
	ExistingID string
	Existing   DateRange
	Requested  DateRange
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("you already have a leave request for these dates: %s overlaps %s (request %s)",
		e.Requested, e.Existing, e.ExistingID)
}

func (e *OverlapError) Unwrap() error {
	return ErrConflict
}

// InternalError wraps a storage failure with the operation that hit it.
// Its message is for logs; boundary layers show a generic text instead.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Internal wraps err unless it already carries a known kind or is nil.
func Internal(op string, err error) error {
	if err == nil || IsClientError(err) {
		return err
	}
	var ie *InternalError
	if errors.As(err, &ie) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}
