/*
errors.go - Centralized error types for the reconciliation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages (shift, receiving) return these, wrapped with context.

ERROR CATEGORIES:
  1. Validation errors - A precondition was not met (no active shift,
     nothing received, missing justification). State is left unchanged.
  2. Not found errors - A scanned code or referenced record is unknown.
  3. Persistence errors - An external write failed. Staged state is kept
     so the caller can retry.
  4. In-flight errors - A submission is already outstanding.
  5. Conflict errors - A retry tried to record different values under a
     key the ledger already holds.

  Data shape problems (unknown product in the catalog) are NOT errors:
  callers degrade to fallback values instead.

USAGE:
  if errors.Is(err, generic.ErrValidation) {
      var ve *generic.ValidationError
      errors.As(err, &ve) // ve.Code == generic.CodeReasonRequired
  }

SEE ALSO:
  - latch.go: Returns ErrInFlight
  - api/handlers.go: Maps these errors to HTTP status codes
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
	// ErrValidation is the root of every precondition failure.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a code or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPersistence is returned when an external write fails.
	ErrPersistence = errors.New("persistence failed")

	// ErrInFlight is returned when a submission is already outstanding for
	// the same operation instance.
	ErrInFlight = errors.New("submission already in flight")

	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrTerminal is returned when an operation is attempted on a session
	// that already committed or was cancelled.
	ErrTerminal = errors.New("session is terminal")

	// ErrConflict is returned when a replayed idempotency key carries
	// different values than the entry already recorded under it.
	ErrConflict = errors.New("conflicts with recorded entry")
)

// Validation codes.
const (
	CodeNoActiveShift       = "no_active_shift"
	CodeNoShipmentSelected  = "no_shipment_selected"
	CodeNothingReceived     = "nothing_received"
	CodeReasonRequired      = "reason_required"
	CodeNotEligible         = "not_eligible"
	CodeInvalidStep         = "invalid_step"
	CodeUnknownDenomination = "unknown_denomination"
	CodeDistributionSum     = "distribution_sum"
	CodeInvalidInput        = "invalid_input"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a failed precondition.
type ValidationError struct {
	Code    string
	Message string
}

func NewValidationError(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError reports an unknown key of a given kind (sku, shift, shipment).
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ConflictError reports an idempotency key that was already recorded with
// other values. Retrying cannot help; the recorded entry stands.
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%q already recorded with different values", e.Key)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// PersistenceError wraps a failed collaborator call.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence) || errors.Is(err, ErrInFlight)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrTerminal)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ValidationCode extracts the code of a ValidationError, or "".
func ValidationCode(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
