/*
errors.go - Centralized error types for the sales engine

PURPOSE:
  All error types in one place. Every failure crossing a package boundary
  wraps exactly one sentinel so callers (and the HTTP layer) can tell the
  kinds apart with errors.Is or KindOf.

ERROR CATEGORIES:
  1. Client errors - invalid input, unknown period, insufficient stock
  2. Lookup errors - missing products, invoices, snapshots, users
  3. Collaborator errors - report generation
  4. Store errors - persistence failures, lost compare-and-swap races

SEE ALSO:
  - api/errors.go: maps Kind to HTTP status and stable code
*/
package commerce

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound = errors.New("not found")

	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientStock is returned when a debit would drive stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidPeriod is returned for a month outside 1..12 or a non-positive year.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrNoInvoicesFound is returned when a period has nothing to aggregate.
	ErrNoInvoicesFound = errors.New("no invoices found for period")

	ErrDuplicateEntity = errors.New("duplicate entity")

	// ErrReportGenerationFailed is returned when the text generator fails.
	ErrReportGenerationFailed = errors.New("report generation failed")

	// ErrConcurrentModification is returned when stock kept changing under a
	// compare-and-swap loop until the retry budget ran out.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// ErrInternal wraps unexpected store failures.
	ErrInternal = errors.New("internal error")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string // "product", "invoice", "snapshot", "user"
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	ProductID ProductID
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ValidationError reports a single bad field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// PeriodError reports a malformed month/year pair.
type PeriodError struct {
	Month int
	Year  int
}

func (e *PeriodError) Error() string {
	return fmt.Sprintf("invalid period: month %d, year %d", e.Month, e.Year)
}

func (e *PeriodError) Unwrap() error {
	return ErrInvalidPeriod
}

// NotFound is shorthand for &NotFoundError{...}.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// Internal wraps a store failure so it still reads well but unwraps to both
// ErrInternal and the cause.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}

// =============================================================================
// KIND - Stable classification for boundaries
// =============================================================================

type Kind string

const (
	KindNotFound               Kind = "NOT_FOUND"
	KindInvalidInput           Kind = "INVALID_INPUT"
	KindInsufficientStock      Kind = "INSUFFICIENT_STOCK"
	KindInvalidPeriod          Kind = "INVALID_PERIOD"
	KindNoInvoicesFound        Kind = "NO_INVOICES_FOUND"
	KindDuplicateEntity        Kind = "DUPLICATE_ENTITY"
	KindReportGenerationFailed Kind = "REPORT_GENERATION_FAILED"
	KindConcurrentModification Kind = "CONCURRENT_MODIFICATION"
	KindUnauthorized           Kind = "UNAUTHORIZED"
	KindForbidden              Kind = "FORBIDDEN"
	KindInternal               Kind = "INTERNAL"
)

var kinds = []struct {
	sentinel error
	kind     Kind
}{
	// Order matters: a report failure may wrap a not-found cause, and the
	// report failure is what the caller should see.
	{ErrReportGenerationFailed, KindReportGenerationFailed},
	{ErrInsufficientStock, KindInsufficientStock},
	{ErrInvalidPeriod, KindInvalidPeriod},
	{ErrNoInvoicesFound, KindNoInvoicesFound},
	{ErrDuplicateEntity, KindDuplicateEntity},
	{ErrConcurrentModification, KindConcurrentModification},
	{ErrUnauthorized, KindUnauthorized},
	{ErrForbidden, KindForbidden},
	{ErrInvalidInput, KindInvalidInput},
	{ErrNotFound, KindNotFound},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDuplicateEntity)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
