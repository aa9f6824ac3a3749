/*
errors.go - Centralized error types for the stock engine

PURPOSE:
  All caller-facing error kinds in one place. Every error here is
  recoverable: it reports bad input or a violated precondition, never a
  crashed process. None of them leave partial state behind.

ERROR CATEGORIES:
  1. Submission errors - validation failures, the entry is never persisted
  2. State errors - undo/convert on an entry in the wrong lifecycle state
  3. Lookup errors - referenced item or entry does not exist
  4. Infrastructure errors - item lock could not be obtained

USAGE:
  if errors.Is(err, stock.ErrInsufficientStock) {
      var ise *stock.InsufficientStockError
      errors.As(err, &ise)
  }

SEE ALSO:
  - ledger.go: Submission validation
  - api/handlers.go: HTTP status mapping
*/
package stock

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMutualExclusivity is returned when more than one of IN, OUT and
	// ALLOCATED carries a positive quantity.
	ErrMutualExclusivity = errors.New("only one of IN, OUT or ALLOCATED may be given")

	// ErrNoQuantity is returned when no quantity field is positive.
	ErrNoQuantity = errors.New("a positive IN, OUT or ALLOCATED quantity is required")

	// ErrNegativeQuantity is returned when a quantity field is below zero.
	ErrNegativeQuantity = errors.New("quantities cannot be negative")

	// ErrSerialCountMismatch is returned when serial codes are given but their
	// count differs from the quantity.
	ErrSerialCountMismatch = errors.New("serial count does not match quantity")

	// ErrMissingSerials is returned when an item with serial units on record
	// receives a movement that names no serials.
	ErrMissingSerials = errors.New("item uses serial numbers; serials are required")

	// ErrInsufficientStock is returned when an OUT exceeds current stock.
	ErrInsufficientStock = errors.New("not enough stock")

	// ErrOutOfWindow is returned when the entry date is outside the
	// backdating window.
	ErrOutOfWindow = errors.New("entry date outside the allowed window")

	// ErrAlreadyUndone is returned when undoing or converting a voided entry.
	ErrAlreadyUndone = errors.New("entry already undone")

	// ErrAlreadyConverted is returned when converting an entry twice.
	ErrAlreadyConverted = errors.New("entry already converted")

	// ErrNotAllocation is returned when converting an entry that is not ALLOCATED.
	ErrNotAllocation = errors.New("only ALLOCATED entries can be converted")

	// ErrConvertedEntry is returned when undoing a converted ALLOCATED entry.
	// The OUT entry produced by the conversion has to be undone instead.
	ErrConvertedEntry = errors.New("entry was converted; undo the resulting OUT entry")

	// ErrNotFound is returned when a referenced item or entry doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidItem is returned when item details fail validation.
	ErrInvalidItem = errors.New("invalid item details")

	// ErrLockTimeout is returned when the item lock could not be obtained.
	ErrLockTimeout = errors.New("item is busy, retry later")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SerialCountMismatchError reports the strict 1:1 serial/quantity violation.
type SerialCountMismatchError struct {
	Quantity int
	Serials  int
}

func (e *SerialCountMismatchError) Error() string {
	return fmt.Sprintf("serial count does not match quantity: %d serials for quantity %d", e.Serials, e.Quantity)
}

func (e *SerialCountMismatchError) Unwrap() error { return ErrSerialCountMismatch }

// InsufficientStockError reports an OUT larger than the current stock.
type InsufficientStockError struct {
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// OutOfWindowError reports an entry date outside [Earliest, Latest].
type OutOfWindowError struct {
	At       time.Time
	Earliest time.Time
	Latest   time.Time
	Days     int
}

func (e *OutOfWindowError) Error() string {
	return fmt.Sprintf("you can only input transactions within the last %d days (%s to %s), got %s",
		e.Days, e.Earliest.Format("2006-01-02"), e.Latest.Format("2006-01-02"), e.At.Format("2006-01-02"))
}

func (e *OutOfWindowError) Unwrap() error { return ErrOutOfWindow }

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "item" or "entry"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func itemNotFound(id ItemID) error   { return &NotFoundError{Kind: "item", ID: int64(id)} }
func entryNotFound(id EntryID) error { return &NotFoundError{Kind: "entry", ID: int64(id)} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMutualExclusivity) ||
		errors.Is(err, ErrNoQuantity) ||
		errors.Is(err, ErrNegativeQuantity) ||
		errors.Is(err, ErrSerialCountMismatch) ||
		errors.Is(err, ErrMissingSerials) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrOutOfWindow) ||
		errors.Is(err, ErrNotAllocation) ||
		errors.Is(err, ErrInvalidItem)
}

// IsConflict returns true if the error is a lifecycle state violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyUndone) ||
		errors.Is(err, ErrAlreadyConverted) ||
		errors.Is(err, ErrConvertedEntry)
}

// IsNotFound returns true if the error indicates a missing item or entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
