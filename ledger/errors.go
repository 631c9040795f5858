/*
errors.go - Centralized error types for the ledger engine

ERROR CATEGORIES:
  1. NotFound - referenced id does not exist. Update/delete operations
     report this as a false result, lookups as a nil result; ErrNotFound is
     only returned where a result value is mandatory.
  2. Validation - malformed input the engine itself checks (dates,
     account classes).
  3. Integrity - the store rejected a write because it references a
     missing row. Always fatal to the enclosing atomic unit.

USAGE:
  if errors.Is(err, ledger.ErrIntegrity) {
      // a line item named an account that does not exist
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a mandatory referenced row doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity is returned when a write references a nonexistent row.
	ErrIntegrity = errors.New("integrity violation")

	// ErrInvalidDate is returned for calendar dates that are not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid calendar date")

	// ErrInvalidPeriod is returned when a period ends before it starts.
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidAccountClass is returned for account class codes outside
	// the known table.
	ErrInvalidAccountClass = errors.New("invalid account class")

	// ErrEmptyName is returned when a tag or template is given a blank name.
	ErrEmptyName = errors.New("name is empty")

	// ErrMalformed is returned for documents or amounts that do not parse.
	ErrMalformed = errors.New("malformed input")

	// ErrUnknownEntity is returned when the ledger file has no discriminator
	// registered for an entity name.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrReadOnly is returned for writes against a store opened read-only.
	ErrReadOnly = errors.New("ledger opened read-only")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// IntegrityError wraps a store constraint failure.
type IntegrityError struct {
	Op  string // e.g. "insert line item"
	Err error  // driver error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: integrity violation: %v", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() []error {
	return []error{ErrIntegrity, e.Err}
}

// DateError reports a calendar date that could not be parsed.
type DateError struct {
	Input string
	Err   error
}

func (e *DateError) Error() string {
	return fmt.Sprintf("invalid calendar date %q", e.Input)
}

func (e *DateError) Unwrap() []error {
	return []error{ErrInvalidDate, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrIntegrity) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidAccountClass) ||
		errors.Is(err, ErrEmptyName) ||
		errors.Is(err, ErrMalformed)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
