/*
errors.go - Error types shared by the bonus service

PURPOSE:
  The engine itself never fails. These errors belong to the layers around
  it: the formula editor (write path), the store, and the API. They live
  here so every layer can match on the same sentinels with errors.Is.

ERROR CATEGORIES:
  1. Config errors - Formula fails validation on write
  2. Lookup errors - Referenced role/KPI/user/position does not exist
  3. Input errors  - Request values out of the accepted domain
  4. Conflicts     - Create with an ID that is already taken

SEE ALSO:
  - factory/formula.go: Returns config errors
  - store/sqlite/sqlite.go: Returns lookup errors
  - api/handlers.go: Maps errors to HTTP status
*/
package bonus

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidFormula is returned when a formula document fails schema
	// validation on the write path.
	ErrInvalidFormula = errors.New("invalid formula")

	// ErrInvalidRange is returned when a range rule has min > max.
	ErrInvalidRange = errors.New("invalid range: min greater than max")

	// ErrInvalidMultiplier is returned when a payout multiplier is outside 0-100.
	ErrInvalidMultiplier = errors.New("invalid multiplier: must be between 0 and 100")

	// ErrNegativeBudget is returned when a caller supplies a negative budget.
	ErrNegativeBudget = errors.New("available budget must not be negative")

	ErrRoleNotFound     = errors.New("role not found")
	ErrKPINotFound      = errors.New("kpi not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrPositionNotFound = errors.New("position not found")

	// ErrAlreadyExists is returned when a create reuses an existing ID.
	ErrAlreadyExists = errors.New("already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RangeOrderError identifies the offending range rule.
type RangeOrderError struct {
	Index int
	Min   decimal.Decimal
	Max   decimal.Decimal
}

func (e *RangeOrderError) Error() string {
	return fmt.Sprintf("range_rules[%d]: min %s greater than max %s", e.Index, e.Min, e.Max)
}

func (e *RangeOrderError) Unwrap() error {
	return ErrInvalidRange
}

// SchemaError lists every schema violation in a formula document.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("formula failed schema validation: %v", e.Violations)
}

func (e *SchemaError) Unwrap() error {
	return ErrInvalidFormula
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidFormula) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidMultiplier) ||
		errors.Is(err, ErrNegativeBudget)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoleNotFound) ||
		errors.Is(err, ErrKPINotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPositionNotFound)
}

// IsConflict returns true if the error is a create on a taken ID.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
