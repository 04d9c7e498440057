/*
Package bonus provides the KPI bonus formula engine.

PURPOSE:
  Turns a KPI's configured bonus formula and its current performance value
  into an earned bonus percentage and dollar amount. The engine is a pure
  function: no I/O, no hidden state, safe to call from any goroutine.

KEY CONCEPTS IN THIS FILE (types.go):
  - Formula: Ordered tiers plus ordered range rules for one (role, KPI)
  - Tier: Discrete threshold comparison mapped to a fixed percentage
  - RangeRule: Continuous [min, max] interval with interpolated percentage
  - KPIPerformance: Target, actual and direction of a KPI
  - Result: Percentage, amount and which rule produced them

DESIGN PRINCIPLES:
  1. Data-driven: rules are closed enums, never keyed on KPI names
  2. Precision: uses decimal.Decimal so money math is exact
  3. Total: every input produces a result, unmatched config yields 0%

USAGE:
  formula := bonus.Formula{
      Tiers: []bonus.Tier{
          {Threshold: bonus.Percent(90), BonusPercentage: bonus.Percent(50), Match: bonus.MatchExact},
      },
  }
  res := bonus.Evaluate(bonus.Percent(90), formula, decimal.NewFromInt(10000))

SEE ALSO:
  - engine.go: Two-phase evaluation
  - fallback.go: Ratio bonus when no formula is configured
  - forecast.go: Aggregate payout across headcount
  - factory/formula.go: Stored JSON shape
*/
package bonus

import (
	"math"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FORMULA - Admin-authored configuration for one (role, KPI)
// =============================================================================

// FormulaType is informational metadata used for default selection in the
// admin editor. The engine never branches on it; tiers and ranges carry the
// behavior.
type FormulaType string

const (
	FormulaTiered        FormulaType = "tiered"
	FormulaInverseTiered FormulaType = "inverse_tiered"
	FormulaLinear        FormulaType = "linear"
	FormulaInverseLinear FormulaType = "inverse_linear"
)

// Formula is immutable once handed to the engine.
type Formula struct {
	Type       FormulaType
	Tiers      []Tier
	RangeRules []RangeRule
}

// =============================================================================
// TIERS - Discrete threshold rules
// =============================================================================

// MatchKind is the comparison a tier applies against the actual value.
type MatchKind string

const (
	MatchExact        MatchKind = "exact_match"    // actual == threshold
	MatchBelow        MatchKind = "below"          // actual <  threshold
	MatchAbove        MatchKind = "above"          // actual >  threshold
	MatchBelowOrEqual MatchKind = "below_or_equal" // actual <= threshold
	MatchAboveOrEqual MatchKind = "above_or_equal" // actual >= threshold
	MatchUnknown      MatchKind = ""               // unrecognized config, never matches
)

// Valid reports whether m is one of the five recognized comparisons.
func (m MatchKind) Valid() bool {
	switch m {
	case MatchExact, MatchBelow, MatchAbove, MatchBelowOrEqual, MatchAboveOrEqual:
		return true
	default:
		return false
	}
}

// Tier maps one comparison against the actual value to a fixed percentage.
type Tier struct {
	Threshold       decimal.Decimal
	BonusPercentage decimal.Decimal
	Match           MatchKind
}

// Matches applies the tier's comparison. Unknown kinds never match.
func (t Tier) Matches(actual decimal.Decimal) bool {
	switch t.Match {
	case MatchExact:
		return actual.Equal(t.Threshold)
	case MatchBelow:
		return actual.LessThan(t.Threshold)
	case MatchAbove:
		return actual.GreaterThan(t.Threshold)
	case MatchBelowOrEqual:
		return actual.LessThanOrEqual(t.Threshold)
	case MatchAboveOrEqual:
		return actual.GreaterThanOrEqual(t.Threshold)
	default:
		return false
	}
}

// =============================================================================
// RANGE RULES - Continuous interpolation over [Min, Max]
// =============================================================================

// ScalingKind selects how progress through a range maps to a percentage.
type ScalingKind string

const (
	ScaleProportional        ScalingKind = "proportional"
	ScaleProportionalInverse ScalingKind = "proportional_inverse"

	// ScaleLinear is evaluated exactly like ScaleProportional. Stored
	// configuration relies on that; product has not defined a distinct
	// behavior for it yet.
	ScaleLinear ScalingKind = "linear"
)

// Valid reports whether s is a recognized scaling.
func (s ScalingKind) Valid() bool {
	switch s {
	case ScaleProportional, ScaleProportionalInverse, ScaleLinear:
		return true
	default:
		return false
	}
}

// RangeRule interpolates between BasePercentage and
// BasePercentage+AdditionalPercentage as actual moves through [Min, Max].
// Min <= Max is enforced by the formula editor, not by the engine.
type RangeRule struct {
	Min                  decimal.Decimal
	Max                  decimal.Decimal
	BasePercentage       decimal.Decimal
	AdditionalPercentage decimal.Decimal
	Scaling              ScalingKind
}

// Contains reports whether Min <= actual <= Max.
func (r RangeRule) Contains(actual decimal.Decimal) bool {
	return actual.GreaterThanOrEqual(r.Min) && actual.LessThanOrEqual(r.Max)
}

// Progress is the normalized position of actual inside the range.
// A degenerate range (Min == Max) has progress 0.
func (r RangeRule) Progress(actual decimal.Decimal) decimal.Decimal {
	span := r.Max.Sub(r.Min)
	if span.IsZero() {
		return decimal.Zero
	}
	return actual.Sub(r.Min).Div(span)
}

// =============================================================================
// PERFORMANCE & RESULT
// =============================================================================

// KPIPerformance is the caller-supplied state of one KPI. IsInverse comes
// from the KPI definition and is never inferred from the values.
type KPIPerformance struct {
	Target    decimal.Decimal
	Actual    decimal.Decimal
	IsInverse bool
}

// Source records which phase produced a Result.
type Source string

const (
	SourceNone     Source = "none"
	SourceTier     Source = "tier"
	SourceRange    Source = "range"
	SourceFallback Source = "fallback"
)

// Result is the engine output. BonusAmount is always
// AvailableBudget * BonusPercentage / 100.
type Result struct {
	BonusPercentage decimal.Decimal
	BonusAmount     decimal.Decimal

	// Trace only; never affects the numbers.
	Source    Source
	RuleIndex int // index into Tiers or RangeRules, -1 when Source is none/fallback
}

// =============================================================================
// NUMERIC HELPERS
// =============================================================================

var hundred = decimal.NewFromInt(100)

// FromFloat converts a float into a decimal, mapping NaN and ±Inf to zero.
func FromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// Percent is shorthand for an integral percentage or KPI value.
func Percent(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// AmountFor applies a percentage to a budget. The /100 is a decimal shift,
// so the result is exact and linear in budget.
func AmountFor(budget, percentage decimal.Decimal) decimal.Decimal {
	return budget.Mul(percentage).Shift(-2)
}
