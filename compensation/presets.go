/*
presets.go - Default bonus formulas

PURPOSE:
  Before formulas were data-driven, every KPI had its own hardcoded bonus
  branch. The shapes below are those branches expressed as formulas. The
  admin editor offers them as starting points when a formula type is
  chosen, and the demo scenarios seed them.

SHAPES (target T, stretch S):
  tiered          below T -> 0, exactly T -> 50, >= S -> 100,
                  [T, S] interpolates 50 -> 100
  inverse_tiered  above T -> 0, exactly T -> 50, <= S -> 100,
                  [S, T] interpolates 100 -> 50 (S < T)
  linear          [0, T] interpolates 0 -> 100, above T -> 100
  inverse_linear  [0, T] interpolates 100 -> 0, above T -> 0

SEE ALSO:
  - factory/formula.go: JSON form of these formulas
  - api/scenarios.go: Seeds formulas with DefaultFormulaJSONFor
*/
package compensation

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/kpi-bonus/bonus"
)

var (
	pctZero    = decimal.Zero
	pctHalf    = decimal.NewFromInt(50)
	pctHundred = decimal.NewFromInt(100)
)

// =============================================================================
// GO PRESETS
// =============================================================================

// LegacyDefaultFormula is the higher-is-better default, e.g. Client
// Retention % with target 90 and stretch 100.
func LegacyDefaultFormula(target, stretch decimal.Decimal) bonus.Formula {
	return bonus.Formula{
		Type: bonus.FormulaTiered,
		Tiers: []bonus.Tier{
			{Threshold: target, BonusPercentage: pctZero, Match: bonus.MatchBelow},
			{Threshold: target, BonusPercentage: pctHalf, Match: bonus.MatchExact},
			{Threshold: stretch, BonusPercentage: pctHundred, Match: bonus.MatchAboveOrEqual},
		},
		RangeRules: []bonus.RangeRule{
			{Min: target, Max: stretch, BasePercentage: pctHalf, AdditionalPercentage: pctHalf, Scaling: bonus.ScaleProportional},
		},
	}
}

// InverseTieredFormula is the lower-is-better default. stretch is below target.
func InverseTieredFormula(target, stretch decimal.Decimal) bonus.Formula {
	return bonus.Formula{
		Type: bonus.FormulaInverseTiered,
		Tiers: []bonus.Tier{
			{Threshold: target, BonusPercentage: pctZero, Match: bonus.MatchAbove},
			{Threshold: target, BonusPercentage: pctHalf, Match: bonus.MatchExact},
			{Threshold: stretch, BonusPercentage: pctHundred, Match: bonus.MatchBelowOrEqual},
		},
		RangeRules: []bonus.RangeRule{
			{Min: stretch, Max: target, BasePercentage: pctHalf, AdditionalPercentage: pctHalf, Scaling: bonus.ScaleProportionalInverse},
		},
	}
}

// LinearFormula pays in proportion to attainment up to target.
func LinearFormula(target decimal.Decimal) bonus.Formula {
	return bonus.Formula{
		Type: bonus.FormulaLinear,
		Tiers: []bonus.Tier{
			{Threshold: target, BonusPercentage: pctHundred, Match: bonus.MatchAbove},
		},
		RangeRules: []bonus.RangeRule{
			{Min: pctZero, Max: target, BasePercentage: pctZero, AdditionalPercentage: pctHundred, Scaling: bonus.ScaleLinear},
		},
	}
}

// InverseLinearFormula pays 100% at zero and nothing at or above target.
func InverseLinearFormula(target decimal.Decimal) bonus.Formula {
	return bonus.Formula{
		Type: bonus.FormulaInverseLinear,
		Tiers: []bonus.Tier{
			{Threshold: target, BonusPercentage: pctZero, Match: bonus.MatchAbove},
		},
		RangeRules: []bonus.RangeRule{
			{Min: pctZero, Max: target, BasePercentage: pctZero, AdditionalPercentage: pctHundred, Scaling: bonus.ScaleProportionalInverse},
		},
	}
}

// DefaultFormulaFor picks the starting formula for a formula type. Unknown
// types get the tiered default.
func DefaultFormulaFor(t bonus.FormulaType, target, stretch decimal.Decimal) bonus.Formula {
	switch t {
	case bonus.FormulaInverseTiered:
		return InverseTieredFormula(target, stretch)
	case bonus.FormulaLinear:
		return LinearFormula(target)
	case bonus.FormulaInverseLinear:
		return InverseLinearFormula(target)
	default:
		return LegacyDefaultFormula(target, stretch)
	}
}

// =============================================================================
// JSON PRESETS - Stored shape, for scenarios and fixtures
// =============================================================================

// DefaultFormulaJSONFor is DefaultFormulaFor in stored form, the document
// the demo scenarios seed into the formulas table.
func DefaultFormulaJSONFor(t bonus.FormulaType, target, stretch decimal.Decimal) string {
	switch t {
	case bonus.FormulaInverseTiered:
		return inverseTieredJSON(target, stretch)
	case bonus.FormulaLinear:
		return linearJSON(target)
	case bonus.FormulaInverseLinear:
		return inverseLinearJSON(target)
	default:
		return legacyJSON(target, stretch)
	}
}

// LegacyDefaultFormulaJSON is LegacyDefaultFormula in stored form.
func LegacyDefaultFormulaJSON(target, stretch float64) string {
	return legacyJSON(target, stretch)
}

// InverseTieredFormulaJSON is InverseTieredFormula in stored form.
func InverseTieredFormulaJSON(target, stretch float64) string {
	return inverseTieredJSON(target, stretch)
}

// LinearFormulaJSON is LinearFormula in stored form.
func LinearFormulaJSON(target float64) string {
	return linearJSON(target)
}

// Values are printed with %v, so float64 and decimal.Decimal both work.

func legacyJSON(target, stretch any) string {
	return fmt.Sprintf(`{
		"type": "tiered",
		"tiers": [
			{"threshold": %[1]v, "bonus_percentage": 0, "comparison": "below"},
			{"threshold": %[1]v, "bonus_percentage": 50, "exact_match": true},
			{"threshold": %[2]v, "bonus_percentage": 100, "comparison": "above_or_equal"}
		],
		"range_rules": [
			{"min": %[1]v, "max": %[2]v, "base_percentage": 50, "additional_percentage": 50, "scaling": "proportional"}
		]
	}`, target, stretch)
}

func inverseTieredJSON(target, stretch any) string {
	return fmt.Sprintf(`{
		"type": "inverse_tiered",
		"tiers": [
			{"threshold": %[1]v, "bonus_percentage": 0, "comparison": "above"},
			{"threshold": %[1]v, "bonus_percentage": 50, "exact_match": true},
			{"threshold": %[2]v, "bonus_percentage": 100, "comparison": "below_or_equal"}
		],
		"range_rules": [
			{"min": %[2]v, "max": %[1]v, "base_percentage": 50, "additional_percentage": 50, "scaling": "proportional_inverse"}
		]
	}`, target, stretch)
}

func linearJSON(target any) string {
	return fmt.Sprintf(`{
		"type": "linear",
		"tiers": [
			{"threshold": %[1]v, "bonus_percentage": 100, "comparison": "above"}
		],
		"range_rules": [
			{"min": 0, "max": %[1]v, "base_percentage": 0, "additional_percentage": 100, "scaling": "linear"}
		]
	}`, target)
}

func inverseLinearJSON(target any) string {
	return fmt.Sprintf(`{
		"type": "inverse_linear",
		"tiers": [
			{"threshold": %[1]v, "bonus_percentage": 0, "comparison": "above"}
		],
		"range_rules": [
			{"min": 0, "max": %[1]v, "base_percentage": 0, "additional_percentage": 100, "scaling": "proportional_inverse"}
		]
	}`, target)
}
