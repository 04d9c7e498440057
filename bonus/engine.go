/*
engine.go - Two-phase bonus formula evaluation

PURPOSE:
  Evaluates a Formula against a KPI's actual value and the budget
  attributable to that KPI.

ALGORITHM:
  Phase 1 - tiers, in order, first match wins:
    exact_match     actual == threshold
    below           actual <  threshold
    above           actual >  threshold
    below_or_equal  actual <= threshold
    above_or_equal  actual >= threshold
  No match leaves the percentage at 0.

  Phase 2 - range rules, in order, first range with min <= actual <= max
  wins and REPLACES the phase 1 result (never additive):
    progress             = (actual - min) / (max - min), 0 when max == min
    proportional         = base + additional * progress
    proportional_inverse = base + additional * (1 - progress)
    linear               = same as proportional

  Final: amount = budget * percentage / 100. The percentage is not
  clamped; a formula that pays above 100% is passed through as authored.

MALFORMED CONFIG:
  Tiers with an unknown match kind and ranges with an unknown scaling are
  skipped. The engine never returns an error.

SEE ALSO:
  - types.go: Tier.Matches, RangeRule.Progress
  - fallback.go: What callers do when no formula exists
*/
package bonus

import "github.com/shopspring/decimal"

// FormulaEngine evaluates bonus formulas. It has no state; the zero value
// is ready to use and may be shared freely.
type FormulaEngine struct{}

// Evaluate runs both phases against the same actual value.
func (FormulaEngine) Evaluate(actual decimal.Decimal, formula Formula, availableBudget decimal.Decimal) Result {
	res := Result{
		BonusPercentage: decimal.Zero,
		Source:          SourceNone,
		RuleIndex:       -1,
	}

	if i, pct, ok := matchTier(actual, formula.Tiers); ok {
		res.BonusPercentage = pct
		res.Source = SourceTier
		res.RuleIndex = i
	}

	if i, pct, ok := matchRange(actual, formula.RangeRules); ok {
		res.BonusPercentage = pct
		res.Source = SourceRange
		res.RuleIndex = i
	}

	res.BonusAmount = AmountFor(availableBudget, res.BonusPercentage)
	return res
}

// Evaluate is FormulaEngine{}.Evaluate.
func Evaluate(actual decimal.Decimal, formula Formula, availableBudget decimal.Decimal) Result {
	return FormulaEngine{}.Evaluate(actual, formula, availableBudget)
}

func matchTier(actual decimal.Decimal, tiers []Tier) (int, decimal.Decimal, bool) {
	for i, t := range tiers {
		if t.Matches(actual) {
			return i, t.BonusPercentage, true
		}
	}
	return -1, decimal.Zero, false
}

func matchRange(actual decimal.Decimal, rules []RangeRule) (int, decimal.Decimal, bool) {
	for i, r := range rules {
		if !r.Scaling.Valid() || !r.Contains(actual) {
			continue
		}
		return i, interpolate(r, r.Progress(actual)), true
	}
	return -1, decimal.Zero, false
}

func interpolate(r RangeRule, progress decimal.Decimal) decimal.Decimal {
	switch r.Scaling {
	case ScaleProportionalInverse:
		return r.BasePercentage.Add(r.AdditionalPercentage.Mul(decimal.NewFromInt(1).Sub(progress)))
	default:
		// proportional and linear
		return r.BasePercentage.Add(r.AdditionalPercentage.Mul(progress))
	}
}
