package bonus

import "github.com/shopspring/decimal"

// Fallback computes the ratio bonus for a KPI that has NO formula configured.
// It is not part of Evaluate: a configured formula that matches nothing
// yields 0%, and callers must branch on "formula missing" themselves.
//
//	regular: min(100, actual/target*100), 0 when target is 0
//	inverse: min(100, target/actual*100), 100 when actual <= 0
//
// Only the upper bound is applied. A negative actual gives a negative
// percentage, the same pass-through Evaluate has for out-of-range values.
func Fallback(perf KPIPerformance, availableBudget decimal.Decimal) Result {
	pct := fallbackPercentage(perf)
	return Result{
		BonusPercentage: pct,
		BonusAmount:     AmountFor(availableBudget, pct),
		Source:          SourceFallback,
		RuleIndex:       -1,
	}
}

func fallbackPercentage(perf KPIPerformance) decimal.Decimal {
	var ratio decimal.Decimal
	if perf.IsInverse {
		if !perf.Actual.IsPositive() {
			return hundred
		}
		ratio = perf.Target.Div(perf.Actual)
	} else {
		if perf.Target.IsZero() {
			return decimal.Zero
		}
		ratio = perf.Actual.Div(perf.Target)
	}

	return decimal.Min(ratio.Mul(hundred), hundred)
}
