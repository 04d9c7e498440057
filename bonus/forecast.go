/*
forecast.go - Aggregate bonus payout across headcount

PURPOSE:
  Rolls per-person bonus figures up to a company-wide payout. This is plain
  arithmetic over FormulaEngine output:

    total = sum(perPersonBonus * headcount) * multiplier / 100

  The multiplier is the global payout factor (0-100%) an admin dials in to
  model a partial-funding year. Callers validate ranges before calling.

SEE ALSO:
  - compensation/projection.go: Produces the per-person bonus
  - api/scheduler.go: Records forecasts on a schedule
*/
package bonus

import "github.com/shopspring/decimal"

// ForecastLine is one position in the forecast.
type ForecastLine struct {
	PositionID     string
	RoleID         string
	Headcount      int
	PerPersonBonus decimal.Decimal
}

// Subtotal is PerPersonBonus * Headcount.
func (l ForecastLine) Subtotal() decimal.Decimal {
	return l.PerPersonBonus.Mul(decimal.NewFromInt(int64(l.Headcount)))
}

// ForecastResult is the rolled-up payout.
type ForecastResult struct {
	Lines          []ForecastLine
	Gross          decimal.Decimal // before multiplier
	Multiplier     decimal.Decimal
	TotalPayout    decimal.Decimal
	TotalHeadcount int
}

// Forecast sums every line and applies the payout multiplier.
func Forecast(lines []ForecastLine, multiplier decimal.Decimal) ForecastResult {
	gross := decimal.Zero
	headcount := 0
	for _, l := range lines {
		gross = gross.Add(l.Subtotal())
		headcount += l.Headcount
	}

	return ForecastResult{
		Lines:          lines,
		Gross:          gross,
		Multiplier:     multiplier,
		TotalPayout:    AmountFor(gross, multiplier),
		TotalHeadcount: headcount,
	}
}
