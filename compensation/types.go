/*
Package compensation connects roles and KPIs to the bonus engine.

PURPOSE:
  The bonus package knows nothing about salaries or roles. This package
  owns the business model around it:
  - Role: salary and bonus target that form the bonus pool
  - KPI: target, direction and weight inside a role
  - Position: a role staffed N times, used for payout forecasts

BUDGET DERIVATION:
  pool   = base_salary * bonus_percentage / 100
  budget = pool * weight / 100          (KPI has a weight)
  budget = pool / len(kpis)             (every KPI of the role has weight 0)

  The engine receives `budget` as its AvailableBudget.

SEE ALSO:
  - projection.go: Per-user projected bonus (formula vs fallback branch)
  - forecast.go: Company-wide payout across positions
  - presets.go: Default formulas by formula type
*/
package compensation

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/warp/kpi-bonus/bonus"
)

// =============================================================================
// ROLE & KPI
// =============================================================================

// Role is a job role with a bonus target.
type Role struct {
	ID              string
	Name            string
	BaseSalary      decimal.Decimal
	BonusPercentage decimal.Decimal // share of salary paid as bonus at 100%
}

// BonusPool is the role's full bonus at 100% attainment on every KPI.
func (r Role) BonusPool() decimal.Decimal {
	return bonus.AmountFor(r.BaseSalary, r.BonusPercentage)
}

// KPI is one measured indicator for a role.
type KPI struct {
	ID          string
	RoleID      string
	Name        string
	Description string
	Unit        string
	Target      decimal.Decimal
	IsInverse   bool            // lower actual is better (defect rates, churn)
	Weight      decimal.Decimal // percent of the role's pool; 0 on every KPI means equal split
}

// Performance pairs the KPI definition with an actual value.
func (k KPI) Performance(actual decimal.Decimal) bonus.KPIPerformance {
	return bonus.KPIPerformance{
		Target:    k.Target,
		Actual:    actual,
		IsInverse: k.IsInverse,
	}
}

// AvailableBudget returns the share of the role's pool attributable to kpi.
// kpis is the full KPI list of the role and decides between weighted and
// equal split.
func AvailableBudget(role Role, kpi KPI, kpis []KPI) decimal.Decimal {
	pool := role.BonusPool()
	if len(kpis) == 0 {
		return decimal.Zero
	}

	unweighted := lo.EveryBy(kpis, func(k KPI) bool { return k.Weight.IsZero() })
	if unweighted {
		return pool.Div(decimal.NewFromInt(int64(len(kpis))))
	}
	return bonus.AmountFor(pool, kpi.Weight)
}

// TotalWeight sums KPI weights. Admin screens warn when it is not 100.
func TotalWeight(kpis []KPI) decimal.Decimal {
	return lo.Reduce(kpis, func(acc decimal.Decimal, k KPI, _ int) decimal.Decimal {
		return acc.Add(k.Weight)
	}, decimal.Zero)
}

// =============================================================================
// POSITION
// =============================================================================

// Position is a role staffed Headcount times. Forecasts multiply the
// per-person projection by Headcount.
type Position struct {
	ID        string
	RoleID    string
	Title     string
	Headcount int
}
