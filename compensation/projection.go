package compensation

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/warp/kpi-bonus/bonus"
)

// Actuals maps KPI ID to the current performance value.
type Actuals map[string]decimal.Decimal

// Formulas maps KPI ID to its configured formula. A missing key means no
// formula is configured for that KPI and the fallback ratio applies.
type Formulas map[string]bonus.Formula

// KPIProjection is the projected bonus for one KPI.
type KPIProjection struct {
	KPI             KPI
	Actual          decimal.Decimal
	ActualDefaulted bool // no actual recorded, target used instead
	AvailableBudget decimal.Decimal
	Result          bonus.Result
	UsedFallback    bool
}

// Projection is a user's projected bonus across every KPI of the role.
type Projection struct {
	Role            Role
	BonusPool       decimal.Decimal
	KPIs            []KPIProjection
	TotalBonus      decimal.Decimal
	TotalPercentage decimal.Decimal // TotalBonus as a percent of BonusPool
}

// Projector evaluates every KPI of a role.
type Projector struct {
	Engine bonus.FormulaEngine
}

// Project computes the projection. A KPI with no recorded actual is
// evaluated at its target, which is what the dashboard slider starts at.
func (p Projector) Project(role Role, kpis []KPI, actuals Actuals, formulas Formulas) Projection {
	proj := Projection{
		Role:      role,
		BonusPool: role.BonusPool(),
		KPIs:      make([]KPIProjection, 0, len(kpis)),
	}

	for _, k := range kpis {
		actual, ok := actuals[k.ID]
		kp := KPIProjection{
			KPI:             k,
			Actual:          actual,
			ActualDefaulted: !ok,
			AvailableBudget: AvailableBudget(role, k, kpis),
		}
		if !ok {
			kp.Actual = k.Target
		}

		if f, configured := formulas[k.ID]; configured {
			kp.Result = p.Engine.Evaluate(kp.Actual, f, kp.AvailableBudget)
		} else {
			kp.Result = bonus.Fallback(k.Performance(kp.Actual), kp.AvailableBudget)
			kp.UsedFallback = true
		}
		proj.KPIs = append(proj.KPIs, kp)
	}

	proj.TotalBonus = lo.Reduce(proj.KPIs, func(acc decimal.Decimal, kp KPIProjection, _ int) decimal.Decimal {
		return acc.Add(kp.Result.BonusAmount)
	}, decimal.Zero)

	if proj.BonusPool.IsPositive() {
		proj.TotalPercentage = proj.TotalBonus.Div(proj.BonusPool).Shift(2)
	} else {
		proj.TotalPercentage = decimal.Zero
	}
	return proj
}

// WithOverrides returns a copy of base with overrides applied on top. Used
// by the dashboard slider to simulate without persisting.
func WithOverrides(base, overrides Actuals) Actuals {
	out := make(Actuals, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
