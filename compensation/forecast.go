package compensation

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/kpi-bonus/bonus"
)

// RolePlan is everything needed to project one person in a role.
type RolePlan struct {
	Role     Role
	KPIs     []KPI
	Formulas Formulas
}

// ForecastInput is the admin's forecast request.
type ForecastInput struct {
	Positions  []Position
	Plans      map[string]RolePlan // by role ID
	Assumed    Actuals             // per-KPI assumed actuals; missing KPIs use target
	Multiplier decimal.Decimal     // 0-100
}

// Forecaster rolls role projections up across headcount.
type Forecaster struct {
	Projector Projector
}

// Forecast projects one person per position and hands the lines to
// bonus.Forecast. Positions referencing an unknown role fail the whole
// forecast rather than silently dropping headcount.
func (f Forecaster) Forecast(in ForecastInput) (bonus.ForecastResult, error) {
	if in.Multiplier.IsNegative() || in.Multiplier.GreaterThan(decimal.NewFromInt(100)) {
		return bonus.ForecastResult{}, bonus.ErrInvalidMultiplier
	}

	lines := make([]bonus.ForecastLine, 0, len(in.Positions))
	perRole := make(map[string]decimal.Decimal)

	for _, pos := range in.Positions {
		perPerson, ok := perRole[pos.RoleID]
		if !ok {
			plan, found := in.Plans[pos.RoleID]
			if !found {
				return bonus.ForecastResult{}, fmt.Errorf("position %s: %w", pos.ID, bonus.ErrRoleNotFound)
			}
			proj := f.Projector.Project(plan.Role, plan.KPIs, in.Assumed, plan.Formulas)
			perPerson = proj.TotalBonus
			perRole[pos.RoleID] = perPerson
		}

		lines = append(lines, bonus.ForecastLine{
			PositionID:     pos.ID,
			RoleID:         pos.RoleID,
			Headcount:      pos.Headcount,
			PerPersonBonus: perPerson,
		})
	}

	return bonus.Forecast(lines, in.Multiplier), nil
}
