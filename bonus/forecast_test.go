package bonus_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/kpi-bonus/bonus"
)

func TestForecast_SumsHeadcountAndAppliesMultiplier(t *testing.T) {
	// GIVEN: 3 analysts at $1,000 and 2 managers at $2,500
	// WHEN: forecasting at a 75% payout multiplier
	// THEN: gross is $8,000 and the payout is $6,000

	lines := []bonus.ForecastLine{
		{PositionID: "pos-analyst", RoleID: "analyst", Headcount: 3, PerPersonBonus: decimal.NewFromInt(1000)},
		{PositionID: "pos-manager", RoleID: "manager", Headcount: 2, PerPersonBonus: decimal.NewFromInt(2500)},
	}

	res := bonus.Forecast(lines, decimal.NewFromInt(75))

	assertDecimal(t, 8000, res.Gross)
	assertDecimal(t, 6000, res.TotalPayout)
	assert.Equal(t, 5, res.TotalHeadcount)
	assert.Len(t, res.Lines, 2)
	assertDecimal(t, 3000, res.Lines[0].Subtotal())
}

func TestForecast_EdgeCases(t *testing.T) {
	t.Run("no lines", func(t *testing.T) {
		res := bonus.Forecast(nil, decimal.NewFromInt(100))
		assertDecimal(t, 0, res.TotalPayout)
		assert.Equal(t, 0, res.TotalHeadcount)
	})

	t.Run("zero multiplier", func(t *testing.T) {
		lines := []bonus.ForecastLine{{Headcount: 10, PerPersonBonus: decimal.NewFromInt(500)}}
		res := bonus.Forecast(lines, decimal.Zero)
		assertDecimal(t, 5000, res.Gross)
		assertDecimal(t, 0, res.TotalPayout)
	})

	t.Run("zero headcount", func(t *testing.T) {
		lines := []bonus.ForecastLine{{Headcount: 0, PerPersonBonus: decimal.NewFromInt(500)}}
		assertDecimal(t, 0, bonus.Forecast(lines, decimal.NewFromInt(100)).TotalPayout)
	})
}

func TestForecast_ConsumesEngineOutput(t *testing.T) {
	perPerson := bonus.Evaluate(num(95), legacyDefault(), decimal.NewFromInt(4000)).BonusAmount

	res := bonus.Forecast([]bonus.ForecastLine{{Headcount: 4, PerPersonBonus: perPerson}}, decimal.NewFromInt(50))

	// 75% of 4000 = 3000 per person, x4 = 12000, x50% = 6000
	assertDecimal(t, 6000, res.TotalPayout)
}
