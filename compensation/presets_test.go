package compensation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/kpi-bonus/bonus"
	"github.com/warp/kpi-bonus/compensation"
)

func TestPresets_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		formula bonus.Formula
		actual  float64
		want    float64
	}{
		{"tiered below target", compensation.LegacyDefaultFormula(d(90), d(100)), 85, 0},
		{"tiered at target", compensation.LegacyDefaultFormula(d(90), d(100)), 90, 50},
		{"tiered midway", compensation.LegacyDefaultFormula(d(90), d(100)), 95, 75},
		{"tiered above stretch", compensation.LegacyDefaultFormula(d(90), d(100)), 110, 100},

		{"inverse tiered above target", compensation.InverseTieredFormula(d(5), d(2)), 6, 0},
		{"inverse tiered at target", compensation.InverseTieredFormula(d(5), d(2)), 5, 50},
		{"inverse tiered midway", compensation.InverseTieredFormula(d(5), d(2)), 3.5, 75},
		{"inverse tiered at stretch", compensation.InverseTieredFormula(d(5), d(2)), 2, 100},
		{"inverse tiered beyond stretch", compensation.InverseTieredFormula(d(5), d(2)), 1, 100},

		{"linear zero", compensation.LinearFormula(d(40)), 0, 0},
		{"linear half", compensation.LinearFormula(d(40)), 20, 50},
		{"linear at target", compensation.LinearFormula(d(40)), 40, 100},
		{"linear above target", compensation.LinearFormula(d(40)), 50, 100},

		{"inverse linear zero", compensation.InverseLinearFormula(d(10)), 0, 100},
		{"inverse linear quarter", compensation.InverseLinearFormula(d(10)), 2.5, 75},
		{"inverse linear at target", compensation.InverseLinearFormula(d(10)), 10, 0},
		{"inverse linear above target", compensation.InverseLinearFormula(d(10)), 12, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := bonus.Evaluate(d(tt.actual), tt.formula, d(1000))
			assertDecimal(t, tt.want, res.BonusPercentage)
		})
	}
}

func TestDefaultFormulaFor(t *testing.T) {
	assert.Equal(t, bonus.FormulaTiered, compensation.DefaultFormulaFor(bonus.FormulaTiered, d(90), d(100)).Type)
	assert.Equal(t, bonus.FormulaInverseTiered, compensation.DefaultFormulaFor(bonus.FormulaInverseTiered, d(5), d(2)).Type)
	assert.Equal(t, bonus.FormulaLinear, compensation.DefaultFormulaFor(bonus.FormulaLinear, d(40), d(0)).Type)
	assert.Equal(t, bonus.FormulaInverseLinear, compensation.DefaultFormulaFor(bonus.FormulaInverseLinear, d(10), d(0)).Type)

	// unknown type falls back to the tiered default
	assert.Equal(t, bonus.FormulaTiered, compensation.DefaultFormulaFor("stepped", d(90), d(100)).Type)
}
