package factory_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kpi-bonus/bonus"
	"github.com/warp/kpi-bonus/compensation"
	"github.com/warp/kpi-bonus/factory"
)

const storedLegacy = `{
	"type": "tiered",
	"tiers": [
		{"threshold": 90, "bonus_percentage": 0, "comparison": "below"},
		{"threshold": 90, "bonus_percentage": 50, "exact_match": true},
		{"threshold": 100, "bonus_percentage": 100, "comparison": "above_or_equal"}
	],
	"range_rules": [
		{"min": 90, "max": 100, "base_percentage": 50, "additional_percentage": 50, "scaling": "proportional"}
	]
}`

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// =============================================================================
// PARSING
// =============================================================================

func TestParseFormula_StoredShape(t *testing.T) {
	f := factory.NewFormulaFactory()

	formula, err := f.ParseFormula([]byte(storedLegacy))
	require.NoError(t, err)

	assert.Equal(t, bonus.FormulaTiered, formula.Type)
	require.Len(t, formula.Tiers, 3)
	assert.Equal(t, bonus.MatchBelow, formula.Tiers[0].Match)
	assert.Equal(t, bonus.MatchExact, formula.Tiers[1].Match)
	assert.Equal(t, bonus.MatchAboveOrEqual, formula.Tiers[2].Match)
	assert.True(t, formula.Tiers[2].Threshold.Equal(d(100)))

	require.Len(t, formula.RangeRules, 1)
	r := formula.RangeRules[0]
	assert.True(t, r.Min.Equal(d(90)))
	assert.True(t, r.Max.Equal(d(100)))
	assert.True(t, r.BasePercentage.Equal(d(50)))
	assert.True(t, r.AdditionalPercentage.Equal(d(50)))
	assert.Equal(t, bonus.ScaleProportional, r.Scaling)

	res := bonus.Evaluate(d(95), formula, d(1000))
	assert.True(t, res.BonusPercentage.Equal(d(75)))
}

func TestParseFormula_CamelCaseRangeRulesAlias(t *testing.T) {
	f := factory.NewFormulaFactory()

	formula, err := f.ParseFormula([]byte(`{
		"type": "linear",
		"rangeRules": [{"min": 0, "max": 10, "base_percentage": 0, "additional_percentage": 100, "scaling": "linear"}]
	}`))
	require.NoError(t, err)
	require.Len(t, formula.RangeRules, 1)
	assert.Equal(t, bonus.ScaleLinear, formula.RangeRules[0].Scaling)
}

func TestParseFormula_SnakeCaseWinsOverAlias(t *testing.T) {
	f := factory.NewFormulaFactory()

	formula, err := f.ParseFormula([]byte(`{
		"type": "linear",
		"range_rules": [{"min": 1, "max": 2, "base_percentage": 0, "additional_percentage": 0, "scaling": "linear"}],
		"rangeRules": [{"min": 5, "max": 6, "base_percentage": 0, "additional_percentage": 0, "scaling": "linear"}]
	}`))
	require.NoError(t, err)
	require.Len(t, formula.RangeRules, 1)
	assert.True(t, formula.RangeRules[0].Min.Equal(d(1)))
}

func TestParseFormula_ExactMatchWinsOverComparison(t *testing.T) {
	f := factory.NewFormulaFactory()

	formula, err := f.ParseFormula([]byte(`{"type":"tiered","tiers":[
		{"threshold": 90, "bonus_percentage": 50, "comparison": "below", "exact_match": true},
		{"threshold": 90, "bonus_percentage": 20, "comparison": "exact_match"}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, bonus.MatchExact, formula.Tiers[0].Match)
	assert.Equal(t, bonus.MatchExact, formula.Tiers[1].Match)
}

func TestParseFormula_UnknownKindsAreKeptButNeverMatch(t *testing.T) {
	f := factory.NewFormulaFactory()

	formula, err := f.ParseFormula([]byte(`{"type":"tiered",
		"tiers":[{"threshold": 90, "bonus_percentage": 50, "comparison": "between"}],
		"range_rules":[{"min": 0, "max": 100, "base_percentage": 10, "additional_percentage": 0, "scaling": "cubic"}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, bonus.MatchKind("between"), formula.Tiers[0].Match)
	assert.Equal(t, bonus.ScalingKind("cubic"), formula.RangeRules[0].Scaling)

	res := bonus.Evaluate(d(90), formula, d(1000))
	assert.True(t, res.BonusPercentage.IsZero())

	// Round-trip keeps the unknown values verbatim.
	out := f.ToJSON(formula)
	assert.Equal(t, "between", out.Tiers[0].Comparison)
	assert.Equal(t, "cubic", out.RangeRules[0].Scaling)
}

func TestParseFormula_InvalidJSON(t *testing.T) {
	f := factory.NewFormulaFactory()

	_, err := f.ParseFormula([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestParseFormulaYAML(t *testing.T) {
	f := factory.NewFormulaFactory()

	formula, doc, err := f.ParseFormulaYAML([]byte(`
type: tiered
tiers:
  - threshold: 90
    bonus_percentage: 50
    exact_match: true
range_rules:
  - min: 90
    max: 100
    base_percentage: 50
    additional_percentage: 50
    scaling: proportional_inverse
`))
	require.NoError(t, err)
	assert.Equal(t, bonus.MatchExact, formula.Tiers[0].Match)
	assert.Equal(t, bonus.ScaleProportionalInverse, formula.RangeRules[0].Scaling)
	assert.NoError(t, f.ValidateFormulaJSON(doc))
}

// =============================================================================
// WRITING
// =============================================================================

func TestToJSON_BitExactFieldNames(t *testing.T) {
	f := factory.NewFormulaFactory()
	formula := compensation.LegacyDefaultFormula(d(90), d(100))

	raw, err := f.MarshalFormula(formula)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))

	assert.Contains(t, generic, "type")
	assert.Contains(t, generic, "tiers")
	assert.Contains(t, generic, "range_rules")
	assert.NotContains(t, generic, "rangeRules")

	tiers := generic["tiers"].([]any)
	below := tiers[0].(map[string]any)
	assert.Equal(t, "below", below["comparison"])
	assert.NotContains(t, below, "exact_match")

	exact := tiers[1].(map[string]any)
	assert.Equal(t, true, exact["exact_match"])
	assert.NotContains(t, exact, "comparison")
	assert.Equal(t, 50.0, exact["bonus_percentage"])

	rr := generic["range_rules"].([]any)[0].(map[string]any)
	for _, key := range []string{"min", "max", "base_percentage", "additional_percentage", "scaling"} {
		assert.Contains(t, rr, key)
	}
}

func TestRoundTrip_PresetsSurviveStorage(t *testing.T) {
	f := factory.NewFormulaFactory()

	for name, raw := range map[string]string{
		"legacy":         compensation.LegacyDefaultFormulaJSON(90, 100),
		"inverse_tiered": compensation.InverseTieredFormulaJSON(5, 2),
		"linear":         compensation.LinearFormulaJSON(40),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, f.ValidateFormulaJSON([]byte(raw)))

			first, err := f.ParseFormula([]byte(raw))
			require.NoError(t, err)

			stored, err := f.MarshalFormula(first)
			require.NoError(t, err)

			second, err := f.ParseFormula(stored)
			require.NoError(t, err)

			assert.Equal(t, f.ToJSON(first), f.ToJSON(second))
		})
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidateFormulaJSON_Accepts(t *testing.T) {
	f := factory.NewFormulaFactory()

	assert.NoError(t, f.ValidateFormulaJSON([]byte(storedLegacy)))
	assert.NoError(t, f.ValidateFormulaJSON([]byte(`{"type":"tiered"}`)))
	assert.NoError(t, f.ValidateFormulaJSON([]byte(`{"type":"tiered","tiers":[],"range_rules":[]}`)))
}

func TestValidateFormulaJSON_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing type":        `{"tiers":[]}`,
		"unknown type":        `{"type":"stepped"}`,
		"tier without match":  `{"type":"tiered","tiers":[{"threshold":1,"bonus_percentage":2}]}`,
		"exact_match false":   `{"type":"tiered","tiers":[{"threshold":1,"bonus_percentage":2,"exact_match":false}]}`,
		"unknown comparison":  `{"type":"tiered","tiers":[{"threshold":1,"bonus_percentage":2,"comparison":"near"}]}`,
		"string threshold":    `{"type":"tiered","tiers":[{"threshold":"90","bonus_percentage":2,"comparison":"below"}]}`,
		"range missing field": `{"type":"linear","range_rules":[{"min":0,"max":1,"base_percentage":0,"scaling":"linear"}]}`,
		"unknown scaling":     `{"type":"linear","range_rules":[{"min":0,"max":1,"base_percentage":0,"additional_percentage":1,"scaling":"log"}]}`,
	}

	f := factory.NewFormulaFactory()
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.ValidateFormulaJSON([]byte(raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, bonus.ErrInvalidFormula), "got %v", err)
			assert.True(t, bonus.IsClientError(err))

			var schemaErr *bonus.SchemaError
			assert.ErrorAs(t, err, &schemaErr)
		})
	}
}

func TestValidateFormulaJSON_RangeOrder(t *testing.T) {
	f := factory.NewFormulaFactory()

	err := f.ValidateFormulaJSON([]byte(`{"type":"linear","range_rules":[
		{"min":0,"max":10,"base_percentage":0,"additional_percentage":1,"scaling":"linear"},
		{"min":20,"max":10,"base_percentage":0,"additional_percentage":1,"scaling":"linear"}
	]}`))

	require.Error(t, err)
	assert.ErrorIs(t, err, bonus.ErrInvalidRange)

	var orderErr *bonus.RangeOrderError
	require.ErrorAs(t, err, &orderErr)
	assert.Equal(t, 1, orderErr.Index)
}

func TestValidateFormulaJSON_AliasChecked(t *testing.T) {
	f := factory.NewFormulaFactory()

	err := f.ValidateFormulaJSON([]byte(`{"type":"linear","rangeRules":[
		{"min":5,"max":1,"base_percentage":0,"additional_percentage":1,"scaling":"linear"}
	]}`))
	assert.ErrorIs(t, err, bonus.ErrInvalidRange)
}

func TestDefaultFormulaJSONFor_MatchesGoPresets(t *testing.T) {
	f := factory.NewFormulaFactory()

	for _, typ := range []bonus.FormulaType{
		bonus.FormulaTiered, bonus.FormulaInverseTiered, bonus.FormulaLinear, bonus.FormulaInverseLinear,
	} {
		t.Run(string(typ), func(t *testing.T) {
			target, stretch := decimal.RequireFromString("12.5"), decimal.RequireFromString("20")
			if typ == bonus.FormulaInverseTiered {
				stretch = decimal.RequireFromString("4")
			}

			raw := compensation.DefaultFormulaJSONFor(typ, target, stretch)
			require.NoError(t, f.ValidateFormulaJSON([]byte(raw)))

			parsed, err := f.ParseFormula([]byte(raw))
			require.NoError(t, err)
			assert.Equal(t, f.ToJSON(compensation.DefaultFormulaFor(typ, target, stretch)), f.ToJSON(parsed))
		})
	}
}
