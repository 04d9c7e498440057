/*
Package factory provides stored-JSON to Go formula conversion.

PURPOSE:
  Converts the bonus formula documents the admin editor stores into
  bonus.Formula values, and back. The stored field names are a fixed
  contract with existing configuration, so both directions are lossless.

JSON SCHEMA:
  {
    "type": "tiered",
    "tiers": [
      {"threshold": 90, "bonus_percentage": 0,  "comparison": "below"},
      {"threshold": 90, "bonus_percentage": 50, "exact_match": true},
      {"threshold": 100, "bonus_percentage": 100, "comparison": "above_or_equal"}
    ],
    "range_rules": [
      {"min": 90, "max": 100, "base_percentage": 50,
       "additional_percentage": 50, "scaling": "proportional"}
    ]
  }

  - "rangeRules" is accepted on read as an alias of "range_rules".
  - "exact_match": true wins over any "comparison" on the same tier.
  - comparison: below | above | below_or_equal | above_or_equal | exact_match
  - scaling: proportional | proportional_inverse | linear

READ vs WRITE:
  ParseFormula is lenient: unknown comparisons/scalings are kept verbatim
  and the engine never matches them, so old config always loads.
  ValidateFormulaJSON is strict and runs on the admin write path: schema
  check (gojsonschema) plus min <= max on every range.

USAGE:
  f := factory.NewFormulaFactory()

  if err := f.ValidateFormulaJSON(raw); err != nil {
      return err // *bonus.SchemaError or *bonus.RangeOrderError
  }
  formula, err := f.ParseFormula(raw)

SEE ALSO:
  - bonus/types.go: Formula type definition
  - compensation/presets.go: Preset formulas in stored form
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/warp/kpi-bonus/bonus"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// FormulaJSON is the stored representation of a bonus formula.
type FormulaJSON struct {
	Type       string          `json:"type" yaml:"type"`
	Tiers      []TierJSON      `json:"tiers" yaml:"tiers"`
	RangeRules []RangeRuleJSON `json:"range_rules" yaml:"range_rules"`
}

// TierJSON represents one discrete tier. Exactly one of Comparison or
// ExactMatch is set when written by this package.
type TierJSON struct {
	Threshold       float64 `json:"threshold" yaml:"threshold"`
	BonusPercentage float64 `json:"bonus_percentage" yaml:"bonus_percentage"`
	Comparison      string  `json:"comparison,omitempty" yaml:"comparison,omitempty"`
	ExactMatch      bool    `json:"exact_match,omitempty" yaml:"exact_match,omitempty"`
}

// RangeRuleJSON represents one interpolated range.
type RangeRuleJSON struct {
	Min                  float64 `json:"min" yaml:"min"`
	Max                  float64 `json:"max" yaml:"max"`
	BasePercentage       float64 `json:"base_percentage" yaml:"base_percentage"`
	AdditionalPercentage float64 `json:"additional_percentage" yaml:"additional_percentage"`
	Scaling              string  `json:"scaling" yaml:"scaling"`
}

// UnmarshalJSON accepts both "range_rules" and "rangeRules".
func (fj *FormulaJSON) UnmarshalJSON(data []byte) error {
	type plain FormulaJSON
	var aux struct {
		plain
		RangeRulesCamel []RangeRuleJSON `json:"rangeRules"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*fj = FormulaJSON(aux.plain)
	if len(fj.RangeRules) == 0 && len(aux.RangeRulesCamel) > 0 {
		fj.RangeRules = aux.RangeRulesCamel
	}
	return nil
}

// formulaSchema is draft-07; "rangeRules" mirrors "range_rules".
const formulaSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"enum": ["tiered", "inverse_tiered", "linear", "inverse_linear"]},
    "tiers": {"type": "array", "items": {"$ref": "#/definitions/tier"}},
    "range_rules": {"type": "array", "items": {"$ref": "#/definitions/range"}},
    "rangeRules": {"type": "array", "items": {"$ref": "#/definitions/range"}}
  },
  "definitions": {
    "tier": {
      "type": "object",
      "required": ["threshold", "bonus_percentage"],
      "properties": {
        "threshold": {"type": "number"},
        "bonus_percentage": {"type": "number"},
        "comparison": {"enum": ["below", "above", "below_or_equal", "above_or_equal", "exact_match"]},
        "exact_match": {"type": "boolean"}
      },
      "anyOf": [
        {"required": ["comparison"]},
        {"required": ["exact_match"], "properties": {"exact_match": {"enum": [true]}}}
      ]
    },
    "range": {
      "type": "object",
      "required": ["min", "max", "base_percentage", "additional_percentage", "scaling"],
      "properties": {
        "min": {"type": "number"},
        "max": {"type": "number"},
        "base_percentage": {"type": "number"},
        "additional_percentage": {"type": "number"},
        "scaling": {"enum": ["proportional", "proportional_inverse", "linear"]}
      }
    }
  }
}`

// =============================================================================
// FORMULA FACTORY
// =============================================================================

// FormulaFactory converts stored formulas to Go structs.
type FormulaFactory struct {
	schema *gojsonschema.Schema
}

// NewFormulaFactory creates a new formula factory with the schema compiled.
func NewFormulaFactory() *FormulaFactory {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(formulaSchema))
	if err != nil {
		panic(fmt.Sprintf("factory: formula schema does not compile: %v", err))
	}
	return &FormulaFactory{schema: schema}
}

// ParseFormula parses a stored JSON document into a Formula.
func (f *FormulaFactory) ParseFormula(raw []byte) (bonus.Formula, error) {
	var fj FormulaJSON
	if err := json.Unmarshal(raw, &fj); err != nil {
		return bonus.Formula{}, fmt.Errorf("failed to parse formula JSON: %w", err)
	}
	return f.FromJSON(fj), nil
}

// ParseFormulaYAML parses a YAML document with the same field names as the
// JSON form. The YAML is normalized to JSON first so both formats share one
// decoding path.
func (f *FormulaFactory) ParseFormulaYAML(raw []byte) (bonus.Formula, []byte, error) {
	doc, err := YAMLToJSON(raw)
	if err != nil {
		return bonus.Formula{}, nil, err
	}
	formula, err := f.ParseFormula(doc)
	return formula, doc, err
}

// FromJSON converts FormulaJSON to bonus.Formula.
func (f *FormulaFactory) FromJSON(fj FormulaJSON) bonus.Formula {
	formula := bonus.Formula{
		Type:       bonus.FormulaType(fj.Type),
		Tiers:      make([]bonus.Tier, 0, len(fj.Tiers)),
		RangeRules: make([]bonus.RangeRule, 0, len(fj.RangeRules)),
	}

	for _, tj := range fj.Tiers {
		formula.Tiers = append(formula.Tiers, bonus.Tier{
			Threshold:       bonus.FromFloat(tj.Threshold),
			BonusPercentage: bonus.FromFloat(tj.BonusPercentage),
			Match:           parseMatchKind(tj),
		})
	}

	for _, rj := range fj.RangeRules {
		formula.RangeRules = append(formula.RangeRules, bonus.RangeRule{
			Min:                  bonus.FromFloat(rj.Min),
			Max:                  bonus.FromFloat(rj.Max),
			BasePercentage:       bonus.FromFloat(rj.BasePercentage),
			AdditionalPercentage: bonus.FromFloat(rj.AdditionalPercentage),
			Scaling:              bonus.ScalingKind(rj.Scaling),
		})
	}

	return formula
}

// ToJSON converts a Formula to its stored form.
func (f *FormulaFactory) ToJSON(formula bonus.Formula) FormulaJSON {
	fj := FormulaJSON{
		Type:       string(formula.Type),
		Tiers:      make([]TierJSON, 0, len(formula.Tiers)),
		RangeRules: make([]RangeRuleJSON, 0, len(formula.RangeRules)),
	}

	for _, t := range formula.Tiers {
		tj := TierJSON{
			Threshold:       t.Threshold.InexactFloat64(),
			BonusPercentage: t.BonusPercentage.InexactFloat64(),
		}
		if t.Match == bonus.MatchExact {
			tj.ExactMatch = true
		} else {
			tj.Comparison = string(t.Match)
		}
		fj.Tiers = append(fj.Tiers, tj)
	}

	for _, r := range formula.RangeRules {
		fj.RangeRules = append(fj.RangeRules, RangeRuleJSON{
			Min:                  r.Min.InexactFloat64(),
			Max:                  r.Max.InexactFloat64(),
			BasePercentage:       r.BasePercentage.InexactFloat64(),
			AdditionalPercentage: r.AdditionalPercentage.InexactFloat64(),
			Scaling:              string(r.Scaling),
		})
	}

	return fj
}

// MarshalFormula returns the stored JSON for a formula.
func (f *FormulaFactory) MarshalFormula(formula bonus.Formula) ([]byte, error) {
	return json.Marshal(f.ToJSON(formula))
}

// =============================================================================
// VALIDATION - Write path only
// =============================================================================

// ValidateFormulaJSON checks a document before it is stored.
func (f *FormulaFactory) ValidateFormulaJSON(raw []byte) error {
	result, err := f.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", bonus.ErrInvalidFormula, err)
	}

	if !result.Valid() {
		violations := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			violations[i] = desc.String()
		}
		return &bonus.SchemaError{Violations: violations}
	}

	formula, err := f.ParseFormula(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", bonus.ErrInvalidFormula, err)
	}
	return ValidateRanges(formula)
}

// ValidateRanges enforces min <= max on every range rule.
func ValidateRanges(formula bonus.Formula) error {
	for i, r := range formula.RangeRules {
		if r.Min.GreaterThan(r.Max) {
			return &bonus.RangeOrderError{Index: i, Min: r.Min, Max: r.Max}
		}
	}
	return nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseMatchKind(tj TierJSON) bonus.MatchKind {
	if tj.ExactMatch {
		return bonus.MatchExact
	}
	switch tj.Comparison {
	case "exact_match":
		return bonus.MatchExact
	case "below":
		return bonus.MatchBelow
	case "above":
		return bonus.MatchAbove
	case "below_or_equal":
		return bonus.MatchBelowOrEqual
	case "above_or_equal":
		return bonus.MatchAboveOrEqual
	default:
		// Kept verbatim so it round-trips; never matches.
		return bonus.MatchKind(tj.Comparison)
	}
}

// YAMLToJSON re-encodes a YAML document as JSON.
func YAMLToJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse formula YAML: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("formula YAML is not representable as JSON: %w", err)
	}
	return out, nil
}
