package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kpi-bonus/bonus"
	"github.com/warp/kpi-bonus/compensation"
)

const tieredYAML = `type: tiered
tiers:
  - {threshold: 90, bonus_percentage: 0, comparison: below}
  - {threshold: 90, bonus_percentage: 50, exact_match: true}
  - {threshold: 100, bonus_percentage: 100, comparison: above_or_equal}
range_rules:
  - {min: 90, max: 100, base_percentage: 50, additional_percentage: 50, scaling: proportional}
`

// run executes the root command and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// ---------------------------------------------------------------------------
// evaluate
// ---------------------------------------------------------------------------

func TestEvaluate_Formats(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"json", "f.json", compensation.LegacyDefaultFormulaJSON(90, 100)},
		{"yaml", "f.yaml", tieredYAML},
		{"yaml sniffed", "formula", tieredYAML},
		{"json sniffed", "formula", compensation.LegacyDefaultFormulaJSON(90, 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.body)

			out, err := run(t, "", "evaluate", "--formula", path, "--actual", "95", "--budget", "1000", "--json")
			require.NoError(t, err)

			var res resultOutput
			require.NoError(t, json.Unmarshal([]byte(out), &res))
			assert.Equal(t, "75", res.BonusPercentage)
			assert.Equal(t, "750.00", res.BonusAmount)
			assert.Equal(t, "range", res.Source)
			assert.Equal(t, 0, res.RuleIndex)
		})
	}
}

func TestEvaluate_Stdin(t *testing.T) {
	out, err := run(t, tieredYAML, "evaluate", "-f", "-", "-a", "90")
	require.NoError(t, err)
	assert.Contains(t, out, "bonus_percentage: 50")
	assert.Contains(t, out, "range #0")
}

func TestEvaluate_NoMatch(t *testing.T) {
	path := writeFile(t, "f.json", `{"type":"tiered","tiers":[{"threshold":10,"bonus_percentage":100,"comparison":"above"}]}`)

	out, err := run(t, "", "evaluate", "-f", path, "-a", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "bonus_amount:     0.00")
	assert.Contains(t, out, "source:           none\n")
}

func TestEvaluate_LenientKeepsUnknownKinds(t *testing.T) {
	path := writeFile(t, "f.json", `{"type":"tiered","tiers":[{"threshold":10,"bonus_percentage":100,"comparison":"between"}]}`)

	_, err := run(t, "", "evaluate", "-f", path, "-a", "50")
	require.Error(t, err)
	assert.ErrorIs(t, err, bonus.ErrInvalidFormula)

	out, err := run(t, "", "evaluate", "-f", path, "-a", "50", "--lenient")
	require.NoError(t, err)
	assert.Contains(t, out, "none")
}

func TestEvaluate_BadInput(t *testing.T) {
	path := writeFile(t, "f.json", compensation.LinearFormulaJSON(100))

	_, err := run(t, "", "evaluate", "-f", path, "-a", "ten")
	assert.ErrorContains(t, err, "--actual")

	_, err = run(t, "", "evaluate", "-f", path, "-a", "1", "--budget=-5")
	assert.ErrorIs(t, err, bonus.ErrNegativeBudget)

	_, err = run(t, "", "evaluate", "-f", filepath.Join(t.TempDir(), "missing.json"), "-a", "1")
	assert.ErrorContains(t, err, "reading formula")

	_, err = run(t, "", "evaluate", "-a", "1")
	assert.Error(t, err, "formula flag is required")
}

// ---------------------------------------------------------------------------
// validate
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	good := writeFile(t, "good.yaml", tieredYAML)
	out, err := run(t, "", "validate", "-f", good)
	require.NoError(t, err)
	assert.Contains(t, out, "formula is valid")

	inverted := writeFile(t, "bad.json", `{"type":"linear","range_rules":[{"min":10,"max":0,"base_percentage":0,"additional_percentage":100,"scaling":"linear"}]}`)
	_, err = run(t, "", "validate", "-f", inverted)
	var rangeErr *bonus.RangeOrderError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, 0, rangeErr.Index)

	schema := writeFile(t, "schema.json", `{"tiers":[{"threshold":"high"}]}`)
	out, err = run(t, "", "validate", "-f", schema)
	require.Error(t, err)
	assert.Contains(t, out, "  - ")
}

// ---------------------------------------------------------------------------
// fallback & preset
// ---------------------------------------------------------------------------

func TestFallback(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"ratio", []string{"-t", "100", "-a", "80"}, "80"},
		{"capped", []string{"-t", "100", "-a", "130"}, "100"},
		{"inverse", []string{"-t", "4", "-a", "5", "--inverse"}, "80"},
		{"inverse zero actual", []string{"-t", "4", "-a", "0", "--inverse"}, "100"},
		{"zero target", []string{"-t", "0", "-a", "5"}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, "", append([]string{"fallback", "--json"}, tt.args...)...)
			require.NoError(t, err)

			var res resultOutput
			require.NoError(t, json.Unmarshal([]byte(out), &res))
			assert.Equal(t, tt.want, res.BonusPercentage)
			assert.Equal(t, "fallback", res.Source)
		})
	}
}

func TestPreset_RoundTripsThroughEvaluate(t *testing.T) {
	// GIVEN a generated YAML preset
	out, err := run(t, "", "preset", "--type", "inverse_tiered", "-t", "5", "-s", "2", "--yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "range_rules:")
	assert.Contains(t, out, "proportional_inverse")

	// WHEN it is evaluated halfway between stretch and target
	path := writeFile(t, "preset.yaml", out)
	res, err := run(t, "", "evaluate", "-f", path, "-a", "3.5", "--json")
	require.NoError(t, err)

	// THEN 50 + 50 * (1 - 0.5)
	var r resultOutput
	require.NoError(t, json.Unmarshal([]byte(res), &r))
	assert.Equal(t, "75", r.BonusPercentage)
}

func TestPreset_JSONIsValid(t *testing.T) {
	out, err := run(t, "", "preset", "--type", "linear", "-t", "60")
	require.NoError(t, err)

	path := writeFile(t, "preset.json", out)
	_, err = run(t, "", "validate", "-f", path)
	assert.NoError(t, err)
}
