package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/warp/kpi-bonus/bonus"
	"github.com/warp/kpi-bonus/factory"
)

type evaluateOptions struct {
	formulaPath string
	actual      string
	budget      string
	lenient     bool
	jsonOutput  bool
}

func newEvaluateCommand() *cobra.Command {
	opts := &evaluateOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a formula against an actual value",
		Long: `Evaluate a formula against an actual value and an available budget.

Tiers are checked first (first match wins), then range rules (first
containing range wins, overriding the tier). The bonus amount is
budget * percentage / 100.

The formula is validated before evaluation unless --lenient is set, in
which case unknown comparisons and scalings are kept and never match.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.formulaPath, "formula", "f", "", "Formula file (JSON or YAML, - for stdin)")
	cmd.Flags().StringVarP(&opts.actual, "actual", "a", "", "Actual KPI value")
	cmd.Flags().StringVarP(&opts.budget, "budget", "b", "100", "Available budget")
	cmd.Flags().BoolVar(&opts.lenient, "lenient", false, "Skip validation")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the result as JSON")
	_ = cmd.MarkFlagRequired("formula")
	_ = cmd.MarkFlagRequired("actual")

	return cmd
}

func runEvaluate(stdin io.Reader, out io.Writer, opts *evaluateOptions) error {
	actual, err := parseDecimalFlag("actual", opts.actual)
	if err != nil {
		return err
	}
	budget, err := parseDecimalFlag("budget", opts.budget)
	if err != nil {
		return err
	}
	if budget.IsNegative() {
		return bonus.ErrNegativeBudget
	}

	doc, err := readFormulaDoc(opts.formulaPath, stdin)
	if err != nil {
		return err
	}

	f := factory.NewFormulaFactory()
	if !opts.lenient {
		if err := f.ValidateFormulaJSON(doc); err != nil {
			return err
		}
	}
	formula, err := f.ParseFormula(doc)
	if err != nil {
		return err
	}

	return printResult(out, bonus.Evaluate(actual, formula, budget), opts.jsonOutput)
}

type resultOutput struct {
	BonusPercentage string `json:"bonus_percentage"`
	BonusAmount     string `json:"bonus_amount"`
	Source          string `json:"source"`
	RuleIndex       int    `json:"rule_index"`
}

func printResult(out io.Writer, res bonus.Result, asJSON bool) error {
	o := resultOutput{
		BonusPercentage: res.BonusPercentage.String(),
		BonusAmount:     res.BonusAmount.StringFixed(2),
		Source:          string(res.Source),
		RuleIndex:       res.RuleIndex,
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(o)
	}

	fmt.Fprintf(out, "bonus_percentage: %s\n", o.BonusPercentage)
	fmt.Fprintf(out, "bonus_amount:     %s\n", o.BonusAmount)
	if res.RuleIndex >= 0 {
		fmt.Fprintf(out, "source:           %s #%d\n", o.Source, o.RuleIndex)
	} else {
		fmt.Fprintf(out, "source:           %s\n", o.Source)
	}
	return nil
}

func parseDecimalFlag(name, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q: %w", name, v, err)
	}
	return d, nil
}
