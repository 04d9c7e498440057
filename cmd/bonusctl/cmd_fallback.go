package main

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/warp/kpi-bonus/bonus"
)

type fallbackOptions struct {
	target     string
	actual     string
	budget     string
	inverse    bool
	jsonOutput bool
}

func newFallbackCommand() *cobra.Command {
	opts := &fallbackOptions{}

	cmd := &cobra.Command{
		Use:   "fallback",
		Short: "Compute the ratio bonus used when a KPI has no formula",
		Long: `Compute the fallback bonus: actual/target capped at 100%, or
target/actual for lower-is-better KPIs (--inverse).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFallback(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "KPI target")
	cmd.Flags().StringVarP(&opts.actual, "actual", "a", "", "Actual KPI value")
	cmd.Flags().StringVarP(&opts.budget, "budget", "b", "100", "Available budget")
	cmd.Flags().BoolVar(&opts.inverse, "inverse", false, "Lower actual is better")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the result as JSON")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("actual")

	return cmd
}

func runFallback(out io.Writer, opts *fallbackOptions) error {
	target, err := parseDecimalFlag("target", opts.target)
	if err != nil {
		return err
	}
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

	res := bonus.Fallback(bonus.KPIPerformance{Target: target, Actual: actual, IsInverse: opts.inverse}, budget)
	return printResult(out, res, opts.jsonOutput)
}
