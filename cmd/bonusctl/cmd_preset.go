package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"github.com/warp/kpi-bonus/bonus"
	"github.com/warp/kpi-bonus/compensation"
	"github.com/warp/kpi-bonus/factory"
	"gopkg.in/yaml.v3"
)

type presetOptions struct {
	formulaType string
	target      string
	stretch     string
	yamlOutput  bool
}

func newPresetCommand() *cobra.Command {
	opts := &presetOptions{}

	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Print a default formula for a formula type",
		Long: `Print the default formula for a formula type, ready to edit and store.

Types: tiered, inverse_tiered, linear, inverse_linear. Stretch defaults
to the target and is ignored by the linear types.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreset(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.formulaType, "type", string(bonus.FormulaTiered), "Formula type")
	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "KPI target")
	cmd.Flags().StringVarP(&opts.stretch, "stretch", "s", "", "Stretch goal")
	cmd.Flags().BoolVar(&opts.yamlOutput, "yaml", false, "Print YAML instead of JSON")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func runPreset(out io.Writer, opts *presetOptions) error {
	target, err := parseDecimalFlag("target", opts.target)
	if err != nil {
		return err
	}
	stretch := target
	if opts.stretch != "" {
		if stretch, err = parseDecimalFlag("stretch", opts.stretch); err != nil {
			return err
		}
	}

	formula := compensation.DefaultFormulaFor(bonus.FormulaType(opts.formulaType), target, stretch)
	doc := factory.NewFormulaFactory().ToJSON(formula)

	if opts.yamlOutput {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(doc)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
