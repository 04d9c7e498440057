package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/warp/kpi-bonus/bonus"
	"github.com/warp/kpi-bonus/factory"
)

func newValidateCommand() *cobra.Command {
	var formulaPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a formula file",
		Long: `Validate a formula file the way the admin API does before storing it:
JSON schema, then min <= max on every range rule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.InOrStdin(), cmd.OutOrStdout(), formulaPath)
		},
	}

	cmd.Flags().StringVarP(&formulaPath, "formula", "f", "", "Formula file (JSON or YAML, - for stdin)")
	_ = cmd.MarkFlagRequired("formula")

	return cmd
}

func runValidate(stdin io.Reader, out io.Writer, path string) error {
	doc, err := readFormulaDoc(path, stdin)
	if err != nil {
		return err
	}

	err = factory.NewFormulaFactory().ValidateFormulaJSON(doc)

	var schemaErr *bonus.SchemaError
	if errors.As(err, &schemaErr) {
		for _, v := range schemaErr.Violations {
			fmt.Fprintf(out, "  - %s\n", v)
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "formula is valid")
	return nil
}
