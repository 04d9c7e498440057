package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/warp/kpi-bonus/factory"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bonusctl",
		Short: "Evaluate and validate KPI bonus formulas",
		Long: `bonusctl runs the bonus formula engine from the command line.

Formulas are read from JSON or YAML files using the stored field names
(type, tiers, range_rules). Use "-" to read from stdin.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newEvaluateCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newFallbackCommand())
	cmd.AddCommand(newPresetCommand())

	return cmd
}

// readFormulaDoc returns the formula file as JSON. YAML is detected by
// extension, or by content when the extension says nothing.
func readFormulaDoc(path string, stdin io.Reader) ([]byte, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading formula: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return raw, nil
	case ".yaml", ".yml":
		return factory.YAMLToJSON(raw)
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		return raw, nil
	}
	return factory.YAMLToJSON(raw)
}
