// =============================================================================
// CTe/NFe Enricher - Columns Command
// =============================================================================
//
// This file defines the 'columns' command group, which manages the XLSX
// column template used to read exports whose headers differ from the
// default ones.
//
// COMMAND USAGE:
//   enricher columns export <template.xlsx>
//
// The exported workbook lists every field with its current header (the
// defaults, overridden by the configuration). Edit column B and point
// dataset.columns_template at the file.
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/xlsxparser"
)

var columnsCmd = &cobra.Command{
	Use:   "columns",
	Short: "Manage the column template",
}

var columnsExportCmd = &cobra.Command{
	Use:   "export <template.xlsx>",
	Short: "Write the current column headers to an XLSX template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runColumnsExport(args[0])
	},
}

func init() {
	columnsCmd.AddCommand(columnsExportCmd)
	rootCmd.AddCommand(columnsCmd)
}

func runColumnsExport(path string) error {
	headers := make(map[types.Field]string)

	if cfg.Dataset.ColumnsTemplate != "" {
		fromTemplate, err := xlsxparser.ParseColumnTemplate(cfg.Dataset.ColumnsTemplate)
		if err != nil {
			return err
		}
		for f, h := range fromTemplate {
			headers[f] = h
		}
	}

	overrides, err := cfg.Dataset.HeaderOverrides()
	if err != nil {
		return err
	}
	for f, h := range overrides {
		headers[f] = h
	}

	if err := xlsxparser.WriteColumnTemplate(path, headers); err != nil {
		return err
	}
	fmt.Printf("Wrote %d columns to %s\n", len(types.AllFields()), path)
	return nil
}
