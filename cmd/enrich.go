// =============================================================================
// CTe/NFe Enricher - Enrich Command
// =============================================================================
//
// This file defines the 'enrich' command, the main command of the CLI. It
// runs the whole pipeline over one dataset.
//
// COMMAND USAGE:
//   enricher enrich -d <dataset.csv> [flags]
//
// FLAGS (override the configuration file):
//   --max-char          : Rune length an enriched field must stay below
//   --max-info          : Related documents whose metadata is injected
//   --update-source     : Replace the dataset with the enriched one
//   --invoices-file     : CT-e -> NF-es relation file
//   --complements-file  : CT-e <-> CT-e relation file
//   --workers           : Parsing goroutines
//   --metrics-file      : Prometheus textfile written after the run
//   --show-config       : Print the effective configuration first
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/metrics"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/normalize"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/pipeline"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	datasetPath     string
	maxChar         int
	maxInfo         int
	updateSource    bool
	invoicesFile    string
	complementsFile string
	workers         int
	metricsFile     string
	showConfig      bool
)

// =============================================================================
// ENRICH COMMAND DEFINITION
// =============================================================================

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Cross-link the CT-e and NF-e rows of a dataset",
	Long: `The enrich command summarizes every CT-e and NF-e of the dataset, loads
the relation files, and writes a copy of the dataset where each related row
carries a cross-reference and the metadata of its most valuable counterparts.

Rows that are not enriched are copied byte for byte. When no row changes, no
output is kept.

Output:
  <dataset>.modificado.csv next to the dataset, or the dataset itself with
  --update-source.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnrich(cmd)
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "Fiscal dataset (e.g. \"Info da Receita sobre o Contribuinte.csv\")")
	enrichCmd.MarkFlagRequired("dataset")

	enrichCmd.Flags().IntVar(&maxChar, "max-char", 3000, "Maximum characters per enriched field")
	enrichCmd.Flags().IntVar(&maxInfo, "max-info", 10, "Maximum related documents injected per row")
	enrichCmd.Flags().BoolVarP(&updateSource, "update-source", "u", false, "Replace the dataset with the enriched one")
	enrichCmd.Flags().StringVar(&invoicesFile, "invoices-file", "", "CT-e -> NF-es relation file")
	enrichCmd.Flags().StringVar(&complementsFile, "complements-file", "", "CT-e <-> CT-e relation file")
	enrichCmd.Flags().IntVar(&workers, "workers", 0, "Parsing goroutines (default: number of CPUs)")
	enrichCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics to this Prometheus textfile")
	enrichCmd.Flags().BoolVarP(&showConfig, "show-config", "e", false, "Print the effective configuration")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runEnrich(cmd *cobra.Command) error {
	applyEnrichFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if showConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", out)
	}

	m, err := metrics.New()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result := pipeline.New(cfg, log, m).Run(ctx, datasetPath)
	if result.Error != nil {
		if result.ValidationLog != "" {
			fmt.Fprintf(os.Stderr, "Header report: %s\n", result.ValidationLog)
		}
		return result.Error
	}

	stats := result.Stats
	fmt.Println("=== Enrichment Complete ===")
	fmt.Printf("Rows:            %s\n", normalize.FormatCount(stats.Rewrite.Rows))
	fmt.Printf("CTes with NFes:  %s\n", normalize.FormatCount(stats.Relations.ManifestInvoices.Keys))
	fmt.Printf("NFe rows:        %s\n", normalize.FormatCount(stats.Rewrite.EnrichedInvoices))
	fmt.Printf("CTe rows:        %s\n", normalize.FormatCount(stats.Rewrite.EnrichedManifests))
	if result.Output == "" {
		fmt.Println("Output:          none (no rows were enriched)")
	} else {
		fmt.Printf("Output:          %s\n", result.Output)
	}
	fmt.Printf("Time elapsed:    %s\n", stats.TotalTime)
	return nil
}

// applyEnrichFlags overrides the configuration with the flags given on the
// command line.
func applyEnrichFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("max-char") {
		cfg.Enrichment.MaxChar = maxChar
	}
	if flags.Changed("max-info") {
		cfg.Enrichment.MaxInfo = maxInfo
	}
	if flags.Changed("update-source") {
		cfg.Output.UpdateSource = updateSource
	}
	if flags.Changed("invoices-file") {
		cfg.Relations.InvoicesFile = invoicesFile
	}
	if flags.Changed("complements-file") {
		cfg.Relations.ComplementsFile = complementsFile
	}
	if flags.Changed("workers") && workers > 0 {
		cfg.Processing.Workers = workers
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}
}
