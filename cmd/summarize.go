// =============================================================================
// CTe/NFe Enricher - Summarize Command
// =============================================================================
//
// This file defines the 'summarize' command. It runs only the summarizing
// pass and prints the most valuable documents of each kind, which helps to
// check a dataset before enriching it.
//
// COMMAND USAGE:
//   enricher summarize -d <dataset.csv> [--top N]
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/fiscalkey"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/normalize"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/pipeline"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/summary"
)

// top is the number of documents printed per kind.
var top int

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Print the most valuable CT-es and NF-es of a dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSummarize()
	},
}

func init() {
	rootCmd.AddCommand(summarizeCmd)

	summarizeCmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "Fiscal dataset")
	summarizeCmd.MarkFlagRequired("dataset")
	summarizeCmd.Flags().IntVarP(&top, "top", "n", 10, "Documents printed per kind (0 = all)")
}

func runSummarize() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pair, stats, err := pipeline.New(cfg, log, nil).Summarize(ctx, datasetPath)
	if err != nil {
		return err
	}

	fmt.Printf("Rows: %s, summarized: %s, skipped: %s\n\n",
		normalize.FormatCount(stats.Rows),
		normalize.FormatCount(stats.Summarized),
		normalize.FormatCount(stats.TotalSkipped()))

	printRanked(fiscalkey.Manifest, summary.RankAll(pair.Manifests))
	fmt.Println()
	printRanked(fiscalkey.Invoice, summary.RankAll(pair.Invoices))
	return nil
}

// printRanked prints the first top entries of ranked as a table.
func printRanked(kind fiscalkey.Kind, ranked []summary.Ranked) {
	fmt.Printf("=== %s: %s documents ===\n", kind, normalize.FormatCount(len(ranked)))
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "#\tKey\tItems\tMax value\tTotal value\t")
	for i, r := range ranked {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t\n",
			i+1, r.Key, r.Summary.ItemCount,
			normalize.FormatAmount(r.Summary.MaxValue),
			normalize.FormatAmount(r.Summary.TotalValue))
	}
	w.Flush()
}
