// =============================================================================
// CTe/NFe Enricher - Main Entry Point
// =============================================================================
//
// This is the main entry point of the enricher CLI. It delegates command
// execution to the cmd package.
//
// USAGE:
//   enricher enrich -d <dataset.csv>     - Cross-link CT-e and NF-e rows
//   enricher summarize -d <dataset.csv>  - Print the largest documents
//   enricher columns export <file.xlsx>  - Export the column template
//   enricher version                     - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : Core logic (keys, relations, summaries, enrichment)
//   - pkg/       : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/cte-nfe-enricher/cmd"
)

func main() {
	cmd.Execute()
}
