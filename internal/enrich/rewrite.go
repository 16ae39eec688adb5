package enrich

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/config"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/csvparser"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/fiscalkey"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/metrics"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/normalize"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/relations"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/summary"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/validation"
)

// cancelCheckInterval is the number of rows between context checks.
const cancelCheckInterval = 1024

// RewriteStats counts what the rewrite pass did.
type RewriteStats struct {
	// Rows is the number of data rows written.
	Rows int

	// EnrichedInvoices and EnrichedManifests count the rewritten rows.
	EnrichedInvoices  int
	EnrichedManifests int

	Elapsed time.Duration
}

// Changed returns the number of rewritten rows.
func (s RewriteStats) Changed() int {
	return s.EnrichedInvoices + s.EnrichedManifests
}

// Rewriter runs the second pass: it copies the dataset row by row, in
// order, enriching the rows of related documents.
type Rewriter struct {
	Settings config.DatasetSettings
	Headers  map[types.Field]string
	Merger   Merger
	Logger   logrus.FieldLogger
	Metrics  *metrics.Metrics
}

// Rewrite copies inputPath to outputPath. Rows the merger does not change
// are copied byte for byte; changed rows are re-encoded in the dialect of
// the input.
//
// RETURNS:
//   - Row statistics.
//   - A *types.SourceError for structural problems in the input, an I/O
//     error, or the context error when ctx is cancelled. outputPath is left
//     incomplete on error.
func (rw *Rewriter) Rewrite(ctx context.Context, inputPath, outputPath string, graph *relations.Graph, pair summary.Pair) (RewriteStats, error) {
	start := time.Now()
	logger := rw.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("path", inputPath)

	parser, err := csvparser.NewStreamingParser(inputPath, rw.Settings)
	if err != nil {
		return RewriteStats{}, err
	}
	defer parser.Close()

	schema, err := validation.ResolveSchema(inputPath, parser.Headers(), rw.Headers, logger)
	if err != nil {
		return RewriteStats{}, err
	}

	out, err := csvparser.NewWriter(outputPath, rw.Settings, parser.Dialect())
	if err != nil {
		return RewriteStats{}, err
	}

	stats, err := rw.copyRows(ctx, parser, out, schema, graph, pair)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return RewriteStats{}, err
	}
	stats.Elapsed = time.Since(start)

	rw.Metrics.AddRowsRead("rewrite", stats.Rows)
	rw.Metrics.AddRowsEnriched(fiscalkey.Invoice.String(), stats.EnrichedInvoices)
	rw.Metrics.AddRowsEnriched(fiscalkey.Manifest.String(), stats.EnrichedManifests)
	rw.Metrics.ObservePhase(metrics.PhaseRewrite, stats.Elapsed)

	logger.WithFields(logrus.Fields{
		"output":    outputPath,
		"rows":      stats.Rows,
		"invoices":  stats.EnrichedInvoices,
		"manifests": stats.EnrichedManifests,
		"elapsed":   stats.Elapsed,
	}).Infof("enriched %s NFe rows and %s CTe rows of %s",
		normalize.FormatCount(stats.EnrichedInvoices),
		normalize.FormatCount(stats.EnrichedManifests),
		normalize.FormatCount(stats.Rows))

	return stats, nil
}

func (rw *Rewriter) copyRows(ctx context.Context, parser *csvparser.StreamingParser, out *csvparser.Writer, schema *types.Schema, graph *relations.Graph, pair summary.Pair) (RewriteStats, error) {
	var stats RewriteStats

	if err := parser.PassThrough(out); err != nil {
		return stats, err
	}

	for parser.Next() {
		if stats.Rows%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
		stats.Rows++

		row := parser.Record(schema)
		if !rw.Merger.EnrichRow(row, graph, pair) || !row.Dirty() {
			if err := parser.PassThrough(out); err != nil {
				return stats, err
			}
			continue
		}

		if err := parser.Replace(out, row.Fields()); err != nil {
			return stats, err
		}
		if key, _ := row.Key(); key.IsInvoice() {
			stats.EnrichedInvoices++
		} else {
			stats.EnrichedManifests++
		}
	}
	if err := parser.Err(); err != nil {
		return stats, err
	}

	// Bytes after the last row, such as trailing blank lines.
	if err := parser.PassThrough(out); err != nil {
		return stats, err
	}
	return stats, nil
}
