// =============================================================================
// CTe/NFe Enricher - Aggregation Engine
// =============================================================================
//
// This module runs the first pass over the dataset: it groups the item rows
// of every CT-e and NF-e by document key and keeps, per document, the item
// count, the total value and the metadata of the highest-value item.
//
// ROW RULES (in order):
//   1. Cancelled documents are skipped.
//   2. The item value is parsed. Unparsable values are skipped; values too
//      long for the parse buffer are skipped with a warning.
//   3. Values below the noise floor are skipped.
//   4. Rows whose key is invalid, or neither a CT-e nor an NF-e, are skipped.
//   5. Anything left is added to the summary of its document.
//
// PARALLELISM:
//   Rows are read sequentially (the parser is a single stream), batched into
//   chunks and folded by a bounded pool of workers into local summary pairs.
//   Pairs are merged as workers finish. Counts, totals and maxima do not
//   depend on how rows were chunked.
//
// =============================================================================

package aggregate

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/config"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/csvparser"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/fiscalkey"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/metrics"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/normalize"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/summary"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/validation"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/workpool"
)

// DefaultChunkSize is the number of rows folded by one worker task.
const DefaultChunkSize = 4096

// Engine summarizes datasets.
type Engine struct {
	// Settings describes the dataset format.
	Settings config.DatasetSettings

	// Headers overrides the default column headers.
	Headers map[types.Field]string

	// Workers bounds the folding goroutines (0 = NumCPU).
	Workers int

	// ChunkSize is the number of rows per worker task (0 = DefaultChunkSize).
	ChunkSize int

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// partial is what one worker hands to the reducer.
type partial struct {
	pair  summary.Pair
	stats Stats
}

func (e *Engine) logger() logrus.FieldLogger {
	if e.Logger == nil {
		return logrus.StandardLogger()
	}
	return e.Logger
}

// Summarize reads the dataset at path and summarizes every document in it.
//
// RETURNS:
//   - The CT-e and NF-e summaries.
//   - Row statistics of the pass.
//   - A *types.SourceError for structural problems (bad header, wrong column
//     count, malformed quotes), which abort the whole pass, or the context
//     error when ctx is cancelled.
func (e *Engine) Summarize(ctx context.Context, path string) (summary.Pair, Stats, error) {
	start := time.Now()
	logger := e.logger().WithField("path", path)

	parser, err := csvparser.NewStreamingParser(path, e.Settings)
	if err != nil {
		return summary.Pair{}, Stats{}, err
	}
	defer parser.Close()

	schema, err := validation.ResolveSchema(path, parser.Headers(), e.Headers, logger)
	if err != nil {
		return summary.Pair{}, Stats{}, err
	}
	parser.Discard()

	chunkSize := e.ChunkSize
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}

	pair := summary.NewPair()
	var stats Stats

	produce := func(emit func([]*types.Record) error) error {
		chunk := make([]*types.Record, 0, chunkSize)
		for parser.Next() {
			chunk = append(chunk, parser.Record(schema))
			if len(chunk) < chunkSize {
				continue
			}
			if err := emit(chunk); err != nil {
				return err
			}
			chunk = make([]*types.Record, 0, chunkSize)
		}
		if err := parser.Err(); err != nil {
			return err
		}
		if len(chunk) > 0 {
			return emit(chunk)
		}
		return nil
	}

	fold := func(records []*types.Record) (partial, error) {
		p, s := e.Fold(records)
		return partial{pair: p, stats: s}, nil
	}

	reduce := func(p partial) {
		pair.Merge(p.pair)
		stats.Merge(p.stats)
	}

	if err := workpool.FoldReduce(ctx, e.Workers, logger, produce, fold, reduce); err != nil {
		return summary.Pair{}, Stats{}, err
	}
	stats.Elapsed = time.Since(start)

	e.record(pair, stats)
	logger.WithFields(logrus.Fields{
		"rows":      stats.Rows,
		"manifests": len(pair.Manifests),
		"invoices":  len(pair.Invoices),
		"skipped":   stats.TotalSkipped(),
		"elapsed":   stats.Elapsed,
	}).Infof("summarized %s rows: %s CTes, %s NFes",
		normalize.FormatCount(stats.Rows),
		normalize.FormatCount(len(pair.Manifests)),
		normalize.FormatCount(len(pair.Invoices)))

	return pair, stats, nil
}

func (e *Engine) record(pair summary.Pair, stats Stats) {
	e.Metrics.AddRowsRead("summarize", stats.Rows)
	for _, reason := range SkipReasons() {
		e.Metrics.AddRowsSkipped(reason.String(), stats.Skipped[reason])
	}
	e.Metrics.SetSummaries(fiscalkey.Manifest.String(), len(pair.Manifests))
	e.Metrics.SetSummaries(fiscalkey.Invoice.String(), len(pair.Invoices))
	e.Metrics.ObservePhase(metrics.PhaseSummarize, stats.Elapsed)
}

// Fold summarizes a batch of rows into a fresh Pair.
func (e *Engine) Fold(records []*types.Record) (summary.Pair, Stats) {
	pair := summary.NewPair()
	var stats Stats

	for _, r := range records {
		stats.Rows++
		if reason, skipped := e.add(pair, r); skipped {
			stats.Skipped[reason]++
			continue
		}
		stats.Summarized++
	}
	return pair, stats
}

// add applies the row rules to one record. It returns the reason and true
// when the row was skipped.
func (e *Engine) add(pair summary.Pair, r *types.Record) (SkipReason, bool) {
	if r.Cancelled() {
		return SkipCancelled, true
	}

	raw := r.Get(types.FieldItemValue)
	value, err := normalize.ParseItemValue(raw)
	switch {
	case errors.Is(err, normalize.ErrValueTooLong):
		e.logger().WithFields(logrus.Fields{
			"line":  r.Line(),
			"key":   r.Get(types.FieldKey),
			"value": raw,
		}).Warn("item value too long, row skipped")
		return SkipValueTooLong, true
	case err != nil:
		return SkipNoValue, true
	}

	if !normalize.Significant(value) {
		return SkipNoise, true
	}

	key, err := r.Key()
	if err != nil {
		e.logger().WithFields(logrus.Fields{
			"line": r.Line(),
			"key":  r.Get(types.FieldKey),
		}).Debug("invalid document key, row skipped")
		return SkipInvalidKey, true
	}

	value = math.Abs(value)
	switch key.Kind() {
	case fiscalkey.Manifest:
		pair.Add(key, value, func() summary.Metadata { return summary.CaptureManifest(r) })
	case fiscalkey.Invoice:
		pair.Add(key, value, func() summary.Metadata { return summary.CaptureInvoice(r) })
	default:
		e.logger().WithFields(logrus.Fields{
			"line": r.Line(),
			"key":  key.String(),
		}).Debug("untracked document model, row skipped")
		return SkipUntracked, true
	}
	return 0, false
}
