// =============================================================================
// CTe/NFe Enricher - Pipeline Module
// =============================================================================
//
// This module orchestrates one enrichment run over a single dataset, from
// the relationship files to the committed output.
//
// PIPELINE:
//   1. Resolve the column headers (XLSX template, then inline overrides)
//   2. Load the relationship graph and summarize the dataset concurrently
//   3. Rewrite the dataset into a temporary file, enriching related rows
//   4. Finalize the output:
//        - nothing changed   -> the output is removed (unless keep_unchanged)
//        - update_source     -> the enriched file replaces the input
//        - otherwise         -> the temporary file becomes <name>.<suffix>
//   5. Record run metrics. When the header failed validation, a report is
//      written to <name>.validation.log next to the dataset.
//
// CONCURRENCY:
//   Step 2 runs both loads under one errgroup: the first failure cancels
//   the other. A Pipeline holds no per-run state and may run several
//   datasets concurrently.
//
// =============================================================================

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/aggregate"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/config"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/enrich"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/metrics"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/relations"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/summary"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/validation"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/xlsxparser"
	"github.com/ginjaninja78/cte-nfe-enricher/pkg/utils"
)

// ValidationLogSuffix replaces the dataset extension in the name of the
// header report.
const ValidationLogSuffix = "validation.log"

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of enriching a single dataset.
type Result struct {
	// Input is the path of the dataset.
	Input string

	// Output is the path holding the enriched dataset: the input itself with
	// update_source, empty when the output was removed or the run failed.
	Output string

	// ValidationLog is the header report written when the header failed
	// validation.
	ValidationLog string

	// Changed is the number of rewritten rows.
	Changed int

	// Success indicates whether the run completed.
	Success bool

	// Error contains the error if the run failed.
	Error error

	Stats RunStats
}

// RunStats contains the statistics of every phase.
type RunStats struct {
	Relations relations.Stats
	Aggregate aggregate.Stats
	Rewrite   enrich.RewriteStats

	// RelationsTime is the time taken to load the relationship graph.
	RelationsTime time.Duration

	// TotalTime is the time taken by the whole run.
	TotalTime time.Duration
}

// =============================================================================
// PIPELINE STRUCTURE
// =============================================================================

// Pipeline enriches datasets with one configuration.
type Pipeline struct {
	cfg     *config.Config
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
}

// New creates a new Pipeline.
//
// PARAMETERS:
//   - cfg: The validated configuration.
//   - logger: Destination of the run logs (nil = standard logger).
//   - m: Run metrics (nil = no metrics).
func New(cfg *config.Config, logger logrus.FieldLogger, m *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pipeline{cfg: cfg, logger: logger, metrics: m}
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run enriches the dataset at datasetPath.
//
// RETURNS:
//   - A Result describing the run. Result.Error is set, and no output is
//     left behind, when any step fails.
func (p *Pipeline) Run(ctx context.Context, datasetPath string) (result Result) {
	start := time.Now()
	result = Result{Input: datasetPath}
	logger := p.logger.WithFields(logrus.Fields{
		"run_id":  utils.NewRunID(),
		"dataset": datasetPath,
	})

	defer func() {
		result.Stats.TotalTime = time.Since(start)
		p.finish(&result, logger)
	}()

	// =========================================================================
	// STEP 1: RESOLVE COLUMN HEADERS
	// =========================================================================

	headers, err := p.headers(datasetPath)
	if err != nil {
		result.Error = err
		return result
	}

	// =========================================================================
	// STEP 2: LOAD RELATIONS AND SUMMARIZE
	// =========================================================================
	// The two passes read different files and share nothing.

	var (
		graph *relations.Graph
		pair  summary.Pair
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		relStart := time.Now()
		var err error
		graph, err = relations.Load(gctx,
			utils.ResolvePath(p.cfg.Relations.InvoicesFile, datasetPath),
			utils.ResolvePath(p.cfg.Relations.ComplementsFile, datasetPath),
			relations.Options{
				Workers:   p.cfg.Processing.Workers,
				ChunkSize: p.cfg.Processing.ChunkSize,
				Logger:    logger,
			})
		result.Stats.RelationsTime = time.Since(relStart)
		return err
	})
	g.Go(func() error {
		var err error
		pair, result.Stats.Aggregate, err = p.engine(headers, logger).Summarize(gctx, datasetPath)
		return err
	})
	if err := g.Wait(); err != nil {
		result.Error = err
		return result
	}

	result.Stats.Relations = graph.Stats()
	p.recordRelations(result.Stats.Relations, result.Stats.RelationsTime)

	// =========================================================================
	// STEP 3: REWRITE
	// =========================================================================

	output := utils.OutputPath(datasetPath, p.cfg.Output.Suffix)
	tmp := utils.TempOutputPath(output)

	rw := &enrich.Rewriter{
		Settings: p.cfg.Dataset,
		Headers:  headers,
		Merger: enrich.Merger{
			MaxFields:      p.cfg.Enrichment.MaxInfo,
			MaxFieldLength: p.cfg.Enrichment.MaxChar,
		},
		Logger:  logger,
		Metrics: p.metrics,
	}

	stats, err := rw.Rewrite(ctx, datasetPath, tmp, graph, pair)
	if err != nil {
		if rmErr := utils.RemoveFile(tmp); rmErr != nil {
			logger.WithError(rmErr).Warn("failed to remove temporary output")
		}
		result.Error = err
		return result
	}
	result.Stats.Rewrite = stats
	result.Changed = stats.Changed()

	// =========================================================================
	// STEP 4: FINALIZE OUTPUT
	// =========================================================================

	result.Output, err = p.finalize(tmp, output, datasetPath, result.Changed, logger)
	if err != nil {
		result.Error = err
		return result
	}

	result.Success = true
	return result
}

// Summarize runs only the summarizing pass over the dataset at datasetPath.
func (p *Pipeline) Summarize(ctx context.Context, datasetPath string) (summary.Pair, aggregate.Stats, error) {
	headers, err := p.headers(datasetPath)
	if err != nil {
		return summary.Pair{}, aggregate.Stats{}, err
	}
	logger := p.logger.WithField("dataset", datasetPath)
	return p.engine(headers, logger).Summarize(ctx, datasetPath)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// headers merges the column template and the inline overrides. The
// template path is resolved against the dataset directory.
func (p *Pipeline) headers(datasetPath string) (map[types.Field]string, error) {
	headers := make(map[types.Field]string)

	if tmpl := p.cfg.Dataset.ColumnsTemplate; tmpl != "" {
		fromTemplate, err := xlsxparser.ParseColumnTemplate(utils.ResolvePath(tmpl, datasetPath))
		if err != nil {
			return nil, fmt.Errorf("failed to load columns template: %w", err)
		}
		for f, h := range fromTemplate {
			headers[f] = h
		}
	}

	overrides, err := p.cfg.Dataset.HeaderOverrides()
	if err != nil {
		return nil, err
	}
	for f, h := range overrides {
		headers[f] = h
	}
	return headers, nil
}

func (p *Pipeline) engine(headers map[types.Field]string, logger logrus.FieldLogger) *aggregate.Engine {
	return &aggregate.Engine{
		Settings:  p.cfg.Dataset,
		Headers:   headers,
		Workers:   p.cfg.Processing.Workers,
		ChunkSize: p.cfg.Processing.ChunkSize,
		Logger:    logger,
		Metrics:   p.metrics,
	}
}

// finalize moves the temporary output to its final place.
//
// RETURNS:
//   - The path holding the enriched dataset, empty when it was removed.
func (p *Pipeline) finalize(tmp, output, input string, changed int, logger logrus.FieldLogger) (string, error) {
	switch {
	case changed == 0 && !p.cfg.Output.KeepUnchanged:
		logger.Info("no rows were enriched, output removed")
		return "", utils.RemoveFile(tmp)

	case p.cfg.Output.UpdateSource:
		if err := utils.ReplaceFile(tmp, input); err != nil {
			_ = utils.RemoveFile(tmp)
			return "", err
		}
		logger.Infof("updated %s in place", input)
		return input, nil

	default:
		if err := utils.CommitFile(tmp, output); err != nil {
			_ = utils.RemoveFile(tmp)
			return "", err
		}
		logger.Infof("wrote %s", output)
		return output, nil
	}
}

func (p *Pipeline) recordRelations(stats relations.Stats, elapsed time.Duration) {
	p.metrics.SetRelationKeys("manifest_invoices", stats.ManifestInvoices.Keys)
	p.metrics.SetRelationKeys("manifest_complements", stats.ManifestComplements.Keys)
	p.metrics.SetRelationKeys("invoice_manifests", stats.InvoiceManifests.Keys)
	p.metrics.ObservePhase(metrics.PhaseRelations, elapsed)
}

// writeValidationLog writes the header report of a run that failed header
// validation.
func (p *Pipeline) writeValidationLog(result *Result, logger logrus.FieldLogger) {
	var hdrErr *validation.HeaderError
	if !errors.As(result.Error, &hdrErr) {
		return
	}
	path := utils.OutputPath(result.Input, ValidationLogSuffix)
	if err := validation.WriteErrorLog(hdrErr.Result, path); err != nil {
		logger.WithError(err).Warn("failed to write validation log")
		return
	}
	result.ValidationLog = path
	logger.Infof("header problems written to %s", path)
}

// finish records the outcome of a run and flushes the metrics file.
func (p *Pipeline) finish(result *Result, logger logrus.FieldLogger) {
	status := "success"
	if !result.Success {
		status = "failure"
		logger.WithError(result.Error).Error("enrichment failed")
		p.writeValidationLog(result, logger)
	}
	p.metrics.IncRun(status)
	p.metrics.ObservePhase(metrics.PhaseTotal, result.Stats.TotalTime)

	if p.cfg.MetricsFile == "" {
		return
	}
	if err := p.metrics.WriteTextfile(p.cfg.MetricsFile); err != nil {
		logger.WithError(err).Warn("failed to write metrics file")
	}
}
