package relations

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/fiscalkey"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/normalize"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/workpool"
)

// DefaultChunkSize is the number of lines folded by one worker task.
const DefaultChunkSize = 4096

// DefaultMaxLineBytes bounds a single relation line. Longer lines are fatal.
const DefaultMaxLineBytes = 16 * 1024 * 1024

// Options configures relation loading.
type Options struct {
	// Workers bounds the parsing goroutines per file (0 = NumCPU).
	Workers int

	// ChunkSize is the number of lines per worker task (0 = DefaultChunkSize).
	ChunkSize int

	// MaxLineBytes bounds a single line (0 = DefaultMaxLineBytes).
	MaxLineBytes int

	Logger logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.ChunkSize < 1 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MaxLineBytes < 1 {
		o.MaxLineBytes = DefaultMaxLineBytes
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// lineParser folds one relation line into acc.
type lineParser func(line string, acc KeyMap)

// Load reads both relation files concurrently and builds the graph.
//
// PARAMETERS:
//   - invoicesPath: Lines of a CT-e key followed by the NF-e keys it carries.
//   - complementsPath: Lines pairing a CT-e key with a complementary CT-e key.
//
// RETURNS:
//   - The closed, propagated and indexed Graph.
//   - The first error of either load (*types.SourceError for unreadable files
//     and oversized lines).
func Load(ctx context.Context, invoicesPath, complementsPath string, opts Options) (*Graph, error) {
	opts = opts.withDefaults()

	var invoices, complements KeyMap

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		invoices, err = LoadManifestInvoices(gctx, invoicesPath, opts)
		return err
	})
	g.Go(func() error {
		var err error
		complements, err = LoadManifestComplements(gctx, complementsPath, opts)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	start := time.Now()
	graph := NewGraph(invoices, complements)
	stats := graph.Stats()

	opts.Logger.WithFields(logrus.Fields{
		"invoices":  stats.InvoiceManifests.Keys,
		"manifests": stats.ManifestInvoices.Keys,
		"groups":    stats.ManifestComplements.Keys,
		"elapsed":   time.Since(start),
	}).Infof("relations loaded: NFe -> CTes %s, CTe -> NFes %s",
		normalize.FormatCount(stats.InvoiceManifests.Keys),
		normalize.FormatCount(stats.ManifestInvoices.Keys))

	return graph, nil
}

// LoadManifestInvoices reads the CT-e -> NF-es relation.
//
// RULES (per line):
//   - The first key of the line must be a CT-e, otherwise the line is skipped.
//   - Every following NF-e key is carried by that CT-e; other keys are ignored.
//   - Lines without any NF-e key are skipped.
//   - A CT-e listed on several lines carries the union of their NF-es.
func LoadManifestInvoices(ctx context.Context, path string, opts Options) (KeyMap, error) {
	return loadKeyMap(ctx, path, "CTe -> NFes", parseManifestInvoices, opts)
}

// LoadManifestComplements reads the CT-e <-> CT-e complement relation.
//
// RULES (per line):
//   - Only the first two keys count; both must be distinct CT-es.
//   - Each pair is stored in both directions.
func LoadManifestComplements(ctx context.Context, path string, opts Options) (KeyMap, error) {
	return loadKeyMap(ctx, path, "CTe <-> CTe complementar", parseManifestComplements, opts)
}

func parseManifestInvoices(line string, acc KeyMap) {
	keys := fiscalkey.FindAll(line)
	if len(keys) < 2 || !keys[0].IsManifest() {
		return
	}

	manifest := keys[0]
	var invoices KeySet
	for _, k := range keys[1:] {
		if !k.IsInvoice() {
			continue
		}
		if invoices == nil {
			invoices = make(KeySet, len(keys)-1)
		}
		invoices.Add(k)
	}
	if invoices != nil {
		acc.Extend(manifest, invoices)
	}
}

func parseManifestComplements(line string, acc KeyMap) {
	keys := fiscalkey.FindAll(line)
	if len(keys) < 2 {
		return
	}

	a, b := keys[0], keys[1]
	if !a.IsManifest() || !b.IsManifest() || a == b {
		return
	}
	acc.Link(a, b)
	acc.Link(b, a)
}

// loadKeyMap streams path in chunks of lines through a worker pool. Each
// worker folds its chunk into a local KeyMap; local maps are unioned.
func loadKeyMap(ctx context.Context, path, label string, parse lineParser, opts Options) (KeyMap, error) {
	opts = opts.withDefaults()

	file, err := os.Open(path)
	if err != nil {
		return nil, &types.SourceError{
			Path: path,
			Err:  fmt.Errorf("failed to open relation file: %w", err),
		}
	}
	defer file.Close()

	merged := make(KeyMap)
	lineNumber := 0

	produce := func(emit func([]string) error) error {
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, min(64*1024, opts.MaxLineBytes)), opts.MaxLineBytes)

		chunk := make([]string, 0, opts.ChunkSize)
		for scanner.Scan() {
			lineNumber++
			chunk = append(chunk, scanner.Text())
			if len(chunk) < opts.ChunkSize {
				continue
			}
			if err := emit(chunk); err != nil {
				return err
			}
			chunk = make([]string, 0, opts.ChunkSize)
		}

		if err := scanner.Err(); err != nil {
			return &types.SourceError{
				Path: path,
				Line: lineNumber + 1,
				Err:  fmt.Errorf("failed to read relation file: %w", err),
			}
		}
		if len(chunk) > 0 {
			return emit(chunk)
		}
		return nil
	}

	fold := func(lines []string) (KeyMap, error) {
		acc := make(KeyMap)
		for _, line := range lines {
			parse(line, acc)
		}
		return acc, nil
	}

	err = workpool.FoldReduce(ctx, opts.Workers, opts.Logger, produce, fold, merged.Union)
	if err != nil {
		return nil, err
	}

	opts.Logger.WithFields(logrus.Fields{
		"path":      path,
		"lines":     lineNumber,
		"keys":      len(merged),
		"relations": merged.Relations(),
	}).Infof("found %s keys (%s relations %s) in file <%s>",
		normalize.FormatCount(len(merged)),
		normalize.FormatCount(merged.Relations()),
		label, path)

	return merged, nil
}
