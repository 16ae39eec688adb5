package aggregate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/config"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/fiscalkey"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/summary"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
)

func key(prefix string) fiscalkey.Key {
	return fiscalkey.MustParse(prefix + strings.Repeat("0", fiscalkey.Length-len(prefix)))
}

var (
	manifest = key("1111111111111111111157")
	invoice  = key("3333333333333333333355")
	other    = key("4444444444444444444465")
)

// row builds the fields of a row of the default schema.
func row(values map[types.Field]string) []string {
	fields := make([]string, types.DefaultSchema().Width())
	for f, v := range values {
		fields[f] = v
	}
	return fields
}

func quoteLine(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ";") + "\r\n"
}

// writeDataset writes a quote-all, CRLF dataset with the default header.
func writeDataset(t *testing.T, rows ...[]string) string {
	t.Helper()

	var b strings.Builder
	b.WriteString(quoteLine(types.DefaultSchema().Header))
	for _, r := range rows {
		b.WriteString(quoteLine(r))
	}

	path := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func newEngine(logger logrus.FieldLogger) *Engine {
	return &Engine{Settings: config.Default().Dataset, Logger: logger}
}

func record(values map[types.Field]string) *types.Record {
	return types.NewRecord(types.DefaultSchema(), row(values), 2)
}

func TestFold_RowRules(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	e := newEngine(logger)

	records := []*types.Record{
		record(map[types.Field]string{types.FieldKey: manifest.String(), types.FieldCancelled: "Sim", types.FieldItemValue: "10"}),
		record(map[types.Field]string{types.FieldKey: manifest.String(), types.FieldItemValue: ""}),
		record(map[types.Field]string{types.FieldKey: manifest.String(), types.FieldItemValue: strings.Repeat("1", 65)}),
		record(map[types.Field]string{types.FieldKey: manifest.String(), types.FieldItemValue: "0,00001"}),
		record(map[types.Field]string{types.FieldKey: "123", types.FieldItemValue: "10"}),
		record(map[types.Field]string{types.FieldKey: other.String(), types.FieldItemValue: "10"}),
		record(map[types.Field]string{
			types.FieldKey:          manifest.String(),
			types.FieldCancelled:    "Não",
			types.FieldItemValue:    "1.234,56",
			types.FieldGeneralNotes: "small",
		}),
		record(map[types.Field]string{
			types.FieldKey:          manifest.String(),
			types.FieldItemValue:    "-2.000,00",
			types.FieldGeneralNotes: "frete   pago",
			types.FieldOriginState:  "SP",
		}),
		record(map[types.Field]string{
			types.FieldKey:              invoice.String(),
			types.FieldItemValue:        "R$ 500",
			types.FieldNCM:              "84719012",
			types.FieldGoodsDescription: "PECA  DE   REPOSICAO",
		}),
	}

	pair, stats := e.Fold(records)

	assert.Equal(t, len(records), stats.Rows)
	assert.Equal(t, 3, stats.Summarized)
	assert.Equal(t, 1, stats.Skipped[SkipCancelled])
	assert.Equal(t, 1, stats.Skipped[SkipNoValue])
	assert.Equal(t, 1, stats.Skipped[SkipValueTooLong])
	assert.Equal(t, 1, stats.Skipped[SkipNoise])
	assert.Equal(t, 1, stats.Skipped[SkipInvalidKey])
	assert.Equal(t, 1, stats.Skipped[SkipUntracked])
	assert.Equal(t, 6, stats.TotalSkipped())

	require.Contains(t, pair.Manifests, manifest)
	s := pair.Manifests[manifest]
	assert.Equal(t, 2, s.ItemCount)
	assert.InDelta(t, 3234.56, s.TotalValue, 1e-9)
	assert.InDelta(t, 2000, s.MaxValue, 1e-9)
	meta, ok := s.Metadata.(*summary.ManifestMetadata)
	require.True(t, ok)
	assert.Equal(t, "frete pago", meta.GeneralNotes)
	assert.Equal(t, "SP", meta.OriginState)

	require.Contains(t, pair.Invoices, invoice)
	inv, ok := pair.Invoices[invoice].Metadata.(*summary.InvoiceMetadata)
	require.True(t, ok)
	assert.Equal(t, "84719012", inv.NCM)
	assert.Equal(t, "PECA DE REPOSICAO", inv.GoodsDescription)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
			assert.Equal(t, manifest.String(), entry.Data["key"])
		}
	}
	assert.True(t, warned, "oversized values are reported")
}

func TestSummarize_PartitionIndependent(t *testing.T) {
	var rows [][]string
	keys := []fiscalkey.Key{
		key("1111111111111111111157"),
		key("2222222222222222222257"),
		key("3333333333333333333355"),
		key("5555555555555555555555"),
	}
	for i := 0; i < 97; i++ {
		k := keys[i%len(keys)]
		rows = append(rows, row(map[types.Field]string{
			types.FieldKey:       k.String(),
			types.FieldItemValue: fmt.Sprintf("%d,%02d", (i*37)%101, i%100),
			types.FieldNotes:     fmt.Sprintf("item %d", i),
		}))
	}
	path := writeDataset(t, rows...)

	logger, _ := test.NewNullLogger()
	want, wantStats, err := (&Engine{Settings: config.Default().Dataset, Logger: logger, Workers: 1, ChunkSize: 1000}).
		Summarize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 97, wantStats.Rows)
	assert.Equal(t, 4, want.Len())

	for _, chunk := range []int{1, 2, 7, 50} {
		for _, workers := range []int{1, 4} {
			t.Run(fmt.Sprintf("chunk=%d/workers=%d", chunk, workers), func(t *testing.T) {
				e := &Engine{Settings: config.Default().Dataset, Logger: logger, Workers: workers, ChunkSize: chunk}
				got, stats, err := e.Summarize(context.Background(), path)
				require.NoError(t, err)
				assert.Equal(t, wantStats.Rows, stats.Rows)
				assert.Equal(t, wantStats.Skipped, stats.Skipped)

				for _, m := range []map[fiscalkey.Key]*summary.Summary{got.Manifests, got.Invoices} {
					for k, s := range m {
						w := want.For(k.Kind())[k]
						require.NotNil(t, w)
						assert.Equal(t, w.ItemCount, s.ItemCount)
						assert.InDelta(t, w.TotalValue, s.TotalValue, 1e-6)
						assert.Equal(t, w.MaxValue, s.MaxValue)
						assert.Equal(t, w.Metadata, s.Metadata)
					}
				}
			})
		}
	}
}

func TestSummarize_WrongColumnCount(t *testing.T) {
	good := row(map[types.Field]string{types.FieldKey: manifest.String(), types.FieldItemValue: "1"})
	path := writeDataset(t, good, good[:3], good)

	_, _, err := newEngine(nil).Summarize(context.Background(), path)
	var srcErr *types.SourceError
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, path, srcErr.Path)
	assert.Equal(t, 3, srcErr.Line)
	assert.Contains(t, srcErr.Content, manifest.String())
}

func TestSummarize_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte("\"A\";\"B\"\r\n\"1\";\"2\"\r\n"), 0o644))

	logger, _ := test.NewNullLogger()
	_, _, err := newEngine(logger).Summarize(context.Background(), path)
	var srcErr *types.SourceError
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, 1, srcErr.Line)
	assert.ErrorContains(t, err, "missing required column")
}

func TestSummarize_HeaderOverrides(t *testing.T) {
	header := types.DefaultSchema().Header
	header = append([]string(nil), header...)
	header[types.FieldItemValue] = "Valor"

	var b strings.Builder
	b.WriteString(quoteLine(header))
	b.WriteString(quoteLine(row(map[types.Field]string{types.FieldKey: invoice.String(), types.FieldItemValue: "7"})))
	path := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	logger, _ := test.NewNullLogger()
	e := newEngine(logger)
	e.Headers = map[types.Field]string{types.FieldItemValue: "Valor"}
	pair, _, err := e.Summarize(context.Background(), path)
	require.NoError(t, err)
	require.Contains(t, pair.Invoices, invoice)
	assert.InDelta(t, 7, pair.Invoices[invoice].TotalValue, 1e-9)
}

func TestSummarize_Cancelled(t *testing.T) {
	path := writeDataset(t, row(map[types.Field]string{types.FieldKey: manifest.String(), types.FieldItemValue: "1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logger, _ := test.NewNullLogger()
	_, _, err := newEngine(logger).Summarize(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSkipReason_String(t *testing.T) {
	assert.Equal(t, "value_too_long", SkipValueTooLong.String())
	assert.Equal(t, "unknown", SkipReason(99).String())
	assert.Len(t, SkipReasons(), int(skipReasonCount))
}
