package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/config"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/fiscalkey"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/metrics"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/validation"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/xlsxparser"
)

func key(prefix string) fiscalkey.Key {
	return fiscalkey.MustParse(prefix + strings.Repeat("0", fiscalkey.Length-len(prefix)))
}

var (
	cteM = key("1111111111111111111157")
	cteP = key("2222222222222222222257")
	nfeN = key("3333333333333333333355")
)

func quoteLine(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ";") + "\r\n"
}

func row(values map[types.Field]string) []string {
	fields := make([]string, types.DefaultSchema().Width())
	for f, v := range values {
		fields[f] = v
	}
	return fields
}

// fixture writes a dataset and its relation files into a fresh directory.
// CT-e M carries NF-e N and P complements M.
func fixture(t *testing.T, header []string, rows ...[]string) string {
	t.Helper()
	dir := t.TempDir()

	var b strings.Builder
	b.WriteString(quoteLine(header))
	for _, r := range rows {
		b.WriteString(quoteLine(r))
	}
	dataset := filepath.Join(dir, "Info.csv")
	require.NoError(t, os.WriteFile(dataset, []byte(b.String()), 0o644))

	cfg := config.Default()
	require.NoError(t, os.WriteFile(filepath.Join(dir, cfg.Relations.InvoicesFile),
		[]byte(cteM.String()+" "+nfeN.String()+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, cfg.Relations.ComplementsFile),
		[]byte(cteM.String()+" "+cteP.String()+"\n"), 0o644))
	return dataset
}

func relatedRows() [][]string {
	return [][]string{
		row(map[types.Field]string{types.FieldKey: cteM.String(), types.FieldItemValue: "100,00", types.FieldOriginState: "SP"}),
		row(map[types.Field]string{types.FieldKey: cteP.String(), types.FieldItemValue: "50,00", types.FieldOriginState: "RJ"}),
		row(map[types.Field]string{types.FieldKey: nfeN.String(), types.FieldItemValue: "80,00", types.FieldGoodsDescription: "PECA"}),
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Processing.Workers = 2
	cfg.Processing.ChunkSize = 1
	return cfg
}

func TestRun_EnrichesRelatedRows(t *testing.T) {
	dataset := fixture(t, types.DefaultSchema().Header, relatedRows()...)

	m, err := metrics.New()
	require.NoError(t, err)

	cfg := testConfig()
	cfg.MetricsFile = filepath.Join(t.TempDir(), "enricher.prom")

	logger, _ := test.NewNullLogger()
	result := New(cfg, logger, m).Run(context.Background(), dataset)
	require.NoError(t, result.Error)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Changed)
	assert.Equal(t, filepath.Join(filepath.Dir(dataset), "Info.modificado.csv"), result.Output)
	assert.Equal(t, 3, result.Stats.Aggregate.Summarized)
	assert.Equal(t, 2, result.Stats.Rewrite.EnrichedManifests)
	assert.Equal(t, 1, result.Stats.Rewrite.EnrichedInvoices)

	data, err := os.ReadFile(result.Output)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "NFe: "+nfeN.String()+", 2 CTes: ["+cteM.String()+", "+cteP.String()+"] de valor total = 150.00")
	assert.Contains(t, out, "CTe: "+cteM.String()+", 1 NFe: ["+nfeN.String()+"] de valor total = 80.00")
	assert.Contains(t, out, "CTe: "+cteP.String()+", 1 NFe: ["+nfeN.String()+"] de valor total = 80.00")
	assert.Contains(t, out, "[Info do CT-e: SP] [Info do CT-e: RJ]")
	assert.Contains(t, out, "[Info da NF-e: PECA]")

	original, err := os.ReadFile(dataset)
	require.NoError(t, err)
	assert.NotContains(t, string(original), "Info do CT-e", "the input is left untouched")

	prom, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `enricher_runs_total{status="success"} 1`)
	assert.Contains(t, string(prom), `enricher_relations_keys{relation="invoice_manifests"} 1`)

	assertNoTempFiles(t, filepath.Dir(dataset))
}

func TestRun_NothingChangedRemovesOutput(t *testing.T) {
	dataset := fixture(t, types.DefaultSchema().Header,
		row(map[types.Field]string{types.FieldKey: nfeN.String(), types.FieldItemValue: "80,00"}))

	result := New(testConfig(), nil, nil).Run(context.Background(), dataset)
	require.NoError(t, result.Error)

	assert.True(t, result.Success)
	assert.Zero(t, result.Changed)
	assert.Empty(t, result.Output)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dataset), "Info.modificado.csv"))
	assertNoTempFiles(t, filepath.Dir(dataset))
}

func TestRun_KeepUnchanged(t *testing.T) {
	dataset := fixture(t, types.DefaultSchema().Header,
		row(map[types.Field]string{types.FieldKey: nfeN.String(), types.FieldItemValue: "80,00"}))

	cfg := testConfig()
	cfg.Output.KeepUnchanged = true
	result := New(cfg, nil, nil).Run(context.Background(), dataset)
	require.NoError(t, result.Error)

	want, err := os.ReadFile(dataset)
	require.NoError(t, err)
	got, err := os.ReadFile(result.Output)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestRun_UpdateSource(t *testing.T) {
	dataset := fixture(t, types.DefaultSchema().Header, relatedRows()...)

	cfg := testConfig()
	cfg.Output.UpdateSource = true
	result := New(cfg, nil, nil).Run(context.Background(), dataset)
	require.NoError(t, result.Error)

	assert.Equal(t, dataset, result.Output)
	data, err := os.ReadFile(dataset)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[Info do CT-e: SP]")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dataset), "Info.modificado.csv"))
	assertNoTempFiles(t, filepath.Dir(dataset))
}

func TestRun_MissingRelationFile(t *testing.T) {
	dataset := fixture(t, types.DefaultSchema().Header, relatedRows()...)
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(dataset), config.Default().Relations.InvoicesFile)))

	m, err := metrics.New()
	require.NoError(t, err)
	cfg := testConfig()
	cfg.MetricsFile = filepath.Join(t.TempDir(), "enricher.prom")

	result := New(cfg, nil, m).Run(context.Background(), dataset)
	require.Error(t, result.Error)

	var srcErr *types.SourceError
	assert.ErrorAs(t, result.Error, &srcErr)
	assert.False(t, result.Success)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dataset), "Info.modificado.csv"))

	prom, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `enricher_runs_total{status="failure"} 1`)
}

func TestRun_ColumnsTemplate(t *testing.T) {
	header := types.DefaultSchema().Header
	header[types.FieldItemValue] = "Valor"
	dataset := fixture(t, header, relatedRows()...)

	templatePath := filepath.Join(filepath.Dir(dataset), "colunas.xlsx")
	require.NoError(t, xlsxparser.WriteColumnTemplate(templatePath, map[types.Field]string{types.FieldItemValue: "Valor"}))

	cfg := testConfig()
	cfg.Dataset.ColumnsTemplate = "colunas.xlsx"
	result := New(cfg, nil, nil).Run(context.Background(), dataset)
	require.NoError(t, result.Error)
	assert.Equal(t, 3, result.Changed)

	cfg.Dataset.ColumnsTemplate = ""
	result = New(cfg, nil, nil).Run(context.Background(), dataset)
	assert.Error(t, result.Error, "the default header is missing")
}

func TestRun_InvalidHeaderWritesValidationLog(t *testing.T) {
	header := types.DefaultSchema().Header
	header[types.FieldItemValue] = "Valor"
	dataset := fixture(t, header, relatedRows()...)

	result := New(testConfig(), nil, nil).Run(context.Background(), dataset)
	require.Error(t, result.Error)
	assert.False(t, result.Success)

	var hdrErr *validation.HeaderError
	require.ErrorAs(t, result.Error, &hdrErr)

	logPath := filepath.Join(filepath.Dir(dataset), "Info.validation.log")
	assert.Equal(t, logPath, result.ValidationLog)
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Header validation of "+dataset)
	assert.Contains(t, string(data), `missing required column "`+types.DefaultSchema().Header[types.FieldItemValue]+`"`)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dataset), "Info.modificado.csv"))
	assertNoTempFiles(t, filepath.Dir(dataset))
}

func TestRun_RelationErrorWritesNoValidationLog(t *testing.T) {
	dataset := fixture(t, types.DefaultSchema().Header, relatedRows()...)
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(dataset), config.Default().Relations.ComplementsFile)))

	result := New(testConfig(), nil, nil).Run(context.Background(), dataset)
	require.Error(t, result.Error)
	assert.Empty(t, result.ValidationLog)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dataset), "Info.validation.log"))
}

func TestSummarize(t *testing.T) {
	dataset := fixture(t, types.DefaultSchema().Header, relatedRows()...)

	pair, stats, err := New(testConfig(), nil, nil).Summarize(context.Background(), dataset)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Rows)
	require.Contains(t, pair.Manifests, cteM)
	assert.Equal(t, 100.0, pair.Manifests[cteM].MaxValue)
	require.Contains(t, pair.Invoices, nfeN)
	assert.Equal(t, 1, pair.Invoices[nfeN].ItemCount)
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temporary file %s", e.Name())
	}
}
