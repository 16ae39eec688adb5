package enrich

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/config"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/summary"
	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
)

func quoteLine(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ";") + "\r\n"
}

func newRewriter(t *testing.T) *Rewriter {
	logger, _ := test.NewNullLogger()
	return &Rewriter{
		Settings: config.Default().Dataset,
		Merger:   Merger{MaxFields: 10, MaxFieldLength: 3000},
		Logger:   logger,
	}
}

func TestRewrite(t *testing.T) {
	header := quoteLine(types.DefaultSchema().Header)
	invoiceRow := row(map[types.Field]string{types.FieldKey: nfeN.String(), types.FieldOriginState: "MG"})
	unrelated := quoteLine(row(map[types.Field]string{types.FieldKey: other.String(), types.FieldNotes: "a  b"}))
	cancelled := quoteLine(row(map[types.Field]string{types.FieldKey: nfeN.String(), types.FieldCancelled: "Sim"}))

	input := header + unrelated + "\r\n" + quoteLine(invoiceRow) + cancelled + "\r\n"
	in := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(in, []byte(input), 0o644))

	pair := summary.NewPair()
	pair.Manifests[cteM] = manifestSummary(500, 500, &summary.ManifestMetadata{OriginState: "SP"})

	out := filepath.Join(t.TempDir(), "out.csv")
	stats, err := newRewriter(t).Rewrite(context.Background(), in, out, carrying(cteM), pair)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 1, stats.EnrichedInvoices)
	assert.Zero(t, stats.EnrichedManifests)
	assert.Equal(t, 1, stats.Changed())

	enriched := append([]string(nil), invoiceRow...)
	enriched[types.FieldCrossReference] = "NFe: " + nfeN.String() + ", 1 CTe: [" + cteM.String() + "] de valor total = 500.00"
	enriched[types.FieldOriginState] = "MG [Info do CT-e: SP]"

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, header+unrelated+"\r\n"+quoteLine(enriched)+cancelled+"\r\n", string(got))
}

func TestRewrite_NothingToDo(t *testing.T) {
	input := strings.Join(types.DefaultSchema().Header, ";") + "\n" +
		strings.Join(row(map[types.Field]string{types.FieldKey: nfeN.String()}), ";")

	in := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(in, []byte(input), 0o644))

	out := filepath.Join(t.TempDir(), "out.csv")
	stats, err := newRewriter(t).Rewrite(context.Background(), in, out, carrying(), summary.NewPair())
	require.NoError(t, err)
	assert.Zero(t, stats.Changed())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, input, string(got))
}

func TestRewrite_StructuralError(t *testing.T) {
	input := quoteLine(types.DefaultSchema().Header) + "\"1\";\"2\"\r\n"
	in := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(in, []byte(input), 0o644))

	_, err := newRewriter(t).Rewrite(context.Background(), in, filepath.Join(t.TempDir(), "out.csv"), carrying(), summary.NewPair())
	var srcErr *types.SourceError
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, 2, srcErr.Line)
	assert.Equal(t, "1;2", srcErr.Content)
}

func TestRewrite_Cancelled(t *testing.T) {
	input := quoteLine(types.DefaultSchema().Header) + quoteLine(row(nil))
	in := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(in, []byte(input), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRewriter(t).Rewrite(ctx, in, filepath.Join(t.TempDir(), "out.csv"), carrying(), summary.NewPair())
	assert.ErrorIs(t, err, context.Canceled)
}
