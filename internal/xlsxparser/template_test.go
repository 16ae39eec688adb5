package xlsxparser

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
)

func TestColumnTemplate_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colunas.xlsx")

	custom := map[types.Field]string{
		types.FieldKey:       "Chave",
		types.FieldItemValue: "Valor",
	}
	require.NoError(t, WriteColumnTemplate(path, custom))

	got, err := ParseColumnTemplate(path)
	require.NoError(t, err)

	defaults := types.DefaultHeaders()
	assert.Len(t, got, len(types.AllFields()))
	assert.Equal(t, "Chave", got[types.FieldKey])
	assert.Equal(t, "Valor", got[types.FieldItemValue])
	assert.Equal(t, defaults[types.FieldNCM], got[types.FieldNCM])
}

func writeRows(t *testing.T, rows [][]interface{}) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := row
		require.NoError(t, f.SetSheetRow("Sheet1", cellName, &row))
	}

	path := filepath.Join(t.TempDir(), "template.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestParseColumnTemplate_SkipsEmptyHeaders(t *testing.T) {
	path := writeRows(t, [][]interface{}{
		{"Campo", "Coluna"},
		{"CHAVE", " Chave NF "},
		{"ncm", ""},
		{"", "ignored"},
	})

	got, err := ParseColumnTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, map[types.Field]string{types.FieldKey: "Chave NF"}, got)
}

func TestParseColumnTemplate_Errors(t *testing.T) {
	unknown := writeRows(t, [][]interface{}{
		{"Campo", "Coluna"},
		{"chave", "Chave"},
		{"placa", "Placa"},
	})
	_, err := ParseColumnTemplate(unknown)
	assert.ErrorContains(t, err, "row 3")
	assert.ErrorContains(t, err, `"placa"`)

	dup := writeRows(t, [][]interface{}{
		{"Campo", "Coluna"},
		{"chave", "A"},
		{"chave", "B"},
	})
	_, err = ParseColumnTemplate(dup)
	assert.ErrorContains(t, err, "listed twice")

	_, err = ParseColumnTemplate(filepath.Join(t.TempDir(), "none.xlsx"))
	assert.Error(t, err)
}

func TestUsage(t *testing.T) {
	assert.Equal(t, "chave", Usage(types.FieldKey))
	assert.Equal(t, "CT-e -> NF-e", Usage(types.FieldRecipientName))
	assert.Equal(t, "NF-e -> CT-e", Usage(types.FieldNCM))
	assert.Equal(t, "NF-e -> CT-e", Usage(types.FieldPISDescription))
	assert.Equal(t, "CT-e <-> NF-e", Usage(types.FieldCFOPDescription))
	assert.Equal(t, "resumo", Usage(types.FieldCrossReference))
}
