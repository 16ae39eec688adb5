// =============================================================================
// CTe/NFe Enricher - XLSX Column Template
// =============================================================================
//
// This module reads and writes the workbook that maps the logical fields of
// the enricher to the column headers of a dataset. Datasets exported with
// different header names are supported by editing the workbook, without
// code changes.
//
// TEMPLATE STRUCTURE:
//
//   | Column A   | Column B                                      | Column C      |
//   |------------|-----------------------------------------------|---------------|
//   | Campo      | Coluna                                        | Uso           |
//   | chave      | Chave da Nota Fiscal Eletrônica : NF Item ... | chave         |
//   | valor_item | Valor da Nota Proporcional : NF Item ...      | valor         |
//   | ncm        | Código NCM : NF Item (Todos)                  | NF-e -> CT-e  |
//
//   Column A holds the field id (see types.Field), column B the dataset
//   header. Column C is informational and ignored when parsing. Rows with an
//   empty column B keep the default header.
//
// =============================================================================

package xlsxparser

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/cte-nfe-enricher/internal/types"
)

// sheetName is the sheet written by WriteColumnTemplate.
const sheetName = "Colunas"

// templateHeader is the first row of the template.
var templateHeader = []interface{}{"Campo", "Coluna", "Uso"}

// =============================================================================
// PARSING
// =============================================================================

// ParseColumnTemplate reads the header overrides of a column template.
//
// PARAMETERS:
//   - templatePath: The XLSX workbook. Only its first sheet is read.
//
// RETURNS:
//   - Field -> dataset header, for every row with a non-empty header.
//   - An error if the workbook cannot be read, a field id is unknown, or a
//     field is listed twice.
func ParseColumnTemplate(templatePath string) (map[types.Field]string, error) {
	f, err := excelize.OpenFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open template file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("template file has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	overrides := make(map[types.Field]string)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		name, header := cell(row, 0), cell(row, 1)
		if name == "" {
			continue
		}

		field, ok := types.FieldByName(name)
		if !ok {
			return nil, fmt.Errorf("error parsing row %d: unknown field %q", i+1, name)
		}
		if _, dup := overrides[field]; dup {
			return nil, fmt.Errorf("error parsing row %d: field %q listed twice", i+1, name)
		}
		if header != "" {
			overrides[field] = header
		}
	}

	return overrides, nil
}

// cell returns the trimmed value at index, or "" past the end of the row.
func cell(row []string, index int) string {
	if index < len(row) {
		return strings.TrimSpace(row[index])
	}
	return ""
}

// =============================================================================
// WRITING
// =============================================================================

// WriteColumnTemplate writes a template listing every field with its header.
//
// PARAMETERS:
//   - templatePath: The workbook to create (overwritten if present).
//   - headers: Field -> header. Missing fields get their default header.
func WriteColumnTemplate(templatePath string, headers map[types.Field]string) error {
	defaults := types.DefaultHeaders()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &templateHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, field := range types.AllFields() {
		header, ok := headers[field]
		if !ok || header == "" {
			header = defaults[field]
		}

		row := []interface{}{field.String(), header, Usage(field)}
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cellName, &row); err != nil {
			return fmt.Errorf("failed to write field %s: %w", field, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "C1", bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", "A", 24); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "B", "B", 110); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "C", "C", 16); err != nil {
		return err
	}

	if err := f.SaveAs(templatePath); err != nil {
		return fmt.Errorf("failed to save template file: %w", err)
	}
	return nil
}

// Usage describes how the enricher uses a field.
func Usage(f types.Field) string {
	switch {
	case f == types.FieldCFOPDescription:
		return "CT-e <-> NF-e"
	case f == types.FieldNCM:
		return "NF-e -> CT-e"
	case f >= types.FieldSenderCNPJ1 && f < types.FieldCFOPDescription:
		return "CT-e -> NF-e"
	case f >= types.FieldTaxpayerName:
		return "NF-e -> CT-e"
	case f == types.FieldKey:
		return "chave"
	case f == types.FieldCancelled:
		return "filtro"
	case f == types.FieldItemValue:
		return "valor"
	default:
		return "resumo"
	}
}
