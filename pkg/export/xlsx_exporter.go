package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const defaultSheetName = "Calificaciones"

// XLSXExporter renders a Dataset as a single-sheet workbook.
type XLSXExporter struct {
	sheet string
}

// NewXLSXExporter constructs a workbook exporter. An empty name uses the default sheet name.
func NewXLSXExporter(sheetName string) *XLSXExporter {
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	return &XLSXExporter{sheet: sheetName}
}

// Render writes the header row in bold followed by the data rows.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("xlsx"); err != nil {
		return nil, err
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName("Sheet1", e.sheet); err != nil {
		return nil, fmt.Errorf("name worksheet: %w", err)
	}
	if err := e.writeRow(f, 1, data.Headers); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E9ECEF"}},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(data.Headers), 1)
	if err != nil {
		return nil, fmt.Errorf("resolve header range: %w", err)
	}
	if err := f.SetCellStyle(e.sheet, "A1", last, bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	for i, row := range data.Rows {
		if err := e.writeRow(f, i+2, row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(e.sheet, "B", "B", 36); err != nil {
		return nil, fmt.Errorf("size name column: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *XLSXExporter) writeRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("resolve row %d: %w", row, err)
	}
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	if err := f.SetSheetRow(e.sheet, cell, &out); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
