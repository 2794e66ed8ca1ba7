package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter renders a Dataset as CSV.
type CSVExporter struct {
	comma rune
}

// NewCSVExporter builds a CSV exporter. A zero separator means ','.
func NewCSVExporter(separator rune) *CSVExporter {
	if separator == 0 {
		separator = ','
	}
	return &CSVExporter{comma: separator}
}

// Render produces CSV bytes with a header line.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("csv"); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	writer.Comma = e.comma
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	if err := writer.WriteAll(data.Rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}
