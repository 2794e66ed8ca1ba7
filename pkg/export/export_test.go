package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Matemáticas 10A",
		Headers: []string{"#", "Estudiante", "SER n1", "Prom. SER", "Definitiva"},
		Rows: [][]string{
			{"1", "Ana Gómez", "4.5", "4.5", "4.1"},
			{"2", "Bruno Díaz", "", "0.0", "N/A"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter(';').Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "#;Estudiante;SER n1;Prom. SER;Definitiva\n1;Ana Gómez;4.5;4.5;4.1\n2;Bruno Díaz;;0.0;N/A\n", string(out))
}

func TestCSVExporterRejectsRaggedRows(t *testing.T) {
	data := sampleDataset()
	data.Rows[1] = data.Rows[1][:2]
	_, err := NewCSVExporter(0).Render(data)
	require.Error(t, err)

	_, err = NewCSVExporter(0).Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXExporterRender(t *testing.T) {
	out, err := NewXLSXExporter("").Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	rows, err := f.GetRows(defaultSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Estudiante", rows[0][1])
	assert.Equal(t, "Ana Gómez", rows[1][1])
	assert.Equal(t, "N/A", rows[2][4])
}
