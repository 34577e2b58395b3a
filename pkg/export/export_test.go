package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	data := Dataset{
		Headers: []string{"Student", "2024-01"},
		Rows:    []map[string]string{{"Student": "Alya, A.", "2024-01": "PAID"}},
		Footer:  []string{"as of 2024-01-15"},
	}

	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student,2024-01", lines[0])
	assert.Equal(t, `"Alya, A.",PAID`, lines[1])
	assert.Equal(t, "as of 2024-01-15", lines[2])
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{}, "title")
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	headers := []string{"Student"}
	for i := 1; i <= 12; i++ {
		headers = append(headers, "M")
	}
	out, err := NewPDFExporter().Render(Dataset{Headers: headers, Rows: []map[string]string{{"Student": "Alya"}}}, "Matrix")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestColumnWidths(t *testing.T) {
	widths := columnWidths(13, 277)
	require.Len(t, widths, 13)
	var total float64
	for _, w := range widths {
		total += w
	}
	assert.InDelta(t, 277, total, 0.001)
	assert.Greater(t, widths[0], widths[1])

	even := columnWidths(4, 190)
	assert.InDelta(t, 47.5, even[0], 0.001)
	assert.InDelta(t, 47.5, even[3], 0.001)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)
	assert.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}
