package export

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/business-finder/internal/model"
)

func strPtr(s string) *string { return &s }

func sampleBusinesses() []model.Business {
	return []model.Business{
		model.NewBusiness("Cafe A", "Pearl St 1", "cafe", nil, 40.01, -105.27),
		model.NewBusiness("Shop B", "", "books", strPtr("https://shopb.com"), 40.02, -105.28),
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"", FormatCSV, false},
		{"CSV", FormatCSV, false},
		{" xlsx ", FormatXLSX, false},
		{"shp", FormatSHP, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestRow(t *testing.T) {
	bs := sampleBusinesses()

	assert.Equal(t, []string{"Cafe A", "Pearl St 1", "cafe", "No Website", "", "", "Incomplete"}, Row(bs[0]))
	assert.Equal(t, []string{"Shop B", "", "books", "Has Website", "", "https://shopb.com", "Complete"}, Row(bs[1]))
}

func TestFilter(t *testing.T) {
	bs := sampleBusinesses()

	assert.Len(t, Filter(bs, false), 2)
	only := Filter(bs, true)
	require.Len(t, only, 1)
	assert.Equal(t, "Cafe A", only[0].Name)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleBusinesses()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Columns, records[0])
	assert.Equal(t, "Cafe A", records[1][0])
	assert.Equal(t, "https://shopb.com", records[2][5])
}

func TestWriteCSV_QuotesCommas(t *testing.T) {
	var buf bytes.Buffer
	bs := []model.Business{model.NewBusiness("Smith, Jones & Co", "1 Main St", "office", nil, 0, 0)}
	require.NoError(t, WriteCSV(&buf, bs))
	assert.Contains(t, buf.String(), `"Smith, Jones & Co"`)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleBusinesses()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, "Businesses", sheet.Name)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "name", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "Has Website", sheet.Rows[2].Cells[3].String())
	assert.Equal(t, "Complete", sheet.Rows[2].Cells[6].String())
}

func TestWrite_RejectsShapefile(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, FormatSHP, sampleBusinesses())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be streamed")
}

func TestWriteShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "businesses")
	require.NoError(t, WriteShapefile(path, sampleBusinesses()))

	r, err := shp.Open(path + ".shp")
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	var names []string
	var points []*shp.Point
	for r.Next() {
		_, shape := r.Shape()
		pt, ok := shape.(*shp.Point)
		require.True(t, ok)
		points = append(points, pt)
		names = append(names, strings.TrimSpace(strings.TrimRight(r.Attribute(0), "\x00")))
	}
	assert.Equal(t, []string{"Cafe A", "Shop B"}, names)
	require.Len(t, points, 2)
	assert.InDelta(t, -105.27, points[0].X, 1e-9)
	assert.InDelta(t, 40.01, points[0].Y, 1e-9)
}

func TestWriteFile_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteFile(path, FormatCSV, sampleBusinesses()))
	assert.FileExists(t, path)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	// "é" is two bytes; never split it.
	assert.Equal(t, "caf", truncate("café", 4))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv; charset=utf-8", FormatCSV.ContentType())
	assert.Contains(t, FormatXLSX.ContentType(), "spreadsheetml")
}
