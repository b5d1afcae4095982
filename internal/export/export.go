// Package export writes discovery results as CSV, XLSX or point shapefiles.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/business-finder/internal/model"
)

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatSHP  Format = "shp"
)

// ParseFormat maps user input to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatSHP:
		return FormatSHP, nil
	default:
		return "", eris.Errorf("export: unknown format %q", s)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatSHP:
		return "application/octet-stream"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Columns is the header row shared by the tabular formats.
var Columns = []string{"name", "address", "category", "website", "social_media", "website_status", "data_status"}

const (
	hasWebsite = "Has Website"
	noWebsite  = "No Website"
	complete   = "Complete"
	incomplete = "Incomplete"
)

// Filter returns the businesses to export, keeping input order. With
// incompleteOnly set, businesses that already have a website are dropped.
func Filter(businesses []model.Business, incompleteOnly bool) []model.Business {
	if !incompleteOnly {
		return businesses
	}
	out := make([]model.Business, 0, len(businesses))
	for _, b := range businesses {
		if !b.Complete {
			out = append(out, b)
		}
	}
	return out
}

// Row maps one business onto Columns.
func Row(b model.Business) []string {
	websiteLabel, status := noWebsite, incomplete
	if b.HasWebsite() {
		websiteLabel = hasWebsite
	}
	if b.Complete {
		status = complete
	}
	return []string{
		b.Name,
		b.Address,
		b.Category,
		websiteLabel,
		"", // social_media is never discovered
		b.WebsiteOrEmpty(),
		status,
	}
}

// WriteCSV writes a header and one row per business.
func WriteCSV(w io.Writer, businesses []model.Business) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, b := range businesses {
		if err := cw.Write(Row(b)); err != nil {
			return eris.Wrapf(err, "export: write csv row %q", b.Name)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes a single "Businesses" sheet with the same layout as WriteCSV.
func WriteXLSX(w io.Writer, businesses []model.Business) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Businesses")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	addRow(sheet, Columns)
	for _, b := range businesses {
		addRow(sheet, Row(b))
	}

	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// Write streams the tabular formats. Shapefiles span several files and go
// through WriteShapefile instead.
func Write(w io.Writer, format Format, businesses []model.Business) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, businesses)
	case FormatXLSX:
		return WriteXLSX(w, businesses)
	default:
		return eris.Errorf("export: format %q cannot be streamed", format)
	}
}

// WriteFile writes businesses to path in the given format.
func WriteFile(path string, format Format, businesses []model.Business) error {
	if format == FormatSHP {
		return WriteShapefile(path, businesses)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := Write(f, format, businesses); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}
