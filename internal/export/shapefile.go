package export

import (
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/business-finder/internal/model"
)

// DBF caps string fields at 254 bytes and names at 10 characters.
const dbfMaxString = 254

var shapeFields = []shp.Field{
	shp.StringField("NAME", dbfMaxString),
	shp.StringField("ADDRESS", dbfMaxString),
	shp.StringField("CATEGORY", 80),
	shp.StringField("WEBSITE", 12),
	shp.StringField("SOCIAL", 80),
	shp.StringField("WEB_STATUS", dbfMaxString),
	shp.StringField("DATA_STAT", 12),
}

// WriteShapefile writes one point per business to path (plus the sibling
// .shx and .dbf files). Attributes follow Columns.
func WriteShapefile(path string, businesses []model.Business) error {
	if !strings.HasSuffix(strings.ToLower(path), ".shp") {
		path += ".shp"
	}

	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}
	defer w.Close()

	w.SetFields(shapeFields) //nolint:errcheck

	for _, b := range businesses {
		n := w.Write(&shp.Point{X: b.Longitude, Y: b.Latitude})
		for field, v := range Row(b) {
			if err := w.WriteAttribute(int(n), field, truncate(v, int(shapeFields[field].Size))); err != nil {
				return eris.Wrapf(err, "export: write attribute %s for %q", Columns[field], b.Name)
			}
		}
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
