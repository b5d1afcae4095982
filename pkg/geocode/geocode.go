// Package geocode resolves free-text place queries to a single coordinate
// using a Nominatim-compatible geocoding service.
package geocode

import (
	"context"
	"strings"
)

// Match is a single geocoder hit.
type Match struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
}

// Geocoder performs one lookup of a literal query string. A nil Match with
// a nil error means the service had no result.
type Geocoder interface {
	Lookup(ctx context.Context, query string) (*Match, error)
}

// RegionHint qualifies bare place names ("Boulder") so the geocoder does
// not pick a same-named place elsewhere.
type RegionHint struct {
	Abbrev string `mapstructure:"region_abbrev" yaml:"region_abbrev"`
	Full   string `mapstructure:"region_full" yaml:"region_full"`
}

// DefaultRegion is used when no hint is configured.
var DefaultRegion = RegionHint{Abbrev: "CO", Full: "Colorado"}

// Candidates returns the lookup strings to try, in order. A query that
// already contains a comma is assumed to carry its own region and is used
// as-is.
func (h RegionHint) Candidates(query string) []string {
	if strings.Contains(query, ",") {
		return []string{query}
	}
	var out []string
	for _, region := range []string{h.Abbrev, h.Full} {
		if region == "" {
			continue
		}
		out = append(out, query+", "+region)
	}
	if len(out) == 0 {
		out = append(out, query)
	}
	return out
}
