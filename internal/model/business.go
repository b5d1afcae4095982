// Package model defines the domain types shared by the discovery pipeline and its callers.
package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultCategory is assigned when no category tag is present on a record.
const DefaultCategory = "unknown"

// Location is a resolved place. It is produced once by the geocoder and never mutated.
type Location struct {
	Query     string  `json:"query"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// BusinessType narrows what the caller is looking for.
type BusinessType string

const (
	BusinessTypeRestaurants BusinessType = "restaurants"
	BusinessTypeShops       BusinessType = "shops"
	BusinessTypeAll         BusinessType = "all"
)

// ParseBusinessType maps user input to a BusinessType. The legacy "all amenities"
// label is accepted as an alias of "all"; empty input defaults to "all".
func ParseBusinessType(s string) (BusinessType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "all amenities":
		return BusinessTypeAll, nil
	case "restaurants":
		return BusinessTypeRestaurants, nil
	case "shops":
		return BusinessTypeShops, nil
	default:
		return "", eris.Errorf("model: unknown business type %q", s)
	}
}

// SearchParameters is the caller's request for one discovery run.
type SearchParameters struct {
	LocationQuery string       `json:"location_query"`
	RadiusKM      float64      `json:"radius_km"`
	BusinessType  BusinessType `json:"business_type"`
}

// Validate checks the parameters before a run is started.
func (p SearchParameters) Validate() error {
	if strings.TrimSpace(p.LocationQuery) == "" {
		return eris.New("model: location query is required")
	}
	if p.RadiusKM <= 0 {
		return eris.Errorf("model: radius must be positive, got %v", p.RadiusKM)
	}
	if _, err := ParseBusinessType(string(p.BusinessType)); err != nil {
		return err
	}
	return nil
}

// RadiusMeters converts the radius for the spatial query boundary.
func (p SearchParameters) RadiusMeters() float64 {
	return p.RadiusKM * 1000
}

// RawPointRecord is a point feature exactly as the spatial backend returned it.
type RawPointRecord struct {
	ID        int64             `json:"id"`
	Latitude  float64           `json:"lat"`
	Longitude float64           `json:"lon"`
	Tags      map[string]string `json:"tags"`
}

// Business is a normalized, named point of interest.
type Business struct {
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Category  string  `json:"category"`
	Website   *string `json:"website,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Complete  bool    `json:"complete"`
}

// NewBusiness builds a Business and derives Complete from the website.
func NewBusiness(name, address, category string, website *string, lat, lon float64) Business {
	if category == "" {
		category = DefaultCategory
	}
	b := Business{
		Name:      name,
		Address:   address,
		Category:  category,
		Latitude:  lat,
		Longitude: lon,
	}
	b.SetWebsite(website)
	return b
}

// HasWebsite reports whether a website is known.
func (b *Business) HasWebsite() bool {
	return b.Website != nil && *b.Website != ""
}

// WebsiteOrEmpty returns the website or "" when absent.
func (b *Business) WebsiteOrEmpty() string {
	if b.Website == nil {
		return ""
	}
	return *b.Website
}

// SetWebsite replaces the website and recomputes Complete. An empty string
// clears the website.
func (b *Business) SetWebsite(website *string) {
	if website != nil && *website == "" {
		website = nil
	}
	if website != nil {
		w := *website
		website = &w
	}
	b.Website = website
	b.Complete = b.Website != nil
}

// DiscoveryResult is the terminal artifact of a discovery run.
// Business names are unique within Businesses.
type DiscoveryResult struct {
	Businesses []Business `json:"businesses"`
	Center     Location   `json:"center"`
}

// NoResultsInArea reports the informational empty case; the caller should
// suggest widening the radius.
func (r *DiscoveryResult) NoResultsInArea() bool {
	return len(r.Businesses) == 0
}

// MissingWebsites counts businesses without a website.
func (r *DiscoveryResult) MissingWebsites() int {
	n := 0
	for i := range r.Businesses {
		if !r.Businesses[i].HasWebsite() {
			n++
		}
	}
	return n
}
