package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParseBusinessType(t *testing.T) {
	tests := []struct {
		in      string
		want    BusinessType
		wantErr bool
	}{
		{"restaurants", BusinessTypeRestaurants, false},
		{"Shops", BusinessTypeShops, false},
		{"all", BusinessTypeAll, false},
		{"all amenities", BusinessTypeAll, false},
		{"", BusinessTypeAll, false},
		{"bakeries", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBusinessType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchParameters_Validate(t *testing.T) {
	ok := SearchParameters{LocationQuery: "Boulder", RadiusKM: 5, BusinessType: BusinessTypeAll}
	assert.NoError(t, ok.Validate())
	assert.InDelta(t, 5000.0, ok.RadiusMeters(), 0.001)

	noQuery := ok
	noQuery.LocationQuery = "  "
	assert.Error(t, noQuery.Validate())

	zeroRadius := ok
	zeroRadius.RadiusKM = 0
	assert.Error(t, zeroRadius.Validate())

	badType := ok
	badType.BusinessType = "castles"
	assert.Error(t, badType.Validate())
}

func TestBusiness_SetWebsiteRecomputesComplete(t *testing.T) {
	b := NewBusiness("Joe's Cafe", "Pearl St 1", "", nil, 40, -105)
	assert.Equal(t, DefaultCategory, b.Category)
	assert.False(t, b.Complete)
	assert.False(t, b.HasWebsite())

	site := "https://joescafe.com"
	b.SetWebsite(&site)
	assert.True(t, b.Complete)
	assert.Equal(t, "https://joescafe.com", b.WebsiteOrEmpty())

	// The business keeps its own copy.
	site = "https://changed.example"
	assert.Equal(t, "https://joescafe.com", b.WebsiteOrEmpty())

	b.SetWebsite(strPtr(""))
	assert.Nil(t, b.Website)
	assert.False(t, b.Complete)
}

func TestDiscoveryResult_Summary(t *testing.T) {
	r := DiscoveryResult{}
	assert.True(t, r.NoResultsInArea())

	r.Businesses = []Business{
		NewBusiness("A", "", "cafe", strPtr("https://a.com"), 0, 0),
		NewBusiness("B", "", "shop", nil, 0, 0),
	}
	assert.False(t, r.NoResultsInArea())
	assert.Equal(t, 1, r.MissingWebsites())
}

func TestErrorTaxonomy(t *testing.T) {
	lnf := &LocationNotFoundError{Query: "Nowhere"}
	assert.True(t, errors.Is(lnf, ErrLocationNotFound))
	assert.False(t, errors.Is(lnf, ErrBackendUnavailable))
	assert.Contains(t, lnf.Error(), "Nowhere")

	cause := errors.New("429 too many requests")
	bu := &BackendUnavailableError{Attempts: 3, Err: cause}
	assert.True(t, errors.Is(bu, ErrBackendUnavailable))
	assert.True(t, errors.Is(bu, cause))
	assert.Contains(t, bu.Error(), "3 attempts")
}

func TestRun_ResultAndFind(t *testing.T) {
	r := Run{}
	assert.Nil(t, r.Result())

	r.Center = &Location{Query: "Boulder", Latitude: 40.015, Longitude: -105.2705}
	r.Businesses = []Business{{Name: "A"}, {Name: "B"}}
	require.NotNil(t, r.Result())
	assert.Equal(t, 1, r.FindBusiness("B"))
	assert.Equal(t, -1, r.FindBusiness("C"))
	assert.True(t, RunStatusNoResults.Terminal())
	assert.False(t, RunStatusQuerying.Terminal())
}
