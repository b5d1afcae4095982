package geoindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/business-finder/internal/model"
)

var boulder = model.Location{Query: "Boulder", Latitude: 40.0150, Longitude: -105.2705}

func biz(name string, lat, lon float64) model.Business {
	return model.NewBusiness(name, "", "cafe", nil, lat, lon)
}

func TestNearest_Order(t *testing.T) {
	ix := New(boulder, []model.Business{
		biz("far", 40.0300, -105.2705),
		biz("near", 40.0151, -105.2705),
		biz("mid", 40.0200, -105.2705),
	})
	require.Equal(t, 3, ix.Size())

	got := ix.Nearest(boulder.Latitude, boulder.Longitude, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].Business.Name)
	assert.Equal(t, "mid", got[1].Business.Name)
	assert.Less(t, got[0].DistanceKM, got[1].DistanceKM)
}

func TestNearest_ScalesLongitude(t *testing.T) {
	// 0.01 degrees of longitude at 40N is ~0.85 km; 0.009 degrees of
	// latitude is ~1.0 km. Unscaled degrees would rank these the other way.
	ix := New(boulder, []model.Business{
		biz("north", boulder.Latitude+0.009, boulder.Longitude),
		biz("east", boulder.Latitude, boulder.Longitude+0.01),
	})

	got := ix.Nearest(boulder.Latitude, boulder.Longitude, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "east", got[0].Business.Name)
}

func TestNearest_Empty(t *testing.T) {
	ix := New(boulder, nil)
	assert.Nil(t, ix.Nearest(40, -105, 3))
	assert.Nil(t, New(boulder, []model.Business{biz("a", 40, -105)}).Nearest(40, -105, 0))
}

func TestNearest_KLargerThanSize(t *testing.T) {
	var bs []model.Business
	for i := 0; i < 5; i++ {
		bs = append(bs, biz(fmt.Sprintf("b%d", i), 40.0+float64(i)*0.001, -105.27))
	}
	ix := New(boulder, bs)
	assert.Len(t, ix.Nearest(40.0, -105.27, 50), 5)
}

func TestWithin(t *testing.T) {
	ix := New(boulder, []model.Business{
		biz("in", 40.0160, -105.2705),
		biz("out", 40.1000, -105.2705),
	})

	got := ix.Within(boulder.Latitude, boulder.Longitude, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "in", got[0].Business.Name)
	assert.Nil(t, ix.Within(boulder.Latitude, boulder.Longitude, 0))
}

func TestHaversineKM(t *testing.T) {
	// Boulder to Denver is roughly 39 km.
	d := HaversineKM(40.0150, -105.2705, 39.7392, -104.9903)
	assert.InDelta(t, 38.5, d, 1.5)
	assert.Equal(t, 0.0, HaversineKM(1, 2, 1, 2))
}
