// Package geoindex answers nearby-business queries for a single run with an R-tree.
package geoindex

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/sells-group/business-finder/internal/model"
)

const (
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
	tolerance   = 1e-9
	earthRadius = 6371.0 // km
)

// Neighbor is a business with its great-circle distance from the query point.
type Neighbor struct {
	Business   model.Business `json:"business"`
	DistanceKM float64        `json:"distance_km"`
}

type item struct {
	business model.Business
	rect     *rtreego.Rect
}

func (it *item) Bounds() *rtreego.Rect {
	return it.rect
}

// Index is built once per run and is read-only afterwards, so it is safe
// for concurrent queries.
type Index struct {
	tree     *rtreego.Rtree
	lonScale float64
	size     int
}

// New indexes businesses around center. Longitudes are scaled by
// cos(center latitude) so planar distance in the tree tracks ground distance
// near the run's area.
func New(center model.Location, businesses []model.Business) *Index {
	ix := &Index{
		lonScale: math.Cos(center.Latitude * math.Pi / 180),
	}
	if ix.lonScale < 1e-6 {
		ix.lonScale = 1e-6
	}

	ix.tree = rtreego.NewTree(dimensions, minChildren, maxChildren)
	for _, b := range businesses {
		ix.tree.Insert(&item{business: b, rect: ix.project(b.Latitude, b.Longitude).ToRect(tolerance)})
	}
	ix.size = len(businesses)
	return ix
}

func (ix *Index) project(lat, lon float64) rtreego.Point {
	return rtreego.Point{lat, lon * ix.lonScale}
}

// Size returns the number of indexed businesses.
func (ix *Index) Size() int {
	return ix.size
}

// Nearest returns up to k businesses closest to (lat, lon), nearest first.
func (ix *Index) Nearest(lat, lon float64, k int) []Neighbor {
	if k <= 0 || ix.size == 0 {
		return nil
	}
	if k > ix.size {
		k = ix.size
	}
	results := ix.tree.NearestNeighbors(k, ix.project(lat, lon))

	out := make([]Neighbor, 0, len(results))
	for _, r := range results {
		it, ok := r.(*item)
		if !ok || it == nil {
			continue
		}
		out = append(out, Neighbor{
			Business:   it.business,
			DistanceKM: HaversineKM(lat, lon, it.business.Latitude, it.business.Longitude),
		})
	}
	sortByDistance(out)
	return out
}

// Within returns every business within radiusKM of (lat, lon), nearest first.
func (ix *Index) Within(lat, lon, radiusKM float64) []Neighbor {
	if radiusKM <= 0 || ix.size == 0 {
		return nil
	}

	deg := (radiusKM / earthRadius) * (180 / math.Pi)
	bounds, err := rtreego.NewRect(
		rtreego.Point{lat - deg, (lon - deg/ix.lonScale) * ix.lonScale},
		[]float64{2 * deg, 2 * deg},
	)
	if err != nil {
		return nil
	}

	var out []Neighbor
	for _, r := range ix.tree.SearchIntersect(bounds) {
		it, ok := r.(*item)
		if !ok {
			continue
		}
		d := HaversineKM(lat, lon, it.business.Latitude, it.business.Longitude)
		if d <= radiusKM {
			out = append(out, Neighbor{Business: it.business, DistanceKM: d})
		}
	}
	sortByDistance(out)
	return out
}

func sortByDistance(ns []Neighbor) {
	sort.SliceStable(ns, func(i, j int) bool { return ns[i].DistanceKM < ns[j].DistanceKM })
}

// HaversineKM returns the great-circle distance between two points in kilometers.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
