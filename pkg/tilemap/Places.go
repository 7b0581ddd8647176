package tilemap

import (
	"math"
	"sort"

	"github.com/adampresley/adamgokit/slices"
	"github.com/adampresley/photomap/pkg/clusterer"
	"github.com/adampresley/photomap/pkg/projection"
)

// radius around a photo pile in pixels that selects it
const pickRadius = 20

/*
Place is a photo pile visible at some zoom level.
*/
type Place struct {
	Lat   float64
	Long  float64
	Count int
}

/*
Bounds is the center and extent of all photos on the map.
*/
type Bounds struct {
	Lat   float64
	Long  float64
	DLat  float64
	DLong float64
}

type Point struct {
	Lat  float64
	Long float64
}

/*
PhotoPlaces returns the photo piles visible in the viewport and the
radius in degrees around each in which a click selects it. A viewport
with lo0 > lo1 crosses the antimeridian.
*/
func (tm *TileMap) PhotoPlaces(la0, lo0, la1, lo1 float64, zoom int) ([]Place, float64) {
	zoom = clampZoom(zoom)
	radius := pickRadius * projection.NewTiler(zoom).DegreesPerPixel()

	y0 := projection.Lat2Merc(math.Min(la0, la1))
	y1 := projection.Lat2Merc(math.Max(la0, la1))

	ranges := [][2]float64{{lo0, lo1}}
	if lo0 > lo1 {
		ranges = [][2]float64{{lo0, 180}, {-180, lo1}}
	}

	places := []Place{}
	for _, r := range ranges {
		tm.tree.Query(r[0], y0, r[1], y1, clusterDist(zoom), func(c clusterer.Point, elem []int) {
			if c.X < r[0] || c.X > r[1] || c.Y < y0 || c.Y > y1 {
				return
			}

			places = append(places, Place{
				Lat:   projection.Merc2Lat(c.Y),
				Long:  c.X,
				Count: len(elem),
			})
		})
	}

	return places, radius
}

/*
Gallery returns the keys of the photos in the pile nearest to lat, long
at zoom, oldest first. Piles farther than the pick radius are ignored.
*/
func (tm *TileMap) Gallery(lat, long float64, zoom int) []string {
	var (
		best     []int
		bestDist = math.Inf(1)
	)

	zoom = clampZoom(zoom)
	radius := pickRadius * projection.NewTiler(zoom).DegreesPerPixel()
	x, y := long, projection.Lat2Merc(lat)

	tm.tree.Query(x-radius, y-radius, x+radius, y+radius, clusterDist(zoom), func(c clusterer.Point, elem []int) {
		d := math.Hypot(c.X-x, c.Y-y)
		if d <= radius && d < bestDist {
			best, bestDist = elem, d
		}
	})

	if len(best) == 0 {
		return nil
	}

	idx := append([]int(nil), best...)
	sort.Slice(idx, func(i, j int) bool {
		a, b := tm.images[idx[i]], tm.images[idx[j]]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.Key < b.Key
	})

	return slices.Map(idx, func(ix int, index int) string {
		return tm.images[ix].Key
	})
}

/*
Nearest returns the keys of up to k photos closest to lat, long,
nearest first.
*/
func (tm *TileMap) Nearest(lat, long float64, k int) []string {
	return slices.Map(tm.spots.Nearest(long, projection.Lat2Merc(lat), k), func(ix int, index int) string {
		return tm.images[ix].Key
	})
}

/*
Bounds returns the zero value on an empty map.
*/
func (tm *TileMap) Bounds() Bounds {
	if len(tm.images) == 0 {
		return Bounds{}
	}

	first := tm.images[0]
	lami, lama := first.Latitude, first.Latitude
	lomi, loma := first.Longitude, first.Longitude

	for _, im := range tm.images[1:] {
		lami = math.Min(lami, im.Latitude)
		lama = math.Max(lama, im.Latitude)
		lomi = math.Min(lomi, im.Longitude)
		loma = math.Max(loma, im.Longitude)
	}

	return Bounds{
		Lat:   (lami + lama) / 2,
		Long:  (lomi + loma) / 2,
		DLat:  lama - lami,
		DLong: loma - lomi,
	}
}

/*
Points returns the location of every photo.
*/
func (tm *TileMap) Points() []Point {
	result := make([]Point, len(tm.images))

	for i, im := range tm.images {
		result[i] = Point{Lat: im.Latitude, Long: im.Longitude}
	}

	return result
}

func clampZoom(zoom int) int {
	return max(0, min(zoom, MaxZoom))
}
