package projection

import "math"

const TileSize = 256

/*
Tiler converts between geographic coordinates and fractional
slippy map tile coordinates at a single zoom level.
*/
type Tiler struct {
	Zoom int
	m    float64
}

func NewTiler(zoom int) Tiler {
	return Tiler{
		Zoom: zoom,
		m:    float64(int(1) << uint(zoom)),
	}
}

/*
TileCount returns the number of tiles along one axis.
*/
func (t Tiler) TileCount() int {
	return int(t.m)
}

/*
LatLong returns the geographic position of the fractional tile position x, y.
*/
func (t Tiler) LatLong(x, y float64) (lat, long float64) {
	long = x/t.m*360 - 180
	n := math.Pi - 2*math.Pi*y/t.m
	lat = 180 / math.Pi * math.Atan(0.5*(math.Exp(n)-math.Exp(-n)))
	return lat, long
}

/*
Tile returns the fractional tile position of lat, long.
*/
func (t Tiler) Tile(lat, long float64) (x, y float64) {
	latRad := lat * math.Pi / 180
	x = t.m * (long + 180) / 360
	y = t.m * (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2
	return x, y
}

/*
DegreesPerPixel returns the longitudinal span of a single pixel.
*/
func (t Tiler) DegreesPerPixel() float64 {
	return 360 / (t.m * TileSize)
}
