package projection

import "math"

/*
Lat2Merc projects latitude values (-85..85) to vertical mercator
coordinates in the range ~(-180..180), so that they share units
with longitude and locations appear evenly spaced on a mercator map.
*/
func Lat2Merc(lat float64) float64 {
	return 180 / math.Pi * math.Log(math.Tan(math.Pi/4+lat*math.Pi/180/2))
}

/*
Merc2Lat is the inverse of Lat2Merc.
*/
func Merc2Lat(y float64) float64 {
	return 180 / math.Pi * (2*math.Atan(math.Exp(y*math.Pi/180)) - math.Pi/2)
}
