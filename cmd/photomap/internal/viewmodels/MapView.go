package viewmodels

import (
	"fmt"

	"github.com/adampresley/adamgokit/slices"
	"github.com/adampresley/photomap/pkg/tilemap"
	"github.com/goccy/go-json"
)

/*
Page is the data handed to the HTML templates of the static directory.
*/
type Page struct {
	GoogleMapsApiKey string
}

type Bounds struct {
	Lat   float64 `json:"lat"`
	Long  float64 `json:"long"`
	DLat  float64 `json:"dlat"`
	DLong float64 `json:"dlong"`
}

type Photo struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"lng"`
}

/*
Viewport lists the visible photo piles as a flat lat, lng sequence.
*/
type Viewport struct {
	Radius float64       `json:"radius"`
	Coords []json.Number `json:"coords"`
}

func NewBounds(b tilemap.Bounds) Bounds {
	return Bounds{
		Lat:   b.Lat,
		Long:  b.Long,
		DLat:  b.DLat,
		DLong: b.DLong,
	}
}

func NewPhotoCollection(points []tilemap.Point) []Photo {
	if len(points) == 0 {
		return []Photo{}
	}

	return slices.Map(points, func(p tilemap.Point, index int) Photo {
		return Photo{Lat: p.Lat, Long: p.Long}
	})
}

func NewViewport(places []tilemap.Place, radius float64) Viewport {
	coords := make([]json.Number, 0, len(places)*2)

	for _, p := range places {
		coords = append(coords,
			json.Number(fmt.Sprintf("%.6f", p.Lat)),
			json.Number(fmt.Sprintf("%.6f", p.Long)),
		)
	}

	return Viewport{
		Radius: radius,
		Coords: coords,
	}
}
