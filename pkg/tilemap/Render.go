package tilemap

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/adampresley/photomap/pkg/clusterer"
	"github.com/adampresley/photomap/pkg/projection"
	"github.com/adampresley/photomap/pkg/thumber"
	"github.com/paulmach/orb/maptile"
)

const (
	// safety gap in tiles for icons hanging over tile boundaries
	gap = thumber.PhotoIconSize * 1.5 / projection.TileSize

	pileMax       = 10
	pileRadius    = thumber.PhotoIconSize
	pilePhotoArea = pileRadius * pileRadius * math.Pi / pileMax
)

var transparentTile = sync.OnceValues(func() ([]byte, error) {
	return encodeTile(image.NewRGBA(image.Rect(0, 0, projection.TileSize, projection.TileSize)))
})

/*
clusterDist is the minimum distance of photo piles shown at zoom.
*/
func clusterDist(zoom int) float64 {
	return photoMinSep * math.Pow(2, float64(21-zoom))
}

func (tm *TileMap) render(ctx context.Context, layer Layer, t maptile.Tile) ([]byte, error) {
	var (
		zoom   = int(t.Z)
		tiler  = projection.NewTiler(zoom)
		bounds = tileBounds(t)
		xo     = float64(t.X)
		yo     = float64(t.Y)
	)

	im := image.NewRGBA(image.Rect(0, 0, projection.TileSize, projection.TileSize))

	pixel := func(lat, long float64) (px, py float64) {
		x, y := tiler.Tile(lat, long)
		return (x - xo) * projection.TileSize, (y - yo) * projection.TileSize
	}

	if layer == LayerSpot || layer == LayerAll {
		dx, dy := tm.spot.Bounds().Dx(), tm.spot.Bounds().Dy()

		tm.spots.RectFunc(bounds.X0, bounds.Y0, bounds.X1, bounds.Y1, func(i int) bool {
			px, py := pixel(tm.images[i].Latitude, tm.images[i].Longitude)
			x0, y0 := int(px)-dx/2, int(py)-dy/2
			draw.Draw(im, image.Rect(x0, y0, x0+dx, y0+dy), tm.spot, tm.spot.Bounds().Min, draw.Over)
			return true
		})

		setAlpha(im, 127)
	}

	if layer == LayerPhoto || layer == LayerAll {
		drawPhoto := func(px, py float64, i int) {
			key := tm.images[i].Key

			icon, err := tm.iconer.PhotoIcon(ctx, key)
			if err != nil {
				slog.Error("cannot get photo icon", "key", key, "error", err)
				return
			}

			dx, dy := icon.Bounds().Dx(), icon.Bounds().Dy()
			x0, y0 := int(px)-dx/2, int(py)-dy/2
			draw.Draw(im, image.Rect(x0, y0, x0+dx, y0+dy), icon, icon.Bounds().Min, draw.Over)
		}

		tm.tree.Query(bounds.X0, bounds.Y0, bounds.X1, bounds.Y1, clusterDist(zoom), func(c clusterer.Point, elem []int) {
			px, py := pixel(projection.Merc2Lat(c.Y), c.X)

			if len(elem) > 1 {
				if len(elem) > pileMax {
					elem = elem[:pileMax]
				}

				area := float64(len(elem)) * pilePhotoArea
				rmax := math.Sqrt(area / math.Pi)
				rgen := newRgen(c.X, c.Y)

				for _, i := range elem[1:] {
					sin, cos := math.Sincos(2 * math.Pi * rgen.Float64())
					r := math.Sqrt(rgen.Float64()) * rmax
					drawPhoto(px+r*cos, py+r*sin, i)
				}
			}

			drawPhoto(px, py, elem[0])
		})
	}

	return encodeTile(im)
}

func encodeTile(im image.Image) ([]byte, error) {
	buf := &bytes.Buffer{}

	if err := png.Encode(buf, im); err != nil {
		return nil, fmt.Errorf("error encoding tile: %w", err)
	}

	return buf.Bytes(), nil
}

/*
setAlpha scales every channel of the premultiplied image by alpha/256.
*/
func setAlpha(im *image.RGBA, alpha uint8) {
	dx, dy := im.Bounds().Dx(), im.Bounds().Dy()
	p0 := im.PixOffset(im.Bounds().Min.X, im.Bounds().Min.Y)
	a := uint32(alpha)

	for y := 0; y < dy; y++ {
		row := im.Pix[p0 : p0+4*dx]
		for i, p := range row {
			row[i] = uint8((uint32(p) * a) >> 8)
		}
		p0 += im.Stride
	}
}

/*
blurrySpot returns a disc of clr fading linearly to transparent at its
edge.
*/
func blurrySpot(clr color.NRGBA, size int) *image.RGBA {
	im := image.NewRGBA(image.Rect(0, 0, size, size))
	c := float64(size) / 2

	for xi := 0; xi < size; xi++ {
		for yi := 0; yi < size; yi++ {
			dx, dy := float64(xi)-c, float64(yi)-c
			intensity := math.Max(0, 1-math.Sqrt(dx*dx+dy*dy)/c)

			cp := clr
			cp.A = uint8(float64(clr.A) * intensity)
			im.Set(xi, yi, cp)
		}
	}

	return im
}

/*
newRgen seeds a generator from the fractional parts of x and y, so a
pile is scattered the same way on every tile it touches.
*/
func newRgen(x, y float64) *rand.Rand {
	const m = 65536

	xv := int64(m * (x - math.Floor(x)))
	yv := int64(m * (y - math.Floor(y)))

	return rand.New(rand.NewSource(yv*m + xv))
}
