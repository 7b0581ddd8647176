/*
Package tilemap renders the photo overlay tiles of the map and answers
the location queries of the viewer. A TileMap is built from a snapshot
of located images and is immutable afterwards, apart from its tile cache.
*/
package tilemap

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/adampresley/photomap/pkg/clusterer"
	"github.com/adampresley/photomap/pkg/geoindex"
	"github.com/adampresley/photomap/pkg/metrics"
	"github.com/adampresley/photomap/pkg/models"
	"github.com/adampresley/photomap/pkg/projection"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb/maptile"
)

// about 5 meters on the equator
const photoMinSep = 5e-5

const (
	MaxZoom          = 30
	DefaultCacheSize = 4096
)

var (
	ErrInvalidZoom  = fmt.Errorf("zoom out of range")
	ErrInvalidLayer = fmt.Errorf("unknown tile layer")
)

type Layer string

const (
	LayerSpot  Layer = "spot"
	LayerPhoto Layer = "photo"
	LayerAll   Layer = "all"
)

func ParseLayer(s string) (Layer, error) {
	switch l := Layer(s); l {
	case LayerSpot, LayerPhoto, LayerAll:
		return l, nil
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidLayer, s)
}

/*
PhotoIconer provides the small framed icons drawn on photo tiles.
*/
type PhotoIconer interface {
	PhotoIcon(ctx context.Context, key string) (image.Image, error)
}

type TileMapConfig struct {
	Iconer    PhotoIconer
	Metrics   *metrics.Metrics
	CacheSize int
}

type TileMap struct {
	images  []models.Image
	spots   *geoindex.Index
	tree    *clusterer.Tree
	iconer  PhotoIconer
	metrics *metrics.Metrics
	created time.Time
	spot    *image.RGBA

	mu    sync.Mutex
	cache *lru.Cache[tileKey, *renderedTile]
}

type tileKey struct {
	layer Layer
	tile  maptile.Tile
}

type renderedTile struct {
	once sync.Once
	data []byte
	err  error
}

/*
New indexes images for rendering. images must not be modified
afterwards.
*/
func New(images []models.Image, config TileMapConfig) (*TileMap, error) {
	var (
		err   error
		cache *lru.Cache[tileKey, *renderedTile]
	)

	size := config.CacheSize
	if size < 1 {
		size = DefaultCacheSize
	}

	if cache, err = lru.New[tileKey, *renderedTile](size); err != nil {
		return nil, fmt.Errorf("error creating tile cache: %w", err)
	}

	pts := imagePoints(images)

	return &TileMap{
		images:  images,
		spots:   geoindex.New(pts),
		tree:    clusterer.NewTree(pts, photoMinSep),
		iconer:  config.Iconer,
		metrics: config.Metrics,
		created: time.Now(),
		spot:    blurrySpot(color.NRGBA{255, 0, 0, 64}, 16),
		cache:   cache,
	}, nil
}

/*
ModTime is the time the map was built. Everything the map serves is
unchanged since then.
*/
func (tm *TileMap) ModTime() time.Time {
	return tm.created
}

func (tm *TileMap) Len() int {
	return tm.spots.Len()
}

func (tm *TileMap) SpotTile(ctx context.Context, x, y, zoom int) ([]byte, error) {
	return tm.Render(ctx, LayerSpot, x, y, zoom)
}

func (tm *TileMap) PhotoTile(ctx context.Context, x, y, zoom int) ([]byte, error) {
	return tm.Render(ctx, LayerPhoto, x, y, zoom)
}

/*
Tile renders photo icons over the photo spots.
*/
func (tm *TileMap) Tile(ctx context.Context, x, y, zoom int) ([]byte, error) {
	return tm.Render(ctx, LayerAll, x, y, zoom)
}

/*
Render returns the PNG encoded tile of layer at x, y, zoom. x wraps
around the globe, rows outside the map are transparent. Each tile is
rendered once; concurrent callers of the same tile wait for the first.
*/
func (tm *TileMap) Render(ctx context.Context, layer Layer, x, y, zoom int) ([]byte, error) {
	if zoom < 0 || zoom > MaxZoom {
		return nil, fmt.Errorf("%w: %d", ErrInvalidZoom, zoom)
	}

	if _, err := ParseLayer(string(layer)); err != nil {
		return nil, err
	}

	n := projection.NewTiler(zoom).TileCount()
	if y < 0 || y >= n {
		return transparentTile()
	}

	key := tileKey{
		layer: layer,
		tile:  maptile.New(uint32(x&(n-1)), uint32(y), maptile.Zoom(zoom)),
	}

	tm.mu.Lock()
	rt, ok := tm.cache.Get(key)
	if !ok {
		rt = &renderedTile{}
		tm.cache.Add(key, rt)
	}
	tm.mu.Unlock()

	if ok {
		tm.metrics.TileCacheHit()
	}

	rt.once.Do(func() {
		// the result is shared with other callers
		rt.data, rt.err = tm.render(context.WithoutCancel(ctx), layer, key.tile)
		tm.metrics.TileRendered(string(layer))
	})

	return rt.data, rt.err
}

/*
tileBounds returns the area of the tile in longitude, mercator
latitude space including a gap that lets elements hanging over from
neighbouring tiles show.
*/
func tileBounds(t maptile.Tile) clusterer.Rectangle {
	b := t.Bound(gap)

	return clusterer.Rectangle{
		X0: b.Min[0],
		Y0: projection.Lat2Merc(b.Min[1]),
		X1: b.Max[0],
		Y1: projection.Lat2Merc(b.Max[1]),
	}
}

type imagePoints []models.Image

func (p imagePoints) Len() int { return len(p) }

func (p imagePoints) At(i int) (x, y float64) {
	return p[i].Longitude, projection.Lat2Merc(p[i].Latitude)
}

func (p imagePoints) Weight(i int) float64 { return 1 }
