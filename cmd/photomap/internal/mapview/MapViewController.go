package mapview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adampresley/adamgokit/httphelpers"
	"github.com/adampresley/photomap/internal/configuration"
	"github.com/adampresley/photomap/cmd/photomap/internal/viewmodels"
	"github.com/adampresley/photomap/pkg/imagecache"
	"github.com/adampresley/photomap/pkg/metrics"
	"github.com/adampresley/photomap/pkg/source"
	"github.com/adampresley/photomap/pkg/tilemap"
	"github.com/goccy/go-json"
)

type MapViewHandlers interface {
	Bounds(w http.ResponseWriter, r *http.Request)
	Gallery(w http.ResponseWriter, r *http.Request)
	Photos(w http.ResponseWriter, r *http.Request)
	PhotoTile(w http.ResponseWriter, r *http.Request)
	SpotTile(w http.ResponseWriter, r *http.Request)
	Static(w http.ResponseWriter, r *http.Request)
	Thumbnail(w http.ResponseWriter, r *http.Request)
	Tile(w http.ResponseWriter, r *http.Request)
	TileQuery(w http.ResponseWriter, r *http.Request)
	Viewport(w http.ResponseWriter, r *http.Request)
}

/*
TileMapper returns the tile map currently shown. A rescan may replace it
between two requests.
*/
type TileMapper interface {
	TileMap() *tilemap.TileMap
}

type Thumbnailer interface {
	Thumbnail(ctx context.Context, key string) (io.ReadSeeker, time.Time, error)
}

type MapViewControllerConfig struct {
	Config      *configuration.Config
	Maps        TileMapper
	Metrics     *metrics.Metrics
	Thumbnailer Thumbnailer
}

type MapViewController struct {
	config      *configuration.Config
	maps        TileMapper
	metrics     *metrics.Metrics
	static      http.Handler
	thumbnailer Thumbnailer
}

func NewMapViewController(config MapViewControllerConfig) MapViewController {
	return MapViewController{
		config:      config.Config,
		maps:        config.Maps,
		metrics:     config.Metrics,
		static:      newStaticHandler(config.Config),
		thumbnailer: config.Thumbnailer,
	}
}

func (c MapViewController) Bounds(w http.ResponseWriter, r *http.Request) {
	tm := c.maps.TileMap()
	c.serveJSON(w, r, "bounds", viewmodels.NewBounds(tm.Bounds()), tm.ModTime())
}

func (c MapViewController) Photos(w http.ResponseWriter, r *http.Request) {
	tm := c.maps.TileMap()
	c.serveJSON(w, r, "photos", viewmodels.NewPhotoCollection(tm.Points()), tm.ModTime())
}

func (c MapViewController) Viewport(w http.ResponseWriter, r *http.Request) {
	p := newParams(r)
	la0, lo0 := p.float("la0"), p.float("lo0")
	la1, lo1 := p.float("la1"), p.float("lo1")
	zoom := p.zoom("zoom")

	if p.err != nil {
		http.Error(w, "bounds/zoom invalid: "+p.err.Error(), http.StatusBadRequest)
		return
	}

	tm := c.maps.TileMap()
	places, radius := tm.PhotoPlaces(la0, lo0, la1, lo1, zoom)
	c.serveJSON(w, r, "viewport", viewmodels.NewViewport(places, radius), tm.ModTime())
}

func (c MapViewController) Gallery(w http.ResponseWriter, r *http.Request) {
	p := newParams(r)
	lat, long := p.float("la"), p.float("lo")
	zoom := p.zoom("zoom")

	if p.err != nil {
		http.Error(w, "loc/zoom invalid: "+p.err.Error(), http.StatusBadRequest)
		return
	}

	tm := c.maps.TileMap()

	keys := tm.Gallery(lat, long, zoom)
	if len(keys) == 0 {
		http.NotFound(w, r)
		return
	}

	c.serveJSON(w, r, "gallery", keys, tm.ModTime())
}

func (c MapViewController) SpotTile(w http.ResponseWriter, r *http.Request) {
	c.serveTilePath(w, r, tilemap.LayerSpot)
}

func (c MapViewController) PhotoTile(w http.ResponseWriter, r *http.Request) {
	c.serveTilePath(w, r, tilemap.LayerPhoto)
}

func (c MapViewController) Tile(w http.ResponseWriter, r *http.Request) {
	c.serveTilePath(w, r, tilemap.LayerAll)
}

/*
TileQuery serves /tiles/tile.png?x=&y=&zoom=.
*/
func (c MapViewController) TileQuery(w http.ResponseWriter, r *http.Request) {
	p := newParams(r)
	x, y := p.int("x"), p.int("y")
	zoom := p.zoom("zoom")

	if p.err != nil {
		http.Error(w, "tile invalid: "+p.err.Error(), http.StatusBadRequest)
		return
	}

	c.serveTile(w, r, tilemap.LayerAll, x, y, zoom)
}

func (c MapViewController) serveTilePath(w http.ResponseWriter, r *http.Request, layer tilemap.Layer) {
	x, y, zoom, err := parseTilePath(httphelpers.GetFromRequest[string](r, "tile"))
	if err != nil {
		http.Error(w, "invalid tile path: "+err.Error(), http.StatusBadRequest)
		return
	}

	c.serveTile(w, r, layer, x, y, zoom)
}

func (c MapViewController) serveTile(w http.ResponseWriter, r *http.Request, layer tilemap.Layer, x, y, zoom int) {
	var (
		err  error
		data []byte
	)

	tm := c.maps.TileMap()

	if data, err = tm.Render(r.Context(), layer, x, y, zoom); err != nil {
		if errors.Is(err, tilemap.ErrInvalidZoom) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		slog.Error("error rendering tile", "layer", layer, "x", x, "y", y, "zoom", zoom, "error", err)
		http.Error(w, "error rendering tile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, "tile.png", tm.ModTime(), bytes.NewReader(data))
}

func (c MapViewController) Thumbnail(w http.ResponseWriter, r *http.Request) {
	key := httphelpers.GetFromRequest[string](r, "key")

	rs, modTime, err := c.thumbnailer.Thumbnail(r.Context(), key)
	if errors.Is(err, imagecache.ErrUnknownKey) || errors.Is(err, source.ErrUnknownImage) {
		http.NotFound(w, r)
		return
	}

	if err != nil {
		slog.Error("error retrieving thumbnail", "key", key, "error", err)
		http.Error(w, "error retrieving thumbnail", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeContent(w, r, "thumb.jpeg", modTime, rs)
}

/*
Static serves the page assets. Without a static directory every
request is answered with 404.
*/
func (c MapViewController) Static(w http.ResponseWriter, r *http.Request) {
	c.static.ServeHTTP(w, r)
}

func (c MapViewController) serveJSON(w http.ResponseWriter, r *http.Request, endpoint string, data any, modTime time.Time) {
	c.metrics.JSONRequest(endpoint)

	b, err := json.Marshal(data)
	if err != nil {
		slog.Error("error marshaling response", "endpoint", endpoint, "error", err)
		http.Error(w, "error marshaling response", http.StatusInternalServerError)
		return
	}

	http.ServeContent(w, r, endpoint+".json", modTime, bytes.NewReader(b))
}

/*
parseTilePath parses "{x}_{y}_{zoom}".
*/
func parseTilePath(s string) (x, y, zoom int, err error) {
	parts := strings.Split(s, "_")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("want x_y_zoom, got %q", s)
	}

	values := make([]int, 3)
	for i, name := range []string{"x", "y", "zoom"} {
		if values[i], err = strconv.Atoi(parts[i]); err != nil {
			return 0, 0, 0, fmt.Errorf("%s invalid: %w", name, err)
		}
	}

	if err = checkZoom(values[2]); err != nil {
		return 0, 0, 0, err
	}

	return values[0], values[1], values[2], nil
}

func checkZoom(zoom int) error {
	if zoom < 0 || zoom > tilemap.MaxZoom {
		return fmt.Errorf("zoom must be between 0 and %d", tilemap.MaxZoom)
	}

	return nil
}
