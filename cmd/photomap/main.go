package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/adampresley/adamgokit/cron"
	"github.com/adampresley/adamgokit/httphelpers"
	"github.com/adampresley/adamgokit/mux"
	"github.com/adampresley/photomap/internal/configuration"
	"github.com/adampresley/photomap/cmd/photomap/internal/mapview"
	"github.com/adampresley/photomap/pkg/imagecache"
	"github.com/adampresley/photomap/pkg/metrics"
	"github.com/adampresley/photomap/pkg/services"
	"github.com/adampresley/photomap/pkg/source"
	_ "github.com/adampresley/photomap/pkg/source/filesystem"
	_ "github.com/adampresley/photomap/pkg/source/s3source"
	"github.com/adampresley/photomap/pkg/tilemap"
	"github.com/rfberaldo/sqlz"
)

var (
	Version string = "development"
	appName string = "photomap"

	config configuration.Config

	/* Services */
	db           *sqlz.DB
	appMetrics   *metrics.Metrics
	blobService  services.BlobServicer
	imageCache   *imagecache.ImageCache
	imageService services.ImageInfoServicer
	imageSource  source.ImageSource
	maps         = &currentMap{}

	/* Controllers */
	mapViewController mapview.MapViewHandlers
)

func main() {
	var (
		err error
	)

	config = configuration.LoadConfig()
	setupLogger(&config, Version)

	slog.Info("configuration loaded",
		slog.String("app", appName),
		slog.String("version", Version),
		slog.String("loglevel", config.LogLevel),
		slog.String("host", config.Host),
		slog.String("source", config.Source),
	)

	slog.Debug("setting up...")

	ensureDataDirectory(config.DSN)

	if db, err = services.Connect(config.DSN); err != nil {
		slog.Error("error opening the image cache database", "error", err)
		os.Exit(1)
	}

	/*
	 * Setup services
	 */
	if config.EnableMetrics {
		appMetrics = metrics.New(appName)
	}

	imageService = services.NewImageInfoService(services.ImageInfoServiceConfig{
		DB: db,
	})

	blobService = services.NewBlobService(services.BlobServiceConfig{
		DB: db,
	})

	if imageSource, err = source.Open(config.Source, config.SourceArgument()); err != nil {
		slog.Error("error opening the image source", "source", config.Source, "drivers", source.Drivers(), "error", err)
		_ = db.Pool().Close()
		os.Exit(1)
	}

	imageCache = imagecache.New(imagecache.ImageCacheConfig{
		Source:       imageSource,
		ImageService: imageService,
		BlobService:  blobService,
		Metrics:      appMetrics,
		MaxWorkers:   config.MaxWorkers,
	})

	if err = rebuildTileMap(context.Background()); err != nil {
		slog.Error("error building the photo map", "error", err)
		_ = imageCache.Close()
		_ = db.Pool().Close()
		os.Exit(1)
	}

	/*
	 * Setup controllers
	 */
	mapViewController = mapview.NewMapViewController(mapview.MapViewControllerConfig{
		Config:      &config,
		Maps:        maps,
		Metrics:     appMetrics,
		Thumbnailer: imageCache,
	})

	/*
	 * Setup router and http server
	 */
	slog.Debug("setting up routes...")

	routes := []mux.Route{
		{Path: "GET /heartbeat", HandlerFunc: heartbeat},
		{Path: "GET /bounds.json", HandlerFunc: mapViewController.Bounds},
		{Path: "GET /viewport.json", HandlerFunc: mapViewController.Viewport},
		{Path: "GET /gallery.json", HandlerFunc: mapViewController.Gallery},
		{Path: "GET /photos.json", HandlerFunc: mapViewController.Photos},
		{Path: "GET /tile/spot/{tile}", HandlerFunc: mapViewController.SpotTile},
		{Path: "GET /tile/photo/{tile}", HandlerFunc: mapViewController.PhotoTile},
		{Path: "GET /tiles/tile.png", HandlerFunc: mapViewController.TileQuery},
		{Path: "GET /tiles/{tile}", HandlerFunc: mapViewController.Tile},
		{Path: "GET /thumb/{key}", HandlerFunc: mapViewController.Thumbnail},
		{Path: "GET /", HandlerFunc: mapViewController.Static},
	}

	if config.EnableMetrics {
		routes = append(routes, mux.Route{Path: "GET " + config.MetricsPath, HandlerFunc: appMetrics.Handler().ServeHTTP})
	}

	routerConfig := mux.RouterConfig{
		Address: config.Host,
		Debug:   Version == "development",
	}

	m := mux.SetupRouter(routerConfig, routes)
	httpServer, quit := mux.SetupServer(routerConfig, m)

	/*
	 * Start cron jobs
	 */
	setupRescan()
	cron.Start()

	/*
	 * Wait for graceful shutdown
	 */
	slog.Info("server started", "photos", maps.TileMap().Len())

	<-quit
	_ = cron.Stop()
	mux.Shutdown(httpServer)

	if err = imageCache.Close(); err != nil {
		slog.Error("error closing the image source", "error", err)
	}

	if err = db.Pool().Close(); err != nil {
		slog.Error("error closing the database", "error", err)
	}

	slog.Info("server stopped")
}

func heartbeat(w http.ResponseWriter, r *http.Request) {
	httphelpers.TextOK(w, "OK")
}

/*
currentMap holds the tile map being served. Rescans replace it as a
whole, so a request sees either the old or the new map.
*/
type currentMap struct {
	p atomic.Pointer[tilemap.TileMap]
}

func (c *currentMap) TileMap() *tilemap.TileMap {
	return c.p.Load()
}

/*
rebuildTileMap syncs the image cache with the source and replaces the
served tile map.
*/
func rebuildTileMap(ctx context.Context) error {
	var (
		err  error
		errs []error
		tm   *tilemap.TileMap
	)

	if errs, err = imageCache.Sync(ctx); err != nil {
		return err
	}

	if len(errs) > 0 {
		slog.Warn("some images could not be read", "count", len(errs))
		for _, e := range errs {
			slog.Debug("image skipped", "error", e)
		}
	}

	tm, err = tilemap.New(imageCache.Images(), tilemap.TileMapConfig{
		Iconer:    imageCache,
		Metrics:   appMetrics,
		CacheSize: config.TileCacheSize,
	})

	if err != nil {
		return err
	}

	maps.p.Store(tm)
	return nil
}

func setupRescan() {
	if config.RescanSchedule == "" {
		return
	}

	cron.Add(config.RescanSchedule, func() {
		if err := rebuildTileMap(context.Background()); err != nil {
			if errors.Is(err, imagecache.ErrSyncAlreadyRunning) {
				slog.Info("skipping rescan, a sync is already running")
				return
			}

			slog.Error("error rescanning the image source", "error", err)
			return
		}

		slog.Info("rescan completed", "photos", maps.TileMap().Len())
	})
}

/*
ensureDataDirectory creates the directory of a file based sqlite DSN.
*/
func ensureDataDirectory(dsn string) {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Warn("could not create the data directory", "path", path, "error", err)
	}
}
