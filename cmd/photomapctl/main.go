package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/adampresley/photomap/internal/configuration"
	"github.com/adampresley/photomap/pkg/imagecache"
	"github.com/adampresley/photomap/pkg/services"
	"github.com/adampresley/photomap/pkg/source"
	_ "github.com/adampresley/photomap/pkg/source/filesystem"
	_ "github.com/adampresley/photomap/pkg/source/s3source"
	"github.com/adampresley/photomap/pkg/tilemap"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	dsn        string
	sourceName string
	sourceArg  string
	awsProfile string
	maxWorkers int
	verbose    bool

	outputFile string
	layerName  string
	count      int
)

var rootCmd = &cobra.Command{
	Use:   "photomapctl",
	Short: "Maintain the photo map image cache",
	Long:  `Scan the image source into the photo map cache and render map data without running the server.`,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Sync the image cache with the image source",
	Args:  cobra.NoArgs,
	RunE:  runScan,
}

var boundsCmd = &cobra.Command{
	Use:   "bounds",
	Short: "Print the center and extent of all photos",
	Args:  cobra.NoArgs,
	RunE:  runBounds,
}

var tileCmd = &cobra.Command{
	Use:   "tile x y zoom",
	Short: "Render a map tile to a PNG file",
	Args:  cobra.ExactArgs(3),
	RunE:  runTile,
}

var nearestCmd = &cobra.Command{
	Use:   "nearest lat long",
	Short: "List the photos closest to a position",
	Args:  cobra.ExactArgs(2),
	RunE:  runNearest,
}

func init() {
	defaults, err := configuration.LoadEnvConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", defaults.DSN, "Image cache database connection")
	rootCmd.PersistentFlags().StringVar(&sourceName, "source", defaults.Source, "Image source driver")
	rootCmd.PersistentFlags().StringVar(&sourceArg, "sourcearg", defaults.SourceArg, "Image source argument")
	rootCmd.PersistentFlags().StringVar(&awsProfile, "awsprofile", defaults.AWSProfile, "Shared config profile used by the s3 image source")
	rootCmd.PersistentFlags().IntVarP(&maxWorkers, "workers", "w", defaults.MaxWorkers, "Number of concurrent workers")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	tileCmd.Flags().StringVarP(&outputFile, "output", "o", "tile.png", "Output file")
	tileCmd.Flags().StringVar(&layerName, "layer", string(tilemap.LayerAll), "Tile layer: spot, photo or all")

	nearestCmd.Flags().IntVarP(&count, "count", "n", 5, "Number of photos to list")

	rootCmd.AddCommand(scanCmd, boundsCmd, tileCmd, nearestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	return withImageCache(cmd.Context(), func(ic *imagecache.ImageCache, errs []error) error {
		fmt.Fprintf(cmd.OutOrStdout(), "%d located images, %d skipped\n", len(ic.Images()), len(errs))

		if verbose {
			for _, err := range errs {
				fmt.Fprintln(cmd.OutOrStdout(), "  ", err)
			}
		}

		return nil
	})
}

func runBounds(cmd *cobra.Command, args []string) error {
	return withTileMap(cmd.Context(), func(tm *tilemap.TileMap) error {
		b := tm.Bounds()

		out, err := json.MarshalIndent(map[string]float64{
			"lat":   b.Lat,
			"long":  b.Long,
			"dlat":  b.DLat,
			"dlong": b.DLong,
		}, "", "  ")

		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	})
}

func runTile(cmd *cobra.Command, args []string) error {
	var (
		err   error
		layer tilemap.Layer
	)

	coords := make([]int, 3)
	for i, a := range args {
		if coords[i], err = strconv.Atoi(a); err != nil {
			return fmt.Errorf("invalid tile coordinate %q: %w", a, err)
		}
	}

	if layer, err = tilemap.ParseLayer(layerName); err != nil {
		return err
	}

	return withTileMap(cmd.Context(), func(tm *tilemap.TileMap) error {
		data, err := tm.Render(cmd.Context(), layer, coords[0], coords[1], coords[2])
		if err != nil {
			return err
		}

		if err = os.WriteFile(outputFile, data, 0o644); err != nil {
			return fmt.Errorf("error writing tile: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "tile %d/%d/%d written to %s\n", coords[2], coords[0], coords[1], outputFile)
		return nil
	})
}

func runNearest(cmd *cobra.Command, args []string) error {
	var (
		err   error
		coord = make([]float64, 2)
	)

	for i, a := range args {
		if coord[i], err = strconv.ParseFloat(a, 64); err != nil {
			return fmt.Errorf("invalid coordinate %q: %w", a, err)
		}
	}

	return withImageCache(cmd.Context(), func(ic *imagecache.ImageCache, errs []error) error {
		tm, err := newTileMap(ic)
		if err != nil {
			return err
		}

		for _, key := range tm.Nearest(coord[0], coord[1], count) {
			img, err := ic.Image(key)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.6f,%.6f\t%s\t%s\n",
				key, img.Latitude, img.Longitude, img.CreateTime().Format(time.DateOnly), img.SourceID)
		}

		return nil
	})
}

/*
withImageCache opens the cache database and the image source, syncs
them and hands the cache to f.
*/
func withImageCache(ctx context.Context, f func(ic *imagecache.ImageCache, errs []error) error) error {
	db, err := services.Connect(dsn)
	if err != nil {
		return err
	}

	defer db.Pool().Close()

	config := configuration.Config{
		AWSProfile: awsProfile,
		Source:     sourceName,
		SourceArg:  sourceArg,
	}

	src, err := source.Open(config.Source, config.SourceArgument())
	if err != nil {
		return err
	}

	ic := imagecache.New(imagecache.ImageCacheConfig{
		Source:       src,
		ImageService: services.NewImageInfoService(services.ImageInfoServiceConfig{DB: db}),
		BlobService:  services.NewBlobService(services.BlobServiceConfig{DB: db}),
		MaxWorkers:   maxWorkers,
	})

	defer ic.Close()

	errs, err := ic.Sync(ctx)
	if err != nil {
		return err
	}

	return f(ic, errs)
}

func withTileMap(ctx context.Context, f func(tm *tilemap.TileMap) error) error {
	return withImageCache(ctx, func(ic *imagecache.ImageCache, errs []error) error {
		tm, err := newTileMap(ic)
		if err != nil {
			return err
		}

		return f(tm)
	})
}

func newTileMap(ic *imagecache.ImageCache) (*tilemap.TileMap, error) {
	return tilemap.New(ic.Images(), tilemap.TileMapConfig{Iconer: ic, CacheSize: 1})
}
