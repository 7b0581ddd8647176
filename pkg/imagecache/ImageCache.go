/*
Package imagecache keeps the map's view of the image source: one
entry per located photo, plus photo icons and thumbnails generated on
demand. Entries live in the database and are refreshed by Sync.
*/
package imagecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/adampresley/photomap/pkg/metrics"
	"github.com/adampresley/photomap/pkg/models"
	"github.com/adampresley/photomap/pkg/services"
	"github.com/adampresley/photomap/pkg/source"
	"github.com/adampresley/photomap/pkg/thumber"
	"github.com/alitto/pond/v2"
)

var (
	ErrSyncAlreadyRunning = fmt.Errorf("image cache sync is already running")
	ErrUnknownKey         = fmt.Errorf("unknown image key")
)

type ImageCacheConfig struct {
	Source       source.ImageSource
	ImageService services.ImageInfoServicer
	BlobService  services.BlobServicer
	Metrics      *metrics.Metrics

	// MaxWorkers bounds both scan parallelism and icon/thumbnail generation
	MaxWorkers int
}

type ImageCache struct {
	src          source.ImageSource
	imageService services.ImageInfoServicer
	blobService  services.BlobServicer
	metrics      *metrics.Metrics
	maxWorkers   int

	syncMu sync.Mutex

	// snapshot, replaced as a whole by Sync
	mu        sync.RWMutex
	keySource map[string]string
	images    []models.Image

	iconMu sync.RWMutex
	icons  map[string]cachedImage

	iconThumber  *thumber.Thumber
	thumbThumber *thumber.Thumber
	iconGen      *parallelGroup
	thumbGen     *parallelGroup
}

// cachedImage is an image or the error that occurred generating it
type cachedImage struct {
	img image.Image
	err error
}

func New(config ImageCacheConfig) *ImageCache {
	workers := config.MaxWorkers
	if workers < 1 {
		workers = 4
	}

	return &ImageCache{
		src:          config.Source,
		imageService: config.ImageService,
		blobService:  config.BlobService,
		metrics:      config.Metrics,
		maxWorkers:   workers,
		keySource:    map[string]string{},
		icons:        map[string]cachedImage{},
		iconThumber:  thumber.NewPhotoIconThumber(),
		thumbThumber: thumber.NewThumbnailThumber(),
		iconGen:      newParallelGroup(workers),
		thumbGen:     newParallelGroup(workers),
	}
}

/*
Images returns the located images of the last Sync ordered by key.
The slice must not be modified.
*/
func (ic *ImageCache) Images() []models.Image {
	ic.mu.RLock()
	defer ic.mu.RUnlock()

	return ic.images
}

/*
Image returns the stored entry of the image with key, including
entries whose location could not be read.
*/
func (ic *ImageCache) Image(key string) (*models.Image, error) {
	img, err := ic.imageService.Get(key)
	if errors.Is(err, services.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	return img, err
}

func (ic *ImageCache) Close() error {
	ic.iconGen.Stop()
	ic.thumbGen.Stop()
	return ic.src.Close()
}

type refreshResult struct {
	image models.Image
	err   error
}

/*
Sync brings the cache in line with the image source. Images whose
source modification time is newer than the cached entry are read again
and their icons and thumbnails are dropped. Entries for images no longer
in the source are removed. Per-image failures are returned in the error
slice and do not stop the sync.
*/
func (ic *ImageCache) Sync(ctx context.Context) ([]error, error) {
	var (
		err      error
		modTimes map[string]time.Time
		cached   []*models.Image
		errs     []error
	)

	if !ic.syncMu.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}

	defer ic.syncMu.Unlock()

	if modTimes, err = ic.src.ModTimes(ctx); err != nil {
		return nil, fmt.Errorf("error listing source images: %w", err)
	}

	if cached, err = ic.imageService.All(); err != nil {
		return nil, err
	}

	byKey := make(map[string]*models.Image, len(cached))
	for _, c := range cached {
		byKey[c.Key] = c
	}

	sourceIDs := make([]string, 0, len(modTimes))
	for id := range modTimes {
		sourceIDs = append(sourceIDs, id)
	}

	sort.Strings(sourceIDs)

	/*
	 * Keys are allocated sequentially. Stale entries are read from the
	 * source in parallel.
	 */
	keySource := make(map[string]string, len(sourceIDs))
	keep := make([]string, 0, len(sourceIDs))
	fresh := make([]models.Image, 0, len(sourceIDs))

	pool := pond.NewResultPool[refreshResult](ic.maxWorkers)
	defer pool.StopAndWait()

	group := pool.NewGroup()
	stale := 0

	for _, id := range sourceIDs {
		key, err := ic.imageService.GetKey(id)
		if err != nil {
			return errs, err
		}

		keySource[key] = id
		keep = append(keep, key)
		mt := modTimes[id]

		if c, ok := byKey[key]; ok && c.IsFresh(id, mt) {
			fresh = append(fresh, *c)
			continue
		}

		stale++

		group.Submit(func() refreshResult {
			return ic.readInfo(ctx, key, id, mt)
		})
	}

	results, err := group.Wait()
	if err != nil {
		return errs, fmt.Errorf("error reading image infos: %w", err)
	}

	for _, r := range results {
		if r.image.Key == "" {
			continue
		}

		if r.err != nil {
			errs = append(errs, r.err)
		}

		if _, ok := byKey[r.image.Key]; ok {
			ic.forget(r.image.Key)
		}

		if err = ic.imageService.Save(&r.image); err != nil {
			return errs, err
		}

		fresh = append(fresh, r.image)
	}

	removed, err := ic.imageService.DeleteMissing(keep)
	if err != nil {
		return errs, err
	}

	for key := range byKey {
		if _, ok := keySource[key]; !ok {
			ic.forgetIcon(key)
		}
	}

	located := make([]models.Image, 0, len(fresh))
	for _, img := range fresh {
		if !img.Failed {
			located = append(located, img)
		}
	}

	sort.Slice(located, func(i, j int) bool {
		return located[i].Key < located[j].Key
	})

	ic.mu.Lock()
	ic.keySource = keySource
	ic.images = located
	ic.mu.Unlock()

	ic.metrics.ScanErrors(len(errs))
	ic.metrics.ImagesIndexed(len(located))

	slog.Info("image cache synchronized",
		"sourceImages", len(sourceIDs),
		"refreshed", stale,
		"located", len(located),
		"removed", removed,
		"errors", len(errs),
	)

	return errs, nil
}

func (ic *ImageCache) readInfo(ctx context.Context, key, id string, modTime time.Time) (result refreshResult) {
	result = refreshResult{
		image: models.Image{
			Key:      key,
			SourceID: id,
			ModTime:  modTime.Unix(),
		},
	}

	// metadata decoders may panic on corrupt files
	defer func() {
		if r := recover(); r != nil {
			result.image = models.Image{Key: key, SourceID: id, ModTime: modTime.Unix(), Failed: true}
			result.err = fmt.Errorf("error reading '%s': panic: %v", id, r)
		}
	}()

	info, err := ic.src.Info(ctx, id)
	if err != nil {
		result.image.Failed = true

		if errors.Is(err, source.ErrNoLocation) {
			result.err = fmt.Errorf("skipping '%s': %w", id, err)
		} else {
			result.err = fmt.Errorf("error reading '%s': %w", id, err)
		}

		return result
	}

	result.image.CreatedAt = info.CreateTime.Unix()
	result.image.Width = info.Width
	result.image.Height = info.Height
	result.image.Latitude = info.Lat
	result.image.Longitude = info.Long

	return result
}

// forget drops every derived image of key
func (ic *ImageCache) forget(key string) {
	if err := ic.blobService.Delete(key); err != nil {
		slog.Error("error deleting cached blobs", "key", key, "error", err)
	}

	ic.forgetIcon(key)
}

func (ic *ImageCache) forgetIcon(key string) {
	ic.iconMu.Lock()
	delete(ic.icons, key)
	ic.iconMu.Unlock()
}

func (ic *ImageCache) sourceID(key string) (string, error) {
	ic.mu.RLock()
	id, ok := ic.keySource[key]
	ic.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	return id, nil
}

/*
PhotoIcon returns the framed map icon of the image with key. Icons are
kept in memory once loaded from the database or generated.
*/
func (ic *ImageCache) PhotoIcon(ctx context.Context, key string) (image.Image, error) {
	ic.iconMu.RLock()
	cached, ok := ic.icons[key]
	ic.iconMu.RUnlock()

	if ok {
		return cached.img, cached.err
	}

	ctx = context.WithoutCancel(ctx)

	v, err := ic.iconGen.Do(key, func() (any, error) {
		return ic.loadOrCreatePhotoIcon(ctx, key)
	})

	if v != nil {
		cached.img = v.(image.Image)
	}

	cached.err = err

	if !errors.Is(err, ErrUnknownKey) {
		ic.iconMu.Lock()
		ic.icons[key] = cached
		ic.iconMu.Unlock()
	}

	return cached.img, cached.err
}

func (ic *ImageCache) loadOrCreatePhotoIcon(ctx context.Context, key string) (image.Image, error) {
	blob, err := ic.blobService.Get(models.BlobPhotoIcon, key)
	if err == nil {
		img, _, err := image.Decode(bytes.NewReader(blob.Data))
		if err == nil {
			return img, nil
		}

		slog.Warn("discarding undecodable photo icon", "key", key, "error", err)
	} else if !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}

	img, err := ic.loadSourceImage(ctx, key)
	if err != nil {
		return nil, err
	}

	icon := ic.iconThumber.PhotoIcon(img)
	ic.metrics.Generated(string(models.BlobPhotoIcon))

	buf := &bytes.Buffer{}
	if err = png.Encode(buf, icon); err != nil {
		return nil, fmt.Errorf("error encoding photo icon of '%s': %w", key, err)
	}

	if _, err = ic.blobService.Put(models.BlobPhotoIcon, key, buf.Bytes()); err != nil {
		slog.Error("error storing photo icon", "key", key, "error", err)
	}

	return icon, nil
}

/*
Thumbnail returns the JPEG gallery thumbnail of the image with key,
along with the time it was generated.
*/
func (ic *ImageCache) Thumbnail(ctx context.Context, key string) (io.ReadSeeker, time.Time, error) {
	if _, err := ic.sourceID(key); err != nil {
		return nil, time.Time{}, err
	}

	blob, err := ic.blobService.Get(models.BlobThumbnail, key)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return nil, time.Time{}, err
	}

	if err != nil {
		ctx = context.WithoutCancel(ctx)

		v, err := ic.thumbGen.Do(key, func() (any, error) {
			return ic.createThumbnail(ctx, key)
		})

		if err != nil {
			return nil, time.Time{}, err
		}

		blob = v.(*models.Blob)
	}

	return bytes.NewReader(blob.Data), blob.CreateTime(), nil
}

func (ic *ImageCache) createThumbnail(ctx context.Context, key string) (*models.Blob, error) {
	img, err := ic.loadSourceImage(ctx, key)
	if err != nil {
		return nil, err
	}

	thumb := ic.thumbThumber.Thumb(img)
	ic.metrics.Generated(string(models.BlobThumbnail))

	buf := &bytes.Buffer{}
	if err = jpeg.Encode(buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("error encoding thumbnail of '%s': %w", key, err)
	}

	blob, err := ic.blobService.Put(models.BlobThumbnail, key, buf.Bytes())
	if err != nil {
		slog.Error("error storing thumbnail", "key", key, "error", err)

		return &models.Blob{
			Kind:      string(models.BlobThumbnail),
			Key:       key,
			Data:      buf.Bytes(),
			CreatedAt: time.Now().Unix(),
		}, nil
	}

	return blob, nil
}

func (ic *ImageCache) loadSourceImage(ctx context.Context, key string) (image.Image, error) {
	var (
		err error
		id  string
		rc  io.ReadCloser
		img image.Image
	)

	if id, err = ic.sourceID(key); err != nil {
		return nil, err
	}

	if rc, err = ic.src.Open(ctx, id); err != nil {
		return nil, fmt.Errorf("error opening '%s': %w", id, err)
	}

	defer rc.Close()

	if img, err = source.LoadImage(rc); err != nil {
		return nil, fmt.Errorf("error loading '%s': %w", id, err)
	}

	return img, nil
}
