package imagecache

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adampresley/photomap/pkg/models"
	"github.com/adampresley/photomap/pkg/services"
	"github.com/adampresley/photomap/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImage struct {
	modTime time.Time
	info    source.ImageInfo
	infoErr error
	panics  bool
	data    []byte
}

type fakeSource struct {
	mu     sync.Mutex
	images map[string]*fakeImage

	infoCalls atomic.Int32
	openCalls atomic.Int32
}

func (f *fakeSource) ModTimes(ctx context.Context) (map[string]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := map[string]time.Time{}
	for id, img := range f.images {
		result[id] = img.modTime
	}

	return result, nil
}

func (f *fakeSource) get(id string) (*fakeImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	img, ok := f.images[id]
	if !ok {
		return nil, source.ErrUnknownImage
	}

	return img, nil
}

func (f *fakeSource) Info(ctx context.Context, id string) (source.ImageInfo, error) {
	f.infoCalls.Add(1)

	img, err := f.get(id)
	if err != nil {
		return source.ImageInfo{}, err
	}

	if img.panics {
		panic("corrupt metadata in " + id)
	}

	return img.info, img.infoErr
}

func (f *fakeSource) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	f.openCalls.Add(1)

	img, err := f.get(id)
	if err != nil {
		return nil, err
	}

	return io.NopCloser(bytes.NewReader(img.data)), nil
}

func (f *fakeSource) Close() error { return nil }

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}

	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func setup(t *testing.T) (*ImageCache, *fakeSource) {
	t.Helper()

	db, err := services.Connect("file:" + filepath.Join(t.TempDir(), "cache.db") + "?_pragma=busy_timeout(5000)")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Pool().Close()
	})

	mt := time.Date(2023, 7, 1, 10, 0, 0, 0, time.UTC)
	data := pngBytes(t, 64, 48)

	src := &fakeSource{
		images: map[string]*fakeImage{
			"mem://a.png": {modTime: mt, info: source.ImageInfo{CreateTime: mt, Width: 64, Height: 48, Lat: 47.5, Long: 19.0}, data: data},
			"mem://b.png": {modTime: mt, info: source.ImageInfo{CreateTime: mt, Width: 64, Height: 48, Lat: -33.9, Long: 151.2}, data: data},
			"mem://c.png": {modTime: mt, infoErr: fmt.Errorf("%w: no gps", source.ErrNoLocation), data: data},
		},
	}

	ic := New(ImageCacheConfig{
		Source:       src,
		ImageService: services.NewImageInfoService(services.ImageInfoServiceConfig{DB: db}),
		BlobService:  services.NewBlobService(services.BlobServiceConfig{DB: db}),
		MaxWorkers:   2,
	})

	t.Cleanup(func() {
		_ = ic.Close()
	})

	return ic, src
}

func TestSync(t *testing.T) {
	ic, src := setup(t)

	errs, err := ic.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], source.ErrNoLocation)

	images := ic.Images()
	require.Len(t, images, 2)
	assert.Equal(t, int32(3), src.infoCalls.Load())

	for _, img := range images {
		assert.False(t, img.Failed)
		assert.NotEmpty(t, img.Key)
		assert.NotZero(t, img.Latitude)
	}

	t.Run("unchanged sources are not read again", func(t *testing.T) {
		errs, err := ic.Sync(context.Background())
		require.NoError(t, err)
		assert.Empty(t, errs)
		assert.Equal(t, int32(3), src.infoCalls.Load())
		assert.Len(t, ic.Images(), 2)
	})

	t.Run("modified sources are read again", func(t *testing.T) {
		key := keyOf(t, ic, "mem://a.png")

		_, _, err := ic.Thumbnail(context.Background(), key)
		require.NoError(t, err)
		_, err = ic.PhotoIcon(context.Background(), key)
		require.NoError(t, err)
		require.Equal(t, int32(2), src.openCalls.Load())

		src.mu.Lock()
		src.images["mem://a.png"].modTime = src.images["mem://a.png"].modTime.Add(time.Hour)
		src.images["mem://a.png"].info.Lat = 10
		src.mu.Unlock()

		_, err = ic.Sync(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int32(4), src.infoCalls.Load())

		_, err = ic.blobService.Get(models.BlobThumbnail, key)
		assert.ErrorIs(t, err, services.ErrNotFound)
		_, err = ic.blobService.Get(models.BlobPhotoIcon, key)
		assert.ErrorIs(t, err, services.ErrNotFound)

		_, _, err = ic.Thumbnail(context.Background(), key)
		require.NoError(t, err)
		_, err = ic.PhotoIcon(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, int32(4), src.openCalls.Load())

		lats := []float64{}
		for _, img := range ic.Images() {
			lats = append(lats, img.Latitude)
		}

		assert.Contains(t, lats, 10.0)
	})

	t.Run("removed sources are dropped", func(t *testing.T) {
		src.mu.Lock()
		delete(src.images, "mem://b.png")
		src.mu.Unlock()

		_, err := ic.Sync(context.Background())
		require.NoError(t, err)
		require.Len(t, ic.Images(), 1)
		assert.Equal(t, "mem://a.png", ic.Images()[0].SourceID)
	})
}

func TestSyncSurvivesPanickingDecoder(t *testing.T) {
	ic, src := setup(t)

	src.mu.Lock()
	src.images["mem://d.png"] = &fakeImage{modTime: time.Now(), panics: true}
	src.mu.Unlock()

	errs, err := ic.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, errs, 2)

	messages := []string{errs[0].Error(), errs[1].Error()}
	assert.Contains(t, strings.Join(messages, "\n"), "error reading 'mem://d.png': panic")

	images := ic.Images()
	require.Len(t, images, 2)

	for _, img := range images {
		assert.NotEmpty(t, img.Key)
		assert.NotEqual(t, "mem://d.png", img.SourceID)
		assert.NotZero(t, img.Latitude)
	}

	t.Run("the failed image is not read again until modified", func(t *testing.T) {
		calls := src.infoCalls.Load()

		errs, err := ic.Sync(context.Background())
		require.NoError(t, err)
		assert.Empty(t, errs)
		assert.Equal(t, calls, src.infoCalls.Load())
	})
}

func keyOf(t *testing.T, ic *ImageCache, id string) string {
	t.Helper()

	for _, img := range ic.Images() {
		if img.SourceID == id {
			return img.Key
		}
	}

	t.Fatalf("no image for %s", id)
	return ""
}

func TestImage(t *testing.T) {
	ic, _ := setup(t)

	_, err := ic.Sync(context.Background())
	require.NoError(t, err)

	img, err := ic.Image(keyOf(t, ic, "mem://b.png"))
	require.NoError(t, err)
	assert.Equal(t, "mem://b.png", img.SourceID)
	assert.InDelta(t, -33.9, img.Latitude, 1e-9)

	_, err = ic.Image("nope")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestPhotoIcon(t *testing.T) {
	ic, src := setup(t)

	_, err := ic.Sync(context.Background())
	require.NoError(t, err)

	key := ic.Images()[0].Key

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			icon, err := ic.PhotoIcon(context.Background(), key)
			assert.NoError(t, err)
			assert.Equal(t, image.Pt(40, 36), icon.Bounds().Size())
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), src.openCalls.Load())

	_, err = ic.PhotoIcon(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestThumbnail(t *testing.T) {
	ic, src := setup(t)

	_, err := ic.Sync(context.Background())
	require.NoError(t, err)

	key := ic.Images()[0].Key

	rs, mt, err := ic.Thumbnail(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, mt.IsZero())

	img, err := jpeg.Decode(rs)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(100, 75), img.Bounds().Size())

	_, _, err = ic.Thumbnail(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.openCalls.Load())

	_, _, err = ic.Thumbnail(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestParallelGroupDeduplicates(t *testing.T) {
	g := newParallelGroup(2)
	defer g.Stop()

	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			v, err := g.Do("k", func() (any, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})

			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}
