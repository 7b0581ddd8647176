package tilemap

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/adampresley/photomap/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIconer struct {
	calls atomic.Int32
}

func (f *fakeIconer) PhotoIcon(ctx context.Context, key string) (image.Image, error) {
	f.calls.Add(1)

	im := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			im.Set(x, y, color.RGBA{0, 0, 255, 255})
		}
	}

	return im, nil
}

func newTestMap(t *testing.T, images []models.Image) (*TileMap, *fakeIconer) {
	t.Helper()

	iconer := &fakeIconer{}
	tm, err := New(images, TileMapConfig{Iconer: iconer, CacheSize: 16})
	require.NoError(t, err)

	return tm, iconer
}

func decodeTile(t *testing.T, data []byte) image.Image {
	t.Helper()

	im, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 256, 256), im.Bounds())

	return im
}

func alphaAt(im image.Image, x, y int) uint32 {
	_, _, _, a := im.At(x, y).RGBA()
	return a
}

var testImages = []models.Image{
	{Key: "c", CreatedAt: 300, Latitude: 10, Longitude: 10},
	{Key: "a", CreatedAt: 100, Latitude: 10.00001, Longitude: 10.00001},
	{Key: "b", CreatedAt: 100, Latitude: 10.00002, Longitude: 10},
	{Key: "far", CreatedAt: 50, Latitude: -20, Longitude: 40},
}

func TestParseLayer(t *testing.T) {
	for _, s := range []string{"spot", "photo", "all"} {
		l, err := ParseLayer(s)
		require.NoError(t, err)
		assert.Equal(t, Layer(s), l)
	}

	_, err := ParseLayer("heat")
	assert.ErrorIs(t, err, ErrInvalidLayer)
}

func TestRenderRejectsBadInput(t *testing.T) {
	tm, _ := newTestMap(t, testImages)

	_, err := tm.Tile(context.Background(), 0, 0, -1)
	assert.ErrorIs(t, err, ErrInvalidZoom)

	_, err = tm.Tile(context.Background(), 0, 0, MaxZoom+1)
	assert.ErrorIs(t, err, ErrInvalidZoom)

	_, err = tm.Render(context.Background(), Layer("heat"), 0, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidLayer)
}

func TestRenderOutsideRowsIsTransparent(t *testing.T) {
	tm, iconer := newTestMap(t, testImages)

	for _, y := range []int{-1, 4, 1000} {
		data, err := tm.Tile(context.Background(), 0, y, 2)
		require.NoError(t, err)

		im := decodeTile(t, data)
		assert.Zero(t, alphaAt(im, 128, 128))
	}

	assert.Zero(t, iconer.calls.Load())
}

func TestSpotTile(t *testing.T) {
	tm, iconer := newTestMap(t, []models.Image{{Key: "a", Latitude: 0, Longitude: 0}})

	data, err := tm.SpotTile(context.Background(), 0, 0, 0)
	require.NoError(t, err)

	im := decodeTile(t, data)
	r, g, b, a := im.At(128, 128).RGBA()

	assert.NotZero(t, a)
	assert.NotZero(t, r)
	assert.Zero(t, g)
	assert.Zero(t, b)
	assert.Less(t, a, uint32(0x8000))
	assert.Zero(t, alphaAt(im, 10, 10))
	assert.Zero(t, iconer.calls.Load())
}

func TestPhotoTile(t *testing.T) {
	tm, iconer := newTestMap(t, []models.Image{{Key: "a", Latitude: 0, Longitude: 0}})

	data, err := tm.PhotoTile(context.Background(), 0, 0, 0)
	require.NoError(t, err)

	im := decodeTile(t, data)
	r, g, b, a := im.At(128, 128).RGBA()

	assert.Equal(t, uint32(0xffff), a)
	assert.Equal(t, uint32(0xffff), b)
	assert.Zero(t, r)
	assert.Zero(t, g)
	assert.Zero(t, alphaAt(im, 10, 10))
	assert.Equal(t, int32(1), iconer.calls.Load())
}

func TestTileDrawsPhotosOverSpots(t *testing.T) {
	tm, _ := newTestMap(t, []models.Image{{Key: "a", Latitude: 0, Longitude: 0}})

	data, err := tm.Tile(context.Background(), 0, 0, 0)
	require.NoError(t, err)

	im := decodeTile(t, data)
	_, _, b, a := im.At(128, 128).RGBA()

	assert.Equal(t, uint32(0xffff), a)
	assert.Equal(t, uint32(0xffff), b)
}

func TestRenderIsCachedAndWraps(t *testing.T) {
	tm, iconer := newTestMap(t, testImages)
	ctx := context.Background()

	first, err := tm.PhotoTile(ctx, 2, 3, 2)
	require.NoError(t, err)
	calls := iconer.calls.Load()

	again, err := tm.PhotoTile(ctx, 2, 3, 2)
	require.NoError(t, err)
	wrapped, err := tm.PhotoTile(ctx, 2+4, 3, 2)
	require.NoError(t, err)
	negative, err := tm.PhotoTile(ctx, 2-4, 3, 2)
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.Equal(t, first, wrapped)
	assert.Equal(t, first, negative)
	assert.Equal(t, calls, iconer.calls.Load())
}

func TestRenderConcurrentCallersShareResult(t *testing.T) {
	tm, iconer := newTestMap(t, []models.Image{{Key: "a", Latitude: 0, Longitude: 0}})

	var wg sync.WaitGroup
	results := make([][]byte, 16)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := tm.PhotoTile(context.Background(), 0, 0, 0)
			assert.NoError(t, err)
			results[i] = data
		}(i)
	}

	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
	assert.Equal(t, int32(1), iconer.calls.Load())
}

func TestPhotoPlaces(t *testing.T) {
	tm, _ := newTestMap(t, testImages)

	places, radius := tm.PhotoPlaces(-80, -179, 80, 179, 10)

	require.Len(t, places, 2)
	assert.InDelta(t, 20*360.0/(1024*256), radius, 1e-12)

	counts := map[int]Place{}
	for _, p := range places {
		counts[p.Count] = p
	}

	require.Contains(t, counts, 3)
	require.Contains(t, counts, 1)
	assert.InDelta(t, 10, counts[3].Lat, 1e-4)
	assert.InDelta(t, 10, counts[3].Long, 1e-4)
	assert.InDelta(t, -20, counts[1].Lat, 1e-9)
	assert.InDelta(t, 40, counts[1].Long, 1e-9)

	places, _ = tm.PhotoPlaces(0, 0, 30, 30, 10)
	require.Len(t, places, 1)
	assert.Equal(t, 3, places[0].Count)
}

func TestPhotoPlacesAcrossAntimeridian(t *testing.T) {
	tm, _ := newTestMap(t, []models.Image{
		{Key: "e", Latitude: 0, Longitude: 175},
		{Key: "w", Latitude: 0, Longitude: -175},
		{Key: "z", Latitude: 0, Longitude: 0},
	})

	places, _ := tm.PhotoPlaces(-10, 170, 10, -170, 10)
	require.Len(t, places, 2)

	longs := []float64{places[0].Long, places[1].Long}
	assert.ElementsMatch(t, []float64{175, -175}, longs)
}

func TestGallery(t *testing.T) {
	tm, _ := newTestMap(t, testImages)

	assert.Equal(t, []string{"a", "b", "c"}, tm.Gallery(10, 10, 10))
	assert.Equal(t, []string{"far"}, tm.Gallery(-20, 40, 10))
	assert.Empty(t, tm.Gallery(0, 0, 10))
}

func TestBoundsAndPoints(t *testing.T) {
	tm, _ := newTestMap(t, testImages)

	b := tm.Bounds()
	assert.InDelta(t, (10.00002-20)/2, b.Lat, 1e-9)
	assert.InDelta(t, 25, b.Long, 1e-9)
	assert.InDelta(t, 30.00002, b.DLat, 1e-9)
	assert.InDelta(t, 30, b.DLong, 1e-9)

	pts := tm.Points()
	require.Len(t, pts, len(testImages))
	assert.Equal(t, Point{Lat: -20, Long: 40}, pts[3])

	empty, _ := newTestMap(t, nil)
	assert.Equal(t, Bounds{}, empty.Bounds())
	assert.Empty(t, empty.Points())
	assert.Empty(t, empty.Gallery(0, 0, 3))
}

func TestNearest(t *testing.T) {
	tm, _ := newTestMap(t, testImages)
	assert.Equal(t, len(testImages), tm.Len())

	assert.Equal(t, []string{"far"}, tm.Nearest(-19, 39, 1))

	got := tm.Nearest(10, 10, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0])
	assert.ElementsMatch(t, []string{"a", "b", "c"}, got)

	empty, _ := newTestMap(t, nil)
	assert.Equal(t, 0, empty.Len())
	assert.Empty(t, empty.Nearest(0, 0, 5))
}
