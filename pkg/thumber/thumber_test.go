package thumber

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalcSize(t *testing.T) {
	testCases := []struct {
		name   string
		config ThumberConfig
		sx, sy int
		wx, wy int
	}{
		{"landscape", ThumberConfig{MaxWidth: 100, MaxHeight: 100}, 4000, 3000, 100, 75},
		{"portrait", ThumberConfig{MaxWidth: 100, MaxHeight: 100}, 3000, 4000, 75, 100},
		{"square", ThumberConfig{MaxWidth: 20, MaxHeight: 20}, 500, 500, 20, 20},
		{"width only", ThumberConfig{MaxWidth: 50}, 200, 1000, 50, 250},
		{"height only", ThumberConfig{MaxHeight: 50}, 1000, 200, 250, 50},
		{"extreme panorama", ThumberConfig{MaxWidth: 20, MaxHeight: 20}, 10000, 10, 20, 1},
		{"empty", ThumberConfig{MaxWidth: 20, MaxHeight: 20}, 0, 10, 0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			x, y := NewThumber(tc.config).CalcSize(tc.sx, tc.sy)
			assert.Equal(t, tc.wx, x)
			assert.Equal(t, tc.wy, y)
		})
	}
}

func TestNewThumberPanicsWithoutLimits(t *testing.T) {
	assert.Panics(t, func() {
		NewThumber(ThumberConfig{})
	})
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestThumb(t *testing.T) {
	thumb := NewThumbnailThumber().Thumb(solid(400, 200, color.White))
	assert.Equal(t, image.Pt(100, 50), thumb.Bounds().Size())
}

func TestPhotoIcon(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	icon := NewPhotoIconThumber().PhotoIcon(solid(40, 40, red))

	// 20px thumb, 2px border on each side, 2*4px blur margin per side, 1px shadow offset
	assert.Equal(t, image.Pt(20+4+16, 20+4+16+1), icon.Bounds().Size())

	// frame origin is at 8,8; the thumb starts after the border
	r, g, b, a := icon.At(8+2+5, 8+2+5).RGBA()
	assert.Equal(t, []uint32{0xffff, 0, 0, 0xffff}, []uint32{r, g, b, a})

	r, g, b, a = icon.At(8, 8).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff, 0xffff}, []uint32{r, g, b, a})

	// corners stay transparent
	_, _, _, a = icon.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), a)

	// the shadow shows below the frame
	_, _, _, a = icon.At(8+12, 8+24).RGBA()
	assert.Greater(t, a, uint32(0))
}
