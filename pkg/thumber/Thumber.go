/*
Package thumber creates small versions of photos: plain thumbnails
for the gallery and framed photo icons with a drop shadow for map tiles.
*/
package thumber

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

const (
	PhotoIconSize = 20
	ThumbnailSize = 100
)

type ThumberConfig struct {
	MaxWidth  int
	MaxHeight int

	// Border is the width of the white frame around photo icons
	Border int

	ShadowDx   int
	ShadowDy   int
	ShadowBlur int
}

type Thumber struct {
	mw, mh int

	border int

	sdx   int
	sdy   int
	sblur int
}

func NewThumber(config ThumberConfig) *Thumber {
	if config.MaxWidth <= 0 && config.MaxHeight <= 0 {
		panic("thumber: at least one of MaxWidth and MaxHeight must be positive")
	}

	return &Thumber{
		mw:     config.MaxWidth,
		mh:     config.MaxHeight,
		border: config.Border,
		sdx:    config.ShadowDx,
		sdy:    config.ShadowDy,
		sblur:  config.ShadowBlur,
	}
}

/*
NewPhotoIconThumber returns the thumber used for map photo icons.
*/
func NewPhotoIconThumber() *Thumber {
	return NewThumber(ThumberConfig{
		MaxWidth:   PhotoIconSize,
		MaxHeight:  PhotoIconSize,
		Border:     2,
		ShadowDx:   0,
		ShadowDy:   1,
		ShadowBlur: 4,
	})
}

func NewThumbnailThumber() *Thumber {
	return NewThumber(ThumberConfig{
		MaxWidth:  ThumbnailSize,
		MaxHeight: ThumbnailSize,
	})
}

/*
Thumb scales img so it fits within the maximum width and height,
preserving the aspect ratio.
*/
func (t *Thumber) Thumb(img image.Image) image.Image {
	dx, dy := t.CalcSize(img.Bounds().Dx(), img.Bounds().Dy())
	return resize.Resize(uint(dx), uint(dy), img, resize.Bilinear)
}

/*
PhotoIcon scales img and frames it with a border and shadow.
*/
func (t *Thumber) PhotoIcon(img image.Image) image.Image {
	return t.PhotoIconFromThumb(t.Thumb(img))
}

/*
PhotoIconFromThumb draws thumb on a white frame over a blurred
shadow. The result is larger than thumb by the border and enough
room for the shadow.
*/
func (t *Thumber) PhotoIconFromThumb(thumb image.Image) image.Image {
	tdx := thumb.Bounds().Dx()
	tdy := thumb.Bounds().Dy()

	// framed photo without shadow
	pdx := tdx + 2*t.border
	pdy := tdy + 2*t.border

	// whole icon including shadow offset and blur
	fx := pdx + 4*t.sblur + iabs(t.sdx)
	fy := pdy + 4*t.sblur + iabs(t.sdy)

	// frame origin
	ox, oy := 2*t.sblur, 2*t.sblur
	if t.sdx < 0 {
		ox -= t.sdx
	}
	if t.sdy < 0 {
		oy -= t.sdy
	}

	frame := image.Rect(ox, oy, ox+pdx, oy+pdy)

	shadow := image.NewNRGBA(image.Rect(0, 0, fx, fy))
	draw.Draw(shadow, frame.Add(image.Pt(t.sdx, t.sdy)), image.NewUniform(color.NRGBA{0, 0, 0, 128}), image.Point{}, draw.Src)

	var icon *image.NRGBA
	if t.sblur > 0 {
		icon = imaging.Blur(shadow, float64(t.sblur)/2)
	} else {
		icon = shadow
	}

	draw.Draw(icon, frame, image.White, image.Point{}, draw.Src)

	inner := image.Rect(ox+t.border, oy+t.border, ox+t.border+tdx, oy+t.border+tdy)
	draw.Draw(icon, inner, thumb, thumb.Bounds().Min, draw.Src)

	return icon
}

/*
CalcSize returns thumbnail dimensions for a source of size sx, sy.
Limits that are zero or negative are ignored.
*/
func (t *Thumber) CalcSize(sx, sy int) (tx, ty int) {
	if sx <= 0 || sy <= 0 {
		return 0, 0
	}

	var scaleForWidth bool

	switch {
	case t.mw > 0 && t.mh > 0:
		scaleForWidth = float64(sx)/float64(t.mw) > float64(sy)/float64(t.mh)
	case t.mw > 0:
		scaleForWidth = true
	}

	if scaleForWidth {
		tx = t.mw
		ty = max(1, sy*tx/sx)
	} else {
		ty = t.mh
		tx = max(1, sx*ty/sy)
	}

	return tx, ty
}

func iabs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
