package source

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
)

/*
InfoFromReader reads dimensions, creation time and GPS position from
an encoded image. If the image is valid but carries no location, the
returned ImageInfo has its dimensions and creation time set and the
error wraps ErrNoLocation. modTime is used when the image has no
recorded creation time.
*/
func InfoFromReader(modTime time.Time, r io.Reader) (ImageInfo, error) {
	var (
		err error
		cfg image.Config
		x   *exif.Exif
	)

	// everything consumed by DecodeConfig is replayed for the exif decoder
	head := &bytes.Buffer{}

	if cfg, _, err = image.DecodeConfig(io.TeeReader(r, head)); err != nil {
		return ImageInfo{}, fmt.Errorf("error decoding image config: %w", err)
	}

	result := ImageInfo{
		CreateTime: modTime,
		Width:      cfg.Width,
		Height:     cfg.Height,
	}

	if x, err = exif.Decode(io.MultiReader(head, r)); err != nil {
		return result, fmt.Errorf("%w: %w", ErrNoLocation, err)
	}

	if ct, err := x.DateTime(); err == nil {
		result.CreateTime = ct
	}

	if result.Lat, result.Long, err = x.LatLong(); err != nil {
		return result, fmt.Errorf("%w: %w", ErrNoLocation, err)
	}

	return result, nil
}
