package source

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

/*
LoadImage decodes an image and rotates or flips it according to
its EXIF orientation tag.
*/
func LoadImage(r io.Reader) (image.Image, error) {
	var (
		err error
		img image.Image
	)

	head := &bytes.Buffer{}
	x, exifErr := exif.Decode(io.TeeReader(r, head))

	if img, _, err = image.Decode(io.MultiReader(head, r)); err != nil {
		return nil, fmt.Errorf("error decoding image: %w", err)
	}

	if exifErr != nil {
		return img, nil
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return img, nil
	}

	orientation, err := tag.Int(0)
	if err != nil {
		slog.Debug("invalid exif orientation tag", "error", err)
		return img, nil
	}

	return Orient(img, orientation), nil
}

/*
Orient transforms img so that an image stored with the given EXIF
orientation (1-8) is displayed upright. Unknown values leave img as is.
*/
func Orient(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}

	return img
}
