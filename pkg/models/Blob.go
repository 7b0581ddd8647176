package models

import "time"

type BlobKind string

const (
	BlobPhotoIcon BlobKind = "photoicon"
	BlobThumbnail BlobKind = "thumb"
)

/*
Blob is an encoded image derived from a source image, such as a
photo icon (PNG) or a gallery thumbnail (JPEG).
*/
type Blob struct {
	Kind      string
	Key       string
	Data      []byte
	CreatedAt int64
}

func (b Blob) CreateTime() time.Time {
	return time.Unix(b.CreatedAt, 0).UTC()
}
