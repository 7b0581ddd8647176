package models

import (
	"time"
)

/*
Image is the cached state of a single source image. Failed images
could not be read or have no location and are kept only so they are
not read again until they change.
*/
type Image struct {
	Key       string
	SourceID  string
	ModTime   int64
	Failed    bool
	CreatedAt int64
	Width     int
	Height    int
	Latitude  float64
	Longitude float64
}

func (i Image) CreateTime() time.Time {
	return time.Unix(i.CreatedAt, 0).UTC()
}

func (i Image) SourceModTime() time.Time {
	return time.Unix(i.ModTime, 0).UTC()
}

/*
IsFresh reports whether the cached entry is still valid for a source
image with the given id and modification time.
*/
func (i Image) IsFresh(sourceID string, modTime time.Time) bool {
	return i.SourceID == sourceID && !modTime.Truncate(time.Second).After(i.SourceModTime())
}
