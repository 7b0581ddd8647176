/*
Package filesystem provides an image source reading photos from
local directory trees. Import it for its side effect of registering
the "filesystem" source.
*/
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adampresley/imagemetadata"
	"github.com/adampresley/imagemetadata/imagemodel"
	"github.com/adampresley/photomap/pkg/source"
	mapset "github.com/deckarep/golang-set/v2"
)

const (
	Name   = "filesystem"
	prefix = "file://"
)

var (
	ErrInvalidRoot = fmt.Errorf("invalid root directory")

	supportedExtensions = mapset.NewSet(".jpg", ".jpeg", ".png")
	jpegExtensions      = mapset.NewSet(".jpg", ".jpeg")
)

func init() {
	source.Register(Name, func(arg string) (source.ImageSource, error) {
		return NewFileSystemSource(filepath.SplitList(arg)...)
	})
}

type FileSystemSource struct {
	roots []string
}

/*
NewFileSystemSource returns a source serving every supported image
under the given root directories.
*/
func NewFileSystemSource(roots ...string) (*FileSystemSource, error) {
	var (
		err  error
		info os.FileInfo
	)

	result := &FileSystemSource{}

	for _, root := range roots {
		if root == "" {
			continue
		}

		if root, err = filepath.Abs(root); err != nil {
			return nil, fmt.Errorf("%w '%s': %w", ErrInvalidRoot, root, err)
		}

		if info, err = os.Stat(root); err != nil {
			return nil, fmt.Errorf("%w '%s': %w", ErrInvalidRoot, root, err)
		}

		if !info.IsDir() {
			return nil, fmt.Errorf("%w '%s': not a directory", ErrInvalidRoot, root)
		}

		result.roots = append(result.roots, root)
	}

	if len(result.roots) == 0 {
		return nil, fmt.Errorf("%w: no directories given", ErrInvalidRoot)
	}

	return result, nil
}

/*
ModTimes walks every root and returns the modification time of each
supported image file.
*/
func (s *FileSystemSource) ModTimes(ctx context.Context) (map[string]time.Time, error) {
	result := map[string]time.Time{}

	for _, root := range s.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				slog.Warn("skipping unreadable path", "path", path, "error", err)
				return nil
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}

			if d.IsDir() || !supportedExtensions.Contains(strings.ToLower(filepath.Ext(path))) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				slog.Warn("skipping file without info", "path", path, "error", err)
				return nil
			}

			result[prefix+filepath.ToSlash(path)] = info.ModTime()
			return nil
		})

		if err != nil {
			return result, fmt.Errorf("error walking '%s': %w", root, err)
		}
	}

	return result, nil
}

/*
Info reads image metadata. JPEG files are read with imagemetadata
first, other files and JPEGs without a position go through the
generic EXIF reader.
*/
func (s *FileSystemSource) Info(ctx context.Context, id string) (source.ImageInfo, error) {
	var (
		err      error
		f        *os.File
		stat     os.FileInfo
		metadata *imagemodel.ImageData
	)

	if f, err = s.open(id); err != nil {
		return source.ImageInfo{}, err
	}

	defer f.Close()

	if stat, err = f.Stat(); err != nil {
		return source.ImageInfo{}, fmt.Errorf("error reading file info for '%s': %w", id, err)
	}

	if jpegExtensions.Contains(strings.ToLower(filepath.Ext(f.Name()))) {
		if metadata, err = imagemetadata.NewFromJPEG(f); err == nil && hasLocation(metadata) && metadata.Width > 0 {
			return infoFromMetadata(stat.ModTime(), metadata), nil
		}

		if _, err = f.Seek(0, io.SeekStart); err != nil {
			return source.ImageInfo{}, fmt.Errorf("error rewinding '%s': %w", id, err)
		}
	}

	return source.InfoFromReader(stat.ModTime(), f)
}

func (s *FileSystemSource) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	return s.open(id)
}

func (s *FileSystemSource) Close() error {
	return nil
}

func (s *FileSystemSource) open(id string) (*os.File, error) {
	if !strings.HasPrefix(id, prefix) {
		return nil, fmt.Errorf("%w: %s", source.ErrUnknownImage, id)
	}

	path := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(id, prefix)))

	if !s.withinRoots(path) {
		return nil, fmt.Errorf("%w: %s", source.ErrUnknownImage, id)
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", source.ErrUnknownImage, id)
	}

	return f, err
}

func (s *FileSystemSource) withinRoots(path string) bool {
	for _, root := range s.roots {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}

	return false
}

func hasLocation(metadata *imagemodel.ImageData) bool {
	return metadata != nil && (metadata.Latitude != 0 || metadata.Longitude != 0)
}

func infoFromMetadata(modTime time.Time, metadata *imagemodel.ImageData) source.ImageInfo {
	result := source.ImageInfo{
		CreateTime: modTime,
		Width:      metadata.Width,
		Height:     metadata.Height,
		Lat:        metadata.Latitude,
		Long:       metadata.Longitude,
	}

	if ct, err := time.Parse("2006-01-02T15:04:05", metadata.CreationDateTime); err == nil {
		result.CreateTime = ct
	}

	return result
}
