/*
Package source provides access to geotagged images. Drivers register
themselves by name and are opened with a single argument string.
*/
package source

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

var (
	ErrNoLocation    = fmt.Errorf("image has no location")
	ErrUnknownSource = fmt.Errorf("unknown image source")
	ErrUnknownImage  = fmt.Errorf("unknown image id")
)

type ImageInfo struct {
	CreateTime time.Time

	Width  int
	Height int

	Lat  float64
	Long float64
}

type ImageSource interface {
	/*
	 * ModTimes returns all images that are candidates for inclusion
	 * on the map, along with their modification times.
	 */
	ModTimes(ctx context.Context) (map[string]time.Time, error)

	/*
	 * Info returns the image info for the specified id. An error wrapping
	 * ErrNoLocation is returned if the image is not geotagged.
	 */
	Info(ctx context.Context, id string) (ImageInfo, error)

	/*
	 * Open returns a reader of the encoded image with the given id.
	 */
	Open(ctx context.Context, id string) (io.ReadCloser, error)

	Close() error
}

type NewSourceFunc func(arg string) (ImageSource, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]NewSourceFunc{}
)

/*
Register makes a source driver available under name. Registering
the same name twice panics.
*/
func Register(name string, f NewSourceFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("source %q already registered", name))
	}

	registry[name] = f
}

/*
Open opens the source registered with name using arg.
*/
func Open(name, arg string) (ImageSource, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}

	return f(arg)
}

/*
Drivers returns the sorted names of registered sources.
*/
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]string, 0, len(registry))
	for name := range registry {
		result = append(result, name)
	}

	sort.Strings(result)
	return result
}
