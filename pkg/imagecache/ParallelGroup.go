package imagecache

import (
	"github.com/alitto/pond/v2"
	"golang.org/x/sync/singleflight"
)

/*
parallelGroup runs at most one function per key at a time, and no
more than the pool size functions overall.
*/
type parallelGroup struct {
	pool  pond.ResultPool[any]
	group singleflight.Group
}

func newParallelGroup(n int) *parallelGroup {
	if n < 1 {
		n = 1
	}

	return &parallelGroup{
		pool: pond.NewResultPool[any](n),
	}
}

func (p *parallelGroup) Do(key string, fn func() (any, error)) (any, error) {
	v, err, _ := p.group.Do(key, func() (any, error) {
		return p.pool.SubmitErr(fn).Wait()
	})

	return v, err
}

func (p *parallelGroup) Stop() {
	p.pool.StopAndWait()
}
