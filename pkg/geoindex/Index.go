/*
Package geoindex provides position based lookups over a set of
planar points using an R-Tree.
*/
package geoindex

import (
	"sort"

	"github.com/dhconnelly/rtreego"
)

const (
	tolerance   = 1e-9
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

/*
Source provides data for an Index.
*/
type Source interface {
	// Len reports the number of elements
	Len() int

	// At reports the position of ith element
	At(i int) (x, y float64)
}

type spatialItem struct {
	idx  int
	rect *rtreego.Rect
}

func (si *spatialItem) Bounds() *rtreego.Rect {
	return si.rect
}

/*
Index is a read-only spatial index of the elements of a Source.
It is safe for concurrent use once created.
*/
type Index struct {
	src  Source
	tree *rtreego.Rtree
}

/*
New indexes every element of src.
*/
func New(src Source) *Index {
	tree := rtreego.NewTree(dimensions, minChildren, maxChildren)

	for i := 0; i < src.Len(); i++ {
		x, y := src.At(i)
		tree.Insert(&spatialItem{
			idx:  i,
			rect: rtreego.Point{x, y}.ToRect(tolerance),
		})
	}

	return &Index{
		src:  src,
		tree: tree,
	}
}

/*
Len returns the number of indexed elements.
*/
func (ix *Index) Len() int {
	return ix.tree.Size()
}

/*
RectFunc calls f(i) in index order for all indices that are within the
closed rectangle minx, miny, maxx, maxy. Iteration stops when f returns false.
*/
func (ix *Index) RectFunc(minx, miny, maxx, maxy float64, f func(i int) (ok bool)) {
	for _, i := range ix.search(minx, miny, maxx, maxy) {
		x, y := ix.src.At(i)
		if minx <= x && x <= maxx && miny <= y && y <= maxy {
			if !f(i) {
				return
			}
		}
	}
}

/*
Nearest returns up to k indices closest to x, y, nearest first.
*/
func (ix *Index) Nearest(x, y float64, k int) []int {
	if k <= 0 || ix.tree.Size() == 0 {
		return nil
	}

	result := make([]int, 0, k)

	for _, s := range ix.tree.NearestNeighbors(k, rtreego.Point{x, y}) {
		if item, ok := s.(*spatialItem); ok && item != nil {
			result = append(result, item.idx)
		}
	}

	return result
}

func (ix *Index) search(minx, miny, maxx, maxy float64) []int {
	if maxx < minx || maxy < miny || ix.tree.Size() == 0 {
		return nil
	}

	minx, miny = minx-tolerance, miny-tolerance
	maxx, maxy = maxx+tolerance, maxy+tolerance

	bounds, err := rtreego.NewRect(rtreego.Point{minx, miny}, []float64{maxx - minx, maxy - miny})
	if err != nil {
		return nil
	}

	found := ix.tree.SearchIntersect(bounds)
	result := make([]int, 0, len(found))

	for _, s := range found {
		if item, ok := s.(*spatialItem); ok {
			result = append(result, item.idx)
		}
	}

	sort.Ints(result)
	return result
}
