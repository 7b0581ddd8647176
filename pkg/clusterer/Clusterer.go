/*
Package clusterer groups nearby points. Groups are built in two
passes: points closer than a distance are merged, then wide groups
are split again along their longer axis.
*/
package clusterer

import (
	"math"

	"github.com/adampresley/photomap/pkg/geoindex"
)

/*
Interface is the subject of clustering.
*/
type Interface interface {
	geoindex.Source

	// Weight is the weight of the ith element. It must not be zero.
	Weight(i int) float64
}

type Point struct {
	X, Y float64
}

type Cluster struct {
	Center Point

	// Elem holds indices into the clustered Interface
	Elem []int
}

/*
MakeClusters clusters intf using dist. Points less than dist apart
are combined, then the resulting groups are subdivided so they are
smaller than 2*dist in both directions when possible. Every element
of intf appears in exactly one Cluster. MakeClusters panics if any
element has zero weight.
*/
func MakeClusters(intf Interface, dist float64) []Cluster {
	var (
		groups [][]int
		result []Cluster
	)

	n := intf.Len()
	owner := make([]int, n)

	for i := range owner {
		if intf.Weight(i) == 0 {
			panic("clusterer: zero weight")
		}

		owner[i] = -1
	}

	ix := geoindex.New(intf)

	merge := func(a, b int) {
		ga, gb := owner[a], owner[b]

		switch {
		case ga == -1 && gb == -1:
			owner[a], owner[b] = len(groups), len(groups)
			groups = append(groups, []int{a, b})

		case ga == -1:
			groups[gb] = append(groups[gb], a)
			owner[a] = gb

		case gb == -1:
			groups[ga] = append(groups[ga], b)
			owner[b] = ga

		case ga != gb:
			keep, drop := ga, gb
			if len(groups[drop]) > len(groups[keep]) {
				keep, drop = drop, keep
			}

			for _, k := range groups[drop] {
				owner[k] = keep
			}

			groups[keep] = append(groups[keep], groups[drop]...)
			groups[drop] = nil
		}
	}

	for i := 0; i < n; i++ {
		x, y := intf.At(i)

		ix.RectFunc(x-dist, y-dist, x+dist, y+dist, func(j int) bool {
			if i != j {
				merge(i, j)
			}
			return true
		})
	}

	for _, g := range groups {
		result = append(result, subdivide(intf, g, dist)...)
	}

	for i, g := range owner {
		if g == -1 {
			result = append(result, Cluster{Center: pointAt(intf, i), Elem: []int{i}})
		}
	}

	return result
}

func subdivide(intf Interface, g []int, dist float64) []Cluster {
	switch len(g) {
	case 0:
		return nil
	case 1:
		return []Cluster{{Center: pointAt(intf, g[0]), Elem: g}}
	}

	first := pointAt(intf, g[0])
	bounds := Rectangle{first.X, first.Y, first.X, first.Y}

	for _, i := range g[1:] {
		p := pointAt(intf, i)
		bounds.X0 = math.Min(bounds.X0, p.X)
		bounds.Y0 = math.Min(bounds.Y0, p.Y)
		bounds.X1 = math.Max(bounds.X1, p.X)
		bounds.Y1 = math.Max(bounds.Y1, p.Y)
	}

	center := weightedCenter(intf, g)
	whole := []Cluster{{Center: center, Elem: g}}

	horizontal := bounds.Dx() > bounds.Dy()
	axis := func(p Point) float64 {
		if horizontal {
			return p.X
		}
		return p.Y
	}

	size := bounds.Dy()
	if horizontal {
		size = bounds.Dx()
	}

	if size < dist*2 {
		return whole
	}

	var lo, hi []int
	split := axis(center)

	for _, i := range g {
		if axis(pointAt(intf, i)) < split {
			lo = append(lo, i)
		} else {
			hi = append(hi, i)
		}
	}

	if len(lo) == 0 || len(hi) == 0 {
		return whole
	}

	// halves whose centers are too close stay together
	if math.Abs(axis(weightedCenter(intf, lo))-axis(weightedCenter(intf, hi))) < dist {
		return whole
	}

	return append(subdivide(intf, lo, dist), subdivide(intf, hi, dist)...)
}

func weightedCenter(intf Interface, g []int) Point {
	var (
		c Point
		w float64
	)

	for _, i := range g {
		p, wi := pointAt(intf, i), intf.Weight(i)
		c.X += p.X * wi
		c.Y += p.Y * wi
		w += wi
	}

	c.X /= w
	c.Y /= w
	return c
}

func pointAt(intf Interface, i int) Point {
	x, y := intf.At(i)
	return Point{x, y}
}
