package clusterer

import (
	"sort"
)

/*
Tree is a cluster hierarchy. Leaves are clusters made at the
minimum distance, parents merge children at doubling distances.
Elements of every node occupy a contiguous range of Tree.elem.
*/
type Tree struct {
	root *treeNode
	elem []int
}

type treeNode struct {
	center Point
	bounds Rectangle

	// children of this node are at least this far apart
	mindist float64

	child []treeNode

	// element range into Tree.elem
	s, e int
}

type buildNode struct {
	center   Point
	weight   int
	bounds   Rectangle
	mindist  float64
	children []buildNode
	elem     []int
}

type buildNodes []buildNode

func (n buildNodes) Len() int { return len(n) }

func (n buildNodes) At(i int) (x, y float64) {
	return n[i].center.X, n[i].center.Y
}

func (n buildNodes) Weight(i int) float64 {
	return float64(n[i].weight)
}

/*
NewTree builds a cluster hierarchy of intf. Leaf clusters are made
using mindist.
*/
func NewTree(intf Interface, mindist float64) *Tree {
	if intf.Len() == 0 {
		return &Tree{}
	}

	root := buildTree(intf, mindist)

	f := finalizer{
		elem:  make([]int, intf.Len()),
		owner: make([]int, intf.Len()),
	}

	for i := range f.elem {
		f.elem[i] = i
	}

	xroot := f.finalize(root, 0, len(f.elem))

	return &Tree{
		root: &xroot,
		elem: f.elem,
	}
}

/*
Len returns the number of elements in the tree.
*/
func (t *Tree) Len() int {
	return len(t.elem)
}

/*
Query calls f for every node overlapping the rectangle x0, y0, x1, y1.
Children are visited only while all of them are at least mindist
apart, otherwise the node is reported with all of its elements.
Each element is reported at most once. The elem slice passed to f
must not be modified.
*/
func (t *Tree) Query(x0, y0, x1, y1, mindist float64, f func(center Point, elem []int)) {
	if t.root == nil {
		return
	}

	q := nodeQuery{
		bounds:  Rectangle{x0, y0, x1, y1},
		mindist: mindist,
		elem:    t.elem,
		fn:      f,
	}

	q.visit(t.root)
}

func buildTree(intf Interface, mindist float64) buildNode {
	var (
		nodes []buildNode
	)

	dist := mindist

	for _, c := range MakeClusters(intf, dist) {
		nodes = append(nodes, buildNode{
			center:  c.Center,
			weight:  len(c.Elem),
			bounds:  rectAround(c.Center, dist),
			mindist: dist,
			elem:    c.Elem,
		})
	}

	for len(nodes) > 1 {
		dist *= 2

		clusters := MakeClusters(buildNodes(nodes), dist)
		if len(clusters) == len(nodes) {
			// nothing merged, so the nodes are at least dist apart
			for i := range nodes {
				nodes[i].mindist = dist
			}
			continue
		}

		below := nodes
		nodes = make([]buildNode, 0, len(clusters))

		for _, c := range clusters {
			if len(c.Elem) == 1 {
				n := below[c.Elem[0]]
				n.mindist = dist
				n.bounds.Extend(rectAround(n.center, dist))
				nodes = append(nodes, n)
				continue
			}

			nodes = append(nodes, mergeNodes(below, c.Elem, dist))
		}
	}

	return nodes[0]
}

func mergeNodes(below []buildNode, group []int, dist float64) buildNode {
	var (
		center Point
		weight int
		bounds Rectangle
		nelem  int
	)

	children := make([]buildNode, 0, len(group))

	for _, i := range group {
		children = append(children, below[i])
		nelem += len(below[i].elem)
	}

	elem := make([]int, 0, nelem)

	for _, n := range children {
		center.X += n.center.X * float64(n.weight)
		center.Y += n.center.Y * float64(n.weight)
		weight += n.weight
		bounds.Extend(n.bounds)
		elem = append(elem, n.elem...)
	}

	center.X /= float64(weight)
	center.Y /= float64(weight)
	bounds.Extend(rectAround(center, dist))

	return buildNode{
		center:   center,
		weight:   weight,
		bounds:   bounds,
		mindist:  dist,
		children: children,
		elem:     elem,
	}
}

type finalizer struct {
	elem []int

	// owner maps an element to the child index within its current parent
	owner []int
}

func (f *finalizer) finalize(n buildNode, s, e int) treeNode {
	xn := treeNode{
		center:  n.center,
		bounds:  n.bounds,
		mindist: n.mindist,
		s:       s,
		e:       e,
	}

	if len(n.children) == 0 {
		return xn
	}

	for ic, c := range n.children {
		for _, el := range c.elem {
			f.owner[el] = ic
		}
	}

	span := f.elem[s:e]
	sort.SliceStable(span, func(i, j int) bool {
		return f.owner[span[i]] < f.owner[span[j]]
	})

	start := 0
	for i := 1; i <= len(span); i++ {
		if i < len(span) && f.owner[span[i]] == f.owner[span[start]] {
			continue
		}

		ic := f.owner[span[start]]
		xn.child = append(xn.child, f.finalize(n.children[ic], s+start, s+i))
		start = i
	}

	return xn
}

type nodeQuery struct {
	bounds  Rectangle
	mindist float64
	elem    []int
	fn      func(center Point, elem []int)
}

func (q *nodeQuery) visit(n *treeNode) {
	if !q.bounds.Overlaps(n.bounds) {
		return
	}

	descend := len(n.child) > 0
	for _, c := range n.child {
		if c.mindist < q.mindist {
			descend = false
			break
		}
	}

	if !descend {
		q.fn(n.center, q.elem[n.s:n.e:n.e])
		return
	}

	for i := range n.child {
		q.visit(&n.child[i])
	}
}
