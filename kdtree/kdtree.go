// Package kdtree implements a static k-d tree over R3 points and a
// bounded-k nearest-neighbor query, used by the feature matcher (component
// E) to find each keypoint's neighborhood in a target cloud (previous-frame
// keypoints or the rolling grid's submap).
package kdtree

import (
	"sort"

	"github.com/golang/geo/r3"
)

type node struct {
	idx         int
	axis        int
	left, right *node
}

// Tree is an immutable k-d tree over a fixed set of points. Queries never
// mutate the tree, so a single Tree may be shared read-only across the
// parallel per-keypoint matching fan-out.
type Tree struct {
	points []r3.Vector
	root   *node
}

// New builds a balanced k-d tree over points. The returned Tree holds a
// reference to points; callers must not mutate the slice afterward.
func New(points []r3.Vector) *Tree {
	if len(points) == 0 {
		return &Tree{points: points}
	}
	idxs := make([]int, len(points))
	for i := range idxs {
		idxs[i] = i
	}
	t := &Tree{points: points}
	t.root = t.build(idxs, 0)
	return t
}

func (t *Tree) build(idxs []int, depth int) *node {
	if len(idxs) == 0 {
		return nil
	}
	axis := depth % 3
	sort.Slice(idxs, func(a, b int) bool {
		return coord(t.points[idxs[a]], axis) < coord(t.points[idxs[b]], axis)
	})
	mid := len(idxs) / 2
	n := &node{idx: idxs[mid], axis: axis}
	n.left = t.build(idxs[:mid], depth+1)
	n.right = t.build(idxs[mid+1:], depth+1)
	return n
}

func coord(v r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Len returns the number of points indexed.
func (t *Tree) Len() int { return len(t.points) }

// Point returns the point stored at index idx (the index KNN results refer
// to).
func (t *Tree) Point(idx int) r3.Vector { return t.points[idx] }

type neighbor struct {
	dist float64
	idx  int
}

// KNN returns the indices of the up-to-k nearest points to query, sorted by
// ascending distance. Fewer than k indices are returned if the tree holds
// fewer than k points.
func (t *Tree) KNN(query r3.Vector, k int) []int {
	if t.root == nil || k <= 0 {
		return nil
	}
	best := make([]neighbor, 0, k)
	t.search(t.root, query, k, &best)

	result := make([]int, len(best))
	for i, n := range best {
		result[i] = n.idx
	}
	return result
}

func (t *Tree) search(n *node, query r3.Vector, k int, best *[]neighbor) {
	if n == nil {
		return
	}
	p := t.points[n.idx]
	d := p.Sub(query).Norm2()
	insertBounded(best, neighbor{d, n.idx}, k)

	diff := coord(query, n.axis) - coord(p, n.axis)
	near, far := n.left, n.right
	if diff > 0 {
		near, far = n.right, n.left
	}
	t.search(near, query, k, best)

	// Only descend into the far subtree if it could still contain a point
	// closer than the current worst kept neighbor.
	if len(*best) < k || diff*diff < (*best)[len(*best)-1].dist {
		t.search(far, query, k, best)
	}
}

// insertBounded inserts n into the sorted (ascending dist) best slice,
// keeping at most k entries.
func insertBounded(best *[]neighbor, n neighbor, k int) {
	s := *best
	pos := sort.Search(len(s), func(i int) bool { return s[i].dist >= n.dist })
	if pos == len(s) {
		if len(s) < k {
			*best = append(s, n)
		}
		return
	}
	if len(s) < k {
		s = append(s, neighbor{})
	}
	copy(s[pos+1:], s[pos:len(s)-1])
	s[pos] = n
	*best = s
}
