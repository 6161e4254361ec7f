// Package voxelgrid implements component I: the rolling voxel grid, a
// bounded toroidal voxel map that stores the persistent map and downsamples
// it as points are inserted, grounded on the VoxelCoords/Voxel bucketing
// pattern (pointcloud/voxel.go) but windowed around the sensor and evicting
// voxels the window leaves behind.
package voxelgrid

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/thelineover/VeloView/kdtree"
)

// Coords addresses a voxel by its continuous (unwrapped) grid index. Only
// voxels within the current window are ever present in the map, so an
// explicit modulo-wrap of the key is unnecessary: the window invariant is
// enforced by Shift evicting everything outside it, which is observationally
// identical to toroidal reuse of physical storage.
type Coords struct {
	I, J, K int64
}

type leafStat struct {
	sum   r3.Vector
	count int
}

type bucket struct {
	leaves map[Coords]*leafStat
	order  []Coords // insertion order, oldest first, for FIFO eviction
}

// RollingGrid is a fixed-capacity toroidal voxel array of dimension
// dim×dim×dim with voxel side voxelSize, each voxel internally downsampled
// to leafSize resolution.
type RollingGrid struct {
	voxelSize         float64
	dim               int
	leafSize          float64
	maxPointsPerVoxel int

	initialized bool
	anchor      Coords
	voxels      map[Coords]*bucket
}

// New constructs an empty rolling grid. maxPointsPerVoxel bounds the number
// of distinct leaf cells (downsampled points) a voxel may hold at once; 0
// means unbounded.
func New(voxelSize float64, dim int, leafSize float64, maxPointsPerVoxel int) *RollingGrid {
	return &RollingGrid{
		voxelSize:         voxelSize,
		dim:               dim,
		leafSize:          leafSize,
		maxPointsPerVoxel: maxPointsPerVoxel,
		voxels:            make(map[Coords]*bucket),
	}
}

func continuousIndex(p r3.Vector, size float64) Coords {
	return Coords{
		I: int64(math.Floor(p.X / size)),
		J: int64(math.Floor(p.Y / size)),
		K: int64(math.Floor(p.Z / size)),
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func (c Coords) within(anchor Coords, half int64) bool {
	return abs64(c.I-anchor.I) <= half && abs64(c.J-anchor.J) <= half && abs64(c.K-anchor.K) <= half
}

// Shift recenters the window on center, evicting every voxel that falls
// outside the new window. Evictions are permanent. Shift must be called
// before Insert whenever the sensor has moved since the last call, so the
// window invariant (every stored point lies in a voxel at most dim/2 voxels
// from the sensor's voxel along each axis) holds after insertion. The kept
// cube is 2·(dim/2)+1 voxels on a side; points are not checked one by one
// against a window centred on the exact sensor position.
func (g *RollingGrid) Shift(center r3.Vector) {
	newAnchor := continuousIndex(center, g.voxelSize)
	if !g.initialized {
		g.anchor = newAnchor
		g.initialized = true
		return
	}
	if newAnchor == g.anchor {
		return
	}
	g.anchor = newAnchor
	half := int64(g.dim / 2)
	for key := range g.voxels {
		if !key.within(g.anchor, half) {
			delete(g.voxels, key)
		}
	}
}

// Insert adds a point to its voxel, re-applying the in-voxel downsampler
// (leafSize resolution, merging coincident points by averaging) so the
// voxel's stored cloud remains bounded. Points outside the current window
// are dropped; call Shift with the current sensor position first.
func (g *RollingGrid) Insert(p r3.Vector) {
	key := continuousIndex(p, g.voxelSize)
	if g.initialized && !key.within(g.anchor, int64(g.dim/2)) {
		return
	}

	b, ok := g.voxels[key]
	if !ok {
		b = &bucket{leaves: make(map[Coords]*leafStat)}
		g.voxels[key] = b
	}

	leafKey := continuousIndex(p, g.leafSize)
	stat, ok := b.leaves[leafKey]
	if !ok {
		stat = &leafStat{}
		b.leaves[leafKey] = stat
		b.order = append(b.order, leafKey)
	}
	stat.sum = stat.sum.Add(p)
	stat.count++

	if g.maxPointsPerVoxel > 0 {
		for len(b.order) > g.maxPointsPerVoxel {
			oldest := b.order[0]
			b.order = b.order[1:]
			delete(b.leaves, oldest)
		}
	}
}

// InsertAll inserts every point in pts.
func (g *RollingGrid) InsertAll(pts []r3.Vector) {
	for _, p := range pts {
		g.Insert(p)
	}
}

func (b *bucket) points() []r3.Vector {
	out := make([]r3.Vector, 0, len(b.order))
	for _, leafKey := range b.order {
		stat := b.leaves[leafKey]
		out = append(out, stat.sum.Mul(1/float64(stat.count)))
	}
	return out
}

// Submap returns the concatenation of every voxel bucket within
// halfExtentVoxels of center's voxel, plus a freshly built k-d tree over the
// result. Submap extraction never mutates the grid.
func (g *RollingGrid) Submap(center r3.Vector, halfExtentVoxels int) ([]r3.Vector, *kdtree.Tree) {
	c := continuousIndex(center, g.voxelSize)
	h := int64(halfExtentVoxels)

	var pts []r3.Vector
	for i := c.I - h; i <= c.I+h; i++ {
		for j := c.J - h; j <= c.J+h; j++ {
			for k := c.K - h; k <= c.K+h; k++ {
				if b, ok := g.voxels[Coords{i, j, k}]; ok {
					pts = append(pts, b.points()...)
				}
			}
		}
	}
	return pts, kdtree.New(pts)
}

// Len returns the total number of downsampled points currently stored.
func (g *RollingGrid) Len() int {
	n := 0
	for _, b := range g.voxels {
		n += len(b.order)
	}
	return n
}

// Reset empties the grid entirely, for the host's reset() call.
func (g *RollingGrid) Reset() {
	g.voxels = make(map[Coords]*bucket)
	g.initialized = false
}
