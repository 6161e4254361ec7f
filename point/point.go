// Package point defines the per-point data model shared by every stage of
// the pipeline: the raw point as it arrives from the sensor, the per-point
// differential features computed by curvature analysis, and the keypoint
// label a point is classified into.
package point

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
)

// Label classifies a point after keypoint selection.
type Label int

const (
	// Unset is the default label before classification runs.
	Unset Label = iota
	// Edge marks a high-curvature line feature.
	Edge
	// Planar marks a low-curvature, extended surface patch.
	Planar
	// Rejected marks a point excluded by the validity filter.
	Rejected
)

func (l Label) String() string {
	switch l {
	case Edge:
		return "edge"
	case Planar:
		return "planar"
	case Rejected:
		return "rejected"
	default:
		return "unset"
	}
}

// Point is a single LiDAR return: position, intensity, originating laser and
// its acquisition time normalized within the sweep, in [0, 1).
type Point struct {
	Position     r3.Vector
	Intensity    float32
	LaserID      uint16
	RelativeTime float64

	// Curvature, DepthGap and BeamAngle are the component B differential
	// features; zero until Curvature analysis runs on the containing line.
	Curvature float64
	DepthGap  float64
	BeamAngle float64
	Valid     bool
	Label     Label
}

// Range returns the Euclidean distance from the sensor origin.
func (p Point) Range() float64 {
	return p.Position.Norm()
}

// Azimuth returns atan2(y, x), used to sort points within a scan line.
func (p Point) Azimuth() float64 {
	return math.Atan2(p.Position.Y, p.Position.X)
}

// Keypoint is the minimal record carried forward across frames for matching:
// a classified point's position, its in-sweep time, and the beam it came
// from (diagnostic only — matching never groups by beam).
type Keypoint struct {
	Position     r3.Vector
	RelativeTime float64
	LaserID      uint16
}

// Line is an ordered sequence of points sharing a LaserID, sorted by azimuth.
// It also records, for every point, the index it held in the original
// unordered input batch (Source) so callers can invert the A.Organize mapping.
type Line struct {
	Points []Point
	Source []int
}

// Len, Less and Swap let Line sort its Points (and parallel Source slice) by
// azimuth with sort.Sort, matching component A's "sort by azimuth" step.
func (l *Line) Len() int { return len(l.Points) }

func (l *Line) Less(i, j int) bool {
	return l.Points[i].Azimuth() < l.Points[j].Azimuth()
}

func (l *Line) Swap(i, j int) {
	l.Points[i], l.Points[j] = l.Points[j], l.Points[i]
	l.Source[i], l.Source[j] = l.Source[j], l.Source[i]
}

var _ sort.Interface = (*Line)(nil)
