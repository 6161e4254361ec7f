// Package curvature implements component B: per-scan-line differential
// features (curvature, depth-gap, beam-angle) that the keypoint selector
// (package keypoint) classifies against.
package curvature

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/thelineover/VeloView/parallel"
	"github.com/thelineover/VeloView/point"
)

// Analyze computes Curvature, DepthGap, BeamAngle and Valid in place on every
// point of every line, fanning out one goroutine group per line. Lines are
// independent: no line's output depends on another's.
func Analyze(lines []point.Line, neighborWidth int) {
	parallel.ForEachIndex(len(lines), func(i int) {
		analyzeLine(lines[i].Points, neighborWidth)
	})
}

func analyzeLine(pts []point.Point, w int) {
	n := len(pts)
	for i := range pts {
		if i < w || i >= n-w {
			// Edge-of-line points lack a full neighborhood.
			pts[i].Valid = false
			continue
		}
		pts[i].Curvature = curvatureAt(pts, i, w)
		pts[i].DepthGap = depthGapAt(pts, i, w)
		pts[i].BeamAngle = beamAngleAt(pts, i)
		pts[i].Valid = true
	}
}

// curvatureAt is LOAM's curvature proxy: the squared norm of the sum of
// vectors from p_i to every other point in its symmetric neighborhood.
func curvatureAt(pts []point.Point, i, w int) float64 {
	sum := r3.Vector{}
	pi := pts[i].Position
	for k := i - w; k <= i+w; k++ {
		if k == i {
			continue
		}
		sum = sum.Add(pi.Sub(pts[k].Position))
	}
	return sum.Norm2()
}

// depthGapAt is the max jump in range between consecutive points in the
// neighborhood [i-w, i+w].
func depthGapAt(pts []point.Point, i, w int) float64 {
	maxGap := 0.0
	prevRange := pts[i-w].Range()
	for k := i - w + 1; k <= i+w; k++ {
		r := pts[k].Range()
		gap := math.Abs(r - prevRange)
		if gap > maxGap {
			maxGap = gap
		}
		prevRange = r
	}
	return maxGap
}

// beamAngleAt is the angle, in radians, between the vectors from p_i to its
// immediate left and right neighbors.
func beamAngleAt(pts []point.Point, i int) float64 {
	pi := pts[i].Position
	left := pts[i-1].Position.Sub(pi)
	right := pts[i+1].Position.Sub(pi)
	ln, rn := left.Norm(), right.Norm()
	if ln == 0 || rn == 0 {
		return math.Pi
	}
	cos := left.Dot(right) / (ln * rn)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos)
}
