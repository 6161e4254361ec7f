// Package keypoint implements component C: the validity filter and the
// quota-based edge/planar selector that turns curvature-annotated scan
// lines into the frame's edge and planar keypoint sets.
package keypoint

import (
	"math"
	"sort"

	"github.com/thelineover/VeloView/config"
	"github.com/thelineover/VeloView/parallel"
	"github.com/thelineover/VeloView/point"
)

// angleGapFactor bounds how many multiples of AngleResolution a point's
// azimuth gap to its immediate neighbor may exceed before the neighborhood
// it sits in is treated as broken by a dropped return.
const angleGapFactor = 4.0

// Select labels the points of every line in place, fanning out one goroutine
// group per line: selected keypoints become Edge or Planar, points removed by
// a filter become Rejected, and every other point keeps its label (Unset for
// a fresh line). Lines must already have run
// through curvature.Analyze so Curvature/DepthGap/BeamAngle/Valid are
// populated.
func Select(lines []point.Line, cfg config.KeypointOptions, minDistanceToSensor float64) {
	parallel.ForEachIndex(len(lines), func(i int) {
		selectLine(lines[i].Points, cfg, minDistanceToSensor)
	})
}

func selectLine(pts []point.Point, cfg config.KeypointOptions, minDist float64) {
	n := len(pts)
	excluded := make([]bool, n)

	for i := range pts {
		if !pts[i].Valid {
			continue
		}
		if pts[i].Range() < minDist {
			pts[i].Label = point.Rejected
			excluded[i] = true
			continue
		}
		if math.Abs(pts[i].BeamAngle-math.Pi) < cfg.BeamAngleBand {
			pts[i].Label = point.Rejected
			excluded[i] = true
			continue
		}
		if cfg.AngleResolution > 0 && azimuthGap(pts, i) > angleGapFactor*cfg.AngleResolution {
			pts[i].Label = point.Rejected
			excluded[i] = true
		}
	}

	w := cfg.NeighborWidth
	for i := range pts {
		if !pts[i].Valid {
			continue
		}
		threshold := cfg.DepthGapThreshold * pts[i].Range()
		if pts[i].DepthGap > threshold {
			rejectGroup(pts, excluded, i, w, n)
		}
	}

	type candidate struct {
		idx       int
		curvature float64
	}
	candidates := make([]candidate, 0, n)
	for i := range pts {
		if pts[i].Valid && !excluded[i] {
			candidates = append(candidates, candidate{i, pts[i].Curvature})
		}
	}

	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].curvature > candidates[b].curvature
	})
	edgeCount := 0
	for _, c := range candidates {
		if edgeCount >= cfg.MaxEdgePerScanLine {
			break
		}
		if excluded[c.idx] {
			continue
		}
		if pts[c.idx].Curvature < cfg.EdgeCurvatureThreshold {
			break
		}
		pts[c.idx].Label = point.Edge
		edgeCount++
		markIneligible(excluded, c.idx, w, n)
	}

	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].curvature < candidates[b].curvature
	})
	planarCount := 0
	for _, c := range candidates {
		if planarCount >= cfg.MaxPlanarsPerScanLine {
			break
		}
		if excluded[c.idx] || pts[c.idx].Label == point.Edge {
			continue
		}
		if pts[c.idx].Curvature > cfg.PlaneCurvatureThreshold {
			break
		}
		pts[c.idx].Label = point.Planar
		planarCount++
		markIneligible(excluded, c.idx, w, n)
	}
}

// rejectGroup marks the points within W of an occlusion-boundary gap at i
// (i-W..i+W, clamped to the line) as Rejected, to avoid selecting false edges at depth discontinuities.
func rejectGroup(pts []point.Point, excluded []bool, i, w, n int) {
	lo, hi := clampRange(i-w, i+w, n)
	for k := lo; k <= hi; k++ {
		pts[k].Label = point.Rejected
		excluded[k] = true
	}
}

// markIneligible excludes a selected keypoint's neighborhood from further
// selection this pass without relabeling them Rejected — they remain
// Unset-and-ineligible, so keypoints stay spatially spread.
func markIneligible(excluded []bool, i, w, n int) {
	lo, hi := clampRange(i-w, i+w, n)
	for k := lo; k <= hi; k++ {
		excluded[k] = true
	}
}

// azimuthGap returns the larger of the azimuth steps to pts[i]'s immediate
// left and right neighbors, wrapping across the -pi/pi seam.
func azimuthGap(pts []point.Point, i int) float64 {
	gap := 0.0
	if i > 0 {
		gap = wrappedAngleDiff(pts[i].Azimuth(), pts[i-1].Azimuth())
	}
	if i < len(pts)-1 {
		if d := wrappedAngleDiff(pts[i].Azimuth(), pts[i+1].Azimuth()); d > gap {
			gap = d
		}
	}
	return gap
}

func wrappedAngleDiff(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}

func clampRange(lo, hi, n int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	if hi >= n {
		hi = n - 1
	}
	return lo, hi
}

// Extract collects the Edge- and Planar-labeled points across all lines into
// the frame's keypoint sets.
func Extract(lines []point.Line) (edges, planars []point.Keypoint) {
	for _, line := range lines {
		for _, p := range line.Points {
			switch p.Label {
			case point.Edge:
				edges = append(edges, point.Keypoint{Position: p.Position, RelativeTime: p.RelativeTime, LaserID: p.LaserID})
			case point.Planar:
				planars = append(planars, point.Keypoint{Position: p.Position, RelativeTime: p.RelativeTime, LaserID: p.LaserID})
			}
		}
	}
	return edges, planars
}
