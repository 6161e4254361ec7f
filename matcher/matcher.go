// Package matcher implements component E: for each keypoint, find its
// nearest neighbors in a target cloud, fit a line or plane to them via PCA,
// and accept or reject the match, producing the residual tuples the
// optimizer (package optimizer) consumes.
package matcher

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/thelineover/VeloView/config"
	"github.com/thelineover/VeloView/kdtree"
	"github.com/thelineover/VeloView/motionmodel"
	"github.com/thelineover/VeloView/parallel"
	"github.com/thelineover/VeloView/point"
	"github.com/thelineover/VeloView/spatialmath"
)

// Kind distinguishes an edge (line) match from a planar match.
type Kind int

const (
	// LineMatch fits a line through a high-curvature neighborhood.
	LineMatch Kind = iota
	// PlaneMatch fits a plane through a flat, extended neighborhood.
	PlaneMatch
)

// Match is the residual tuple (A, P, X, t), with A represented by its
// square-root factor Basis (1 row for a plane, 2 orthonormal rows for a
// line) so that ||Basis·d||² == dᵀAd without needing a Cholesky
// factorization of a rank-deficient matrix.
type Match struct {
	Kind  Kind
	Basis []r3.Vector // sqrt(A) factor rows
	P     r3.Vector   // mean of the accepted neighborhood
	X     r3.Vector   // keypoint position, sensor-end frame
	Time  float64     // in-sweep relative time of X
}

// Residual returns ||Basis·(x - P)|| for a candidate world-frame position x,
// the scalar norm used for the MinPointToLineOrEdgeDistance floor check.
func (m Match) Residual(x r3.Vector) float64 {
	d := x.Sub(m.P)
	sumSq := 0.0
	for _, b := range m.Basis {
		c := b.Dot(d)
		sumSq += c * c
	}
	return math.Sqrt(sumSq)
}

// Target bundles a k-d tree with the point slice it indexes, since KNN
// results are indices into that slice.
type Target struct {
	Points []r3.Vector
	Tree   *kdtree.Tree
}

// MatchEdges and MatchPlanes run the correspondence search over every
// keypoint in parallel: matches are independent, only their aggregation is
// a synchronization point.
func MatchEdges(keypoints []point.Keypoint, target Target, pose spatialmath.Pose, cfg config.StageOptions, undistort config.UndistortionOptions) []Match {
	return matchAll(keypoints, target, pose, cfg.LineDistanceNbrNeighbors, cfg.MaxLineDistance, undistort, func(pts []r3.Vector, mean r3.Vector, ev eigenResult) (Match, bool) {
		return acceptLine(pts, mean, ev, cfg.LineDistancefactor)
	})
}

func MatchPlanes(keypoints []point.Keypoint, target Target, pose spatialmath.Pose, cfg config.StageOptions, undistort config.UndistortionOptions) []Match {
	return matchAll(keypoints, target, pose, cfg.PlaneDistanceNbrNeighbors, cfg.MaxPlaneDistance, undistort, func(pts []r3.Vector, mean r3.Vector, ev eigenResult) (Match, bool) {
		return acceptPlane(pts, mean, ev, cfg.PlaneDistancefactor1, cfg.PlaneDistancefactor2)
	})
}

func matchAll(
	keypoints []point.Keypoint,
	target Target,
	pose spatialmath.Pose,
	k int,
	maxDist float64,
	undistort config.UndistortionOptions,
	accept func(pts []r3.Vector, mean r3.Vector, ev eigenResult) (Match, bool),
) []Match {
	results := make([]*Match, len(keypoints))

	parallel.ForEachIndex(len(keypoints), func(i int) {
		kp := keypoints[i]
		xW := motionmodel.TransformToStart(kp.Position, kp.RelativeTime, pose, undistort)

		idxs := target.Tree.KNN(xW, k)
		if len(idxs) < k {
			return
		}
		neighbors := make([]r3.Vector, len(idxs))
		farthest := 0.0
		for j, idx := range idxs {
			neighbors[j] = target.Points[idx]
			d := neighbors[j].Sub(xW).Norm()
			if d > farthest {
				farthest = d
			}
		}
		if farthest > maxDist {
			return
		}

		mean, ev := pca(neighbors)
		m, ok := accept(neighbors, mean, ev)
		if !ok {
			return
		}
		m.X = kp.Position
		m.Time = kp.RelativeTime
		results[i] = &m
	})

	matches := make([]Match, 0, len(keypoints))
	for _, m := range results {
		if m != nil {
			matches = append(matches, *m)
		}
	}
	return matches
}

func acceptLine(pts []r3.Vector, mean r3.Vector, ev eigenResult, factor float64) (Match, bool) {
	if ev.values[0] <= 0 || ev.values[0] < factor*ev.values[1] {
		return Match{}, false
	}
	n := ev.vectors[0]
	u, v := perpBasis(n)
	return Match{Kind: LineMatch, Basis: []r3.Vector{u, v}, P: mean}, true
}

func acceptPlane(pts []r3.Vector, mean r3.Vector, ev eigenResult, factor1, factor2 float64) (Match, bool) {
	if ev.values[1] <= 0 || ev.values[1] < factor1*ev.values[2] {
		return Match{}, false
	}
	if ev.values[0] > factor2*ev.values[1] {
		return Match{}, false
	}
	n := ev.vectors[2]
	return Match{Kind: PlaneMatch, Basis: []r3.Vector{n}, P: mean}, true
}

// perpBasis returns two orthonormal vectors spanning the plane perpendicular
// to unit vector n, so that u·uᵀ + v·vᵀ == I - n·nᵀ.
func perpBasis(n r3.Vector) (r3.Vector, r3.Vector) {
	var ref r3.Vector
	if math.Abs(n.X) < math.Abs(n.Z) {
		ref = r3.Vector{X: 1}
	} else {
		ref = r3.Vector{Z: 1}
	}
	u := n.Cross(ref)
	if u.Norm() < 1e-9 {
		ref = r3.Vector{Y: 1}
		u = n.Cross(ref)
	}
	u = u.Normalize()
	v := n.Cross(u).Normalize()
	return u, v
}

// eigenResult holds a 3×3 symmetric matrix's eigenvalues/vectors sorted
// descending (λ1 ≥ λ2 ≥ λ3).
type eigenResult struct {
	values  [3]float64
	vectors [3]r3.Vector
}

func pca(pts []r3.Vector) (r3.Vector, eigenResult) {
	mean := r3.Vector{}
	for _, p := range pts {
		mean = mean.Add(p)
	}
	mean = mean.Mul(1 / float64(len(pts)))

	var cxx, cxy, cxz, cyy, cyz, czz float64
	for _, p := range pts {
		d := p.Sub(mean)
		cxx += d.X * d.X
		cxy += d.X * d.Y
		cxz += d.X * d.Z
		cyy += d.Y * d.Y
		cyz += d.Y * d.Z
		czz += d.Z * d.Z
	}
	n := float64(len(pts))
	sym := mat.NewSymDense(3, []float64{
		cxx / n, cxy / n, cxz / n,
		cxy / n, cyy / n, cyz / n,
		cxz / n, cyz / n, czz / n,
	})

	var es mat.EigenSym
	es.Factorize(sym, true)
	values := es.Values(nil) // ascending: values[0] <= values[1] <= values[2]
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// Reverse to descending order: λ1 >= λ2 >= λ3.
	order := [3]int{2, 1, 0}

	var ev eigenResult
	for outIdx, srcIdx := range order {
		ev.values[outIdx] = values[srcIdx]
		ev.vectors[outIdx] = r3.Vector{
			X: vecs.At(0, srcIdx),
			Y: vecs.At(1, srcIdx),
			Z: vecs.At(2, srcIdx),
		}
	}
	return mean, ev
}
