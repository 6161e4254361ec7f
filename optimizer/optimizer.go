// Package optimizer implements component F: building residuals from the
// feature matcher's output, running Levenberg-Marquardt against the
// analytic pose parameterization (rx, ry, rz, tx, ty, tz), periodically
// re-matching, and detecting rank-deficient (degenerate) systems. The
// normal-equations-plus-SVD-rank-check shape is grounded on
// mkhts-gortk/solvels.go's SolveLS (other_examples).
package optimizer

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/thelineover/VeloView/config"
	"github.com/thelineover/VeloView/matcher"
	"github.com/thelineover/VeloView/motionmodel"
	"github.com/thelineover/VeloView/point"
	"github.com/thelineover/VeloView/spatialmath"
)

// Result is the outcome of one stage's (ego-motion or mapping) LM run.
type Result struct {
	Pose           spatialmath.Pose
	Iterations     int
	Converged      bool
	Degenerate     bool
	// DegenerateAxes reports, per pose parameter (rx,ry,rz,tx,ty,tz), whether
	// that axis was poorly constrained in the final Jacobian (supplemented
	// diagnostic, original_source/VelodyneHDL/vtkSlam.h's per-DoF
	// eigenvalue tracking).
	DegenerateAxes [6]bool
	NumMatches     int
}

const (
	stepTolerance   = 1e-7
	rankTolRelative = 1e-6
	lambdaInit      = 1e-3
	lambdaFactor    = 10
)

// Run performs the shared ego-motion/mapping stage loop, implemented as one
// function parameterized by a configuration record rather than two
// near-duplicates: build residuals against edgeTarget/planeTarget, run LM,
// and every cfg.IcpFrequence iterations rebuild the residual set against the
// current pose guess.
//
// Every match residual is evaluated via motionmodel.TransformToStart(X, s,
// pose, undistort), undistorting each keypoint back to pose's reference
// frame before comparing it against the target. For the ego-motion stage
// pose is T_rel and that reference frame is the previous frame's own sensor
// frame, where the target keypoints already live. For the mapping stage pose
// is T_world and the reference frame is world, where the rolling grid's
// submap already lives: T_world plays the same structural role relative to
// world that T_rel plays relative to the previous frame, so the same
// TransformToStart call is correct for both stages without change.
func Run(
	edges, planars []point.Keypoint,
	edgeTarget, planeTarget matcher.Target,
	initial spatialmath.Pose,
	cfg config.StageOptions,
	undistort config.UndistortionOptions,
	minResidualNorm float64,
) Result {
	pose := initial
	lambda := lambdaInit
	degenerateStreak := 0

	var matches []matcher.Match
	var degAxes [6]bool

	for iter := 0; iter < cfg.MaxIter; iter++ {
		if iter%cfg.IcpFrequence == 0 {
			matches = rematch(edges, planars, edgeTarget, planeTarget, pose, cfg, undistort, minResidualNorm)
		}
		if len(matches) == 0 {
			return Result{Pose: pose, Iterations: iter, Converged: false, NumMatches: 0}
		}

		params := pose.Vector()
		J, r := buildJacobian(matches, params, undistort)

		jtj := new(mat.Dense)
		jtj.Mul(J.T(), J)
		jtr := new(mat.VecDense)
		jtr.MulVec(J.T(), r)

		rank, axisDegenerate := rankAndDegenerateAxes(jtj)
		degAxes = axisDegenerate

		if rank < 6 {
			lambda *= lambdaFactor
			degenerateStreak++
			if degenerateStreak >= 3 {
				return Result{Pose: pose, Iterations: iter, Degenerate: true, DegenerateAxes: degAxes, NumMatches: len(matches)}
			}
			continue
		}
		degenerateStreak = 0

		dx, ok := solveDamped(jtj, jtr, lambda)
		if !ok || hasNonFinite(dx) {
			degenerateStreak++
			lambda *= lambdaFactor
			if degenerateStreak >= 3 {
				return Result{Pose: pose, Iterations: iter, Degenerate: true, DegenerateAxes: degAxes, NumMatches: len(matches)}
			}
			continue
		}

		var np [6]float64
		stepNorm := 0.0
		for i := 0; i < 6; i++ {
			np[i] = params[i] + dx.AtVec(i)
			stepNorm += dx.AtVec(i) * dx.AtVec(i)
		}
		stepNorm = math.Sqrt(stepNorm)
		pose = spatialmath.NewPose(np[0], np[1], np[2], np[3], np[4], np[5])

		if stepNorm < stepTolerance {
			return Result{Pose: pose, Iterations: iter + 1, Converged: true, DegenerateAxes: degAxes, NumMatches: len(matches)}
		}
	}

	return Result{Pose: pose, Iterations: cfg.MaxIter, Converged: false, DegenerateAxes: degAxes, NumMatches: len(matches)}
}

func rematch(
	edges, planars []point.Keypoint,
	edgeTarget, planeTarget matcher.Target,
	pose spatialmath.Pose,
	cfg config.StageOptions,
	undistort config.UndistortionOptions,
	minResidualNorm float64,
) []matcher.Match {
	edgeMatches := matcher.MatchEdges(edges, edgeTarget, pose, cfg, undistort)
	planeMatches := matcher.MatchPlanes(planars, planeTarget, pose, cfg, undistort)

	all := make([]matcher.Match, 0, len(edgeMatches)+len(planeMatches))
	for _, m := range edgeMatches {
		xW := motionmodel.TransformToStart(m.X, m.Time, pose, undistort)
		if m.Residual(xW) >= minResidualNorm {
			all = append(all, m)
		}
	}
	for _, m := range planeMatches {
		xW := motionmodel.TransformToStart(m.X, m.Time, pose, undistort)
		if m.Residual(xW) >= minResidualNorm {
			all = append(all, m)
		}
	}
	return all
}

// buildJacobian evaluates every match's residual rows at params and their
// analytical derivatives with respect to the six pose parameters
// (rx, ry, rz, tx, ty, tz).
//
// The residual is r = b·(R(s)ᵀ(X - t(s)) - P), where R(s)/t(s) are the
// sweep-interpolated rotation and translation motionmodel.TransformToStart
// applies (T(s) = slerp(I, T; s) on rotation, s·t on translation). The
// translation columns differentiate exactly: ∂r/∂t_j = -s·(R(s)b)_j. The
// rotation columns use the small-angle approximation underlying LOAM's
// original analytic Jacobian, treating slerp's rotation at s as the
// rotation matrix of the Euler angles scaled by s (exact at s=0 and s=1,
// and accurate to first order elsewhere since inter-frame rotations are
// small): ∂R(s)/∂rx ≈ s·euler.DRotationMatrix(scaled, 0), and likewise for
// pitch/yaw, giving ∂r/∂rx = s·(DRotationMatrix(scaled,0)·b)·(X - t(s)).
// When undistortion is disabled s is pinned to 1 and R(s)/t(s) collapse to
// the full pose, so the same formulas differentiate the plain rigid
// transform exactly.
func buildJacobian(matches []matcher.Match, params [6]float64, undistort config.UndistortionOptions) (*mat.Dense, *mat.VecDense) {
	rows := 0
	for _, m := range matches {
		rows += len(m.Basis)
	}

	J := mat.NewDense(rows, 6, nil)
	r := mat.NewVecDense(rows, nil)

	pose := spatialmath.NewPose(params[0], params[1], params[2], params[3], params[4], params[5])

	row := 0
	for _, m := range matches {
		s := 1.0
		if undistort.Enabled {
			s = clampUnit(m.Time)
		}
		scaled := spatialmath.EulerAngles{
			Roll:  pose.Euler.Roll * s,
			Pitch: pose.Euler.Pitch * s,
			Yaw:   pose.Euler.Yaw * s,
		}
		rotAtS := scaled.RotationMatrix()
		tAtS := pose.Translation.Mul(s)
		diff := m.X.Sub(tAtS)

		xW := motionmodel.TransformToStart(m.X, m.Time, pose, undistort)
		d := xW.Sub(m.P)

		dRoll := scaled.DRotationMatrix(0)
		dPitch := scaled.DRotationMatrix(1)
		dYaw := scaled.DRotationMatrix(2)

		for _, b := range m.Basis {
			r.SetVec(row, b.Dot(d))

			rb := rotApply(rotAtS, b)
			J.Set(row, 3, -s*rb.X)
			J.Set(row, 4, -s*rb.Y)
			J.Set(row, 5, -s*rb.Z)

			J.Set(row, 0, s*rotApply(dRoll, b).Dot(diff))
			J.Set(row, 1, s*rotApply(dPitch, b).Dot(diff))
			J.Set(row, 2, s*rotApply(dYaw, b).Dot(diff))

			row++
		}
	}

	return J, r
}

// rotApply returns m·v.
func rotApply(m *spatialmath.RotationMatrix, v r3.Vector) r3.Vector {
	x, y, z := m.MulVec3(v.X, v.Y, v.Z)
	return r3.Vector{X: x, Y: y, Z: z}
}

// clampUnit clamps s to [0, 1], matching SlerpPose's own clamp on the
// interpolation parameter.
func clampUnit(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func hasNonFinite(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}

// solveDamped solves (JtJ + lambda*diag(JtJ)) dx = -Jtr.
func solveDamped(jtj *mat.Dense, jtr *mat.VecDense, lambda float64) (*mat.VecDense, bool) {
	n, _ := jtj.Dims()
	damped := mat.NewDense(n, n, nil)
	damped.CloneFrom(jtj)
	for i := 0; i < n; i++ {
		damped.Set(i, i, damped.At(i, i)*(1+lambda))
	}

	negJtr := mat.NewVecDense(n, nil)
	negJtr.ScaleVec(-1, jtr)

	dx := mat.NewVecDense(n, nil)
	err := dx.SolveVec(damped, negJtr)
	if err != nil {
		return nil, false
	}
	return dx, true
}

// rankAndDegenerateAxes computes the numerical rank of jtj via SVD and
// reports, per pose parameter, whether the parameter's own row of the right
// singular vectors only loads onto singular directions near the rank cutoff
// (original_source/VelodyneHDL/vtkSlam.h's per-DoF eigenvalue tracking,
// generalized from JtJ's eigenvalues to its singular values since JtJ is
// symmetric PSD and the two coincide).
func rankAndDegenerateAxes(jtj *mat.Dense) (int, [6]bool) {
	var svd mat.SVD
	ok := svd.Factorize(jtj, mat.SVDFull)
	if !ok {
		return 0, [6]bool{true, true, true, true, true, true}
	}
	values := svd.Values(nil)

	maxVal := 0.0
	for _, v := range values {
		if v > maxVal {
			maxVal = v
		}
	}
	tol := rankTolRelative * maxVal

	rank := 0
	for _, v := range values {
		if v > tol {
			rank++
		}
	}

	var v mat.Dense
	svd.VTo(&v)

	var degenerate [6]bool
	for axis := 0; axis < 6; axis++ {
		weight := 0.0
		for col := 0; col < len(values); col++ {
			if values[col] <= tol {
				weight += v.At(axis, col) * v.At(axis, col)
			}
		}
		degenerate[axis] = weight > 0.5
	}

	return rank, degenerate
}
