// Package registration is the thin stage-specific layer above optimizer.Run,
// implemented as one function parameterized by a configuration record
// rather than two near-duplicates. It supplies the two targets the shared
// loop needs — previous-frame keypoints for ego-motion, the rolling grid's
// submap for mapping — and the stage bookkeeping that sits outside the LM
// loop itself: the ego-motion excessive-motion check and the mapping
// stage's post-refinement pose composition and map insertion.
package registration

import (
	"context"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"

	"github.com/thelineover/VeloView/config"
	"github.com/thelineover/VeloView/kdtree"
	"github.com/thelineover/VeloView/matcher"
	"github.com/thelineover/VeloView/motionmodel"
	"github.com/thelineover/VeloView/optimizer"
	"github.com/thelineover/VeloView/point"
	"github.com/thelineover/VeloView/spatialmath"
	"github.com/thelineover/VeloView/voxelgrid"
)

// EgoMotionResult is optimizer.Result plus the ego-motion-only
// excessive-motion failure check against MaxDistBetweenTwoFrames.
type EgoMotionResult struct {
	optimizer.Result
	ExcessiveMotion bool
}

// EgoMotion refines initialGuess (the previous frame's T_rel, used as a
// constant-velocity seed) against the previous frame's own edge and planar
// keypoints.
func EgoMotion(
	edges, planars []point.Keypoint,
	prevEdges, prevPlanars []point.Keypoint,
	initialGuess spatialmath.Pose,
	cfg config.StageOptions,
	undistort config.UndistortionOptions,
	minResidualNorm float64,
	maxDistBetweenTwoFrames float64,
) EgoMotionResult {
	edgeTarget := buildTarget(prevEdges)
	planeTarget := buildTarget(prevPlanars)

	res := optimizer.Run(edges, planars, edgeTarget, planeTarget, initialGuess, cfg, undistort, minResidualNorm)
	return EgoMotionResult{
		Result:          res,
		ExcessiveMotion: res.Pose.TranslationNorm() > maxDistBetweenTwoFrames,
	}
}

func buildTarget(kps []point.Keypoint) matcher.Target {
	pts := make([]r3.Vector, len(kps))
	for i, kp := range kps {
		pts[i] = kp.Position
	}
	return matcher.Target{Points: pts, Tree: kdtree.New(pts)}
}

// Mapping refines worldGuess (T_world(k-1) ⊙ T_rel(k), composed by the
// caller) against a submap of the rolling grid extracted around
// worldGuess's translation. It does not insert the current frame's
// keypoints into the grid; call InsertKeypoints with the result's pose
// afterward.
func Mapping(
	edges, planars []point.Keypoint,
	edgeGrid, planarGrid *voxelgrid.RollingGrid,
	worldGuess spatialmath.Pose,
	cfg config.MappingOptions,
	undistort config.UndistortionOptions,
	minResidualNorm float64,
	submapHalfExtentVoxels int,
) optimizer.Result {
	center := worldGuess.Translation

	var edgeTarget, planeTarget matcher.Target
	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error {
		pts, tree := edgeGrid.Submap(center, submapHalfExtentVoxels)
		edgeTarget = matcher.Target{Points: pts, Tree: tree}
		return nil
	})
	g.Go(func() error {
		pts, tree := planarGrid.Submap(center, submapHalfExtentVoxels)
		planeTarget = matcher.Target{Points: pts, Tree: tree}
		return nil
	})
	_ = g.Wait()

	return optimizer.Run(edges, planars, edgeTarget, planeTarget, worldGuess, cfg.StageOptions, undistort, minResidualNorm)
}

// InsertKeypoints shifts both grids onto pose's translation and inserts the
// current frame's keypoints, undistorted to the sweep end via
// motionmodel.TransformToEnd — TransformToStart is used inside the
// optimizer, TransformToEnd only here at map insertion.
func InsertKeypoints(
	edges, planars []point.Keypoint,
	pose spatialmath.Pose,
	edgeGrid, planarGrid *voxelgrid.RollingGrid,
	undistort config.UndistortionOptions,
) {
	center := pose.Translation
	edgeGrid.Shift(center)
	planarGrid.Shift(center)

	for _, kp := range edges {
		edgeGrid.Insert(motionmodel.TransformToEnd(kp.Position, kp.RelativeTime, pose, undistort))
	}
	for _, kp := range planars {
		planarGrid.Insert(motionmodel.TransformToEnd(kp.Position, kp.RelativeTime, pose, undistort))
	}
}

// RelativeTransform recovers T_rel(k) = T_world(k-1)⁻¹ ⊙ T_world(k) after the
// mapping stage has refined T_world(k) directly, so the next frame's
// ego-motion stage has an updated constant-velocity seed.
func RelativeTransform(prevWorld, world spatialmath.Pose) spatialmath.Pose {
	return spatialmath.Between(prevWorld, world)
}
