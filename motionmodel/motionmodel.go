// Package motionmodel implements component D: interpolating a per-sweep
// rigid transform to an in-sweep timestamp, used to undistort keypoints
// before matching and before inserting them into the rolling grid.
package motionmodel

import (
	"github.com/golang/geo/r3"

	"github.com/thelineover/VeloView/config"
	"github.com/thelineover/VeloView/spatialmath"
)

// AtTime returns T(s) = slerp(I, T; s): the sweep transform mapping
// sweep-start to the pose at relative time s. When undistortion is
// disabled, T(s) = T for every s (the supplemented constant-transform
// short-circuit, config.UndistortionOptions.Enabled == false).
func AtTime(T spatialmath.Pose, s float64, cfg config.UndistortionOptions) spatialmath.Pose {
	if !cfg.Enabled {
		return T
	}
	return spatialmath.SlerpPose(T, s)
}

// TransformToStart returns T(s)⁻¹ · p, re-expressing p (given in the
// sweep-end sensor frame) at the sweep's start frame, where s = p's
// relative_time.
func TransformToStart(p r3.Vector, s float64, T spatialmath.Pose, cfg config.UndistortionOptions) r3.Vector {
	return AtTime(T, s, cfg).Inverse().Apply(p)
}

// TransformToEnd returns T · T(s)⁻¹ · p, re-expressing p at the sweep's end
// frame after removing its intra-sweep distortion.
func TransformToEnd(p r3.Vector, s float64, T spatialmath.Pose, cfg config.UndistortionOptions) r3.Vector {
	undistorted := AtTime(T, s, cfg).Inverse().Apply(p)
	return T.Apply(undistorted)
}
