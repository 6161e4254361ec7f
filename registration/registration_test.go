package registration

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/thelineover/VeloView/config"
	"github.com/thelineover/VeloView/point"
	"github.com/thelineover/VeloView/spatialmath"
	"github.com/thelineover/VeloView/voxelgrid"
)

func flatPlane(z float64) []point.Keypoint {
	kps := make([]point.Keypoint, 0, 49)
	for x := -3.0; x <= 3.0; x++ {
		for y := -3.0; y <= 3.0; y++ {
			kps = append(kps, point.Keypoint{Position: r3.Vector{X: x, Y: y, Z: z}})
		}
	}
	return kps
}

func TestEgoMotionConvergesToIdentityOnMatchedPlane(t *testing.T) {
	planars := flatPlane(5.0)

	cfg := config.Default().EgoMotion
	cfg.PlaneDistanceNbrNeighbors = 5
	cfg.MaxIter = 10
	cfg.IcpFrequence = 2

	res := EgoMotion(nil, planars, nil, planars, spatialmath.Identity(), cfg, config.UndistortionOptions{Enabled: false}, 1e-6, 5.0)

	test.That(t, res.Pose.TranslationNorm(), test.ShouldBeLessThan, 1e-3)
	test.That(t, res.ExcessiveMotion, test.ShouldBeFalse)
}

func TestEgoMotionFlagsExcessiveMotion(t *testing.T) {
	planars := flatPlane(5.0)
	cfg := config.Default().EgoMotion
	cfg.PlaneDistanceNbrNeighbors = 5
	cfg.MaxIter = 1
	cfg.IcpFrequence = 1

	// an absurd initial guess, far outside any plausible inter-frame motion.
	guess := spatialmath.NewPose(0, 0, 0, 500, 500, 500)
	res := EgoMotion(nil, planars, nil, planars, guess, cfg, config.UndistortionOptions{Enabled: false}, 1e-6, 5.0)

	test.That(t, res.ExcessiveMotion, test.ShouldBeTrue)
}

func TestMappingRefinesAgainstRollingGridSubmap(t *testing.T) {
	planarGrid := voxelgrid.New(1.0, 50, 0.1, 0)
	edgeGrid := voxelgrid.New(1.0, 50, 0.1, 0)
	planarGrid.Shift(r3.Vector{})
	edgeGrid.Shift(r3.Vector{})

	planars := flatPlane(5.0)
	for _, kp := range planars {
		planarGrid.Insert(kp.Position)
	}

	cfg := config.Default().Mapping
	cfg.PlaneDistanceNbrNeighbors = 5
	cfg.MaxIter = 10
	cfg.IcpFrequence = 2

	res := Mapping(nil, planars, edgeGrid, planarGrid, spatialmath.Identity(), cfg, config.UndistortionOptions{Enabled: false}, 1e-6, 10)
	test.That(t, res.Pose.TranslationNorm(), test.ShouldBeLessThan, 1e-3)
}

func TestInsertKeypointsPopulatesGrid(t *testing.T) {
	edgeGrid := voxelgrid.New(1.0, 20, 0.1, 0)
	planarGrid := voxelgrid.New(1.0, 20, 0.1, 0)

	planars := []point.Keypoint{{Position: r3.Vector{X: 1, Y: 1, Z: 1}, RelativeTime: 0.5}}
	InsertKeypoints(nil, planars, spatialmath.Identity(), edgeGrid, planarGrid, config.UndistortionOptions{Enabled: false})

	test.That(t, planarGrid.Len(), test.ShouldEqual, 1)
	test.That(t, edgeGrid.Len(), test.ShouldEqual, 0)
}

func TestRelativeTransformRecoversComposedMotion(t *testing.T) {
	prevWorld := spatialmath.NewPose(0, 0, 0, 1, 2, 3)
	rel := spatialmath.NewPose(0, 0, 0, 0.1, 0, 0)
	world := prevWorld.Compose(rel)

	got := RelativeTransform(prevWorld, world)
	test.That(t, got.AlmostEqual(rel, 1e-6, 1e-6), test.ShouldBeTrue)
}
