// Package enginetest holds the end-to-end scenario tests: a synthetic room
// (scene_test.go) scanned from a moving or rotating virtual sensor, fed
// frame by frame through a real engine.Engine.
package enginetest

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/thelineover/VeloView/config"
	"github.com/thelineover/VeloView/engine"
	"github.com/thelineover/VeloView/logging"
	"github.com/thelineover/VeloView/spatialmath"
)

func toPose(v [6]float64) spatialmath.Pose {
	return spatialmath.NewPose(v[0], v[1], v[2], v[3], v[4], v[5])
}

// defaultTestConfig returns config.Default() with Keypoints.AngleResolution
// set to match the synthetic room's 180-step-per-revolution azimuth
// spacing (2 degrees): the default's ~0.2 degree value models a real
// sensor's much finer resolution and would reject every point of these
// deliberately coarse fixtures.
func defaultTestConfig() config.Options {
	cfg := config.Default()
	cfg.Keypoints.AngleResolution = 2 * math.Pi / 180
	return cfg
}

func newEngine(t *testing.T, cfg config.Options, numLasers int) *engine.Engine {
	e, err := engine.New(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	laserIDs, n := identityCalibration(numLasers)
	test.That(t, e.SetSensorCalibration(laserIDs, n), test.ShouldBeNil)
	return e
}

// S1 — static sensor, planar ground, vertical wall: repeated identical
// frames should leave the sensor within 5cm of the origin.
func TestS1StaticSensor(t *testing.T) {
	e := newEngine(t, defaultTestConfig(), 8)
	r := asymmetricRoom()
	frame := r.scan(r3.Vector{Z: 1.5}, 8, 180)

	for i := 0; i < 100; i++ {
		_, err := e.AddFrame(frame)
		test.That(t, err, test.ShouldBeNil)
	}

	pose := e.GetWorldTransform()
	transNorm := math.Sqrt(pose[3]*pose[3] + pose[4]*pose[4] + pose[5]*pose[5])
	test.That(t, transNorm, test.ShouldBeLessThan, 0.05)
}

// S2 — pure translation: the sensor moves +1m along x per frame through the
// room; the first frame (at x=1) defines the world origin, so after frame 20
// T_world.tx should be 19 within 5%.
func TestS2PureTranslation(t *testing.T) {
	e := newEngine(t, defaultTestConfig(), 8)
	r := asymmetricRoom()

	var last [6]float64
	for k := 1; k <= 20; k++ {
		origin := r3.Vector{X: float64(k) * 1.0, Z: 1.5}
		frame := r.scan(origin, 8, 180)
		res, err := e.AddFrame(frame)
		test.That(t, err, test.ShouldBeNil)
		last = res.Pose.Vector()
	}

	test.That(t, math.Abs(last[3]-19.0), test.ShouldBeLessThan, 0.95) // within 5% of 19m
}

// S3 — pure rotation: the sensor yaws 5 degrees per frame in an asymmetric
// room; the accumulated rz component should track the yaw since the first
// frame, which defines the world orientation.
func TestS3PureRotation(t *testing.T) {
	e := newEngine(t, defaultTestConfig(), 8)
	r := asymmetricRoom()

	const step = 5 * math.Pi / 180
	var last [6]float64
	for k := 1; k <= 20; k++ {
		frame := r.scanRotated(r3.Vector{Z: 1.5}, float64(k)*step, 8, 180)
		res, err := e.AddFrame(frame)
		test.That(t, err, test.ShouldBeNil)
		last = res.Pose.Vector()
	}

	totalYaw := 19 * step
	test.That(t, math.Abs(last[2]-totalYaw), test.ShouldBeLessThan, 10*math.Pi/180)
}

// S4 — feature-starved corridor: a long tunnel with only parallel walls
// leaves the longitudinal axis unconstrained. Expect the ego-motion stage
// to flag the longitudinal translation axis (or the whole stage) degenerate.
func TestS4FeatureStarvedCorridor(t *testing.T) {
	e := newEngine(t, defaultTestConfig(), 8)
	c := corridor()

	frame0 := c.scan(r3.Vector{Z: 1.5}, 8, 180)
	_, err := e.AddFrame(frame0)
	test.That(t, err, test.ShouldBeNil)

	frame1 := c.scan(r3.Vector{X: 0.5, Z: 1.5}, 8, 180)
	res, err := e.AddFrame(frame1)
	test.That(t, err, test.ShouldBeNil)

	// tx is parameter index 3 in Pose.Vector()'s [rx,ry,rz,tx,ty,tz] layout.
	test.That(t, res.EgoMotionDegenerateAxes[3] || res.Status.EgoMotionDegenerate, test.ShouldBeTrue)
}

// S5 — reset midway: replaying S2 after a reset reproduces the same
// trajectory (modulo floating-point accumulation order).
func TestS5ResetReproducesTrajectory(t *testing.T) {
	e := newEngine(t, defaultTestConfig(), 8)
	r := asymmetricRoom()

	run := func() [][6]float64 {
		var out [][6]float64
		for k := 1; k <= 10; k++ {
			origin := r3.Vector{X: float64(k) * 1.0, Z: 1.5}
			frame := r.scan(origin, 8, 180)
			res, err := e.AddFrame(frame)
			test.That(t, err, test.ShouldBeNil)
			out = append(out, res.Pose.Vector())
		}
		return out
	}

	first := run()
	test.That(t, e.Reset(), test.ShouldBeNil)
	second := run()

	test.That(t, len(first), test.ShouldEqual, len(second))
	for i := range first {
		for axis := 0; axis < 6; axis++ {
			test.That(t, first[i][axis], test.ShouldAlmostEqual, second[i][axis], 1e-6)
		}
	}
}

// S6 — excessive jump: with MaxDistBetweenTwoFrames set far below any
// real inter-frame correction, ego-motion's own (small) refinement is
// flagged excessive and the pose falls back to extrapolation instead of
// adopting the computed correction.
func TestS6ExcessiveMotionFallsBackToExtrapolation(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.MaxDistBetweenTwoFrames = 1e-9

	e := newEngine(t, cfg, 8)
	r := asymmetricRoom()

	frame0 := r.scan(r3.Vector{Z: 1.5}, 8, 180)
	_, err := e.AddFrame(frame0)
	test.That(t, err, test.ShouldBeNil)

	frame1 := r.scan(r3.Vector{X: 0.05, Z: 1.5}, 8, 180)
	res, err := e.AddFrame(frame1)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, res.Status.ExcessiveMotion, test.ShouldBeTrue)
}

// Testable property 4 — composition law: T_world(k) must equal
// T_world(k-1) composed with the reported T_rel(k), exactly.
func TestCompositionLawHoldsAcrossFrames(t *testing.T) {
	e := newEngine(t, defaultTestConfig(), 8)
	r := asymmetricRoom()

	frame0 := r.scan(r3.Vector{Z: 1.5}, 8, 180)
	_, err := e.AddFrame(frame0)
	test.That(t, err, test.ShouldBeNil)
	prevWorld := e.GetWorldTransform()

	frame1 := r.scan(r3.Vector{X: 0.2, Z: 1.5}, 8, 180)
	res, err := e.AddFrame(frame1)
	test.That(t, err, test.ShouldBeNil)

	expected := toPose(prevWorld).Compose(res.TRel)
	test.That(t, expected.AlmostEqual(res.Pose, 1e-9, 1e-9), test.ShouldBeTrue)
}
