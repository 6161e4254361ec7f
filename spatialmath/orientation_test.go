package spatialmath

import (
	"math"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

// represent a 90 degree rotation around the x axis in all the representations
var (
	th45   = math.Pi / 2
	q90x   = quat.Number{Real: math.Cos(th45 / 2), Imag: math.Sin(th45 / 2)}
	aa90x  = R4AA{th45, 1, 0, 0}
	eu90x  = EulerAngles{Roll: th45, Pitch: 0, Yaw: 0}
)

func TestZeroOrientation(t *testing.T) {
	zero := NewZeroOrientation()
	test.That(t, zero.AxisAngles().Theta, test.ShouldAlmostEqual, 0.0)
	test.That(t, zero.Quaternion(), test.ShouldResemble, quat.Number{Real: 1})
	test.That(t, zero.EulerAngles().Roll, test.ShouldAlmostEqual, 0.0)
}

func TestQuatRoundTrip(t *testing.T) {
	aa := QuatToR4AA(q90x)
	test.That(t, aa.Theta, test.ShouldAlmostEqual, aa90x.Theta)
	test.That(t, aa.RX, test.ShouldAlmostEqual, aa90x.RX)
	test.That(t, aa.RY, test.ShouldAlmostEqual, aa90x.RY)
	test.That(t, aa.RZ, test.ShouldAlmostEqual, aa90x.RZ)

	eu := QuatToEulerAngles(q90x)
	test.That(t, eu.Roll, test.ShouldAlmostEqual, eu90x.Roll)
	test.That(t, eu.Pitch, test.ShouldAlmostEqual, eu90x.Pitch)
	test.That(t, eu.Yaw, test.ShouldAlmostEqual, eu90x.Yaw)

	back := eu.Quaternion()
	test.That(t, QuaternionAlmostEqual(back, q90x, 1e-9), test.ShouldBeTrue)
}

func TestR4AAToQuatRoundTrip(t *testing.T) {
	aa := aa90x
	q := aa.ToQuat()
	test.That(t, QuaternionAlmostEqual(q, q90x, 1e-9), test.ShouldBeTrue)
}

func TestOrientationAlmostEqual(t *testing.T) {
	o1 := &EulerAngles{Roll: 0.1, Pitch: 0.2, Yaw: 0.3}
	o2 := &EulerAngles{Roll: 0.1 + 1e-8, Pitch: 0.2, Yaw: 0.3}
	test.That(t, OrientationAlmostEqual(o1, o2, 1e-6), test.ShouldBeTrue)

	o3 := &EulerAngles{Roll: 0.5, Pitch: 0.2, Yaw: 0.3}
	test.That(t, OrientationAlmostEqual(o1, o3, 1e-6), test.ShouldBeFalse)
}

func TestFlipIsSameRotation(t *testing.T) {
	flipped := Flip(q90x)
	test.That(t, QuaternionAlmostEqual(q90x, flipped, 1e-9), test.ShouldBeTrue)
}
