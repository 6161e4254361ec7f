package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform in SE(3), parameterized the way the optimizer
// requires (roll, pitch, yaw, tx, ty, tz) while composing and transforming
// through the DualQuaternion representation internally.
type Pose struct {
	Euler       EulerAngles
	Translation r3.Vector
}

// Identity returns the zero transform.
func Identity() Pose {
	return Pose{}
}

// NewPose builds a Pose from the six scalar parameters the LM optimizer
// solves for.
func NewPose(rx, ry, rz, tx, ty, tz float64) Pose {
	return Pose{
		Euler:       EulerAngles{Roll: rx, Pitch: ry, Yaw: rz},
		Translation: r3.Vector{X: tx, Y: ty, Z: tz},
	}
}

// Vector returns the pose as [rx, ry, rz, tx, ty, tz].
func (p Pose) Vector() [6]float64 {
	return [6]float64{p.Euler.Roll, p.Euler.Pitch, p.Euler.Yaw, p.Translation.X, p.Translation.Y, p.Translation.Z}
}

// dq builds the dual-quaternion representation of p.
func (p Pose) dq() *DualQuaternion {
	q := NewDualQuaternionFromRotation(p.Euler.Quaternion())
	q.SetTranslation(p.Translation.X, p.Translation.Y, p.Translation.Z)
	return q
}

// fromDQ converts a dual-quaternion rigid transform back to Euler+translation.
func fromDQ(q *DualQuaternion) Pose {
	t := q.Translation()
	eu := QuatToEulerAngles(q.Rotation())
	return Pose{Euler: *eu, Translation: r3.Vector{X: t.Dual.Imag, Y: t.Dual.Jmag, Z: t.Dual.Kmag}}
}

// Compose returns p ⊙ other: apply other first, then p. Chaining a new
// relative transform onto an accumulated world pose is p.Compose(other)
// with p the prior world pose and other the new relative transform.
func (p Pose) Compose(other Pose) Pose {
	return fromDQ(p.dq().Compose(other.dq()))
}

// Inverse returns the inverse rigid transform.
func (p Pose) Inverse() Pose {
	return fromDQ(p.dq().Inverse())
}

// Apply transforms a point by p: R*x + t.
func (p Pose) Apply(x r3.Vector) r3.Vector {
	ox, oy, oz := p.dq().Transform(x.X, x.Y, x.Z)
	return r3.Vector{X: ox, Y: oy, Z: oz}
}

// Between returns the relative transform that maps p1 onto p2, i.e.
// the pose x such that p1.Compose(x) == p2.
func Between(p1, p2 Pose) Pose {
	return fromDQ(p1.dq().Inverse().Compose(p2.dq()))
}

// TranslationNorm returns ||t||.
func (p Pose) TranslationNorm() float64 {
	return p.Translation.Norm()
}

// RotationAngle returns the axis-angle rotation magnitude of p, in radians.
func (p Pose) RotationAngle() float64 {
	return math.Abs(QuatToR4AA(p.Euler.Quaternion()).Theta)
}

// AngularVelocity returns the magnitude of the rotational derivative of p's
// sweep interpolation (slerp(I, p; s)) at relative time s, via
// DSlerpQuatDs. Diagnostic only: a frame whose relative transform carries a
// large AngularVelocity(1) rotated fast enough within one sweep that
// per-point undistortion mattered more than usual.
func (p Pose) AngularVelocity(s float64) float64 {
	return quat.Abs(DSlerpQuatDs(p.Euler.Quaternion(), s))
}

// AlmostEqual reports whether two poses are within the given translation
// (meters) and rotation (radians) tolerances of each other.
func (p Pose) AlmostEqual(other Pose, transTol, rotTol float64) bool {
	d := Between(p, other)
	return d.TranslationNorm() < transTol && d.RotationAngle() < rotTol
}
