// Package spatialmath provides the rigid-transform algebra the SLAM core
// builds on: quaternion/axis-angle/Euler-angle rotation representations,
// dual-quaternion pose composition, and the slerp-based sweep interpolation
// used for motion undistortion.
package spatialmath

import (
	"gonum.org/v1/gonum/num/quat"
)

// Orientation is implemented by the different parameterizations of a
// rotation in 3D Euclidean space that this package converts between.
type Orientation interface {
	AxisAngles() *R4AA
	Quaternion() quat.Number
	EulerAngles() *EulerAngles
}

type quaternion quat.Number

// NewZeroOrientation returns an orientation representing no rotation.
func NewZeroOrientation() Orientation {
	q := quaternion(quat.Number{Real: 1})
	return &q
}

func (q *quaternion) Quaternion() quat.Number { return quat.Number(*q) }

func (q *quaternion) AxisAngles() *R4AA {
	r4 := QuatToR4AA(quat.Number(*q))
	return &r4
}

func (q *quaternion) EulerAngles() *EulerAngles {
	return QuatToEulerAngles(quat.Number(*q))
}

// OrientationAlmostEqual reports whether two orientations represent
// approximately the same rotation, within tol per quaternion component.
func OrientationAlmostEqual(o1, o2 Orientation, tol float64) bool {
	return QuaternionAlmostEqual(o1.Quaternion(), o2.Quaternion(), tol)
}

// QuaternionAlmostEqual reports whether two quaternions are within tol of
// each other component-wise, accounting for the double cover of SO(3) by
// unit quaternions (q and -q represent the same rotation).
func QuaternionAlmostEqual(q1, q2 quat.Number, tol float64) bool {
	return quatCompAlmostEqual(q1, q2, tol) || quatCompAlmostEqual(q1, quat.Scale(-1, q2), tol)
}

func quatCompAlmostEqual(q1, q2 quat.Number, tol float64) bool {
	return floatAlmostEqual(q1.Real, q2.Real, tol) &&
		floatAlmostEqual(q1.Imag, q2.Imag, tol) &&
		floatAlmostEqual(q1.Jmag, q2.Jmag, tol) &&
		floatAlmostEqual(q1.Kmag, q2.Kmag, tol)
}

func floatAlmostEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}
