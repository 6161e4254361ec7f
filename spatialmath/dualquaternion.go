package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/dualquat"
	"gonum.org/v1/gonum/num/quat"
)

// DualQuaternion represents a rigid transform (rotation + translation) as a
// unit dual quaternion. Composition of two rigid transforms is dual
// quaternion multiplication, which is how Pose.Compose
// (T_world(k) = T_world(k-1) ⊙ T_rel(k)) is implemented.
type DualQuaternion struct {
	Quat dualquat.Number
}

// NewDualQuaternion returns the identity transform. The real part of a
// rigid-transform dual quaternion must be a unit quaternion, never all
// zeroes, so this constructor should always be used in place of a bare
// DualQuaternion{}.
func NewDualQuaternion() *DualQuaternion {
	return &DualQuaternion{dualquat.Number{
		Real: quat.Number{Real: 1},
		Dual: quat.Number{},
	}}
}

// NewDualQuaternionFromRotation builds a DualQuaternion with zero translation
// from a rotation quaternion.
func NewDualQuaternionFromRotation(q quat.Number) *DualQuaternion {
	return &DualQuaternion{dualquat.Number{
		Real: q,
		Dual: quat.Number{},
	}}
}

// Clone returns a copy of q.
func (q *DualQuaternion) Clone() *DualQuaternion {
	return &DualQuaternion{q.Quat}
}

// Rotation returns the rotation quaternion.
func (q *DualQuaternion) Rotation() quat.Number {
	return q.Quat.Real
}

// Translation returns the translation as a pure-imaginary dual quaternion;
// Imag/Jmag/Kmag of its Dual part are the x, y, z translation components.
func (q *DualQuaternion) Translation() dualquat.Number {
	return dualquat.Mul(q.Quat, dualquat.Conj(q.Quat))
}

// SetTranslation sets the translation against the current rotation.
func (q *DualQuaternion) SetTranslation(x, y, z float64) {
	q.Quat.Dual = quat.Number{Real: 0, Imag: x / 2, Jmag: y / 2, Kmag: z / 2}
	q.Quat.Dual = quat.Mul(q.Quat.Dual, q.Quat.Real)
}

// Compose returns q ⊙ other: the rigid transform that first applies other,
// then applies q. For T_world(k) = T_world(k-1) ⊙ T_rel(k),
// TWorldPrev.Compose(TRel) applies TRel (motion within the previous sweep's
// end frame) before embedding the result via TWorldPrev.
func (q *DualQuaternion) Compose(other *DualQuaternion) *DualQuaternion {
	return &DualQuaternion{dualquat.Mul(q.Quat, other.Quat)}
}

// Inverse returns the inverse rigid transform. For a unit dual quaternion
// the inverse is its quaternion conjugate: both the real and the dual part
// are conjugated, and the dual part is not negated.
func (q *DualQuaternion) Inverse() *DualQuaternion {
	return &DualQuaternion{dualquat.Number{Real: quat.Conj(q.Quat.Real), Dual: quat.Conj(q.Quat.Dual)}}
}

// Transform applies the rigid transform to a point given as (x, y, z) and
// returns the transformed (x, y, z): rotate, then translate.
func (q *DualQuaternion) Transform(x, y, z float64) (float64, float64, float64) {
	p := dualquat.Number{Real: quat.Number{Real: 1}, Dual: quat.Number{Real: 0, Imag: x, Jmag: y, Kmag: z}}
	t := dualquat.Mul(dualquat.Mul(q.Quat, p), dualquat.Conj(q.Quat))
	return t.Dual.Imag, t.Dual.Jmag, t.Dual.Kmag
}

// QuatToR4AA converts a quaternion to an R4 axis angle, matching the
// convention used by the Eigen C++ library's AngleAxis constructor.
func QuatToR4AA(q quat.Number) R4AA {
	denom := quatImagNorm(q)

	angle := 2 * math.Atan2(denom, math.Abs(q.Real))
	if q.Real < 0 {
		angle *= -1
	}

	if denom < 1e-9 {
		return R4AA{angle, 0, 0, 1}
	}
	return R4AA{angle, q.Imag / denom, q.Jmag / denom, q.Kmag / denom}
}

func quatImagNorm(q quat.Number) float64 {
	return math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}

// Flip multiplies a quaternion by -1, returning a quaternion representing
// the same rotation but on the opposite side of the double cover.
func Flip(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}
