package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// SlerpQuat spherically interpolates between the identity quaternion and q
// at parameter s ∈ [0, 1]. This is the rotation half of the constant
// angular-velocity motion model T(s) = slerp(I, T; s).
func SlerpQuat(q quat.Number, s float64) quat.Number {
	if s <= 0 {
		return quat.Number{Real: 1}
	}
	if s >= 1 {
		return q
	}

	// Take the short way around the double cover.
	cosHalfTheta := q.Real
	if cosHalfTheta < 0 {
		q = Flip(q)
		cosHalfTheta = -cosHalfTheta
	}
	if cosHalfTheta > 1 {
		cosHalfTheta = 1
	}

	halfTheta := math.Acos(cosHalfTheta)
	sinHalfTheta := math.Sqrt(1 - cosHalfTheta*cosHalfTheta)

	if sinHalfTheta < 1e-9 {
		// q is (numerically) the identity; any interpolation is the identity.
		return quat.Number{Real: 1}
	}

	ratioA := math.Sin((1-s)*halfTheta) / sinHalfTheta
	ratioB := math.Sin(s*halfTheta) / sinHalfTheta

	return quat.Number{
		Real: ratioA + ratioB*q.Real,
		Imag: ratioB * q.Imag,
		Jmag: ratioB * q.Jmag,
		Kmag: ratioB * q.Kmag,
	}
}

// SlerpPose interpolates a sweep transform T at relative time s ∈ [0, 1]:
// T(s) = slerp(I, T; s) on rotation, linear interpolation on translation.
func SlerpPose(t Pose, s float64) Pose {
	q := SlerpQuat(t.Euler.Quaternion(), s)
	eu := QuatToEulerAngles(q)
	return Pose{
		Euler: *eu,
		Translation: t.Translation.Mul(clamp01(s)),
	}
}

func clamp01(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// DSlerpQuatDs returns the derivative, with respect to s, of SlerpQuat(q, s)
// evaluated at s. This differentiates with respect to the in-sweep time
// fraction, not the six pose parameters the optimizer solves for, so it
// plays no part in the Jacobian; Pose.AngularVelocity uses it to report how
// fast a relative transform's rotation is changing across the sweep.
func DSlerpQuatDs(q quat.Number, s float64) quat.Number {
	const h = 1e-6
	a := SlerpQuat(q, s-h)
	b := SlerpQuat(q, s+h)
	return quat.Scale(1/(2*h), quat.Number{
		Real: b.Real - a.Real,
		Imag: b.Imag - a.Imag,
		Jmag: b.Jmag - a.Jmag,
		Kmag: b.Kmag - a.Kmag,
	})
}
