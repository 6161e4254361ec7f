package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// EulerAngles is a roll-pitch-yaw rotation, applied intrinsically in the
// order Rz(Yaw) * Ry(Pitch) * Rx(Roll), matching the convention the LOAM
// optimizer solves for directly as three of its six scalar pose parameters.
type EulerAngles struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// NewEulerAngles returns the identity (zero) rotation.
func NewEulerAngles() *EulerAngles {
	return &EulerAngles{}
}

// AxisAngles returns the rotation in axis-angle representation.
func (e *EulerAngles) AxisAngles() *R4AA {
	r4 := QuatToR4AA(e.Quaternion())
	return &r4
}

// EulerAngles returns itself, satisfying the Orientation interface.
func (e *EulerAngles) EulerAngles() *EulerAngles {
	return e
}

// Quaternion converts Euler angles to a unit quaternion.
func (e *EulerAngles) Quaternion() quat.Number {
	cr, sr := math.Cos(e.Roll/2), math.Sin(e.Roll/2)
	cp, sp := math.Cos(e.Pitch/2), math.Sin(e.Pitch/2)
	cy, sy := math.Cos(e.Yaw/2), math.Sin(e.Yaw/2)

	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

// RotationMatrix builds the 3x3 rotation matrix Rz(Yaw)*Ry(Pitch)*Rx(Roll).
func (e *EulerAngles) RotationMatrix() *RotationMatrix {
	cr, sr := math.Cos(e.Roll), math.Sin(e.Roll)
	cp, sp := math.Cos(e.Pitch), math.Sin(e.Pitch)
	cy, sy := math.Cos(e.Yaw), math.Sin(e.Yaw)

	return &RotationMatrix{[9]float64{
		cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr,
		sy * cp, sy*sp*sr + cy*cr, sy*sp*cr - cy*sr,
		-sp, cp * sr, cp * cr,
	}}
}

// DRotationMatrix returns the partial derivative of the rotation matrix
// with respect to roll, pitch or yaw (axis 0, 1, 2), evaluated at e. This
// is the analytical piece of the optimizer's Jacobian of r(T) w.r.t. the
// three rotational pose parameters.
func (e *EulerAngles) DRotationMatrix(axis int) *RotationMatrix {
	cr, sr := math.Cos(e.Roll), math.Sin(e.Roll)
	cp, sp := math.Cos(e.Pitch), math.Sin(e.Pitch)
	cy, sy := math.Cos(e.Yaw), math.Sin(e.Yaw)

	switch axis {
	case 0: // d/d(roll)
		return &RotationMatrix{[9]float64{
			0, cy*sp*cr + sy*sr, -cy*sp*sr + sy*cr,
			0, sy*sp*cr - cy*sr, -sy*sp*sr - cy*cr,
			0, cp * cr, -cp * sr,
		}}
	case 1: // d/d(pitch)
		return &RotationMatrix{[9]float64{
			-cy * sp, cy * cp * sr, cy * cp * cr,
			-sy * sp, sy * cp * sr, sy * cp * cr,
			-cp, -sp * sr, -sp * cr,
		}}
	case 2: // d/d(yaw)
		return &RotationMatrix{[9]float64{
			-sy * cp, -sy*sp*sr - cy*cr, -sy*sp*cr + cy*sr,
			cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr,
			0, 0, 0,
		}}
	default:
		panic("axis must be 0 (roll), 1 (pitch) or 2 (yaw)")
	}
}

// QuatToEulerAngles converts a unit quaternion to roll-pitch-yaw Euler angles
// using the Rz*Ry*Rx convention above.
func QuatToEulerAngles(q quat.Number) *EulerAngles {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	sinrCosp := 2 * (w*x + y*z)
	cosrCosp := 1 - 2*(x*x+y*y)
	roll := math.Atan2(sinrCosp, cosrCosp)

	var pitch float64
	sinp := 2 * (w*y - z*x)
	if sinp >= 1 {
		pitch = math.Pi / 2
	} else if sinp <= -1 {
		pitch = -math.Pi / 2
	} else {
		pitch = math.Asin(sinp)
	}

	sinyCosp := 2 * (w*z + x*y)
	cosyCosp := 1 - 2*(y*y+z*z)
	yaw := math.Atan2(sinyCosp, cosyCosp)

	return &EulerAngles{Roll: roll, Pitch: pitch, Yaw: yaw}
}

// RotationMatrix is a row-major 3x3 rotation matrix.
type RotationMatrix struct {
	data [9]float64
}

// At returns the element at (row, col), zero-indexed.
func (m *RotationMatrix) At(row, col int) float64 {
	return m.data[row*3+col]
}

// MulVec3 applies the rotation to a 3-vector given as (x, y, z).
func (m *RotationMatrix) MulVec3(x, y, z float64) (float64, float64, float64) {
	return m.data[0]*x + m.data[1]*y + m.data[2]*z,
		m.data[3]*x + m.data[4]*y + m.data[5]*z,
		m.data[6]*x + m.data[7]*y + m.data[8]*z
}
