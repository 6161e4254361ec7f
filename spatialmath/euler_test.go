package spatialmath

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestRotationMatrixOrthonormalColumns(t *testing.T) {
	e := EulerAngles{Roll: 0.3, Pitch: -0.5, Yaw: 1.1}
	m := e.RotationMatrix()

	norm := func(x, y, z float64) float64 { return math.Sqrt(x*x + y*y + z*z) }
	x1, y1, z1 := m.MulVec3(1, 0, 0)
	x2, y2, z2 := m.MulVec3(0, 1, 0)
	x3, y3, z3 := m.MulVec3(0, 0, 1)
	test.That(t, norm(x1, y1, z1), test.ShouldAlmostEqual, 1.0, 1e-9)
	test.That(t, norm(x2, y2, z2), test.ShouldAlmostEqual, 1.0, 1e-9)
	test.That(t, norm(x3, y3, z3), test.ShouldAlmostEqual, 1.0, 1e-9)
}

// TestDRotationMatrixMatchesCentralDifference cross-checks the analytic
// rotation-matrix derivative optimizer.buildJacobian relies on against a
// numerical one.
func TestDRotationMatrixMatchesCentralDifference(t *testing.T) {
	base := EulerAngles{Roll: 0.2, Pitch: 0.4, Yaw: -0.6}
	const h = 1e-6

	for axis := 0; axis < 3; axis++ {
		plus, minus := base, base
		switch axis {
		case 0:
			plus.Roll += h
			minus.Roll -= h
		case 1:
			plus.Pitch += h
			minus.Pitch -= h
		case 2:
			plus.Yaw += h
			minus.Yaw -= h
		}

		mPlus, mMinus := plus.RotationMatrix(), minus.RotationMatrix()
		analytic := base.DRotationMatrix(axis)

		for i := 0; i < 9; i++ {
			numeric := (mPlus.data[i] - mMinus.data[i]) / (2 * h)
			test.That(t, analytic.data[i], test.ShouldAlmostEqual, numeric, 1e-5)
		}
	}
}
