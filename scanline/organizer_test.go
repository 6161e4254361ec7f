package scanline

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/thelineover/VeloView/point"
)

func testCalibration() Calibration {
	return Calibration{
		LaserIDToBeam: map[uint16]int{5: 0, 2: 1, 9: 2},
		NumLasers:     3,
	}
}

func TestOrganizeBijection(t *testing.T) {
	pts := []point.Point{
		{Position: r3.Vector{X: 1, Y: 1}, LaserID: 5},
		{Position: r3.Vector{X: 1, Y: -1}, LaserID: 2},
		{Position: r3.Vector{X: -1, Y: 1}, LaserID: 5},
		{Position: r3.Vector{X: 0, Y: 1}, LaserID: 9},
	}

	res, err := Organize(pts, testCalibration())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(res.Forward), test.ShouldEqual, len(pts))

	seen := make([]bool, len(pts))
	for _, line := range res.Lines {
		for _, srcIdx := range line.Source {
			test.That(t, seen[srcIdx], test.ShouldBeFalse)
			seen[srcIdx] = true
		}
	}
	for _, s := range seen {
		test.That(t, s, test.ShouldBeTrue)
	}

	for srcIdx := range pts {
		addr := res.Forward[srcIdx]
		back, ok := res.Invert(addr)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, back, test.ShouldEqual, srcIdx)
	}
}

func TestOrganizeUnknownLaserID(t *testing.T) {
	pts := []point.Point{{Position: r3.Vector{X: 1, Y: 0}, LaserID: 99}}
	_, err := Organize(pts, testCalibration())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOrganizeSortsByAzimuth(t *testing.T) {
	pts := []point.Point{
		{Position: r3.Vector{X: -1, Y: 0.001}, LaserID: 5}, // near pi
		{Position: r3.Vector{X: 1, Y: 0}, LaserID: 5},      // 0
		{Position: r3.Vector{X: 0, Y: 1}, LaserID: 5},       // pi/2
	}
	res, err := Organize(pts, testCalibration())
	test.That(t, err, test.ShouldBeNil)

	line := res.Lines[0]
	test.That(t, line.Len(), test.ShouldEqual, 3)
	for i := 1; i < line.Len(); i++ {
		test.That(t, line.Points[i-1].Azimuth() <= line.Points[i].Azimuth(), test.ShouldBeTrue)
	}
}
