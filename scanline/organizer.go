// Package scanline implements component A: partitioning an unordered batch
// of points into per-beam scan lines sorted by azimuth, and recording the
// forward/inverse index mapping the rest of the pipeline needs to annotate
// the original frame.
package scanline

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/thelineover/VeloView/point"
)

// Calibration supplies the ordering from a raw laser_id to a vertical-angle
// sorted beam index, as set once via the host's set_sensor_calibration call.
type Calibration struct {
	LaserIDToBeam map[uint16]int
	NumLasers     int
}

// ErrUnknownLaserID is returned by Organize when an input point's laser_id
// has no entry in the calibration mapping.
var ErrUnknownLaserID = errors.New("laser_id not present in sensor calibration")

// Address locates a point within the organized scan lines.
type Address struct {
	Beam     int
	Position int
}

// Result is the organizer's output: the ragged set of scan lines plus the
// forward mapping (original input index -> Address) needed to reconstruct
// per-point results in the caller's original point order.
type Result struct {
	Lines   []point.Line
	Forward []Address
}

// Organize assigns every input point to its beam line via cal, sorts each
// line by azimuth and records the forward/inverse index mapping. Points
// whose Position field has already been populated are expected; Intensity,
// LaserID and RelativeTime carry through unchanged.
//
// Invariant: concatenating all lines in any defined order reproduces the
// input point multiset (testable property 1, scan-line bijection).
func Organize(points []point.Point, cal Calibration) (Result, error) {
	lines := make([]point.Line, cal.NumLasers)
	for i := range lines {
		lines[i] = point.Line{}
	}

	forward := make([]Address, len(points))

	for srcIdx, p := range points {
		beam, ok := cal.LaserIDToBeam[p.LaserID]
		if !ok || beam < 0 || beam >= cal.NumLasers {
			return Result{}, errors.Wrapf(ErrUnknownLaserID, "laser_id=%d", p.LaserID)
		}
		lines[beam].Points = append(lines[beam].Points, p)
		lines[beam].Source = append(lines[beam].Source, srcIdx)
	}

	for beam := range lines {
		sort.Sort(&lines[beam])
	}

	for beam, line := range lines {
		for pos, srcIdx := range line.Source {
			forward[srcIdx] = Address{Beam: beam, Position: pos}
		}
	}

	return Result{Lines: lines, Forward: forward}, nil
}

// Invert returns the original input index of the point found at addr, the
// inverse of the Forward mapping.
func (r Result) Invert(addr Address) (int, bool) {
	if addr.Beam < 0 || addr.Beam >= len(r.Lines) {
		return 0, false
	}
	line := r.Lines[addr.Beam]
	if addr.Position < 0 || addr.Position >= len(line.Source) {
		return 0, false
	}
	return line.Source[addr.Position], true
}
