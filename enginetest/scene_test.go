package enginetest

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/thelineover/VeloView/point"
)

// room is a rectangular box (four vertical walls, a floor and a ceiling) used as a
// static environment for the end-to-end scenarios: rays cast from a sensor
// pose against its surfaces produce range discontinuities at the wall
// corners and the wall/floor seam, the same kind of edge-rich geometry a
// real indoor LiDAR sweep produces.
type room struct {
	halfX, halfY float64
	ceiling      float64
}

// cast finds the nearest point where a ray from origin in direction dir
// (unit vector) intersects one of the room's six surfaces.
func (r room) cast(origin, dir r3.Vector) (r3.Vector, bool) {
	best := math.Inf(1)
	var hit r3.Vector
	found := false

	plane := func(t float64, p r3.Vector) {
		if t > 1e-6 && t < best {
			if math.Abs(p.X) <= r.halfX+1e-6 && math.Abs(p.Y) <= r.halfY+1e-6 && p.Z >= -1e-6 && p.Z <= r.ceiling+1e-6 {
				best = t
				hit = p
				found = true
			}
		}
	}

	if dir.X > 1e-9 {
		t := (r.halfX - origin.X) / dir.X
		plane(t, origin.Add(dir.Mul(t)))
	} else if dir.X < -1e-9 {
		t := (-r.halfX - origin.X) / dir.X
		plane(t, origin.Add(dir.Mul(t)))
	}
	if dir.Y > 1e-9 {
		t := (r.halfY - origin.Y) / dir.Y
		plane(t, origin.Add(dir.Mul(t)))
	} else if dir.Y < -1e-9 {
		t := (-r.halfY - origin.Y) / dir.Y
		plane(t, origin.Add(dir.Mul(t)))
	}
	if dir.Z < -1e-9 {
		t := (0 - origin.Z) / dir.Z
		plane(t, origin.Add(dir.Mul(t)))
	}
	if dir.Z > 1e-9 {
		t := (r.ceiling - origin.Z) / dir.Z
		plane(t, origin.Add(dir.Mul(t)))
	}

	return hit, found
}

// scan sweeps numLasers beams (evenly spread in elevation) through
// azimuthsPerBeam samples each, casting against the room from origin, and
// returns the hits as a frame expressed in the sensor's local frame
// (origin subtracted, no rotation applied — callers wanting a rotated
// sensor orientation should rotate the returned positions themselves).
func (r room) scan(origin r3.Vector, numLasers, azimuthsPerBeam int) []point.Point {
	var pts []point.Point
	for laser := 0; laser < numLasers; laser++ {
		elevation := -0.2 + 0.4*float64(laser)/float64(numLasers-1)
		for i := 0; i < azimuthsPerBeam; i++ {
			az := 2 * math.Pi * float64(i) / float64(azimuthsPerBeam)
			dir := r3.Vector{
				X: math.Cos(az) * math.Cos(elevation),
				Y: math.Sin(az) * math.Cos(elevation),
				Z: math.Sin(elevation),
			}
			hit, ok := r.cast(origin, dir)
			if !ok {
				continue
			}
			local := hit.Sub(origin)
			pts = append(pts, point.Point{
				Position:     local,
				LaserID:      uint16(laser),
				RelativeTime: float64(i) / float64(azimuthsPerBeam-1),
			})
		}
	}
	return pts
}

func identityCalibration(numLasers int) (map[uint16]int, int) {
	m := make(map[uint16]int, numLasers)
	for i := 0; i < numLasers; i++ {
		m[uint16(i)] = i
	}
	return m, numLasers
}

// corridor is a long, narrow box with only parallel walls along x and no
// features along the long axis (S4): every cross-section is identical, so
// translation along x is unconstrained by any single frame's geometry.
func corridor() room {
	return room{halfX: 500, halfY: 2, ceiling: 3}
}

func asymmetricRoom() room {
	return room{halfX: 12, halfY: 6, ceiling: 3}
}

// scanRotated is scan with the sensor yawed by angle radians in place:
// rays are cast in the rotated world direction, and hits are rotated back
// into the (still axis-aligned) sensor-local frame, so repeated calls with
// an increasing yaw simulate a sensor that spins while the room stays put.
func (r room) scanRotated(origin r3.Vector, yaw float64, numLasers, azimuthsPerBeam int) []point.Point {
	cos, sin := math.Cos(yaw), math.Sin(yaw)
	rot := func(v r3.Vector) r3.Vector {
		return r3.Vector{X: cos*v.X - sin*v.Y, Y: sin*v.X + cos*v.Y, Z: v.Z}
	}
	rotInv := func(v r3.Vector) r3.Vector {
		return r3.Vector{X: cos*v.X + sin*v.Y, Y: -sin*v.X + cos*v.Y, Z: v.Z}
	}

	var pts []point.Point
	for laser := 0; laser < numLasers; laser++ {
		elevation := -0.2 + 0.4*float64(laser)/float64(numLasers-1)
		for i := 0; i < azimuthsPerBeam; i++ {
			az := 2 * math.Pi * float64(i) / float64(azimuthsPerBeam)
			localDir := r3.Vector{
				X: math.Cos(az) * math.Cos(elevation),
				Y: math.Sin(az) * math.Cos(elevation),
				Z: math.Sin(elevation),
			}
			worldDir := rot(localDir)
			hit, ok := r.cast(origin, worldDir)
			if !ok {
				continue
			}
			local := rotInv(hit.Sub(origin))
			pts = append(pts, point.Point{
				Position:     local,
				LaserID:      uint16(laser),
				RelativeTime: float64(i) / float64(azimuthsPerBeam-1),
			})
		}
	}
	return pts
}
