package core

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/fso-downlink/model"
)

// SpeedOfLight is the propagation speed used for frequency and delay
// conversions (m/s).
const SpeedOfLight = 3e8

// Vec3 is a position in the local east-north-up frame, in metres. Z is the
// height above the ground reference.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) r3() r3.Vec { return r3.Vec{X: v.X, Y: v.Y, Z: v.Z} }

// VecFromMotion converts stored platform coordinates.
func VecFromMotion(m model.Motion) Vec3 { return Vec3{X: m.X, Y: m.Y, Z: m.Z} }

// Motion converts back to the storage form.
func (v Vec3) Motion() model.Motion { return model.Motion{X: v.X, Y: v.Y, Z: v.Z} }

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return r3.Norm(r3.Sub(v.r3(), other.r3()))
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return r3.Norm(v.r3())
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	d := r3.Sub(v.r3(), other.r3())
	return Vec3{X: d.X, Y: d.Y, Z: d.Z}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return r3.Dot(v.r3(), other.r3())
}

// ZenithAngle returns the angle in radians between the local vertical at
// observer and the line of sight to target. Coincident points give 0.
func ZenithAngle(observer, target Vec3) float64 {
	v := target.Sub(observer)
	n := v.Norm()
	if n == 0 {
		return 0
	}
	cos := v.Z / n
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos)
}

// ElevationAngle returns the elevation of target above the observer's local
// horizon, in radians. 0 = horizon, π/2 = overhead.
func ElevationAngle(observer, target Vec3) float64 {
	return math.Pi/2 - ZenithAngle(observer, target)
}

// ElevationDegrees is ElevationAngle in degrees.
func ElevationDegrees(observer, target Vec3) float64 {
	return ElevationAngle(observer, target) * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * math.Pi / 180.0 }
