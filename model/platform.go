package model

// MotionSource indicates how a platform's motion is determined.
type MotionSource int

const (
	MotionSourceStatic MotionSource = iota // fixed coordinates
	MotionSourceTLE                        // SGP4 propagation from a two-line element set
)

// Platform types understood by the downlink scenario.
const (
	PlatformSatellite     = "SATELLITE"
	PlatformGroundStation = "GROUND_STATION"
)

// Motion is a position in the scenario's local east-north-up frame, in metres.
// Z is height above the ground reference.
type Motion struct {
	X float64
	Y float64
	Z float64
}

// PlatformDefinition represents a physical asset carrying a terminal
// (satellite, ground station).
type PlatformDefinition struct {
	ID   string
	Name string
	Type string // PlatformSatellite or PlatformGroundStation

	Coordinates  Motion
	MotionSource MotionSource

	NoradID uint32 // optional; informational for TLE platforms
	TLE     [2]string
}
