package core

import (
	"math"
	"time"
)

// PropagationDelayModel returns the time a signal needs between two points.
type PropagationDelayModel interface {
	Delay(a, b Vec3) time.Duration
}

// ConstantSpeedDelay models propagation at a fixed speed.
type ConstantSpeedDelay struct {
	Speed float64 // m/s
}

// NewConstantSpeedDelay returns a model propagating at SpeedOfLight.
func NewConstantSpeedDelay() *ConstantSpeedDelay {
	return &ConstantSpeedDelay{Speed: SpeedOfLight}
}

// Delay returns distance/speed rounded to the nanosecond.
func (m *ConstantSpeedDelay) Delay(a, b Vec3) time.Duration {
	sec := a.DistanceTo(b) / m.Speed
	return time.Duration(math.Round(sec * float64(time.Second)))
}
