package core

import (
	"time"

	"github.com/signalsfoundry/fso-downlink/internal/sim"
)

// Scheduler is the event-loop surface the link models use.
type Scheduler interface {
	Now() time.Time
	Schedule(delay time.Duration, f func()) sim.EventID
	ScheduleWithContext(ctx uint32, delay time.Duration, f func()) sim.EventID
	Cancel(id sim.EventID)
}

// RandomSource supplies the variates drawn by the error model and the phy.
type RandomSource interface {
	LogNormal(mu, sigma float64) float64
	Uniform() float64
	SetStream(stream int64)
}

// LinkMetrics records link activity. Implementations must be safe to call
// with any node label; a nil LinkMetrics is never called.
type LinkMetrics interface {
	PacketTransmitted(node string)
	SignalScheduled(node string)
	ReceptionEvaluated(node string, successRate float64, delivered bool)
	IrradianceRedrawn(node string, normalized float64, greenwood time.Duration)
	CallbackFailed(op string)
}

// Mobility provides the current position of a terminal.
type Mobility interface {
	Position() Vec3
}
