package core

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/fso-downlink/internal/logging"
	"github.com/signalsfoundry/fso-downlink/internal/sim"
	"github.com/signalsfoundry/fso-downlink/model"
)

// Channel connects phys. Every transmission is delivered to every attached
// phy except the sender, after the propagation delay and with the loss chain
// applied to a per-receiver copy of the signal record.
type Channel struct {
	sched Scheduler
	phys  []*Phy
	delay PropagationDelayModel
	loss  PropagationStage

	// inFlight holds deliveries scheduled by Send that have not run yet.
	inFlight map[sim.EventID]struct{}

	log     logging.Logger
	metrics LinkMetrics
}

// NewChannel returns an empty channel.
func NewChannel(sched Scheduler, log logging.Logger) *Channel {
	return &Channel{
		sched:    sched,
		inFlight: make(map[sim.EventID]struct{}),
		log:      logging.OrNoop(log),
	}
}

// SetMetrics installs a metrics recorder.
func (c *Channel) SetMetrics(m LinkMetrics) { c.metrics = m }

// Add attaches p. Adding the same phy twice is a no-op.
func (c *Channel) Add(p *Phy) {
	for _, existing := range c.phys {
		if existing == p {
			return
		}
	}
	c.phys = append(c.phys, p)
}

// SetPropagationDelayModel sets the delay model.
func (c *Channel) SetPropagationDelayModel(m PropagationDelayModel) { c.delay = m }

// SetPropagationLossChain sets the first stage of the loss chain.
func (c *Channel) SetPropagationLossChain(first PropagationStage) { c.loss = first }

// NDevices returns the number of attached phys.
func (c *Channel) NDevices() int { return len(c.phys) }

// Phy returns the i-th attached phy.
func (c *Channel) Phy(i int) *Phy { return c.phys[i] }

// AssignStreams assigns random streams to the loss chain and returns how
// many it consumed.
func (c *Channel) AssignStreams(stream int64) int64 {
	return AssignChainStreams(c.loss, stream)
}

// InFlight returns the number of deliveries still waiting for their
// propagation delay.
func (c *Channel) InFlight() int { return len(c.inFlight) }

// Dispose cancels deliveries still in flight and releases every attached
// phy.
func (c *Channel) Dispose() {
	for id := range c.inFlight {
		c.sched.Cancel(id)
		delete(c.inFlight, id)
	}
	for _, p := range c.phys {
		p.Dispose()
	}
}

type delivery struct {
	dst   *Phy
	delay time.Duration
	pkt   *model.Packet
	rec   *SignalRecord
}

// Send propagates a transmission from sender. The loss chain is evaluated
// for every receiver before anything is scheduled, so a failing stage
// leaves no partial deliveries behind.
func (c *Channel) Send(sender *Phy, pkt *model.Packet, rec *SignalRecord, duration time.Duration) error {
	if c.delay == nil || c.loss == nil {
		return ErrChannelNotConfigured
	}

	senderPos := sender.Position()
	out := make([]delivery, 0, len(c.phys))
	for i, dst := range c.phys {
		if dst == sender {
			continue
		}
		rxPos := dst.Position()
		copyRec := rec.Copy()
		copyRec.Duration = duration
		if err := ApplyChain(c.loss, copyRec, senderPos, rxPos); err != nil {
			return fmt.Errorf("propagate to receiver %d (%s): %w", i, dst.Name(), err)
		}
		out = append(out, delivery{
			dst:   dst,
			delay: c.delay.Delay(senderPos, rxPos),
			pkt:   pkt.Copy(),
			rec:   copyRec,
		})
	}

	for _, d := range out {
		var id sim.EventID
		id = c.sched.ScheduleWithContext(d.dst.Context(), d.delay, func() {
			delete(c.inFlight, id)
			if err := d.dst.Receive(d.pkt, d.rec); err != nil {
				c.log.Error(context.Background(), "receive failed",
					logging.String("node", d.dst.Name()),
					logging.Err(err),
				)
				if c.metrics != nil {
					c.metrics.CallbackFailed("receive")
				}
			}
		})
		c.inFlight[id] = struct{}{}
		if c.metrics != nil {
			c.metrics.SignalScheduled(d.dst.Name())
		}
		c.log.Debug(context.Background(), "signal scheduled",
			logging.String("node", d.dst.Name()),
			logging.Duration("delay", d.delay),
			logging.Float64("power_db", d.rec.Power),
		)
	}
	return nil
}
