package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/fso-downlink/internal/sim"
)

var _ sim.Observer = (*EventLoopCollector)(nil)

// EventLoopCollector exposes discrete-event scheduler metrics. It implements
// sim.Observer.
type EventLoopCollector struct {
	gatherer prometheus.Gatherer

	EventsExecuted prometheus.Counter
	PendingEvents  prometheus.Gauge
}

// NewEventLoopCollector registers event-loop metrics against the provided registerer.
func NewEventLoopCollector(reg prometheus.Registerer) (*EventLoopCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	executed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_events_executed_total",
		Help: "Cumulative number of scheduler callbacks executed.",
	})
	executed, err := registerCounter(reg, executed, "sim_events_executed_total")
	if err != nil {
		return nil, err
	}

	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_events_pending",
		Help: "Number of events waiting in the scheduler queue.",
	})
	pending, err = registerGauge(reg, pending, "sim_events_pending")
	if err != nil {
		return nil, err
	}

	return &EventLoopCollector{
		gatherer:       gatherer,
		EventsExecuted: executed,
		PendingEvents:  pending,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EventLoopCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// EventExecuted records one executed event and the remaining queue depth.
func (c *EventLoopCollector) EventExecuted(pending int) {
	if c == nil {
		return
	}
	if c.EventsExecuted != nil {
		c.EventsExecuted.Inc()
	}
	if c.PendingEvents != nil {
		if pending < 0 {
			pending = 0
		}
		c.PendingEvents.Set(float64(pending))
	}
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
