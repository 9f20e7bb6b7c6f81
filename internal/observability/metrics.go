package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/fso-downlink/core"
)

var _ core.LinkMetrics = (*LinkCollector)(nil)

// LinkCollector bundles Prometheus metrics for the optical link and
// implements core.LinkMetrics.
type LinkCollector struct {
	gatherer prometheus.Gatherer

	PacketsTransmitted *prometheus.CounterVec
	SignalsScheduled   *prometheus.CounterVec
	Receptions         *prometheus.CounterVec
	SuccessRate        *prometheus.HistogramVec

	NormalizedIrradiance *prometheus.GaugeVec
	IrradianceRedraws    *prometheus.CounterVec
	GreenwoodTime        *prometheus.HistogramVec

	CallbackErrors *prometheus.CounterVec
}

// NewLinkCollector registers link metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewLinkCollector(reg prometheus.Registerer) (*LinkCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	transmitted, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fso_packets_transmitted_total",
		Help: "Packets put on the optical channel, labeled by transmitting node.",
	}, []string{"node"}), "fso_packets_transmitted_total")
	if err != nil {
		return nil, err
	}

	scheduled, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fso_signals_scheduled_total",
		Help: "Propagated signals scheduled for delivery, labeled by receiving node.",
	}, []string{"node"}), "fso_signals_scheduled_total")
	if err != nil {
		return nil, err
	}

	receptions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fso_receptions_total",
		Help: "Evaluated receptions, labeled by node and outcome (delivered|lost).",
	}, []string{"node", "outcome"}), "fso_receptions_total")
	if err != nil {
		return nil, err
	}

	successRate, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fso_packet_success_probability",
		Help:    "Packet success probability computed by the error model.",
		Buckets: []float64{0.01, 0.1, 0.25, 0.5, 0.75, 0.9, 0.99, 0.999, 1},
	}, []string{"node"}), "fso_packet_success_probability")
	if err != nil {
		return nil, err
	}

	irradiance, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fso_normalized_irradiance",
		Help: "Most recent normalized irradiance fade drawn by the error model.",
	}, []string{"node"}), "fso_normalized_irradiance")
	if err != nil {
		return nil, err
	}

	redraws, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fso_irradiance_redraws_total",
		Help: "Irradiance fades drawn after a Greenwood time expiry.",
	}, []string{"node"}), "fso_irradiance_redraws_total")
	if err != nil {
		return nil, err
	}

	greenwood, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fso_greenwood_time_seconds",
		Help:    "Greenwood time constant used as the irradiance refresh interval.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.02, 0.03, 0.05, 0.1, 0.25, 1},
	}, []string{"node"}), "fso_greenwood_time_seconds")
	if err != nil {
		return nil, err
	}

	callbackErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fso_callback_errors_total",
		Help: "Errors raised inside scheduled callbacks, labeled by operation.",
	}, []string{"op"}), "fso_callback_errors_total")
	if err != nil {
		return nil, err
	}

	return &LinkCollector{
		gatherer:             gatherer,
		PacketsTransmitted:   transmitted,
		SignalsScheduled:     scheduled,
		Receptions:           receptions,
		SuccessRate:          successRate,
		NormalizedIrradiance: irradiance,
		IrradianceRedraws:    redraws,
		GreenwoodTime:        greenwood,
		CallbackErrors:       callbackErrors,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *LinkCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *LinkCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// PacketTransmitted implements core.LinkMetrics.
func (c *LinkCollector) PacketTransmitted(node string) {
	if c == nil || c.PacketsTransmitted == nil {
		return
	}
	c.PacketsTransmitted.WithLabelValues(node).Inc()
}

// SignalScheduled implements core.LinkMetrics.
func (c *LinkCollector) SignalScheduled(node string) {
	if c == nil || c.SignalsScheduled == nil {
		return
	}
	c.SignalsScheduled.WithLabelValues(node).Inc()
}

// ReceptionEvaluated implements core.LinkMetrics.
func (c *LinkCollector) ReceptionEvaluated(node string, successRate float64, delivered bool) {
	if c == nil {
		return
	}
	outcome := "lost"
	if delivered {
		outcome = "delivered"
	}
	if c.Receptions != nil {
		c.Receptions.WithLabelValues(node, outcome).Inc()
	}
	if c.SuccessRate != nil {
		c.SuccessRate.WithLabelValues(node).Observe(successRate)
	}
}

// IrradianceRedrawn implements core.LinkMetrics.
func (c *LinkCollector) IrradianceRedrawn(node string, normalized float64, greenwood time.Duration) {
	if c == nil {
		return
	}
	if c.IrradianceRedraws != nil {
		c.IrradianceRedraws.WithLabelValues(node).Inc()
	}
	if c.NormalizedIrradiance != nil {
		c.NormalizedIrradiance.WithLabelValues(node).Set(normalized)
	}
	if c.GreenwoodTime != nil && greenwood > 0 {
		c.GreenwoodTime.WithLabelValues(node).Observe(greenwood.Seconds())
	}
}

// CallbackFailed implements core.LinkMetrics.
func (c *LinkCollector) CallbackFailed(op string) {
	if c == nil || c.CallbackErrors == nil {
		return
	}
	c.CallbackErrors.WithLabelValues(op).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
