package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/fso-downlink/internal/logging"
	"github.com/signalsfoundry/fso-downlink/internal/numeric"
	"github.com/signalsfoundry/fso-downlink/internal/sim"
	"github.com/signalsfoundry/fso-downlink/model"
)

// DefaultElevation is the elevation used for the Greenwood time constant
// unless geometric elevation is enabled (radians).
var DefaultElevation = Radians(60)

// ErrorModel turns a received signal into a packet success probability.
type ErrorModel interface {
	SetPhy(p *Phy)
	PacketSuccessRate(pkt *model.Packet, rec *SignalRecord) (float64, error)
	AssignStreams(stream int64) int64
	Dispose()
}

// DownlinkErrorModel draws a log-normal irradiance fade scaled by the
// scintillation index and holds it for one Greenwood time constant, so
// packets inside the turbulence coherence time see the same fade.
type DownlinkErrorModel struct {
	sched   Scheduler
	rng     RandomSource
	profile HufnagelValley
	phy     *Phy

	elevation          float64
	geometricElevation bool

	refresh      *sim.Timer
	needsRefresh bool
	normalized   float64
	lastTau      time.Duration

	log     logging.Logger
	metrics LinkMetrics
}

// ErrorModelOption configures a DownlinkErrorModel.
type ErrorModelOption func(*DownlinkErrorModel)

// WithFixedElevation sets the elevation (radians) used for the Greenwood
// time constant.
func WithFixedElevation(rad float64) ErrorModelOption {
	return func(m *DownlinkErrorModel) {
		m.elevation = rad
		m.geometricElevation = false
	}
}

// WithGeometricElevation derives the elevation from the endpoint positions.
func WithGeometricElevation() ErrorModelOption {
	return func(m *DownlinkErrorModel) { m.geometricElevation = true }
}

// WithTurbulenceProfile replaces the HV 5/7 profile.
func WithTurbulenceProfile(hv HufnagelValley) ErrorModelOption {
	return func(m *DownlinkErrorModel) { m.profile = hv }
}

// WithErrorModelLogger sets the logger.
func WithErrorModelLogger(l logging.Logger) ErrorModelOption {
	return func(m *DownlinkErrorModel) { m.log = logging.OrNoop(l) }
}

// WithErrorModelMetrics records redraws.
func WithErrorModelMetrics(lm LinkMetrics) ErrorModelOption {
	return func(m *DownlinkErrorModel) { m.metrics = lm }
}

// NewDownlinkErrorModel returns a model that draws from rng and schedules
// refreshes on sched. The first evaluation always draws.
func NewDownlinkErrorModel(sched Scheduler, rng RandomSource, opts ...ErrorModelOption) *DownlinkErrorModel {
	m := &DownlinkErrorModel{
		sched:        sched,
		rng:          rng,
		profile:      DefaultHufnagelValley(),
		elevation:    DefaultElevation,
		needsRefresh: true,
		normalized:   1,
		log:          logging.Noop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.refresh = sim.NewTimer(sched, m.expire)
	return m
}

// SetPhy binds the receiving phy.
func (m *DownlinkErrorModel) SetPhy(p *Phy) { m.phy = p }

// AssignStreams pins the irradiance stream and returns 1.
func (m *DownlinkErrorModel) AssignStreams(stream int64) int64 {
	m.rng.SetStream(stream)
	return 1
}

// NormalizedIrradiance returns the cached fade.
func (m *DownlinkErrorModel) NormalizedIrradiance() float64 { return m.normalized }

// NeedsRefresh reports whether the next evaluation draws a new fade.
func (m *DownlinkErrorModel) NeedsRefresh() bool { return m.needsRefresh }

// RefreshPending reports whether a refresh expiry is scheduled.
func (m *DownlinkErrorModel) RefreshPending() bool { return m.refresh.IsRunning() }

// LastGreenwoodTime returns the most recent refresh interval.
func (m *DownlinkErrorModel) LastGreenwoodTime() time.Duration { return m.lastTau }

// Dispose cancels a pending refresh.
func (m *DownlinkErrorModel) Dispose() { m.refresh.Cancel() }

func (m *DownlinkErrorModel) expire() {
	m.needsRefresh = true
	m.log.Debug(context.Background(), "irradiance refresh due", logging.Duration("greenwood", m.lastTau))
}

// PacketSuccessRate returns the probability that pkt survives the link
// described by rec. It also writes NormalizedIrradiance, RxPowerWatts,
// BitErrorRate and SuccessRate on rec.
func (m *DownlinkErrorModel) PacketSuccessRate(pkt *model.Packet, rec *SignalRecord) (float64, error) {
	if m.phy == nil {
		return 0, errors.New("error model is not bound to a phy")
	}
	rx := m.phy.RxAntenna()
	if rx == nil {
		return 0, ErrNoRxAntenna
	}

	if m.needsRefresh {
		if err := m.redraw(rec); err != nil {
			return 0, err
		}
	}

	rxIrradiance := rec.MeanIrradiance * m.normalized
	rxPower := rx.CollectingArea() * rxIrradiance
	ber := CalculateBER(rxPower, rx.CharacteristicPower, rx.FormFactor)
	psr := 1 - PacketLossProbability(ber, pkt.Size())

	rec.NormalizedIrradiance = m.normalized
	rec.RxPowerWatts = rxPower
	rec.BitErrorRate = ber
	rec.SuccessRate = psr
	return psr, nil
}

func (m *DownlinkErrorModel) redraw(rec *SignalRecord) error {
	if rec.Source == nil {
		return errors.New("signal record has no source phy")
	}
	txPos, rxPos := rec.Source.Position(), m.phy.Position()
	if txPos.Z < rxPos.Z {
		return fmt.Errorf("%w: tx %.1f m, rx %.1f m", ErrTransmitterBelowReceiver, txPos.Z, rxPos.Z)
	}

	si := rec.ScintillationIndex
	m.normalized = m.rng.LogNormal(-0.5*si, math.Sqrt(si))

	if !m.refresh.IsRunning() {
		elevation := m.elevation
		if m.geometricElevation {
			elevation = ElevationAngle(rxPos, txPos)
		}
		tau, res, ok := m.profile.GreenwoodTimeConstant(rec.Wavelength, txPos.Z, rxPos.Z, elevation)
		if !res.Converged {
			m.log.Warn(context.Background(), "greenwood integral did not converge",
				logging.Float64("abs_error", res.AbsError),
				logging.Int("intervals", res.Intervals),
			)
		}
		if ok {
			m.lastTau = tau
			m.refresh.SetDelay(tau)
			m.refresh.Schedule()
		} else {
			m.log.Debug(context.Background(), "no turbulent path, irradiance held")
		}
	}
	m.needsRefresh = false

	m.log.Debug(context.Background(), "irradiance redrawn",
		logging.Float64("scintillation_index", si),
		logging.Float64("normalized_irradiance", m.normalized),
		logging.Duration("greenwood", m.lastTau),
	)
	if m.metrics != nil {
		m.metrics.IrradianceRedrawn(m.phy.Name(), m.normalized, m.lastTau)
	}
	return nil
}

// BER quadrature tolerances.
var berQuadrature = numeric.Options{AbsTol: 1e-20, RelTol: 1e-10, MaxParts: numeric.DefaultMaxParts}

// CalculateBER returns the bit error rate of a detector with characteristic
// power pc and form factor ff receiving power watts.
func CalculateBER(power, pc, ff float64) float64 {
	ratio := power / pc
	x := ratio / (1 + math.Sqrt(1+ff*ratio)) / math.Sqrt2
	res := numeric.IntegrateToInf(func(t float64) float64 {
		return math.Exp(-t * t / 2)
	}, x, berQuadrature)
	return res.Value / (2 * math.Sqrt(2*math.Pi))
}

// PacketLossProbability returns 1-(1-ber)^(8*sizeBytes).
func PacketLossProbability(ber float64, sizeBytes int) float64 {
	if ber <= 0 || sizeBytes <= 0 {
		return 0
	}
	if ber >= 1 {
		return 1
	}
	bits := float64(8 * sizeBytes)
	return -math.Expm1(bits * math.Log1p(-ber))
}

// CurvePoint is one sample of a success-rate sweep.
type CurvePoint struct {
	PowerWatts  float64
	BER         float64
	SuccessRate float64
}

// SuccessRateCurve evaluates the detector of rx at each received power for
// packets of sizeBytes.
func SuccessRateCurve(rx OpticalRxAntenna, powersWatts []float64, sizeBytes int) []CurvePoint {
	out := make([]CurvePoint, 0, len(powersWatts))
	for _, p := range powersWatts {
		ber := CalculateBER(p, rx.CharacteristicPower, rx.FormFactor)
		out = append(out, CurvePoint{
			PowerWatts:  p,
			BER:         ber,
			SuccessRate: 1 - PacketLossProbability(ber, sizeBytes),
		})
	}
	return out
}
