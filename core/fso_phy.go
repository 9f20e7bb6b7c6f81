package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/fso-downlink/internal/logging"
	"github.com/signalsfoundry/fso-downlink/internal/sim"
	"github.com/signalsfoundry/fso-downlink/model"
)

// DefaultBitRate is the stock downlink bit rate (bit/s).
const DefaultBitRate = 49.3724e6

// PhyState is the transmit state of a phy.
type PhyState int

const (
	PhyIdle PhyState = iota
	PhyTx
)

func (s PhyState) String() string {
	switch s {
	case PhyIdle:
		return "IDLE"
	case PhyTx:
		return "TX"
	default:
		return "UNKNOWN"
	}
}

// RxOkCallback receives packets that passed the error model. Received SNR
// is not modelled and is always 0.
type RxOkCallback func(pkt *model.Packet, snr float64, rec *SignalRecord)

// RxErrorCallback receives packets lost to the error model together with the
// record the error model evaluated.
type RxErrorCallback func(pkt *model.Packet, snr float64, rec *SignalRecord)

// Phy is an optical terminal. A phy with a laser can transmit, a phy with a
// receiver antenna and an error model can receive.
type Phy struct {
	name    string
	context uint32

	sched      Scheduler
	mobility   Mobility
	channel    *Channel
	laser      *LaserAntenna
	rxAntenna  *OpticalRxAntenna
	errorModel ErrorModel
	decision   RandomSource

	bitRate float64
	state   PhyState
	txTimer *sim.Timer

	rxOk  RxOkCallback
	rxErr RxErrorCallback

	log     logging.Logger
	metrics LinkMetrics
}

// PhyOption configures a Phy.
type PhyOption func(*Phy)

// WithPhyName labels the phy in logs and metrics.
func WithPhyName(name string) PhyOption { return func(p *Phy) { p.name = name } }

// WithNodeContext sets the context tag of events delivered to this phy.
func WithNodeContext(ctx uint32) PhyOption { return func(p *Phy) { p.context = ctx } }

// WithPhyLogger sets the logger.
func WithPhyLogger(l logging.Logger) PhyOption { return func(p *Phy) { p.log = logging.OrNoop(l) } }

// WithPhyMetrics installs a metrics recorder.
func WithPhyMetrics(m LinkMetrics) PhyOption { return func(p *Phy) { p.metrics = m } }

// WithDecisionSource sets the stream deciding delivery from the success
// probability. Without one, every evaluated packet is delivered.
func WithDecisionSource(r RandomSource) PhyOption { return func(p *Phy) { p.decision = r } }

// NewPhy returns an idle phy.
func NewPhy(sched Scheduler, opts ...PhyOption) *Phy {
	p := &Phy{
		sched:   sched,
		context: sim.NoContext,
		bitRate: DefaultBitRate,
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With(logging.String("node", p.name))
	p.txTimer = sim.NewTimer(sched, p.endTx)
	return p
}

func (p *Phy) Name() string    { return p.name }
func (p *Phy) Context() uint32 { return p.context }
func (p *Phy) State() PhyState { return p.state }

// SetMobility sets the position source.
func (p *Phy) SetMobility(m Mobility) { p.mobility = m }

// Mobility returns the position source.
func (p *Phy) Mobility() Mobility { return p.mobility }

// Position returns the current position, or the origin without mobility.
func (p *Phy) Position() Vec3 {
	if p.mobility == nil {
		return Vec3{}
	}
	return p.mobility.Position()
}

// SetChannel attaches the phy to c.
func (p *Phy) SetChannel(c *Channel) {
	p.channel = c
	c.Add(p)
}

// Channel returns the attached channel.
func (p *Phy) Channel() *Channel { return p.channel }

// SetAntennas sets the transmit and receive optics; either may be nil.
func (p *Phy) SetAntennas(laser *LaserAntenna, rx *OpticalRxAntenna) {
	p.laser = laser
	p.rxAntenna = rx
}

// Laser returns the transmit optics.
func (p *Phy) Laser() *LaserAntenna { return p.laser }

// RxAntenna returns the receive optics.
func (p *Phy) RxAntenna() *OpticalRxAntenna { return p.rxAntenna }

// SetErrorModel binds em to this phy.
func (p *Phy) SetErrorModel(em ErrorModel) {
	p.errorModel = em
	if em != nil {
		em.SetPhy(p)
	}
}

// ErrorModel returns the bound error model.
func (p *Phy) ErrorModel() ErrorModel { return p.errorModel }

// SetBitRate sets the line rate in bit/s.
func (p *Phy) SetBitRate(bps float64) { p.bitRate = bps }

// BitRate returns the line rate in bit/s.
func (p *Phy) BitRate() float64 { return p.bitRate }

// SetReceiveOkCallback sets the sink for delivered packets.
func (p *Phy) SetReceiveOkCallback(cb RxOkCallback) { p.rxOk = cb }

// SetReceiveErrorCallback sets the sink for lost packets.
func (p *Phy) SetReceiveErrorCallback(cb RxErrorCallback) { p.rxErr = cb }

// AssignStreams pins the decision stream and the error model streams.
func (p *Phy) AssignStreams(stream int64) int64 {
	var n int64
	if p.decision != nil {
		p.decision.SetStream(stream)
		n++
	}
	if p.errorModel != nil {
		n += p.errorModel.AssignStreams(stream + n)
	}
	return n
}

// Dispose cancels pending timers of the phy and its error model.
func (p *Phy) Dispose() {
	p.txTimer.Cancel()
	p.state = PhyIdle
	if p.errorModel != nil {
		p.errorModel.Dispose()
	}
}

// CalculateTxDuration returns the time needed to send size bytes at the
// record's symbol period, rounded to the nanosecond.
func (p *Phy) CalculateTxDuration(size int, rec *SignalRecord) (time.Duration, error) {
	if !(rec.SymbolPeriod > 0) {
		return 0, fmt.Errorf("%w: %g s", ErrInvalidSymbolPeriod, rec.SymbolPeriod)
	}
	sec := float64(size) * 8 * rec.SymbolPeriod
	return time.Duration(math.Round(sec * float64(time.Second))), nil
}

// Transmit sends pkt on the channel. The phy stays in TX for the packet
// duration.
func (p *Phy) Transmit(pkt *model.Packet) error {
	if p.state != PhyIdle {
		return fmt.Errorf("%w: state %s", ErrPhyBusy, p.state)
	}
	if p.laser == nil {
		return ErrNoTxAntenna
	}
	if p.channel == nil {
		return ErrNoChannel
	}

	rec := &SignalRecord{
		Power:              p.laser.TxPowerDB + p.laser.GainDB,
		TxBeamRadius:       p.laser.BeamRadius,
		TxPhaseFrontRadius: p.laser.PhaseFrontRadius,
		Source:             p,
	}
	rec.SetWavelength(p.laser.Wavelength)
	if p.bitRate > 0 {
		rec.SymbolPeriod = 1 / p.bitRate
	}

	duration, err := p.CalculateTxDuration(pkt.Size(), rec)
	if err != nil {
		return err
	}
	rec.Duration = duration

	p.state = PhyTx
	p.txTimer.SetDelay(duration)
	p.txTimer.Schedule()

	p.log.Debug(context.Background(), "transmit",
		logging.Int("bytes", pkt.Size()),
		logging.Float64("power_db", rec.Power),
		logging.Duration("duration", duration),
	)
	if p.metrics != nil {
		p.metrics.PacketTransmitted(p.name)
	}
	if err := p.channel.Send(p, pkt, rec, duration); err != nil {
		p.txTimer.Cancel()
		p.state = PhyIdle
		return err
	}
	return nil
}

func (p *Phy) endTx() { p.state = PhyIdle }

// Receive evaluates an arriving signal and hands the packet to the ok or
// error sink.
func (p *Phy) Receive(pkt *model.Packet, rec *SignalRecord) error {
	if p.errorModel == nil {
		return ErrNoErrorModel
	}
	if p.rxAntenna == nil {
		return ErrNoRxAntenna
	}

	psr, err := p.errorModel.PacketSuccessRate(pkt, rec)
	if err != nil {
		return fmt.Errorf("packet success rate: %w", err)
	}

	rxMeanPower := 10 * math.Log10(p.rxAntenna.CollectingArea()*rec.MeanIrradiance)
	p.log.Debug(context.Background(), "receive",
		logging.Float64("signal_power_db", rec.Power),
		logging.Float64("rx_gain_db", p.rxAntenna.ReceiverGainDB),
		logging.Float64("rx_mean_power_db", rxMeanPower),
		logging.Float64("total_rx_mean_power_db", rec.Power+rxMeanPower+p.rxAntenna.ReceiverGainDB),
		logging.Float64("normalized_irradiance", rec.NormalizedIrradiance),
		logging.Float64("success_rate", psr),
	)

	delivered := true
	if p.decision != nil {
		delivered = p.decision.Uniform() < psr
	}
	if p.metrics != nil {
		p.metrics.ReceptionEvaluated(p.name, psr, delivered)
	}

	const snr = 0.0
	if delivered {
		if p.rxOk != nil {
			p.rxOk(pkt, snr, rec)
		}
		return nil
	}
	if p.rxErr != nil {
		p.rxErr(pkt, snr, rec)
	}
	return nil
}
