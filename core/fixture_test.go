package core

import (
	"time"

	"github.com/signalsfoundry/fso-downlink/internal/rng"
	"github.com/signalsfoundry/fso-downlink/internal/sim"
	"github.com/signalsfoundry/fso-downlink/timectrl"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	refWavelength = 847e-9
	refAltitude   = 707000.0
)

func newTestScheduler() *sim.Scheduler {
	return sim.NewScheduler(timectrl.NewVirtualClock(epoch, timectrl.Accelerated))
}

func refLaser() *LaserAntenna {
	return &LaserAntenna{
		BeamRadius:       0.06,
		PhaseFrontRadius: refAltitude,
		Wavelength:       refWavelength,
		TxPowerDB:        -1,
		GainDB:           116,
	}
}

func refReceiver() *OpticalRxAntenna {
	rx := DefaultOpticalRxAntenna()
	rx.ReceiverGainDB = 121.4
	rx.ApertureDiameter = 0.318
	return &rx
}

// refLink is a satellite directly above a ground station.
type refLink struct {
	sched   *sim.Scheduler
	channel *Channel
	tx, rx  *Phy
	em      *DownlinkErrorModel
}

func newRefLink(seed uint64, opts ...ErrorModelOption) *refLink {
	sched := newTestScheduler()

	chain, err := BuildChain(DefaultStageOrder, StageConfig{Profile: DefaultHufnagelValley()})
	if err != nil {
		panic(err)
	}
	ch := NewChannel(sched, nil)
	ch.SetPropagationDelayModel(NewConstantSpeedDelay())
	ch.SetPropagationLossChain(chain.Head())

	tx := NewPhy(sched, WithPhyName("sat"), WithNodeContext(0))
	tx.SetMobility(&ConstantPositionMobility{Pos: Vec3{Z: refAltitude}})
	tx.SetAntennas(refLaser(), nil)
	tx.SetChannel(ch)

	rx := NewPhy(sched, WithPhyName("gs"), WithNodeContext(1))
	rx.SetMobility(&ConstantPositionMobility{})
	rx.SetAntennas(nil, refReceiver())
	em := NewDownlinkErrorModel(sched, rng.NewStream(seed, 1), opts...)
	rx.SetErrorModel(em)
	rx.SetChannel(ch)

	return &refLink{sched: sched, channel: ch, tx: tx, rx: rx, em: em}
}

// refRecord is what the default chain produces for the reference link with
// the scintillation index overridden.
func (l *refLink) refRecord(si float64) *SignalRecord {
	rec := &SignalRecord{
		Power:              115,
		TxBeamRadius:       0.06,
		TxPhaseFrontRadius: refAltitude,
		SymbolPeriod:       1 / DefaultBitRate,
		MeanIrradiance:     3.5669670592259e-4,
		ScintillationIndex: si,
		Source:             l.tx,
	}
	rec.SetWavelength(refWavelength)
	return rec
}

// scriptedSource replays fixed variates.
type scriptedSource struct {
	uniform []float64
	stream  int64
	calls   int
}

func (s *scriptedSource) LogNormal(mu, sigma float64) float64 { return 1 }

func (s *scriptedSource) Uniform() float64 {
	v := s.uniform[s.calls%len(s.uniform)]
	s.calls++
	return v
}

func (s *scriptedSource) SetStream(stream int64) { s.stream = stream }
