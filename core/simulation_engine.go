package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/fso-downlink/internal/logging"
	"github.com/signalsfoundry/fso-downlink/internal/rng"
	"github.com/signalsfoundry/fso-downlink/internal/sim"
	"github.com/signalsfoundry/fso-downlink/kb"
	"github.com/signalsfoundry/fso-downlink/model"
	"github.com/signalsfoundry/fso-downlink/timectrl"
)

const tracerName = "github.com/signalsfoundry/fso-downlink/core"

// ReceptionSample is one evaluated packet at a ground terminal.
type ReceptionSample struct {
	Time     time.Time
	Node     string
	PacketID uint64

	ScintillationIndex   float64
	NormalizedIrradiance float64
	PathLossDB           float64
	RxPowerWatts         float64
	SuccessRate          float64
	Delivered            bool
}

// RunReport summarises a finished run.
type RunReport struct {
	Scenario string
	Start    time.Time
	End      time.Time

	Transmitted int
	TxBusy      int // packets dropped because the laser was still sending
	NoLOS       int // packets not sent because a receiver was above the transmitter
	Delivered   int
	Lost        int
	Events      uint64

	Samples []ReceptionSample
}

// SuccessRatio returns delivered / (delivered + lost), or 0 without
// receptions.
func (r *RunReport) SuccessRatio() float64 {
	n := r.Delivered + r.Lost
	if n == 0 {
		return 0
	}
	return float64(r.Delivered) / float64(n)
}

// DownlinkSimulation runs a Scenario on the discrete-event scheduler.
type DownlinkSimulation struct {
	sc *Scenario

	log      logging.Logger
	metrics  LinkMetrics
	observer sim.Observer
	tracer   trace.Tracer
	mode     timectrl.Mode
	sink     func(ReceptionSample)
}

// SimulationOption configures a DownlinkSimulation.
type SimulationOption func(*DownlinkSimulation)

// WithSimulationLogger sets the logger handed to every component.
func WithSimulationLogger(l logging.Logger) SimulationOption {
	return func(s *DownlinkSimulation) { s.log = logging.OrNoop(l) }
}

// WithLinkMetrics records link activity.
func WithLinkMetrics(m LinkMetrics) SimulationOption {
	return func(s *DownlinkSimulation) { s.metrics = m }
}

// WithEventLoopObserver observes the scheduler.
func WithEventLoopObserver(o sim.Observer) SimulationOption {
	return func(s *DownlinkSimulation) { s.observer = o }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) SimulationOption {
	return func(s *DownlinkSimulation) { s.tracer = t }
}

// WithClockMode selects accelerated or wall-clock paced execution.
func WithClockMode(m timectrl.Mode) SimulationOption {
	return func(s *DownlinkSimulation) { s.mode = m }
}

// WithReceptionSink streams every sample as it is produced.
func WithReceptionSink(fn func(ReceptionSample)) SimulationOption {
	return func(s *DownlinkSimulation) { s.sink = fn }
}

// NewDownlinkSimulation validates sc and returns a runnable simulation.
func NewDownlinkSimulation(sc *Scenario, opts ...SimulationOption) (*DownlinkSimulation, error) {
	if sc == nil {
		return nil, errors.New("scenario is nil")
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	s := &DownlinkSimulation{
		sc:   sc,
		log:  logging.Noop(),
		mode: timectrl.Accelerated,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s, nil
}

// world is the wired state of one run.
type world struct {
	store   *kb.KnowledgeBase
	tracker *MotionTracker
	sched   *sim.Scheduler
	channel *Channel
	tx      *Phy
	txNode  *model.NetworkNode
	rxs     []*Phy
	log     logging.Logger
}

func (s *DownlinkSimulation) build(report *RunReport, span trace.Span, log logging.Logger) (*world, error) {
	sc := s.sc
	w := &world{store: kb.NewKnowledgeBase(), log: log}
	if err := sc.Populate(w.store); err != nil {
		return nil, fmt.Errorf("populate knowledge base: %w", err)
	}

	w.tracker = NewMotionTracker(WithPositionUpdater(w.store), WithGroundSite(sc.GroundSite))
	for _, p := range w.store.ListPlatforms() {
		if err := w.tracker.AddPlatform(p); err != nil {
			return nil, err
		}
	}
	if err := w.tracker.UpdatePositions(sc.Start); err != nil {
		return nil, fmt.Errorf("initial positions: %w", err)
	}

	w.sched = sim.NewScheduler(timectrl.NewVirtualClock(sc.Start, s.mode))
	if s.observer != nil {
		w.sched.SetObserver(s.observer)
	}

	stageCfg := StageConfig{Profile: sc.Turbulence.Profile(), Logger: log}
	if z := sc.Turbulence.FixedZenithDeg; z != nil {
		rad := Radians(*z)
		stageCfg.FixedZenith = &rad
	}
	chain, err := BuildChain(sc.PropagationStages, stageCfg)
	if err != nil {
		return nil, err
	}

	w.channel = NewChannel(w.sched, log)
	w.channel.SetMetrics(s.metrics)
	w.channel.SetPropagationDelayModel(&ConstantSpeedDelay{Speed: sc.DelaySpeed})
	w.channel.SetPropagationLossChain(chain.Head())

	w.txNode = w.store.GetNetworkNode(sc.Transmitter)
	laser := sc.Laser
	w.tx = s.newPhy(w, w.txNode)
	w.tx.SetAntennas(&laser, nil)
	w.tx.SetChannel(w.channel)

	emOpts := []ErrorModelOption{
		WithTurbulenceProfile(sc.Turbulence.Profile()),
		WithErrorModelLogger(log),
		WithErrorModelMetrics(s.metrics),
	}
	if sc.ErrorModel.Elevation == ElevationGeometric {
		emOpts = append(emOpts, WithGeometricElevation())
	} else {
		emOpts = append(emOpts, WithFixedElevation(Radians(sc.ErrorModel.ElevationDeg)))
	}

	for _, id := range sc.Receivers {
		node := w.store.GetNetworkNode(id)
		var phyOpts []PhyOption
		if sc.ErrorModel.Decide {
			phyOpts = append(phyOpts, WithDecisionSource(rng.NewStream(sc.Seed, sc.Run)))
		}
		rx := s.newPhy(w, node, phyOpts...)
		receiver := sc.Receiver
		rx.SetAntennas(nil, &receiver)
		em := NewDownlinkErrorModel(w.sched, rng.NewStream(sc.Seed, sc.Run), emOpts...)
		rx.SetErrorModel(em)
		rx.SetReceiveOkCallback(func(pkt *model.Packet, _ float64, rec *SignalRecord) {
			report.Delivered++
			s.record(report, span, w.sched.Now(), rx.Name(), pkt, rec, true)
		})
		rx.SetReceiveErrorCallback(func(pkt *model.Packet, _ float64, rec *SignalRecord) {
			report.Lost++
			s.record(report, span, w.sched.Now(), rx.Name(), pkt, rec, false)
		})
		rx.SetChannel(w.channel)
		w.rxs = append(w.rxs, rx)
	}

	stream := w.channel.AssignStreams(0)
	stream += w.tx.AssignStreams(stream)
	for _, rx := range w.rxs {
		stream += rx.AssignStreams(stream)
	}
	log.Debug(context.Background(), "random streams assigned", logging.Int64("streams", stream))
	return w, nil
}

func (s *DownlinkSimulation) newPhy(w *world, node *model.NetworkNode, opts ...PhyOption) *Phy {
	opts = append([]PhyOption{
		WithPhyName(node.ID),
		WithNodeContext(node.Context),
		WithPhyLogger(w.log),
		WithPhyMetrics(s.metrics),
	}, opts...)
	p := NewPhy(w.sched, opts...)
	p.SetMobility(NewPlatformMobility(w.store, node.PlatformID))
	p.SetBitRate(s.sc.BitRate)
	return p
}

// record stores a sample built from the record the error model evaluated.
func (s *DownlinkSimulation) record(report *RunReport, span trace.Span, now time.Time, node string, pkt *model.Packet, rec *SignalRecord, delivered bool) {
	sample := ReceptionSample{Time: now, Node: node, PacketID: pkt.ID, Delivered: delivered}
	sample.ScintillationIndex = rec.ScintillationIndex
	sample.NormalizedIrradiance = rec.NormalizedIrradiance
	sample.PathLossDB = rec.PathLoss
	sample.RxPowerWatts = rec.RxPowerWatts
	sample.SuccessRate = rec.SuccessRate
	report.Samples = append(report.Samples, sample)
	if s.sink != nil {
		s.sink(sample)
	}
	span.AddEvent("receive", trace.WithAttributes(
		attribute.String("node", node),
		attribute.Int64("packet_id", int64(pkt.ID)),
		attribute.Bool("delivered", delivered),
	))
}

// Run executes the scenario until Start+Duration and returns the report.
func (s *DownlinkSimulation) Run(ctx context.Context) (*RunReport, error) {
	sc := s.sc
	ctx, log := logging.WithRunLogger(ctx, s.log)

	ctx, span := s.tracer.Start(ctx, "downlink.run", trace.WithAttributes(
		attribute.String("scenario", sc.Name),
		attribute.Int64("seed", int64(sc.Seed)),
		attribute.Int64("run", int64(sc.Run)),
		attribute.Int("receivers", len(sc.Receivers)),
	))
	defer span.End()

	report := &RunReport{Scenario: sc.Name, Start: sc.Start}
	w, err := s.build(report, span, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer w.channel.Dispose()

	end := sc.Start.Add(sc.Duration)
	var runErr error
	fail := func(err error) {
		if runErr == nil {
			runErr = err
		}
		w.sched.Stop()
	}

	if sc.MobilityTick > 0 {
		var tick func()
		tick = func() {
			if err := w.tracker.UpdatePositions(w.sched.Now()); err != nil {
				log.Error(ctx, "position update failed", logging.Err(err))
				if s.metrics != nil {
					s.metrics.CallbackFailed("mobility")
				}
				fail(err)
				return
			}
			if !w.sched.Now().Add(sc.MobilityTick).After(end) {
				w.sched.ScheduleWithContext(sim.NoContext, sc.MobilityTick, tick)
			}
		}
		w.sched.ScheduleWithContext(sim.NoContext, sc.MobilityTick, tick)
	}

	for k := 0; k < sc.Traffic.Count; k++ {
		at := sc.Traffic.Offset + time.Duration(k)*sc.Traffic.Interval
		if at > sc.Duration {
			break
		}
		id := uint64(k + 1)
		w.sched.ScheduleWithContext(w.txNode.Context, at, func() {
			err := w.tx.Transmit(model.NewPacket(id, sc.Traffic.PacketSize))
			switch {
			case err == nil:
				report.Transmitted++
				span.AddEvent("transmit", trace.WithAttributes(attribute.Int64("packet_id", int64(id))))
			case errors.Is(err, ErrPhyBusy):
				report.TxBusy++
				log.Warn(ctx, "transmitter busy, packet dropped", logging.Int64("packet_id", int64(id)))
			case errors.Is(err, ErrTransmitterBelowReceiver):
				report.NoLOS++
				log.Debug(ctx, "no downlink geometry, packet dropped", logging.Int64("packet_id", int64(id)))
			default:
				log.Error(ctx, "transmit failed", logging.Int64("packet_id", int64(id)), logging.Err(err))
				if s.metrics != nil {
					s.metrics.CallbackFailed("transmit")
				}
				fail(err)
			}
		})
	}

	log.Info(ctx, "downlink run started",
		logging.String("scenario", sc.Name),
		logging.Int("packets", sc.Traffic.Count),
		logging.Duration("duration", sc.Duration),
	)

	if err := w.sched.RunUntil(ctx, end); err != nil && runErr == nil {
		runErr = err
	}
	report.End = w.sched.Now()
	report.Events = w.sched.Executed()

	span.SetAttributes(
		attribute.Int("transmitted", report.Transmitted),
		attribute.Int("delivered", report.Delivered),
		attribute.Int("lost", report.Lost),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		return report, runErr
	}

	log.Info(ctx, "downlink run finished",
		logging.Int("transmitted", report.Transmitted),
		logging.Int("delivered", report.Delivered),
		logging.Int("lost", report.Lost),
		logging.Int("tx_busy", report.TxBusy),
		logging.Int("no_los", report.NoLOS),
		logging.Float64("success_ratio", report.SuccessRatio()),
	)
	return report, nil
}
