package core

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/signalsfoundry/fso-downlink/model"
)

func TestCalculateBERMatchesErfc(t *testing.T) {
	const pc, ff = 4.19e-9, 0.46
	rapid.Check(t, func(t *rapid.T) {
		p := rapid.Float64Range(0, 1.5e-7).Draw(t, "power")
		ratio := p / pc
		x := ratio / (1 + math.Sqrt(1+ff*ratio)) / math.Sqrt2
		want := math.Erfc(x/math.Sqrt2) / 4

		got := CalculateBER(p, pc, ff)
		if math.Abs(got-want)/want > 1e-6 {
			t.Fatalf("BER(%g) = %g, want %g", p, got, want)
		}
	})
}

func TestCalculateBERReferencePoints(t *testing.T) {
	rx := DefaultOpticalRxAntenna()
	assert.InDelta(t, 0.25, CalculateBER(0, rx.CharacteristicPower, rx.FormFactor), 1e-12)
	assert.InEpsilon(t, 3.8734065e-5, CalculateBER(1e-7, rx.CharacteristicPower, rx.FormFactor), 1e-6)
	assert.InEpsilon(t, 0.122663, CalculateBER(1e-8, rx.CharacteristicPower, rx.FormFactor), 1e-5)
}

func TestPacketLossProbability(t *testing.T) {
	assert.Zero(t, PacketLossProbability(0, 1024))
	assert.Zero(t, PacketLossProbability(0.1, 0))
	assert.Equal(t, 1.0, PacketLossProbability(1, 1))
	assert.InDelta(t, 1-0.72810, PacketLossProbability(3.8734065e-5, 1024), 1e-4)
	assert.InDelta(t, 1-math.Pow(1-1e-3, 8), PacketLossProbability(1e-3, 1), 1e-15)
}

func TestSuccessRateCurveIsMonotonic(t *testing.T) {
	powers := []float64{1e-8, 5e-8, 1e-7, 2e-7, 5e-7}
	curve := SuccessRateCurve(DefaultOpticalRxAntenna(), powers, 1024)
	require.Len(t, curve, len(powers))
	for i := 1; i < len(curve); i++ {
		assert.GreaterOrEqual(t, curve[i].SuccessRate, curve[i-1].SuccessRate)
		assert.LessOrEqual(t, curve[i].BER, curve[i-1].BER)
	}
	assert.InDelta(t, 0.72810, curve[2].SuccessRate, 1e-4)
}

func TestGreenwoodTimeConstant(t *testing.T) {
	hv := DefaultHufnagelValley()

	tau, res, ok := hv.GreenwoodTimeConstant(refWavelength, refAltitude, 0, Radians(60))
	require.True(t, ok)
	assert.True(t, res.Converged)
	assert.InDelta(t, 0.0308216113, tau.Seconds(), 1e-8)

	overhead, _, ok := hv.GreenwoodTimeConstant(refWavelength, refAltitude, 0, Radians(90))
	require.True(t, ok)
	assert.InDelta(t, 0.0335998207, overhead.Seconds(), 1e-8)

	_, _, ok = hv.GreenwoodTimeConstant(refWavelength, 100, 100, Radians(60))
	assert.False(t, ok, "no turbulent path between equal heights")
}

func TestRefreshHoldsDrawWithinGreenwoodTime(t *testing.T) {
	link := newRefLink(11)
	rec := link.refRecord(0.45)
	pkt := model.NewPacket(1, 1024)

	assert.True(t, link.em.NeedsRefresh())
	psr1, err := link.em.PacketSuccessRate(pkt, rec)
	require.NoError(t, err)
	first := link.em.NormalizedIrradiance()

	assert.False(t, link.em.NeedsRefresh())
	assert.True(t, link.em.RefreshPending())
	assert.InDelta(t, 0.0308216113, link.em.LastGreenwoodTime().Seconds(), 1e-8)
	assert.Equal(t, first, rec.NormalizedIrradiance)

	// Still inside the coherence time.
	ctx := context.Background()
	require.NoError(t, link.sched.RunUntil(ctx, epoch.Add(30*time.Millisecond)))
	psr2, err := link.em.PacketSuccessRate(pkt, rec)
	require.NoError(t, err)
	assert.Equal(t, first, link.em.NormalizedIrradiance())
	assert.Equal(t, psr1, psr2)

	// Past tau the next evaluation redraws.
	require.NoError(t, link.sched.RunUntil(ctx, epoch.Add(31*time.Millisecond)))
	assert.True(t, link.em.NeedsRefresh())
	assert.False(t, link.em.RefreshPending())

	_, err = link.em.PacketSuccessRate(pkt, rec)
	require.NoError(t, err)
	assert.NotEqual(t, first, link.em.NormalizedIrradiance())
	assert.False(t, link.em.NeedsRefresh())
	assert.Equal(t, 1, link.sched.Pending(), "exactly one refresh armed")
}

func TestRefreshNeverArmsTwice(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		link := newRefLink(rapid.Uint64().Draw(t, "seed"))
		rec := link.refRecord(0.3)
		pkt := model.NewPacket(1, 64)
		ctx := context.Background()

		steps := rapid.SliceOfN(rapid.IntRange(0, 40), 1, 30).Draw(t, "steps_ms")
		now := epoch
		for _, ms := range steps {
			now = now.Add(time.Duration(ms) * time.Millisecond)
			if err := link.sched.RunUntil(ctx, now); err != nil {
				t.Fatalf("RunUntil: %v", err)
			}
			before := link.em.NormalizedIrradiance()
			redraw := link.em.NeedsRefresh()
			if _, err := link.em.PacketSuccessRate(pkt, rec); err != nil {
				t.Fatalf("PacketSuccessRate: %v", err)
			}
			if !redraw && link.em.NormalizedIrradiance() != before {
				t.Fatalf("cached irradiance changed without a refresh")
			}
			if p := link.sched.Pending(); p != 1 {
				t.Fatalf("pending refresh events = %d, want 1", p)
			}
		}
	})
}

func TestZeroScintillationGivesUnitIrradiance(t *testing.T) {
	link := newRefLink(5)
	rec := link.refRecord(0)

	_, err := link.em.PacketSuccessRate(model.NewPacket(1, 1024), rec)
	require.NoError(t, err)
	assert.Equal(t, 1.0, link.em.NormalizedIrradiance())
	assert.Equal(t, 1.0, rec.NormalizedIrradiance)
}

func TestSuccessRateUsesReceivedPower(t *testing.T) {
	link := newRefLink(5)
	rec := link.refRecord(0)

	psr, err := link.em.PacketSuccessRate(model.NewPacket(1, 1024), rec)
	require.NoError(t, err)
	assert.InEpsilon(t, 1.416489e-5, rec.RxPowerWatts, 1e-5)
	assert.Equal(t, rec.SuccessRate, psr)
	assert.InDelta(t, 1.0, psr, 1e-12)
}

func TestGeometricElevation(t *testing.T) {
	link := newRefLink(5, WithGeometricElevation())
	_, err := link.em.PacketSuccessRate(model.NewPacket(1, 8), link.refRecord(0.2))
	require.NoError(t, err)
	assert.InDelta(t, 0.0335998207, link.em.LastGreenwoodTime().Seconds(), 1e-8)
}

func TestErrorModelRejectsUplink(t *testing.T) {
	link := newRefLink(5)
	link.tx.SetMobility(&ConstantPositionMobility{})
	link.rx.SetMobility(&ConstantPositionMobility{Pos: Vec3{Z: 10}})

	_, err := link.em.PacketSuccessRate(model.NewPacket(1, 8), link.refRecord(0.2))
	assert.ErrorIs(t, err, ErrTransmitterBelowReceiver)
}

func TestErrorModelNeedsPhy(t *testing.T) {
	sched := newTestScheduler()
	em := NewDownlinkErrorModel(sched, &scriptedSource{uniform: []float64{0}})
	_, err := em.PacketSuccessRate(model.NewPacket(1, 8), &SignalRecord{})
	assert.Error(t, err)
}

func TestDisposeCancelsRefresh(t *testing.T) {
	link := newRefLink(5)
	_, err := link.em.PacketSuccessRate(model.NewPacket(1, 8), link.refRecord(0.2))
	require.NoError(t, err)
	require.Equal(t, 1, link.sched.Pending())

	link.channel.Dispose()
	assert.Zero(t, link.sched.Pending())
	assert.False(t, link.em.RefreshPending())
}

func TestErrorModelAssignStreamsReproducible(t *testing.T) {
	draw := func() float64 {
		link := newRefLink(77)
		assert.EqualValues(t, 1, link.em.AssignStreams(4))
		_, err := link.em.PacketSuccessRate(model.NewPacket(1, 8), link.refRecord(0.4))
		require.NoError(t, err)
		return link.em.NormalizedIrradiance()
	}
	assert.Equal(t, draw(), draw())
}
