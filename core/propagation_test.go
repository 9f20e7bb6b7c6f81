package core

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCalculateFreeSpaceLoss(t *testing.T) {
	loss := CalculateFreeSpaceLoss(refAltitude, refWavelength)
	assert.InDelta(t, 260.41, loss, 0.01)
	assert.InDelta(t, 260.4149173497658, loss, 1e-6)
}

func TestFreeSpaceLossNearFieldIsClamped(t *testing.T) {
	assert.Zero(t, CalculateFreeSpaceLoss(0, refWavelength))
	assert.Zero(t, CalculateFreeSpaceLoss(refWavelength/100, refWavelength))
	assert.False(t, math.IsNaN(CalculateFreeSpaceLoss(-1, refWavelength)))
}

func TestFreeSpaceLossStage(t *testing.T) {
	rec := &SignalRecord{Power: 115}
	rec.SetWavelength(refWavelength)

	require.NoError(t, NewFreeSpaceLoss(nil).UpdateSignal(rec, Vec3{Z: refAltitude}, Vec3{}))
	assert.InDelta(t, 260.4149173497658, rec.PathLoss, 1e-6)
	assert.InDelta(t, 115-260.4149173497658, rec.Power, 1e-6)
}

func TestMeanIrradianceReference(t *testing.T) {
	f := SpeedOfLight / refWavelength
	w := CalculateDiffractiveBeamRadius(refAltitude, f, 0.06, refAltitude)
	assert.InEpsilon(t, 3.5669670592259e-4, CalculateMeanIrradiance(0.06, w), 1e-9)
}

func TestMeanIrradianceStageLeavesPower(t *testing.T) {
	rec := &SignalRecord{Power: 42, TxBeamRadius: 0.06, TxPhaseFrontRadius: refAltitude}
	rec.SetWavelength(refWavelength)

	require.NoError(t, NewMeanIrradiance(nil).UpdateSignal(rec, Vec3{Z: refAltitude}, Vec3{}))
	assert.Equal(t, 42.0, rec.Power)
	assert.InEpsilon(t, 3.5669670592259e-4, rec.MeanIrradiance, 1e-9)
}

func TestScintillationIndexReference(t *testing.T) {
	f := SpeedOfLight / refWavelength
	assert.InEpsilon(t, 0.4481951275, CalculateScintillationIndex(f, refAltitude, 0, Radians(60)), 1e-6)
	assert.InEpsilon(t, 0.1257705052, CalculateScintillationIndex(f, refAltitude, 0, 0), 1e-6)
}

func TestScintillationIndexGrowsWithZenith(t *testing.T) {
	f := SpeedOfLight / refWavelength
	prev := 0.0
	for _, deg := range []float64{0, 20, 40, 60, 80} {
		si := CalculateScintillationIndex(f, refAltitude, 0, Radians(deg))
		assert.Greater(t, si, prev, "zenith %v", deg)
		prev = si
	}
}

func TestScintillationIndexIgnoresHeightAboveCeiling(t *testing.T) {
	f := SpeedOfLight / refWavelength
	assert.Equal(t,
		CalculateScintillationIndex(f, TurbulenceCeiling, 0, 0),
		CalculateScintillationIndex(f, refAltitude, 0, 0))
}

func TestScintillationStage(t *testing.T) {
	zenith := Radians(60)
	stage := NewScintillationIndex(DefaultHufnagelValley(), nil)
	stage.FixedZenith = &zenith

	rec := &SignalRecord{Power: 7}
	rec.SetWavelength(refWavelength)
	require.NoError(t, stage.UpdateSignal(rec, Vec3{Z: refAltitude}, Vec3{}))
	assert.InEpsilon(t, 0.4481951275, rec.ScintillationIndex, 1e-6)
	assert.Equal(t, 7.0, rec.Power)
}

func TestScintillationStageRejectsUplink(t *testing.T) {
	rec := &SignalRecord{}
	rec.SetWavelength(refWavelength)
	err := NewScintillationIndex(DefaultHufnagelValley(), nil).UpdateSignal(rec, Vec3{}, Vec3{Z: refAltitude})
	assert.ErrorIs(t, err, ErrTransmitterBelowReceiver)
}

func TestScintillationStageEqualHeights(t *testing.T) {
	zenith := Radians(30)
	stage := NewScintillationIndex(DefaultHufnagelValley(), nil)
	stage.FixedZenith = &zenith

	rec := &SignalRecord{}
	rec.SetWavelength(refWavelength)
	require.NoError(t, stage.UpdateSignal(rec, Vec3{X: 1000, Z: 50}, Vec3{Z: 50}))
	assert.Zero(t, rec.ScintillationIndex)
}

func TestBuildChainUnknownStage(t *testing.T) {
	_, err := BuildChain([]string{StageFreeSpaceLoss, "rain_fade"}, StageConfig{})
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestSetWavelengthKeepsFrequency(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		wl := rapid.Float64Range(1e-7, 1e-5).Draw(t, "wavelength")
		rec := &SignalRecord{}
		rec.SetWavelength(wl)
		if got := rec.Frequency * rec.Wavelength; math.Abs(got-SpeedOfLight)/SpeedOfLight > 1e-12 {
			t.Fatalf("frequency*wavelength = %v", got)
		}
	})
}

// traceStage records when it ran.
type traceStage struct {
	stageLink
	name    string
	visits  *[]string
	streams int64
	first   int64
}

func (s *traceStage) Name() string { return s.name }

func (s *traceStage) UpdateSignal(*SignalRecord, Vec3, Vec3) error {
	*s.visits = append(*s.visits, s.name)
	return nil
}

func (s *traceStage) AssignStreams(stream int64) int64 {
	s.first = stream
	return s.streams
}

// powerReader derives an irradiance from the current power, so its output
// depends on whether path loss ran first.
type powerReader struct{ stageLink }

func (powerReader) Name() string { return "power_reader" }

func (powerReader) UpdateSignal(rec *SignalRecord, _, _ Vec3) error {
	rec.MeanIrradiance = math.Pow(10, rec.Power/10)
	return nil
}

func TestChainRunsInInsertionOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		var visits []string
		var want []string
		chain := NewPropagationChain()
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("s%d", rapid.IntRange(0, 99).Draw(t, "id"))
			chain.Append(&traceStage{name: name, visits: &visits})
			want = append(want, name)
		}
		if err := chain.Apply(&SignalRecord{}, Vec3{Z: 1}, Vec3{}); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if fmt.Sprint(visits) != fmt.Sprint(want) {
			t.Fatalf("visited %v, want %v", visits, want)
		}
	})
}

func TestChainIsDeterministic(t *testing.T) {
	chain, err := BuildChain(DefaultStageOrder, StageConfig{Profile: DefaultHufnagelValley()})
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		tx := Vec3{
			X: rapid.Float64Range(-5e5, 5e5).Draw(t, "tx_x"),
			Z: rapid.Float64Range(2e5, 1e6).Draw(t, "tx_z"),
		}
		rx := Vec3{Z: rapid.Float64Range(0, 2000).Draw(t, "rx_z")}

		base := &SignalRecord{Power: 115, TxBeamRadius: 0.06, TxPhaseFrontRadius: tx.DistanceTo(rx)}
		base.SetWavelength(refWavelength)

		a, b := base.Copy(), base.Copy()
		if err := chain.Apply(a, tx, rx); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if err := chain.Apply(b, tx, rx); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if *a != *b {
			t.Fatalf("outputs differ:\n%+v\n%+v", *a, *b)
		}
	})
}

func TestChainOrderChangesOutput(t *testing.T) {
	tx, rx := Vec3{Z: refAltitude}, Vec3{}
	newRec := func() *SignalRecord {
		rec := &SignalRecord{Power: 115}
		rec.SetWavelength(refWavelength)
		return rec
	}

	lossFirst := newRec()
	require.NoError(t, NewPropagationChain(NewFreeSpaceLoss(nil), &powerReader{}).Apply(lossFirst, tx, rx))

	readFirst := newRec()
	require.NoError(t, NewPropagationChain(&powerReader{}, NewFreeSpaceLoss(nil)).Apply(readFirst, tx, rx))

	assert.Equal(t, lossFirst.Power, readFirst.Power)
	assert.NotEqual(t, lossFirst.MeanIrradiance, readFirst.MeanIrradiance)
}

func TestChainErrorNamesStage(t *testing.T) {
	chain, err := BuildChain(DefaultStageOrder, StageConfig{Profile: DefaultHufnagelValley()})
	require.NoError(t, err)

	rec := &SignalRecord{TxBeamRadius: 0.06, TxPhaseFrontRadius: 1}
	rec.SetWavelength(refWavelength)
	err = chain.Apply(rec, Vec3{}, Vec3{Z: 100})
	require.ErrorIs(t, err, ErrTransmitterBelowReceiver)
	assert.Contains(t, err.Error(), StageScintillationIndex)
}

func TestAssignChainStreams(t *testing.T) {
	var visits []string
	a := &traceStage{name: "a", visits: &visits, streams: 2}
	b := &traceStage{name: "b", visits: &visits, streams: 3}
	chain := NewPropagationChain(NewFreeSpaceLoss(nil), a, NewMeanIrradiance(nil), b)

	assert.EqualValues(t, 5, chain.AssignStreams(10))
	assert.EqualValues(t, 10, a.first)
	assert.EqualValues(t, 12, b.first)
	assert.EqualValues(t, 0, AssignChainStreams(nil, 0))
}

func TestConstantSpeedDelay(t *testing.T) {
	d := NewConstantSpeedDelay().Delay(Vec3{Z: refAltitude}, Vec3{})
	assert.Equal(t, time.Duration(2356667), d)
}
