package core

import (
	"context"
	"math"

	"github.com/signalsfoundry/fso-downlink/internal/logging"
)

// StageMeanIrradiance is the configuration name of MeanIrradiance.
const StageMeanIrradiance = "mean_irradiance"

// MeanIrradiance computes the diffraction-limited mean irradiance at the
// receiver, evaluated on the beam axis.
type MeanIrradiance struct {
	stageLink
	log logging.Logger
}

// NewMeanIrradiance returns the stage.
func NewMeanIrradiance(log logging.Logger) *MeanIrradiance {
	return &MeanIrradiance{log: logging.OrNoop(log)}
}

func (s *MeanIrradiance) Name() string { return StageMeanIrradiance }

// UpdateSignal writes MeanIrradiance. Power is left unchanged.
func (s *MeanIrradiance) UpdateSignal(rec *SignalRecord, tx, rx Vec3) error {
	d := tx.DistanceTo(rx)
	w := CalculateDiffractiveBeamRadius(d, rec.Frequency, rec.TxBeamRadius, rec.TxPhaseFrontRadius)
	rec.MeanIrradiance = CalculateMeanIrradiance(rec.TxBeamRadius, w)
	s.log.Debug(context.Background(), "mean irradiance computed",
		logging.Float64("beam_radius_rx_m", w),
		logging.Float64("mean_irradiance", rec.MeanIrradiance),
	)
	return nil
}

// CalculateDiffractiveBeamRadius returns the Gaussian beam radius W after
// propagating distance d from a transmitter with beam radius w0 and phase
// front radius r0.
func CalculateDiffractiveBeamRadius(d, frequency, w0, r0 float64) float64 {
	wavelength := SpeedOfLight / frequency
	theta0 := 1 - d/r0
	lambda0 := 2 * d / ((2 * math.Pi / wavelength) * w0 * w0)
	return w0 * math.Sqrt(theta0*theta0+lambda0*lambda0)
}

// CalculateMeanIrradiance returns the on-axis mean irradiance w0^2/W^2.
func CalculateMeanIrradiance(w0, w float64) float64 {
	return (w0 * w0) / (w * w)
}
