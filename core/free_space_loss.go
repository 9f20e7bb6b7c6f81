package core

import (
	"context"
	"math"

	"github.com/signalsfoundry/fso-downlink/internal/logging"
)

// StageFreeSpaceLoss is the configuration name of FreeSpaceLoss.
const StageFreeSpaceLoss = "free_space_loss"

// FreeSpaceLoss subtracts the free-space path loss from the signal power.
type FreeSpaceLoss struct {
	stageLink
	log logging.Logger
}

// NewFreeSpaceLoss returns the stage.
func NewFreeSpaceLoss(log logging.Logger) *FreeSpaceLoss {
	return &FreeSpaceLoss{log: logging.OrNoop(log)}
}

func (s *FreeSpaceLoss) Name() string { return StageFreeSpaceLoss }

// UpdateSignal writes PathLoss and reduces Power by it.
func (s *FreeSpaceLoss) UpdateSignal(rec *SignalRecord, tx, rx Vec3) error {
	d := tx.DistanceTo(rx)
	loss := CalculateFreeSpaceLoss(d, rec.Wavelength)
	rec.PathLoss = loss
	rec.Power -= loss
	s.log.Debug(context.Background(), "free space loss applied",
		logging.Float64("distance_m", d),
		logging.Float64("loss_db", loss),
		logging.Float64("power_db", rec.Power),
	)
	return nil
}

// CalculateFreeSpaceLoss returns 20*log10(4*pi*d/wavelength) in dB.
// Distances inside the near field, where the expression would be negative
// (including d == 0), give 0 dB.
func CalculateFreeSpaceLoss(distance, wavelength float64) float64 {
	loss := 20 * math.Log10(4*math.Pi*distance/wavelength)
	if !(loss > 0) {
		return 0
	}
	return loss
}
