package core

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/fso-downlink/internal/logging"
)

// StageScintillationIndex is the configuration name of ScintillationIndex.
const StageScintillationIndex = "scintillation_index"

// ScintillationIndex writes the downlink scintillation index of the path.
// It only models downlinks: the transmitter must not be below the receiver.
type ScintillationIndex struct {
	stageLink
	Profile HufnagelValley

	// FixedZenith, when set, replaces the zenith angle derived from the
	// endpoint positions (radians).
	FixedZenith *float64

	log logging.Logger
}

// NewScintillationIndex returns the stage with the given turbulence profile.
func NewScintillationIndex(profile HufnagelValley, log logging.Logger) *ScintillationIndex {
	return &ScintillationIndex{Profile: profile, log: logging.OrNoop(log)}
}

func (s *ScintillationIndex) Name() string { return StageScintillationIndex }

// UpdateSignal writes ScintillationIndex.
func (s *ScintillationIndex) UpdateSignal(rec *SignalRecord, tx, rx Vec3) error {
	if tx.Z < rx.Z {
		return fmt.Errorf("%w: tx %.1f m, rx %.1f m", ErrTransmitterBelowReceiver, tx.Z, rx.Z)
	}
	zenith := ZenithAngle(rx, tx)
	if s.FixedZenith != nil {
		zenith = *s.FixedZenith
	}
	if zenith < 0 || zenith >= math.Pi/2 {
		return fmt.Errorf("zenith angle %.4f rad outside [0, pi/2)", zenith)
	}

	si, res := s.Profile.ScintillationIndex(rec.Frequency, tx.Z, rx.Z, zenith)
	if !res.Converged {
		s.log.Warn(context.Background(), "scintillation integral did not converge",
			logging.Float64("abs_error", res.AbsError),
			logging.Int("intervals", res.Intervals),
		)
	}
	rec.ScintillationIndex = si
	s.log.Debug(context.Background(), "scintillation index computed",
		logging.Float64("zenith_rad", zenith),
		logging.Float64("scintillation_index", si),
	)
	return nil
}
