package core

import (
	"fmt"
	"math"
)

// LaserAntenna describes the transmit optics of a terminal.
type LaserAntenna struct {
	// BeamRadius is the beam radius at the aperture in metres.
	BeamRadius float64 `yaml:"beam_radius"`

	// PhaseFrontRadius is the radius of curvature of the transmitted phase
	// front in metres. It enters the diffractive beam radius as 1 - d/R, so
	// it should be on the order of the link distance.
	PhaseFrontRadius float64 `yaml:"phase_front_radius"`

	Wavelength     float64 `yaml:"wavelength"`      // m
	TxPowerDB      float64 `yaml:"tx_power_db"`     // dB
	GainDB         float64 `yaml:"gain_db"`         // dB
	OrientationDeg float64 `yaml:"orientation_deg"` // stored only
}

// DefaultLaserAntenna returns the stock laser terminal.
func DefaultLaserAntenna() LaserAntenna {
	return LaserAntenna{
		BeamRadius:       0.06,
		PhaseFrontRadius: 1.0,
		Wavelength:       847e-9,
	}
}

// Validate checks the parameter ranges.
func (l LaserAntenna) Validate() error {
	if l.BeamRadius <= 0 {
		return fmt.Errorf("laser beam radius must be positive, got %g", l.BeamRadius)
	}
	if l.PhaseFrontRadius <= 0 {
		return fmt.Errorf("laser phase front radius must be positive, got %g", l.PhaseFrontRadius)
	}
	if l.Wavelength <= 0 || l.Wavelength > 1e-5 {
		return fmt.Errorf("laser wavelength %g outside (0, 1e-5] m", l.Wavelength)
	}
	if l.OrientationDeg < -360 || l.OrientationDeg > 360 {
		return fmt.Errorf("laser orientation %g outside [-360, 360] deg", l.OrientationDeg)
	}
	return nil
}

// OpticalRxAntenna describes the receive optics and detector of a terminal.
type OpticalRxAntenna struct {
	ApertureDiameter float64 `yaml:"aperture_diameter"` // m
	ReceiverGainDB   float64 `yaml:"receiver_gain_db"`  // dB

	// CharacteristicPower and FormFactor parameterise the detector's BER
	// curve.
	CharacteristicPower float64 `yaml:"characteristic_power"` // W
	FormFactor          float64 `yaml:"form_factor"`

	OrientationDeg float64 `yaml:"orientation_deg"` // stored only
}

// DefaultOpticalRxAntenna returns the stock receiver.
func DefaultOpticalRxAntenna() OpticalRxAntenna {
	return OpticalRxAntenna{
		ApertureDiameter:    0.25,
		ReceiverGainDB:      20,
		CharacteristicPower: 4.19e-9,
		FormFactor:          0.46,
	}
}

// Validate checks the parameter ranges.
func (o OpticalRxAntenna) Validate() error {
	if o.ApertureDiameter <= 0 || o.ApertureDiameter > 1000 {
		return fmt.Errorf("aperture diameter %g outside (0, 1000] m", o.ApertureDiameter)
	}
	if o.CharacteristicPower <= 0 || o.CharacteristicPower > 1 {
		return fmt.Errorf("characteristic power %g outside (0, 1] W", o.CharacteristicPower)
	}
	if o.FormFactor < 0 || o.FormFactor > 1 {
		return fmt.Errorf("form factor %g outside [0, 1]", o.FormFactor)
	}
	if o.OrientationDeg < -360 || o.OrientationDeg > 360 {
		return fmt.Errorf("receiver orientation %g outside [-360, 360] deg", o.OrientationDeg)
	}
	return nil
}

// CollectingArea returns the aperture area factor 0.125*pi*D^2 used to turn
// irradiance into received power.
func (o OpticalRxAntenna) CollectingArea() float64 {
	return 0.125 * math.Pi * o.ApertureDiameter * o.ApertureDiameter
}
