package core

import "time"

// SignalRecord carries the optical signal parameters of one transmission
// through the propagation chain. The channel hands each receiver its own
// copy.
type SignalRecord struct {
	Wavelength   float64 // m
	Frequency    float64 // Hz, always SpeedOfLight / Wavelength
	SymbolPeriod float64 // s
	Power        float64 // dB, tx power plus gain minus path loss

	TxBeamRadius       float64 // m
	TxPhaseFrontRadius float64 // m

	ScintillationIndex   float64
	MeanIrradiance       float64 // W/m^2
	PathLoss             float64 // dB
	NormalizedIrradiance float64

	// Written by the receiving side for diagnostics.
	RxPowerWatts float64
	BitErrorRate float64
	SuccessRate  float64

	Duration time.Duration

	// Source is the transmitting phy. Not owned.
	Source *Phy
}

// SetWavelength sets the wavelength and the matching frequency.
func (r *SignalRecord) SetWavelength(wl float64) {
	r.Wavelength = wl
	r.Frequency = SpeedOfLight / wl
}

// Copy returns an independent copy. Source is shared.
func (r *SignalRecord) Copy() *SignalRecord {
	c := *r
	return &c
}
