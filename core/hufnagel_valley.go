package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/fso-downlink/internal/numeric"
)

// TurbulenceCeiling is the height above which the refractive-index structure
// parameter is treated as zero (m).
const TurbulenceCeiling = 20000.0

// Hufnagel-Valley 5/7 defaults.
const (
	DefaultGroundRefractiveIndex = 1.7e-14 // Cn^2 at ground level, m^(-2/3)
	DefaultWindSpeed             = 21.0    // rms high-altitude wind, m/s
)

// HufnagelValley is the HV model of the refractive-index structure parameter
// Cn^2 as a function of height.
type HufnagelValley struct {
	A float64 // ground-level Cn^2
	V float64 // rms wind speed, m/s

	Quadrature numeric.Options
}

// DefaultHufnagelValley returns the HV 5/7 profile.
func DefaultHufnagelValley() HufnagelValley {
	return HufnagelValley{
		A:          DefaultGroundRefractiveIndex,
		V:          DefaultWindSpeed,
		Quadrature: numeric.DefaultOptions(),
	}
}

// Cn2 evaluates the profile at height h for a ground station at height hgs.
func (hv HufnagelValley) Cn2(h, hgs float64) float64 {
	ground := hv.A * math.Exp(-hgs/700) * math.Exp(-(h-hgs)/100)
	tropopause := (hv.V * hv.V / 729) * 5.94e-53 * math.Pow(h, 10) * math.Exp(-h/1000)
	background := 2.7e-16 * math.Exp(-h/1500)
	return ground + tropopause + background
}

// Integrate returns the integral of Cn2(h, hRx)*weight(h) from hRx to
// min(hTx, TurbulenceCeiling). An empty range integrates to zero.
func (hv HufnagelValley) Integrate(weight func(h float64) float64, hTx, hRx float64) numeric.Result {
	top := math.Min(hTx, TurbulenceCeiling)
	if top <= hRx {
		return numeric.Result{Converged: true}
	}
	opts := hv.Quadrature
	if opts.MaxParts == 0 {
		opts = numeric.DefaultOptions()
	}
	return numeric.Integrate(func(h float64) float64 {
		return hv.Cn2(h, hRx) * weight(h)
	}, hRx, top, opts)
}

func scintillationWeight(hgs float64) func(float64) float64 {
	return func(h float64) float64 {
		return math.Pow(h-hgs, 5.0/6.0)
	}
}

func greenwoodWeight(h float64) float64 {
	x := (h - 9400) / 4800
	return math.Pow(2.8+30*math.Exp(-x*x), 5.0/3.0)
}

// ScintillationIndex returns the downlink scintillation index for a signal
// at frequency travelling from height hTx down to hRx at the given zenith
// angle (radians), along with the quadrature outcome.
func (hv HufnagelValley) ScintillationIndex(frequency, hTx, hRx, zenith float64) (float64, numeric.Result) {
	res := hv.Integrate(scintillationWeight(hRx), hTx, hRx)
	if res.Value == 0 {
		return 0, res
	}
	k := 2 * math.Pi * frequency / SpeedOfLight
	sec := 1 / math.Cos(zenith)
	return 2.25 * math.Pow(k, 7.0/6.0) * math.Pow(sec, 11.0/6.0) * res.Value, res
}

// GreenwoodTimeConstant returns the time over which the turbulence seen by a
// downlink stays correlated. The boolean is false when there is no turbulent
// path between the heights, in which case the draw never decorrelates.
func (hv HufnagelValley) GreenwoodTimeConstant(wavelength, hTx, hRx, elevation float64) (time.Duration, numeric.Result, bool) {
	res := hv.Integrate(greenwoodWeight, hTx, hRx)
	if !(res.Value > 0) {
		return 0, res, false
	}
	tau := 2.729e-8 * math.Pow(wavelength*1e6, 1.2) * math.Pow(math.Sin(elevation), 0.6) / math.Pow(res.Value, 0.6)
	if math.IsInf(tau, 0) || math.IsNaN(tau) || tau <= 0 {
		return 0, res, false
	}
	return time.Duration(math.Round(tau * float64(time.Second))), res, true
}

// CalculateScintillationIndex evaluates the scintillation index with the
// HV 5/7 profile.
func CalculateScintillationIndex(frequency, hTx, hRx, zenith float64) float64 {
	si, _ := DefaultHufnagelValley().ScintillationIndex(frequency, hTx, hRx, zenith)
	return si
}
