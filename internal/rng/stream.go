// Package rng provides reproducible random-number streams. A stream is fully
// determined by the run seed, the run number and the stream index.
package rng

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Stream draws variates from a PCG generator keyed by (seed, run, index).
type Stream struct {
	seed  uint64
	run   uint64
	index int64
	src   *rand.PCG
}

// NewStream returns a stream positioned at index 0.
func NewStream(seed, run uint64) *Stream {
	s := &Stream{seed: seed, run: run}
	s.SetStream(0)
	return s
}

// SetStream re-keys the generator to the given stream index and restarts
// its sequence.
func (s *Stream) SetStream(index int64) {
	s.index = index
	s.src = rand.NewPCG(s.seed^(s.run<<32|s.run>>32), uint64(index))
}

// Index returns the current stream index.
func (s *Stream) Index() int64 { return s.index }

// LogNormal draws exp(N(mu, sigma^2)). A zero sigma returns exp(mu) exactly.
func (s *Stream) LogNormal(mu, sigma float64) float64 {
	return distuv.LogNormal{Mu: mu, Sigma: sigma, Src: s.src}.Rand()
}

// Uniform draws from [0, 1).
func (s *Stream) Uniform() float64 {
	return distuv.Uniform{Min: 0, Max: 1, Src: s.src}.Rand()
}
