// Package numeric provides adaptive quadrature used by the turbulence and
// bit-error computations.
package numeric

import (
	"container/heap"
	"math"

	"gonum.org/v1/gonum/integrate/quad"
)

// Defaults match the tolerances used for the atmospheric profile integrals.
const (
	DefaultAbsTol   = 1e-18
	DefaultRelTol   = 1e-10
	DefaultMaxParts = 10000
)

// Options tune the adaptive integrator.
type Options struct {
	AbsTol   float64
	RelTol   float64
	MaxParts int
}

// DefaultOptions returns the package defaults.
func DefaultOptions() Options {
	return Options{AbsTol: DefaultAbsTol, RelTol: DefaultRelTol, MaxParts: DefaultMaxParts}
}

// Result is the outcome of an integration. Converged is false when the
// subinterval budget ran out before the error estimate met the tolerance; the
// Value is still the best available estimate.
type Result struct {
	Value     float64
	AbsError  float64
	Intervals int
	Converged bool
}

// Gauss-Legendre orders for the coarse/fine pair on each subinterval.
const (
	coarseOrder = 10
	fineOrder   = 21
)

type part struct {
	a, b     float64
	value    float64
	errorEst float64
}

type partHeap []part

func (h partHeap) Len() int           { return len(h) }
func (h partHeap) Less(i, j int) bool { return h[i].errorEst > h[j].errorEst }
func (h partHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *partHeap) Push(x any)        { *h = append(*h, x.(part)) }
func (h *partHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	*h = old[:n-1]
	return p
}

func evaluate(f func(float64) float64, a, b float64) part {
	coarse := quad.Fixed(f, a, b, coarseOrder, nil, 0)
	fine := quad.Fixed(f, a, b, fineOrder, nil, 0)
	return part{a: a, b: b, value: fine, errorEst: math.Abs(fine - coarse)}
}

// Integrate computes the integral of f over [a, b] by bisecting the
// subinterval with the largest error estimate until the total estimate
// satisfies max(AbsTol, RelTol*|value|) or MaxParts is reached.
// Reversed bounds negate the result.
func Integrate(f func(float64) float64, a, b float64, opts Options) Result {
	if a == b {
		return Result{Converged: true}
	}
	if a > b {
		r := Integrate(f, b, a, opts)
		r.Value = -r.Value
		return r
	}
	if opts.MaxParts <= 0 {
		opts.MaxParts = DefaultMaxParts
	}

	h := &partHeap{evaluate(f, a, b)}
	value, errSum := (*h)[0].value, (*h)[0].errorEst

	for {
		if errSum <= math.Max(opts.AbsTol, opts.RelTol*math.Abs(value)) {
			return Result{Value: value, AbsError: errSum, Intervals: h.Len(), Converged: true}
		}
		if h.Len() >= opts.MaxParts {
			return Result{Value: value, AbsError: errSum, Intervals: h.Len()}
		}

		worst := heap.Pop(h).(part)
		mid := worst.a + (worst.b-worst.a)/2
		if mid <= worst.a || mid >= worst.b {
			// Interval can no longer be split in floating point.
			heap.Push(h, worst)
			return Result{Value: value, AbsError: errSum, Intervals: h.Len()}
		}
		left, right := evaluate(f, worst.a, mid), evaluate(f, mid, worst.b)
		heap.Push(h, left)
		heap.Push(h, right)

		value += left.value + right.value - worst.value
		errSum += left.errorEst + right.errorEst - worst.errorEst
	}
}

// IntegrateToInf computes the integral of f over [a, +Inf) through the
// substitution t = a + u/(1-u), u in [0, 1).
func IntegrateToInf(f func(float64) float64, a float64, opts Options) Result {
	g := func(u float64) float64 {
		if u >= 1 {
			return 0
		}
		w := 1 - u
		v := f(a + u/w)
		if v == 0 {
			return 0
		}
		return v / (w * w)
	}
	return Integrate(g, 0, 1, opts)
}
