package filter

import (
	"fmt"
	"math"

	"synstrength/internal/trace"
)

// firstOrder holds the coefficients of a one-pole digital section
// y[n] = b0*x[n] + b1*x[n-1] - a1*y[n-1].
type firstOrder struct {
	b0, b1, a1 float64
}

// besselLowpass designs the first-order Bessel low-pass (a single real pole at
// the cutoff) via the bilinear transform with frequency pre-warping.
func besselLowpass(cutoff, sampleRate float64) (firstOrder, error) {
	nyquist := sampleRate / 2
	if !(cutoff > 0) || cutoff >= nyquist {
		return firstOrder{}, fmt.Errorf("lowpass cutoff %v Hz outside (0, %v)", cutoff, nyquist)
	}
	k := math.Tan(math.Pi * cutoff / sampleRate)
	b := k / (1 + k)
	return firstOrder{b0: b, b1: b, a1: (k - 1) / (k + 1)}, nil
}

// steadyState returns the initial filter state for a step input of unit height.
func (f firstOrder) steadyState() float64 {
	return (f.b1 - f.a1*f.b0) / (1 + f.a1)
}

// run filters x in place starting from state z.
func (f firstOrder) run(x []float64, z float64) {
	for i, v := range x {
		y := f.b0*v + z
		z = f.b1*v - f.a1*y
		x[i] = y
	}
}

// padLen mirrors the conventional 3*(order+1) odd-extension length.
const padLen = 6

// BesselLowpass applies the first-order Bessel low-pass forward and backward
// (zero phase), padding both ends with an odd reflection and starting each pass
// from the steady-state response to the edge value.
func BesselLowpass(tr trace.Trace, cutoff float64) (trace.Trace, error) {
	f, err := besselLowpass(cutoff, tr.SampleRate())
	if err != nil {
		return trace.Trace{}, err
	}
	x := tr.Data()
	n := len(x)
	if n < 2 {
		return tr.WithData(append([]float64(nil), x...)), nil
	}
	pad := padLen
	if pad > n-1 {
		pad = n - 1
	}

	ext := make([]float64, n+2*pad)
	for i := 0; i < pad; i++ {
		ext[i] = 2*x[0] - x[pad-i]
		ext[n+pad+i] = 2*x[n-1] - x[n-2-i]
	}
	copy(ext[pad:], x)

	zi := f.steadyState()
	f.run(ext, zi*ext[0])
	reverse(ext)
	f.run(ext, zi*ext[0])
	reverse(ext)

	out := make([]float64, n)
	copy(out, ext[pad:pad+n])
	return tr.WithData(out), nil
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
