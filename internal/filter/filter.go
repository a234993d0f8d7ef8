// Package filter implements the exponential deconvolution filter applied to
// responses and baselines before deconvolved amplitude measurement.
package filter

import (
	"fmt"
	"math"
	"slices"

	"synstrength/internal/trace"
)

// Params configures Deconvolve.
type Params struct {
	Tau            float64 // decay time constant of the kernel being removed (s)
	Lowpass        float64 // low-pass cutoff (Hz)
	BaselineWindow float64 // length of the median baseline window from t0 (s)
}

// DefaultParams are the values used by the strength batch processor.
var DefaultParams = Params{Tau: 15e-3, Lowpass: 300, BaselineWindow: 10e-3}

// Deconvolve removes a single-exponential decay from tr, subtracts the median of
// the first BaselineWindow seconds of the result and low-pass filters it. The
// output has tr's length, sample rate and t0.
func Deconvolve(tr trace.Trace, p Params) (trace.Trace, error) {
	dec, err := ExpDeconvolve(tr, p.Tau)
	if err != nil {
		return trace.Trace{}, err
	}
	window := p.BaselineWindow
	if window <= 0 {
		window = DefaultParams.BaselineWindow
	}
	baseline := Median(dec.TimeSlice(tr.T0(), tr.T0()+window).Data())
	if math.IsNaN(baseline) {
		baseline = 0
	}
	shifted := make([]float64, dec.Len())
	for i, v := range dec.Data() {
		shifted[i] = v - baseline
	}
	return BesselLowpass(dec.WithData(shifted), p.Lowpass)
}

// ExpDeconvolve inverts convolution with exp(-t/tau):
// d[i] = x[i] + tau*(x[i]-x[i-1])/dt, with d[0] = x[0].
func ExpDeconvolve(tr trace.Trace, tau float64) (trace.Trace, error) {
	if !(tau > 0) {
		return trace.Trace{}, fmt.Errorf("invalid deconvolution tau %v", tau)
	}
	x := tr.Data()
	out := make([]float64, len(x))
	if len(x) == 0 {
		return tr.WithData(out), nil
	}
	k := tau / tr.DT()
	out[0] = x[0]
	for i := 1; i < len(x); i++ {
		out[i] = x[i] + k*(x[i]-x[i-1])
	}
	return tr.WithData(out), nil
}

// Median returns the median of v (mean of the two central values for even
// lengths) or NaN when v is empty. v is not modified.
func Median(v []float64) float64 {
	n := len(v)
	if n == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(v)
	slices.Sort(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
