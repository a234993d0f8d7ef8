// Package trace provides a minimal sampled time-series accessor used by the
// measurement and filter stages.
package trace

import (
	"fmt"
	"math"
)

// Trace is a uniformly sampled series with a sample rate (Hz) and the time of
// its first sample (t0, seconds).
type Trace struct {
	data       []float64
	sampleRate float64
	t0         float64
}

// New wraps samples without copying. sampleRate must be positive.
func New(data []float64, sampleRate float64) (Trace, error) {
	return NewAt(data, sampleRate, 0)
}

// NewAt wraps samples starting at t0.
func NewAt(data []float64, sampleRate, t0 float64) (Trace, error) {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return Trace{}, fmt.Errorf("invalid sample rate %v", sampleRate)
	}
	return Trace{data: data, sampleRate: sampleRate, t0: t0}, nil
}

// Data returns the underlying samples. Callers must not modify them.
func (t Trace) Data() []float64 { return t.data }

// Len returns the number of samples.
func (t Trace) Len() int { return len(t.data) }

// SampleRate returns the sample rate in Hz.
func (t Trace) SampleRate() float64 { return t.sampleRate }

// DT returns the sample interval in seconds.
func (t Trace) DT() float64 { return 1 / t.sampleRate }

// T0 returns the time of the first sample.
func (t Trace) T0() float64 { return t.t0 }

// Duration returns the time spanned by the samples.
func (t Trace) Duration() float64 { return float64(len(t.data)) / t.sampleRate }

// IndexAt returns the sample index nearest to time tm, unclipped.
func (t Trace) IndexAt(tm float64) int {
	return int(math.Round((tm - t.t0) * t.sampleRate))
}

// TimeSlice returns the samples in [start, stop) as a trace starting at the
// first selected sample. Bounds are clipped to the trace; an inverted or fully
// out-of-range window yields an empty trace.
func (t Trace) TimeSlice(start, stop float64) Trace {
	i0 := clip(t.IndexAt(start), 0, len(t.data))
	i1 := clip(t.IndexAt(stop), 0, len(t.data))
	if i1 < i0 {
		i1 = i0
	}
	return Trace{
		data:       t.data[i0:i1],
		sampleRate: t.sampleRate,
		t0:         t.t0 + float64(i0)/t.sampleRate,
	}
}

// WithData returns a trace sharing t's timing metadata with new samples.
func (t Trace) WithData(data []float64) Trace {
	return Trace{data: data, sampleRate: t.sampleRate, t0: t.t0}
}

// TimeValues returns the sample times.
func (t Trace) TimeValues() []float64 {
	out := make([]float64, len(t.data))
	for i := range out {
		out[i] = t.t0 + float64(i)/t.sampleRate
	}
	return out
}

func clip(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
