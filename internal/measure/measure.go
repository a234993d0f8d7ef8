// Package measure computes response amplitudes of a trace relative to a
// baseline window.
package measure

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"synstrength/internal/trace"
)

// Sign selects whether the response peak is the maximum (+) or minimum (-).
type Sign int

const (
	Positive Sign = +1
	Negative Sign = -1
)

func (s Sign) String() string {
	if s == Negative {
		return "-"
	}
	return "+"
}

// ParseSign accepts "+" or "-".
func ParseSign(v string) (Sign, error) {
	switch v {
	case "+":
		return Positive, nil
	case "-":
		return Negative, nil
	default:
		return 0, fmt.Errorf("invalid sign %q", v)
	}
}

// Window is a half-open time interval [Start, Stop) in seconds.
type Window struct {
	Start float64
	Stop  float64
}

// Default windows, relative to the trace origin.
var (
	DefaultBaseline     = Window{Start: 0, Stop: 9e-3}
	DefaultPeakResponse = Window{Start: 11e-3, Stop: 17e-3}
	DefaultSumResponse  = Window{Start: 12e-3, Stop: 17e-3}
)

// Peak returns the extreme response sample minus the mean baseline sample.
// An empty baseline or response window yields NaN.
func Peak(tr trace.Trace, sign Sign, baseline, response Window) float64 {
	base := tr.TimeSlice(baseline.Start, baseline.Stop).Data()
	resp := tr.TimeSlice(response.Start, response.Stop).Data()
	if len(base) == 0 || len(resp) == 0 {
		return math.NaN()
	}
	var peak float64
	if sign == Negative {
		peak = floats.Min(resp)
	} else {
		peak = floats.Max(resp)
	}
	return peak - stat.Mean(base, nil)
}

// Sum returns the summed response window minus the summed baseline window.
// The sign is accepted for symmetry with Peak and does not affect the result.
// An empty window contributes zero.
func Sum(tr trace.Trace, _ Sign, baseline, response Window) float64 {
	base := tr.TimeSlice(baseline.Start, baseline.Stop).Data()
	resp := tr.TimeSlice(response.Start, response.Stop).Data()
	return floats.Sum(resp) - floats.Sum(base)
}

// PeakDefault measures with DefaultBaseline and DefaultPeakResponse.
func PeakDefault(tr trace.Trace, sign Sign) float64 {
	return Peak(tr, sign, DefaultBaseline, DefaultPeakResponse)
}

// SumDefault measures with DefaultBaseline and DefaultSumResponse.
func SumDefault(tr trace.Trace, sign Sign) float64 {
	return Sum(tr, sign, DefaultBaseline, DefaultSumResponse)
}
