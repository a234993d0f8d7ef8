package measure

import (
	"math"
	"testing"

	"synstrength/internal/trace"
)

const rate = 20e3

func mustTrace(t *testing.T, data []float64) trace.Trace {
	t.Helper()
	tr, err := trace.New(data, rate)
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	return tr
}

// responseTrace builds 20 ms at 20 kHz: baseline value in [0, 9ms), the response
// samples placed starting at 11 ms, zero elsewhere.
func responseTrace(baseline float64, response []float64) []float64 {
	data := make([]float64, 400)
	for i := 0; i < 180; i++ {
		data[i] = baseline
	}
	copy(data[220:], response)
	return data
}

func TestPeakMatchesMaxMinusBaselineMean(t *testing.T) {
	data := make([]float64, 400)
	for i := range data {
		data[i] = math.Sin(float64(i) / 7)
	}
	tr := mustTrace(t, data)

	var baseSum float64
	for _, v := range data[0:180] {
		baseSum += v
	}
	baseMean := baseSum / 180
	maxResp, minResp := math.Inf(-1), math.Inf(1)
	for _, v := range data[220:340] {
		maxResp = math.Max(maxResp, v)
		minResp = math.Min(minResp, v)
	}

	if got, want := PeakDefault(tr, Positive), maxResp-baseMean; math.Abs(got-want) > 1e-12 {
		t.Fatalf("positive peak: got %v want %v", got, want)
	}
	if got, want := PeakDefault(tr, Negative), minResp-baseMean; math.Abs(got-want) > 1e-12 {
		t.Fatalf("negative peak: got %v want %v", got, want)
	}
}

func TestPeakInvariantToConstantOffset(t *testing.T) {
	data := make([]float64, 400)
	shifted := make([]float64, 400)
	for i := range data {
		data[i] = math.Cos(float64(i)/11) * 1e-3
		shifted[i] = data[i] + 0.065
	}
	a, b := mustTrace(t, data), mustTrace(t, shifted)
	for _, sign := range []Sign{Positive, Negative} {
		if d := PeakDefault(a, sign) - PeakDefault(b, sign); math.Abs(d) > 1e-12 {
			t.Fatalf("sign %s: offset changed result by %v", sign, d)
		}
	}
}

func TestPeakFlatResponseReportsSameValueForBothSigns(t *testing.T) {
	tr := mustTrace(t, responseTrace(0, []float64{5, 5, 5, 5, 5, 5}))
	window := Window{Start: 11e-3, Stop: 11.3e-3}
	if got := Peak(tr, Positive, DefaultBaseline, window); got != 5 {
		t.Fatalf("pos amp: got %v", got)
	}
	if got := Peak(tr, Negative, DefaultBaseline, window); got != 5 {
		t.Fatalf("neg amp: got %v", got)
	}
}

func TestPeakEmptyWindowIsNaN(t *testing.T) {
	tr := mustTrace(t, make([]float64, 100))
	if got := PeakDefault(tr, Positive); !math.IsNaN(got) {
		t.Fatalf("expected NaN for response window beyond trace, got %v", got)
	}
}

func TestSumSubtractsBaselineSum(t *testing.T) {
	data := responseTrace(1, []float64{2, 2, 2, 2})
	tr := mustTrace(t, data)
	// response window [12ms, 17ms) starts at sample 240, past the four 2s.
	if got, want := SumDefault(tr, Positive), -180.0; got != want {
		t.Fatalf("sum: got %v want %v", got, want)
	}
	got := Sum(tr, Negative, DefaultBaseline, Window{Start: 11e-3, Stop: 12e-3})
	if want := 8.0 - 180.0; got != want {
		t.Fatalf("sum with custom window: got %v want %v", got, want)
	}
}

func TestParseSign(t *testing.T) {
	if s, err := ParseSign("-"); err != nil || s != Negative {
		t.Fatalf("parse '-': %v %v", s, err)
	}
	if s, err := ParseSign("+"); err != nil || s != Positive || s.String() != "+" {
		t.Fatalf("parse '+': %v %v", s, err)
	}
	if _, err := ParseSign("x"); err == nil {
		t.Fatalf("expected error")
	}
}
