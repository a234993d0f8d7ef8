package strength

import (
	"fmt"

	"synstrength/internal/filter"
	"synstrength/internal/measure"
	"synstrength/internal/trace"
	"synstrength/pkg/domain"
)

// DefaultSampleRate is the acquisition rate of stored pulse responses (Hz).
const DefaultSampleRate = 20e3

// ComputeFeature decodes a joined response/baseline row and measures the eight
// strength features. Raw amplitudes use the default peak windows; deconvolved
// amplitudes are measured the same way on the filtered traces.
func ComputeFeature(row domain.RawResponse, sampleRate float64, params filter.Params) (domain.PulseResponseFeature, error) {
	resp, err := trace.Decode(row.Data, sampleRate)
	if err != nil {
		return domain.PulseResponseFeature{}, &domain.MalformedRecordError{ResponseID: row.ID, Field: "data", Err: err}
	}
	base, err := trace.Decode(row.BaselineData, sampleRate)
	if err != nil {
		return domain.PulseResponseFeature{}, &domain.MalformedRecordError{ResponseID: row.ID, Field: "baseline", Err: err}
	}
	respDec, err := filter.Deconvolve(resp, params)
	if err != nil {
		return domain.PulseResponseFeature{}, fmt.Errorf("deconvolve response %d: %w", row.ID, err)
	}
	baseDec, err := filter.Deconvolve(base, params)
	if err != nil {
		return domain.PulseResponseFeature{}, fmt.Errorf("deconvolve baseline %d: %w", row.ID, err)
	}
	return domain.PulseResponseFeature{
		ResponseID:    row.ID,
		PosAmp:        measure.PeakDefault(resp, measure.Positive),
		NegAmp:        measure.PeakDefault(resp, measure.Negative),
		PosBaseAmp:    measure.PeakDefault(base, measure.Positive),
		NegBaseAmp:    measure.PeakDefault(base, measure.Negative),
		PosDecAmp:     measure.PeakDefault(respDec, measure.Positive),
		NegDecAmp:     measure.PeakDefault(respDec, measure.Negative),
		PosDecBaseAmp: measure.PeakDefault(baseDec, measure.Positive),
		NegDecBaseAmp: measure.PeakDefault(baseDec, measure.Negative),
	}, nil
}
