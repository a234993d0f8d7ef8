package connectivity

import (
	"synstrength/pkg/domain"
)

// Classify labels a cohort excitatory when the mean deconvolved positive
// deflection above baseline exceeds the magnitude of the negative one.
// Ties are inhibitory.
func Classify(rows []domain.PulseResponseFeature) domain.SynapseType {
	pos := mean(column(rows, func(f domain.PulseResponseFeature) float64 { return f.PosDecAmp })) -
		mean(column(rows, func(f domain.PulseResponseFeature) float64 { return f.PosDecBaseAmp }))
	neg := mean(column(rows, func(f domain.PulseResponseFeature) float64 { return f.NegDecAmp })) -
		mean(column(rows, func(f domain.PulseResponseFeature) float64 { return f.NegDecBaseAmp }))
	if pos > -neg {
		return domain.SynapseExcitatory
	}
	return domain.SynapseInhibitory
}

// Summarize classifies rows and computes the summary statistics over the
// columns of the winning polarity. An empty cohort returns *EmptyCohortError.
func Summarize(experimentID int64, pair domain.ChannelPair, rows []domain.PulseResponseFeature) (domain.ConnectionSummary, error) {
	if len(rows) == 0 {
		return domain.ConnectionSummary{}, &domain.EmptyCohortError{ExperimentID: experimentID, Pair: pair}
	}
	synapse := Classify(rows)
	amp, base, dec, decBase := polarityColumns(rows, synapse)

	s := domain.ConnectionSummary{
		ExperimentID: experimentID,
		Pre:          pair.Pre,
		Post:         pair.Post,
		SynapseType:  synapse,
		SampleCount:  len(rows),
	}
	s.AmpMean, s.AmpStdev = meanStd(amp)
	s.BaseAmpMean, s.BaseAmpStdev = meanStd(base)
	s.DeconvAmpMean, s.DeconvAmpStdev = meanStd(dec)
	s.DeconvBaseAmpMean, s.DeconvBaseAmpStdev = meanStd(decBase)
	s.AmpComparisonStat, s.AmpComparisonPValue = KolmogorovSmirnov(amp, base)
	s.DeconvAmpComparisonStat, s.DeconvAmpComparisonPValue = KolmogorovSmirnov(dec, decBase)
	s.AmpTTest = WelchT(amp, base)
	s.DeconvAmpTTest = WelchT(dec, decBase)
	return s, nil
}

func polarityColumns(rows []domain.PulseResponseFeature, synapse domain.SynapseType) (amp, base, dec, decBase []float64) {
	if synapse == domain.SynapseExcitatory {
		return column(rows, func(f domain.PulseResponseFeature) float64 { return f.PosAmp }),
			column(rows, func(f domain.PulseResponseFeature) float64 { return f.PosBaseAmp }),
			column(rows, func(f domain.PulseResponseFeature) float64 { return f.PosDecAmp }),
			column(rows, func(f domain.PulseResponseFeature) float64 { return f.PosDecBaseAmp })
	}
	return column(rows, func(f domain.PulseResponseFeature) float64 { return f.NegAmp }),
		column(rows, func(f domain.PulseResponseFeature) float64 { return f.NegBaseAmp }),
		column(rows, func(f domain.PulseResponseFeature) float64 { return f.NegDecAmp }),
		column(rows, func(f domain.PulseResponseFeature) float64 { return f.NegDecBaseAmp })
}

func column(rows []domain.PulseResponseFeature, get func(domain.PulseResponseFeature) float64) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = get(r)
	}
	return out
}
