// Package fixture generates deterministic synthetic source datasets for tests
// and local development databases.
package fixture

import (
	"fmt"
	"math"
	"math/rand/v2"

	"synstrength/internal/trace"
	"synstrength/pkg/domain"
)

// Options sizes a generated dataset. Zero fields take the defaults below.
type Options struct {
	Experiments          int
	Channels             int
	RecordingsPerChannel int
	PulsesPerRecording   int
	SampleRate           float64
	Seed                 uint64
	// Amplitude is the peak PSP size in volts.
	Amplitude float64
	// Noise is the standard deviation of additive noise in volts.
	Noise float64
}

// Defaults applied by Generate.
var Defaults = Options{
	Experiments:          2,
	Channels:             3,
	RecordingsPerChannel: 3,
	PulsesPerRecording:   2,
	SampleRate:           20e3,
	Seed:                 1,
	Amplitude:            1e-3,
	Noise:                2e-5,
}

func (o Options) withDefaults() Options {
	if o.Experiments <= 0 {
		o.Experiments = Defaults.Experiments
	}
	if o.Channels <= 0 {
		o.Channels = Defaults.Channels
	}
	if o.RecordingsPerChannel <= 0 {
		o.RecordingsPerChannel = Defaults.RecordingsPerChannel
	}
	if o.PulsesPerRecording <= 0 {
		o.PulsesPerRecording = Defaults.PulsesPerRecording
	}
	if o.SampleRate <= 0 {
		o.SampleRate = Defaults.SampleRate
	}
	if o.Seed == 0 {
		o.Seed = Defaults.Seed
	}
	if o.Amplitude == 0 {
		o.Amplitude = Defaults.Amplitude
	}
	if o.Noise < 0 {
		o.Noise = 0
	} else if o.Noise == 0 {
		o.Noise = Defaults.Noise
	}
	return o
}

// Polarity returns the sign of the synthetic connection from pre to post:
// +1 (excitatory) when pre+post is even, -1 otherwise.
func Polarity(pre, post int) float64 {
	if (pre+post)%2 == 0 {
		return 1
	}
	return -1
}

// Generate builds a dataset in which every channel of every experiment has
// RecordingsPerChannel current-clamp recordings. Each sync recording holds one
// recording per channel; every stimulus pulse on a channel evokes a response
// on every other channel of the same sync recording.
func Generate(opts Options) (domain.SourceDataset, error) {
	o := opts.withDefaults()
	rng := rand.New(rand.NewPCG(o.Seed, o.Seed^0x9e3779b97f4a7c15))
	var ds domain.SourceDataset
	var ids struct{ syncRec, rec, pcr, pulse, base, resp int64 }

	for e := 1; e <= o.Experiments; e++ {
		expt := int64(e)
		ds.Experiments = append(ds.Experiments, domain.Experiment{ID: expt})
		for r := 0; r < o.RecordingsPerChannel; r++ {
			ids.syncRec++
			ds.SyncRecs = append(ds.SyncRecs, domain.SyncRec{ID: ids.syncRec, ExperimentID: expt})
			recByChannel := make(map[int]int64, o.Channels)
			for ch := 1; ch <= o.Channels; ch++ {
				ids.rec++
				ids.pcr++
				recByChannel[ch] = ids.rec
				ds.Recordings = append(ds.Recordings, domain.Recording{ID: ids.rec, DeviceKey: ch, SyncRecID: ids.syncRec})
				ds.PatchClampRecordings = append(ds.PatchClampRecordings, domain.PatchClampRecording{ID: ids.pcr, RecordingID: ids.rec, ClampMode: domain.ClampModeCurrent})
			}
			for pre := 1; pre <= o.Channels; pre++ {
				for p := 0; p < o.PulsesPerRecording; p++ {
					ids.pulse++
					ds.StimPulses = append(ds.StimPulses, domain.StimPulse{ID: ids.pulse, RecordingID: recByChannel[pre]})
					for post := 1; post <= o.Channels; post++ {
						if post == pre {
							continue
						}
						base, err := trace.EncodeSamples(synthetic(rng, o, 0))
						if err != nil {
							return domain.SourceDataset{}, fmt.Errorf("encode baseline: %w", err)
						}
						data, err := trace.EncodeSamples(synthetic(rng, o, Polarity(pre, post)*o.Amplitude))
						if err != nil {
							return domain.SourceDataset{}, fmt.Errorf("encode response: %w", err)
						}
						ids.base++
						ids.resp++
						ds.Baselines = append(ds.Baselines, domain.Baseline{ID: ids.base, Data: base})
						ds.PulseResponses = append(ds.PulseResponses, domain.PulseResponse{
							ID: ids.resp, BaselineID: ids.base, RecordingID: recByChannel[post], StimPulseID: ids.pulse, Data: data,
						})
					}
				}
			}
		}
	}
	return ds, nil
}

// synthetic returns 20 ms of membrane potential with a dual-exponential PSP of
// the given peak-scaled amplitude starting at 11 ms.
func synthetic(rng *rand.Rand, o Options, amp float64) []float64 {
	const (
		onset    = 11e-3
		duration = 20e-3
		rise     = 1e-3
		decay    = 15e-3
	)
	n := int(math.Round(duration * o.SampleRate))
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / o.SampleRate
		v := -0.065 + o.Noise*rng.NormFloat64()
		if t >= onset && amp != 0 {
			dt := t - onset
			v += amp * (math.Exp(-dt/decay) - math.Exp(-dt/rise)) / 0.8
		}
		out[i] = v
	}
	return out
}
