// Package domain defines the records, error taxonomy and storage contracts
// shared by the strength batch processor and the connectivity aggregator.
package domain

import "fmt"

// SynapseType classifies the dominant polarity of a connection.
type SynapseType string

// Synapse polarities persisted in connection_summary.synapse_type.
const (
	SynapseExcitatory SynapseType = "ex"
	SynapseInhibitory SynapseType = "in"
)

// ClampModeCurrent is the current-clamp recording mode used to select pair features.
const ClampModeCurrent = "ic"

// RawResponse is a stored pulse response joined with its baseline segment.
// Data and BaselineData hold serialized sample buffers.
type RawResponse struct {
	ID           int64
	BaselineID   int64
	Data         []byte
	BaselineData []byte
}

// PulseResponseFeature holds the eight amplitude features measured for one
// pulse response. ResponseID is unique across the table.
type PulseResponseFeature struct {
	ResponseID    int64   `json:"pulse_response_id"`
	PosAmp        float64 `json:"pos_amp"`
	NegAmp        float64 `json:"neg_amp"`
	PosBaseAmp    float64 `json:"pos_base_amp"`
	NegBaseAmp    float64 `json:"neg_base_amp"`
	PosDecAmp     float64 `json:"pos_dec_amp"`
	NegDecAmp     float64 `json:"neg_dec_amp"`
	PosDecBaseAmp float64 `json:"pos_dec_base_amp"`
	NegDecBaseAmp float64 `json:"neg_dec_base_amp"`
}

// ChannelPair is an ordered (presynaptic, postsynaptic) pair of recording channels.
type ChannelPair struct {
	Pre  int `json:"pre_channel"`
	Post int `json:"post_channel"`
}

func (p ChannelPair) String() string {
	return fmt.Sprintf("%d=>%d", p.Pre, p.Post)
}

// ConnectionSummary aggregates the features of one channel pair within an experiment.
type ConnectionSummary struct {
	ExperimentID int64       `json:"experiment_id"`
	Pre          int         `json:"pre_channel"`
	Post         int         `json:"post_channel"`
	SynapseType  SynapseType `json:"synapse_type"`
	SampleCount  int         `json:"sample_count"`

	AmpMean            float64 `json:"amp_mean"`
	AmpStdev           float64 `json:"amp_stdev"`
	BaseAmpMean        float64 `json:"base_amp_mean"`
	BaseAmpStdev       float64 `json:"base_amp_stdev"`
	DeconvAmpMean      float64 `json:"deconv_amp_mean"`
	DeconvAmpStdev     float64 `json:"deconv_amp_stdev"`
	DeconvBaseAmpMean  float64 `json:"deconv_base_amp_mean"`
	DeconvBaseAmpStdev float64 `json:"deconv_base_amp_stdev"`

	// Two-sample Kolmogorov-Smirnov statistics (D) and their p-values.
	AmpComparisonStat         float64 `json:"amp_comparison_stat"`
	DeconvAmpComparisonStat   float64 `json:"deconv_amp_comparison_stat"`
	AmpComparisonPValue       float64 `json:"amp_comparison_pvalue"`
	DeconvAmpComparisonPValue float64 `json:"deconv_amp_comparison_pvalue"`

	// Welch t statistics; NaN when either sample has fewer than two values.
	AmpTTest       float64 `json:"amp_ttest"`
	DeconvAmpTTest float64 `json:"deconv_amp_ttest"`
}

// Pair returns the channel pair the summary describes.
func (s ConnectionSummary) Pair() ChannelPair {
	return ChannelPair{Pre: s.Pre, Post: s.Post}
}
