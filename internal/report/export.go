package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"synstrength/internal/blob"
	"synstrength/pkg/domain"
)

const keyPrefix = "reports/"

// SummaryColumns is the header of the summary CSV export, in column order.
var SummaryColumns = []string{
	"experiment_id", "pre_channel", "post_channel", "synapse_type", "sample_count",
	"amp_mean", "amp_stdev", "base_amp_mean", "base_amp_stdev",
	"deconv_amp_mean", "deconv_amp_stdev", "deconv_base_amp_mean", "deconv_base_amp_stdev",
	"amp_comparison_stat", "deconv_amp_comparison_stat",
	"amp_comparison_pvalue", "deconv_amp_comparison_pvalue",
	"amp_ttest", "deconv_amp_ttest",
}

// Exporter writes reports and summary exports under reports/<run id>/.
type Exporter struct {
	Store blob.Store
}

// ReportKey is the blob key of a run's JSON report.
func ReportKey(runID string) string { return keyPrefix + runID + "/report.json" }

// SummariesKey is the blob key of a run's summary CSV.
func SummariesKey(runID string) string { return keyPrefix + runID + "/summaries.csv" }

// Export stores the summary CSV and then the report, which lists both
// artifacts. The returned report carries the Artifacts field.
func (e Exporter) Export(ctx context.Context, r Report, summaries []domain.ConnectionSummary) (Report, error) {
	if e.Store == nil {
		return r, fmt.Errorf("report exporter: blob store not configured")
	}
	csvPayload, err := EncodeSummariesCSV(summaries)
	if err != nil {
		return r, fmt.Errorf("encode summaries: %w", err)
	}
	meta := map[string]string{"run-id": r.RunID, "rows": strconv.Itoa(len(summaries))}
	info, err := e.Store.Put(ctx, SummariesKey(r.RunID), bytes.NewReader(csvPayload), blob.PutOptions{ContentType: "text/csv", Metadata: meta})
	if err != nil {
		return r, fmt.Errorf("store summaries: %w", err)
	}
	r.Artifacts = append(r.Artifacts, info)

	payload, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return r, fmt.Errorf("marshal report: %w", err)
	}
	info, err = e.Store.Put(ctx, ReportKey(r.RunID), bytes.NewReader(payload), blob.PutOptions{ContentType: "application/json", Metadata: map[string]string{"run-id": r.RunID, "status": string(r.Status)}})
	if err != nil {
		return r, fmt.Errorf("store report: %w", err)
	}
	r.Artifacts = append(r.Artifacts, info)
	return r, nil
}

// Load reads a previously exported report.
func (e Exporter) Load(ctx context.Context, runID string) (Report, error) {
	_, rc, err := e.Store.Get(ctx, ReportKey(runID))
	if err != nil {
		return Report{}, err
	}
	defer rc.Close()
	var r Report
	if err := json.NewDecoder(rc).Decode(&r); err != nil {
		return Report{}, fmt.Errorf("decode report %s: %w", runID, err)
	}
	return r, nil
}

// EncodeSummariesCSV renders summaries with SummaryColumns as header. NaN
// statistics are written as "NaN".
func EncodeSummariesCSV(summaries []domain.ConnectionSummary) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(SummaryColumns); err != nil {
		return nil, err
	}
	for _, s := range summaries {
		record := []string{
			strconv.FormatInt(s.ExperimentID, 10),
			strconv.Itoa(s.Pre),
			strconv.Itoa(s.Post),
			string(s.SynapseType),
			strconv.Itoa(s.SampleCount),
		}
		for _, v := range []float64{
			s.AmpMean, s.AmpStdev, s.BaseAmpMean, s.BaseAmpStdev,
			s.DeconvAmpMean, s.DeconvAmpStdev, s.DeconvBaseAmpMean, s.DeconvBaseAmpStdev,
			s.AmpComparisonStat, s.DeconvAmpComparisonStat,
			s.AmpComparisonPValue, s.DeconvAmpComparisonPValue,
			s.AmpTTest, s.DeconvAmpTTest,
		} {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
