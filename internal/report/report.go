// Package report describes the outcome of a rebuild and archives it, together
// with a CSV export of the summary table, to the blob store.
package report

import (
	"time"

	"github.com/google/uuid"

	"synstrength/internal/blob"
	"synstrength/internal/connectivity"
	"synstrength/internal/strength"
)

// Status is the overall outcome of a rebuild.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	// StatusPartial means the rebuild finished but some ranges failed or some
	// pairs could not be read.
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// FailedRange is the uncommitted remainder of a processor range.
type FailedRange struct {
	Start int64  `json:"start"`
	Stop  int64  `json:"stop"`
	Error string `json:"error"`
}

// Report is the machine readable record of one rebuild.
type Report struct {
	RunID      string    `json:"run_id"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	MaxResponseID      int64 `json:"max_response_id"`
	ResponsesTotal     int64 `json:"responses_total"`
	ResponsesProcessed int64 `json:"responses_processed"`
	Workers            int   `json:"workers"`

	FailedRanges     []FailedRange              `json:"failed_ranges,omitempty"`
	SkippedPairs     []connectivity.SkippedPair `json:"skipped_pairs,omitempty"`
	SummariesWritten int                        `json:"summaries_written"`

	StrengthDuration     time.Duration `json:"strength_duration_ns"`
	ConnectivityDuration time.Duration `json:"connectivity_duration_ns"`

	Artifacts []blob.Info `json:"artifacts,omitempty"`
}

// New starts a report with a fresh run id.
func New(now time.Time) Report {
	return Report{RunID: uuid.NewString(), StartedAt: now.UTC()}
}

// AddStrength records the processor outcome.
func (r *Report) AddStrength(res strength.Result) {
	r.ResponsesProcessed = res.Processed
	for _, f := range res.Failures {
		r.FailedRanges = append(r.FailedRanges, FailedRange{Start: f.Range.Start, Stop: f.Range.Stop, Error: f.Err.Error()})
	}
}

// AddConnectivity records the aggregator outcome.
func (r *Report) AddConnectivity(res connectivity.Result) {
	r.SummariesWritten = len(res.Summaries)
	r.SkippedPairs = append(r.SkippedPairs, res.Skipped...)
}

// Finish stamps the end time and derives Status. A non-nil err marks the
// rebuild failed.
func (r *Report) Finish(now time.Time, err error) {
	r.FinishedAt = now.UTC()
	switch {
	case err != nil:
		r.Status = StatusFailed
		r.Error = err.Error()
	case len(r.FailedRanges) > 0 || r.storageSkips() > 0:
		r.Status = StatusPartial
	default:
		r.Status = StatusSucceeded
	}
}

func (r *Report) storageSkips() int {
	n := 0
	for _, s := range r.SkippedPairs {
		if s.Reason == connectivity.SkipStorage {
			n++
		}
	}
	return n
}
