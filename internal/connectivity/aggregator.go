package connectivity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"synstrength/pkg/domain"
)

// Skip reasons reported for pairs that produce no summary.
const (
	SkipEmpty        = "empty"
	SkipBelowMinimum = "below_min_samples"
	SkipStorage      = "storage"
)

// SkippedPair records a channel pair for which no summary was written.
type SkippedPair struct {
	ExperimentID int64              `json:"experiment_id"`
	Pair         domain.ChannelPair `json:"pair"`
	Reason       string             `json:"reason"`
	Count        int                `json:"count"`
	Error        string             `json:"error,omitempty"`
}

// Recorder receives per-pair outcomes.
type Recorder interface {
	PairsWritten(n int)
	PairSkipped(reason string)
}

type nopRecorder struct{}

func (nopRecorder) PairsWritten(int)   {}
func (nopRecorder) PairSkipped(string) {}

// Result lists the summaries written and the pairs skipped, both ordered by
// (experiment, pre, post).
type Result struct {
	Summaries []domain.ConnectionSummary
	Skipped   []SkippedPair
}

// Aggregator derives one connection summary per qualifying channel pair of
// every experiment.
type Aggregator struct {
	Source domain.ConnectivitySource
	Sink   domain.SummarySink
	// MinSamples is the smallest cohort that is summarised. Values below 1 are
	// treated as 1.
	MinSamples int
	// Concurrency bounds the pair computations in flight.
	Concurrency int
	ClampMode   string
	Logger      *slog.Logger
	Recorder    Recorder
}

type pairTask struct {
	experiment int64
	pair       domain.ChannelPair
}

type pairOutcome struct {
	summary *domain.ConnectionSummary
	skipped *SkippedPair
}

// Run recomputes every summary and writes them in a single bulk insert.
// Experiment listing and the final write are fatal on error; a failed pair
// fetch is reported as a skipped pair.
func (a *Aggregator) Run(ctx context.Context) (Result, error) {
	if a.Source == nil || a.Sink == nil {
		return Result{}, fmt.Errorf("connectivity: source and sink required")
	}
	log := a.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	rec := a.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	clamp := a.ClampMode
	if clamp == "" {
		clamp = domain.ClampModeCurrent
	}
	minSamples := max(a.MinSamples, 1)

	experiments, err := a.Source.ListExperiments(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list experiments: %w", err)
	}
	slices.Sort(experiments)
	var tasks []pairTask
	for _, expt := range experiments {
		counts, err := a.Source.RecordingCounts(ctx, expt)
		if err != nil {
			return Result{}, fmt.Errorf("recording counts for experiment %d: %w", expt, err)
		}
		for _, pair := range ExperimentPairs(QualifyingChannels(counts)) {
			tasks = append(tasks, pairTask{experiment: expt, pair: pair})
		}
	}
	log.Info("aggregating connections", "experiments", len(experiments), "pairs", len(tasks))

	outcomes := make([]pairOutcome, len(tasks))
	var g errgroup.Group
	g.SetLimit(max(a.Concurrency, 1))
	for i, task := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcomes[i] = a.summarizePair(ctx, task, clamp, minSamples)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	for _, o := range outcomes {
		switch {
		case o.summary != nil:
			res.Summaries = append(res.Summaries, *o.summary)
		case o.skipped != nil:
			rec.PairSkipped(o.skipped.Reason)
			log.Debug("pair skipped", "experiment", o.skipped.ExperimentID, "pair", o.skipped.Pair.String(), "reason", o.skipped.Reason)
			res.Skipped = append(res.Skipped, *o.skipped)
		}
	}
	if err := a.Sink.InsertSummaries(ctx, res.Summaries); err != nil {
		return Result{}, fmt.Errorf("write summaries: %w", err)
	}
	rec.PairsWritten(len(res.Summaries))
	return res, nil
}

func (a *Aggregator) summarizePair(ctx context.Context, task pairTask, clamp string, minSamples int) pairOutcome {
	skip := func(reason string, count int, err error) pairOutcome {
		sp := &SkippedPair{ExperimentID: task.experiment, Pair: task.pair, Reason: reason, Count: count}
		if err != nil {
			sp.Error = err.Error()
		}
		return pairOutcome{skipped: sp}
	}
	rows, err := a.Source.PairFeatures(ctx, task.experiment, task.pair, clamp)
	if err != nil {
		return skip(SkipStorage, 0, err)
	}
	if len(rows) < minSamples {
		err := &domain.EmptyCohortError{ExperimentID: task.experiment, Pair: task.pair, Count: len(rows), Min: minSamples}
		if len(rows) == 0 {
			return skip(SkipEmpty, 0, err)
		}
		return skip(SkipBelowMinimum, len(rows), err)
	}
	summary, err := Summarize(task.experiment, task.pair, rows)
	if err != nil {
		return skip(SkipEmpty, 0, err)
	}
	return pairOutcome{summary: &summary}
}
