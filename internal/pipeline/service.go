// Package pipeline wires storage, the strength processor and the connectivity
// aggregator into the rebuild and inspection entry points.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"synstrength/internal/blob"
	"synstrength/internal/connectivity"
	"synstrength/internal/filter"
	"synstrength/internal/observability"
	"synstrength/internal/report"
	"synstrength/internal/strength"
	"synstrength/pkg/domain"
)

// Options tunes a Service. Zero values select the package defaults.
type Options struct {
	Workers         int
	BatchSize       int
	SampleRate      float64
	Filter          filter.Params
	MinSamples      int
	PairConcurrency int
	ClampMode       string

	Logger  *slog.Logger
	Metrics *observability.Metrics
	// Artifacts, when set, receives the JSON report and summary CSV of every rebuild.
	Artifacts blob.Store
	Now       func() time.Time
}

// Service runs rebuilds against one store.
type Service struct {
	store domain.Store
	opts  Options
}

// New returns a service over store.
func New(store domain.Store, opts Options) *Service {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = strength.DefaultBatchSize
	}
	if !(opts.SampleRate > 0) {
		opts.SampleRate = strength.DefaultSampleRate
	}
	if opts.Filter == (filter.Params{}) {
		opts.Filter = filter.DefaultParams
	}
	if opts.ClampMode == "" {
		opts.ClampMode = domain.ClampModeCurrent
	}
	if opts.Logger == nil {
		opts.Logger = observability.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, opts: opts}
}

// Store returns the underlying store.
func (s *Service) Store() domain.Store { return s.store }

// Close releases the store.
func (s *Service) Close() error { return s.store.Close() }

// Rebuild drops and recreates the derived tables, recomputes every feature
// and every connection summary, and archives the report when an artifact
// store is configured. Range failures and skipped pairs make the report
// partial without returning an error; an error means the rebuild failed.
func (s *Service) Rebuild(ctx context.Context) (report.Report, error) {
	log := s.opts.Logger
	rep := report.New(s.opts.Now())
	rep.Workers = s.opts.Workers
	log.Info("rebuild started", "run_id", rep.RunID, "workers", s.opts.Workers)

	summaries, err := s.rebuild(ctx, &rep)
	rep.Finish(s.opts.Now(), err)
	if s.opts.Metrics != nil {
		s.opts.Metrics.RebuildFinished(string(rep.Status), rep.FinishedAt.Sub(rep.StartedAt))
	}
	if err != nil {
		log.Error("rebuild failed", "run_id", rep.RunID, "error", err)
	} else {
		log.Info("rebuild finished", "run_id", rep.RunID, "status", rep.Status,
			"processed", rep.ResponsesProcessed, "total", rep.ResponsesTotal,
			"summaries", rep.SummariesWritten, "failed_ranges", len(rep.FailedRanges),
			"skipped_pairs", len(rep.SkippedPairs))
	}

	if s.opts.Artifacts != nil {
		out, aerr := report.Exporter{Store: s.opts.Artifacts}.Export(context.WithoutCancel(ctx), rep, summaries)
		if aerr != nil {
			log.Error("archive report", "run_id", rep.RunID, "error", aerr)
			return rep, errors.Join(err, fmt.Errorf("archive report: %w", aerr))
		}
		rep = out
	}
	return rep, err
}

func (s *Service) rebuild(ctx context.Context, rep *report.Report) ([]domain.ConnectionSummary, error) {
	if err := s.store.DropDerived(ctx); err != nil {
		return nil, err
	}
	if err := s.store.CreateDerived(ctx); err != nil {
		return nil, err
	}

	maxID, ok, err := s.store.MaxResponseID(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		rep.MaxResponseID = maxID
		total, err := s.store.CountResponses(ctx, maxID+1)
		if err != nil {
			return nil, err
		}
		rep.ResponsesTotal = total

		proc := strength.NewProcessor()
		proc.BatchSize = s.opts.BatchSize
		proc.SampleRate = s.opts.SampleRate
		proc.Filter = s.opts.Filter
		proc.Logger = s.opts.Logger
		if s.opts.Metrics != nil {
			proc.Recorder = s.opts.Metrics
		}
		orch := strength.Orchestrator{Sessions: s.store, Processor: proc, Workers: s.opts.Workers, Total: total}
		started := time.Now()
		res, err := orch.Run(ctx, maxID)
		rep.StrengthDuration = time.Since(started)
		if err != nil {
			return nil, err
		}
		rep.AddStrength(res)
	} else {
		s.opts.Logger.Info("no pulse responses; skipping strength computation")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agg := connectivity.Aggregator{
		Source:      s.store,
		Sink:        s.store,
		MinSamples:  s.opts.MinSamples,
		Concurrency: s.opts.PairConcurrency,
		ClampMode:   s.opts.ClampMode,
		Logger:      s.opts.Logger,
	}
	if s.opts.Metrics != nil {
		agg.Recorder = s.opts.Metrics
	}
	started := time.Now()
	res, err := agg.Run(ctx)
	rep.ConnectivityDuration = time.Since(started)
	if err != nil {
		return nil, err
	}
	rep.AddConnectivity(res)
	return res.Summaries, nil
}

// GetPairFeatures returns the feature rows of pair pre=>post in the experiment
// under clampMode (current clamp when empty), ordered by response id.
func (s *Service) GetPairFeatures(ctx context.Context, experimentID int64, pre, post int, clampMode string) ([]domain.PulseResponseFeature, error) {
	if clampMode == "" {
		clampMode = domain.ClampModeCurrent
	}
	return s.store.PairFeatures(ctx, experimentID, domain.ChannelPair{Pre: pre, Post: post}, clampMode)
}

// Summaries returns the stored connection summaries.
func (s *Service) Summaries(ctx context.Context) ([]domain.ConnectionSummary, error) {
	return s.store.ListSummaries(ctx)
}
