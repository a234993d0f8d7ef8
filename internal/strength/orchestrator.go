package strength

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"synstrength/pkg/domain"
)

// RangeFailure reports the uncommitted remainder of a range whose worker failed.
type RangeFailure struct {
	Range Range
	Err   error
}

func (f RangeFailure) Error() string { return fmt.Sprintf("range %s: %v", f.Range, f.Err) }

func (f RangeFailure) Unwrap() error { return f.Err }

// Result summarises an orchestrated run. Features themselves only travel
// through storage.
type Result struct {
	Ranges    []Range
	Processed int64
	Failures  []RangeFailure
}

// Orchestrator partitions the id space and runs one Processor task per range on
// a fixed size pool. Each task uses its own session.
type Orchestrator struct {
	Sessions  domain.SessionFactory
	Processor *Processor
	Workers   int
	// Total, when positive, is the expected row count used in progress logs.
	Total int64
}

// Run processes [0, maxID]. Failures in one range do not stop the others;
// they are returned in Result.Failures sorted by range start.
func (o *Orchestrator) Run(ctx context.Context, maxID int64) (Result, error) {
	if o.Sessions == nil {
		return Result{}, fmt.Errorf("strength: session factory not configured")
	}
	workers := o.Workers
	if workers < 1 {
		workers = 1
	}
	proc := o.Processor
	if proc == nil {
		proc = NewProcessor()
	}

	var processed atomic.Int64
	worker := *proc
	worker.Progress = func(r Range, rows int) {
		done := processed.Add(int64(rows))
		if o.Total > 0 {
			worker.logger().Info("strength progress", "processed", done, "total", o.Total)
		}
		if proc.Progress != nil {
			proc.Progress(r, rows)
		}
	}

	ranges := Partition(maxID, workers)
	var (
		mu       sync.Mutex
		failures []RangeFailure
	)
	fail := func(f RangeFailure) {
		worker.recorder().RangeFailed()
		worker.logger().Error("range failed", "range", f.Range.String(), "error", f.Err)
		mu.Lock()
		failures = append(failures, f)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, r := range ranges {
		g.Go(func() error {
			session, err := o.Sessions.OpenSession(ctx)
			if err != nil {
				fail(RangeFailure{Range: r, Err: fmt.Errorf("open session: %w", err)})
				return nil
			}
			defer session.Close()
			_, resume, err := worker.ProcessRange(ctx, session, r)
			if err != nil {
				fail(RangeFailure{Range: Range{Start: resume, Stop: r.Stop}, Err: err})
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].Range.Start < failures[j].Range.Start })
	return Result{Ranges: ranges, Processed: processed.Load(), Failures: failures}, nil
}
