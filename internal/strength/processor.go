// Package strength computes per-response strength features in id-range batches
// and fans the work out over a bounded worker pool.
package strength

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"synstrength/internal/filter"
	"synstrength/pkg/domain"
)

// DefaultBatchSize bounds the rows fetched and committed per batch.
const DefaultBatchSize = 1000

// Recorder receives batch level measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	BatchCommitted(rows int, elapsed time.Duration)
	RangeFailed()
}

type nopRecorder struct{}

func (nopRecorder) BatchCommitted(int, time.Duration) {}
func (nopRecorder) RangeFailed()                      {}

// Processor runs the cursor algorithm over a single id range.
type Processor struct {
	BatchSize  int
	SampleRate float64
	Filter     filter.Params
	Logger     *slog.Logger
	Recorder   Recorder
	// Progress, when set, is called after every committed batch with the number
	// of rows in that batch.
	Progress func(r Range, rows int)
}

// NewProcessor returns a Processor with default batch size, sample rate and
// filter parameters.
func NewProcessor() *Processor {
	return &Processor{
		BatchSize:  DefaultBatchSize,
		SampleRate: DefaultSampleRate,
		Filter:     filter.DefaultParams,
	}
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p.Logger
}

func (p *Processor) recorder() Recorder {
	if p.Recorder == nil {
		return nopRecorder{}
	}
	return p.Recorder
}

// ProcessRange fetches responses with Start <= id < Stop in ascending id order,
// BatchSize at a time, and commits the features of each batch with one bulk
// insert. It returns the number of rows committed and the first id not yet
// committed; on success that is r.Stop. A failing batch is not committed.
func (p *Processor) ProcessRange(ctx context.Context, session domain.ResponseSession, r Range) (int64, int64, error) {
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	rate := p.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	log := p.logger().With("range", r.String())

	var processed int64
	next := r.Start
	for next < r.Stop {
		if err := ctx.Err(); err != nil {
			return processed, next, err
		}
		started := time.Now()
		rows, err := session.FetchResponses(ctx, next, r.Stop, batchSize)
		if err != nil {
			return processed, next, fmt.Errorf("fetch responses from %d: %w", next, err)
		}
		if len(rows) == 0 {
			break
		}
		features := make([]domain.PulseResponseFeature, 0, len(rows))
		for _, row := range rows {
			f, err := ComputeFeature(row, rate, p.Filter)
			if err != nil {
				return processed, next, err
			}
			features = append(features, f)
		}
		if err := session.InsertFeatures(ctx, features); err != nil {
			return processed, next, fmt.Errorf("insert features for %d..%d: %w", rows[0].ID, rows[len(rows)-1].ID, err)
		}
		processed += int64(len(rows))
		next = rows[len(rows)-1].ID + 1
		p.recorder().BatchCommitted(len(rows), time.Since(started))
		log.Debug("batch committed", "rows", len(rows), "next", next)
		if p.Progress != nil {
			p.Progress(r, len(rows))
		}
	}
	return processed, r.Stop, nil
}
