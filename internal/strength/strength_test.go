package strength

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"synstrength/internal/filter"
	"synstrength/internal/trace"
	"synstrength/pkg/domain"
)

func encode(t *testing.T, samples []float64) []byte {
	t.Helper()
	payload, err := trace.EncodeSamples(samples)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return payload
}

// pspSamples is 20 ms at 20 kHz with a depolarising step from 11 ms.
func pspSamples(amp float64) []float64 {
	out := make([]float64, 400)
	for i := range out {
		out[i] = -0.065
		if i >= 220 {
			out[i] += amp * math.Exp(-float64(i-220)/300)
		}
	}
	return out
}

type fakeBackend struct {
	mu        sync.Mutex
	rows      []domain.RawResponse
	features  map[int64]domain.PulseResponseFeature
	inserts   int
	fetches   [][2]int64
	failOnID  int64
	openErr   error
	failFetch error
}

func newFakeBackend(t *testing.T, ids ...int64) *fakeBackend {
	payload := encode(t, pspSamples(2e-3))
	base := encode(t, pspSamples(0))
	b := &fakeBackend{features: map[int64]domain.PulseResponseFeature{}, failOnID: -1}
	for _, id := range ids {
		b.rows = append(b.rows, domain.RawResponse{ID: id, BaselineID: id, Data: payload, BaselineData: base})
	}
	sort.Slice(b.rows, func(i, j int) bool { return b.rows[i].ID < b.rows[j].ID })
	return b
}

func (b *fakeBackend) OpenSession(context.Context) (domain.ResponseSession, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	return &fakeSession{b: b}, nil
}

type fakeSession struct{ b *fakeBackend }

func (s *fakeSession) FetchResponses(_ context.Context, start, stop int64, limit int) ([]domain.RawResponse, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.b.failFetch != nil {
		return nil, s.b.failFetch
	}
	s.b.fetches = append(s.b.fetches, [2]int64{start, stop})
	var out []domain.RawResponse
	for _, r := range s.b.rows {
		if r.ID >= start && r.ID < stop {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeSession) InsertFeatures(_ context.Context, rows []domain.PulseResponseFeature) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	for _, f := range rows {
		if f.ResponseID == s.b.failOnID {
			return domain.NewStorageError("insert features", errors.New("constraint failed"))
		}
		if _, dup := s.b.features[f.ResponseID]; dup {
			return domain.NewStorageError("insert features", fmt.Errorf("duplicate %d", f.ResponseID))
		}
	}
	for _, f := range rows {
		s.b.features[f.ResponseID] = f
	}
	s.b.inserts++
	return nil
}

func (s *fakeSession) Close() error { return nil }

func TestPartitionCoversRangeWithoutGaps(t *testing.T) {
	for _, tc := range []struct {
		max     int64
		workers int
	}{{0, 1}, {0, 4}, {9, 3}, {10, 4}, {999, 8}, {3, 10}, {100, 1}} {
		ranges := Partition(tc.max, tc.workers)
		if len(ranges) == 0 || len(ranges) > tc.workers {
			t.Fatalf("max=%d workers=%d: %d ranges", tc.max, tc.workers, len(ranges))
		}
		next := int64(0)
		for _, r := range ranges {
			if r.Start != next || r.Empty() {
				t.Fatalf("max=%d workers=%d: bad range %s after %d", tc.max, tc.workers, r, next)
			}
			next = r.Stop
		}
		if next != tc.max+1 {
			t.Fatalf("max=%d workers=%d: coverage ends at %d", tc.max, tc.workers, next)
		}
	}
	if got := Partition(-1, 4); got != nil {
		t.Fatalf("expected no ranges for empty table, got %v", got)
	}
	got := Partition(10, 4)
	want := []Range{{0, 3}, {3, 6}, {6, 9}, {9, 11}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("partition(10,4) = %v want %v", got, want)
	}
}

func TestComputeFeatureMeasuresResponseAndBaseline(t *testing.T) {
	row := domain.RawResponse{ID: 7, Data: encode(t, pspSamples(2e-3)), BaselineData: encode(t, pspSamples(0))}
	f, err := ComputeFeature(row, DefaultSampleRate, filter.DefaultParams)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if f.ResponseID != 7 {
		t.Fatalf("response id %d", f.ResponseID)
	}
	if math.Abs(f.PosAmp-2e-3) > 1e-9 {
		t.Fatalf("pos amp %v", f.PosAmp)
	}
	if math.Abs(f.PosBaseAmp) > 1e-12 || math.Abs(f.NegBaseAmp) > 1e-12 {
		t.Fatalf("flat baseline should measure zero, got %v %v", f.PosBaseAmp, f.NegBaseAmp)
	}
	if !(f.PosDecAmp > f.PosDecBaseAmp) {
		t.Fatalf("deconvolved response %v not above baseline %v", f.PosDecAmp, f.PosDecBaseAmp)
	}
}

func TestComputeFeatureRejectsMalformedBuffers(t *testing.T) {
	good := encode(t, pspSamples(0))
	for field, row := range map[string]domain.RawResponse{
		"data":     {ID: 3, Data: []byte("junk"), BaselineData: good},
		"baseline": {ID: 3, Data: good, BaselineData: nil},
	} {
		_, err := ComputeFeature(row, DefaultSampleRate, filter.DefaultParams)
		var malformed *domain.MalformedRecordError
		if !errors.As(err, &malformed) || malformed.ResponseID != 3 || malformed.Field != field {
			t.Fatalf("%s: expected malformed record error, got %v", field, err)
		}
	}
}

func TestProcessRangePaginatesExactlyOnceAscending(t *testing.T) {
	ids := []int64{0, 1, 2, 5, 6, 9, 12, 13, 20}
	b := newFakeBackend(t, ids...)
	p := NewProcessor()
	p.BatchSize = 2
	var batches []int
	p.Progress = func(_ Range, rows int) { batches = append(batches, rows) }

	n, resume, err := p.ProcessRange(context.Background(), &fakeSession{b: b}, Range{Start: 1, Stop: 13})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if n != 6 || resume != 13 {
		t.Fatalf("processed %d resume %d", n, resume)
	}
	for _, id := range []int64{1, 2, 5, 6, 9, 12} {
		if _, ok := b.features[id]; !ok {
			t.Fatalf("feature %d missing", id)
		}
	}
	if len(b.features) != 6 {
		t.Fatalf("features outside range written: %d", len(b.features))
	}
	wantStarts := []int64{1, 3, 7}
	if len(b.fetches) != len(wantStarts) {
		t.Fatalf("fetch cursor %v", b.fetches)
	}
	for i, f := range b.fetches {
		if f[0] != wantStarts[i] || f[1] != 13 {
			t.Fatalf("fetch %d = %v", i, f)
		}
	}
	if fmt.Sprint(batches) != "[2 2 2]" || b.inserts != 3 {
		t.Fatalf("batches %v inserts %d", batches, b.inserts)
	}
}

func TestProcessRangeAbortsBatchOnMalformedRecord(t *testing.T) {
	b := newFakeBackend(t, 1, 2, 3, 4)
	b.rows[2].Data = []byte{0x01}
	p := NewProcessor()
	p.BatchSize = 2

	n, resume, err := p.ProcessRange(context.Background(), &fakeSession{b: b}, Range{Start: 0, Stop: 10})
	var malformed *domain.MalformedRecordError
	if !errors.As(err, &malformed) || malformed.ResponseID != 3 {
		t.Fatalf("expected malformed 3, got %v", err)
	}
	if n != 2 || resume != 3 {
		t.Fatalf("processed %d resume %d", n, resume)
	}
	if _, ok := b.features[4]; ok {
		t.Fatalf("row from aborted batch committed")
	}
}

func TestProcessRangeStopsOnCancelledContext(t *testing.T) {
	b := newFakeBackend(t, 1, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, resume, err := NewProcessor().ProcessRange(ctx, &fakeSession{b: b}, Range{Start: 0, Stop: 5})
	if !errors.Is(err, context.Canceled) || resume != 0 {
		t.Fatalf("expected cancel at 0, got %d %v", resume, err)
	}
}

func TestOrchestratorResultIndependentOfWorkerCount(t *testing.T) {
	ids := make([]int64, 0, 50)
	for i := int64(0); i < 100; i += 2 {
		ids = append(ids, i)
	}
	var reference map[int64]domain.PulseResponseFeature
	for _, workers := range []int{1, 3, 4, 7} {
		b := newFakeBackend(t, ids...)
		proc := NewProcessor()
		proc.BatchSize = 4
		o := &Orchestrator{Sessions: b, Processor: proc, Workers: workers, Total: int64(len(ids))}
		res, err := o.Run(context.Background(), 98)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if len(res.Failures) != 0 || res.Processed != int64(len(ids)) {
			t.Fatalf("workers=%d: processed %d failures %v", workers, res.Processed, res.Failures)
		}
		if reference == nil {
			reference = b.features
			continue
		}
		if len(b.features) != len(reference) {
			t.Fatalf("workers=%d: %d features", workers, len(b.features))
		}
		for id, f := range reference {
			if b.features[id] != f {
				t.Fatalf("workers=%d: feature %d differs", workers, id)
			}
		}
	}
}

func TestOrchestratorIsolatesFailingRange(t *testing.T) {
	ids := make([]int64, 0, 40)
	for i := int64(0); i < 40; i++ {
		ids = append(ids, i)
	}
	b := newFakeBackend(t, ids...)
	b.failOnID = 13
	proc := NewProcessor()
	proc.BatchSize = 2
	rec := &countingRecorder{}
	proc.Recorder = rec
	o := &Orchestrator{Sessions: b, Processor: proc, Workers: 4}

	res, err := o.Run(context.Background(), 39)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("failures: %v", res.Failures)
	}
	f := res.Failures[0]
	if f.Range != (Range{Start: 12, Stop: 20}) {
		t.Fatalf("failed remainder %s", f.Range)
	}
	var storageErr *domain.StorageError
	if !errors.As(f, &storageErr) {
		t.Fatalf("expected storage error, got %v", f.Err)
	}
	if res.Processed != 32 || len(b.features) != 32 {
		t.Fatalf("processed %d stored %d", res.Processed, len(b.features))
	}
	if rec.failed != 1 || rec.rows != 32 {
		t.Fatalf("recorder saw %d failures %d rows", rec.failed, rec.rows)
	}
}

func TestOrchestratorReportsSessionFailures(t *testing.T) {
	b := newFakeBackend(t, 1, 2, 3)
	b.openErr = errors.New("pool exhausted")
	res, err := (&Orchestrator{Sessions: b, Workers: 2}).Run(context.Background(), 3)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Failures) != 2 || res.Failures[0].Range != (Range{0, 2}) || res.Failures[1].Range != (Range{2, 4}) {
		t.Fatalf("failures %v", res.Failures)
	}
	if _, err := (&Orchestrator{}).Run(context.Background(), 3); err == nil {
		t.Fatalf("expected missing factory error")
	}
}

func TestOrchestratorEmptyTable(t *testing.T) {
	b := newFakeBackend(t)
	res, err := (&Orchestrator{Sessions: b, Workers: 4}).Run(context.Background(), -1)
	if err != nil || len(res.Ranges) != 0 || res.Processed != 0 {
		t.Fatalf("empty run: %+v %v", res, err)
	}
}

type countingRecorder struct {
	mu     sync.Mutex
	rows   int
	failed int
}

func (c *countingRecorder) BatchCommitted(rows int, _ time.Duration) {
	c.mu.Lock()
	c.rows += rows
	c.mu.Unlock()
}

func (c *countingRecorder) RangeFailed() {
	c.mu.Lock()
	c.failed++
	c.mu.Unlock()
}
