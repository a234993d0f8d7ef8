// Package memory provides an in-memory implementation of the pipeline storage
// contracts used for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"synstrength/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.Store  = (*Store)(nil)
	_ domain.Seeder = (*Store)(nil)
)

type memoryState struct {
	experiments map[int64]domain.Experiment
	syncRecs    map[int64]domain.SyncRec
	recordings  map[int64]domain.Recording
	clamps      map[int64]domain.PatchClampRecording // keyed by recording id
	pulses      map[int64]domain.StimPulse
	baselines   map[int64]domain.Baseline
	responses   map[int64]domain.PulseResponse

	// derived tables; nil maps mean the table does not exist
	features  map[int64]domain.PulseResponseFeature
	summaries map[summaryKey]domain.ConnectionSummary
}

type summaryKey struct {
	experiment int64
	pre, post  int
}

func newMemoryState() memoryState {
	return memoryState{
		experiments: make(map[int64]domain.Experiment),
		syncRecs:    make(map[int64]domain.SyncRec),
		recordings:  make(map[int64]domain.Recording),
		clamps:      make(map[int64]domain.PatchClampRecording),
		pulses:      make(map[int64]domain.StimPulse),
		baselines:   make(map[int64]domain.Baseline),
		responses:   make(map[int64]domain.PulseResponse),
	}
}

// Store is a mutex guarded in-memory store. Derived tables must be created
// before features or summaries can be written, mirroring the SQL stores.
type Store struct {
	mu    sync.RWMutex
	state memoryState
}

// NewStore returns an empty store with no derived tables.
func NewStore() *Store {
	return &Store{state: newMemoryState()}
}

// Seed loads source rows. Duplicate ids are rejected.
func (s *Store) Seed(_ context.Context, ds domain.SourceDataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &s.state
	for _, e := range ds.Experiments {
		if err := put(st.experiments, e.ID, e, "experiment"); err != nil {
			return err
		}
	}
	for _, r := range ds.SyncRecs {
		if err := put(st.syncRecs, r.ID, r, "sync_rec"); err != nil {
			return err
		}
	}
	for _, r := range ds.Recordings {
		if err := put(st.recordings, r.ID, r, "recording"); err != nil {
			return err
		}
	}
	for _, r := range ds.PatchClampRecordings {
		if err := put(st.clamps, r.RecordingID, r, "patch_clamp_recording"); err != nil {
			return err
		}
	}
	for _, r := range ds.StimPulses {
		if err := put(st.pulses, r.ID, r, "stim_pulse"); err != nil {
			return err
		}
	}
	for _, r := range ds.Baselines {
		if err := put(st.baselines, r.ID, r, "baseline"); err != nil {
			return err
		}
	}
	for _, r := range ds.PulseResponses {
		if err := put(st.responses, r.ID, r, "pulse_response"); err != nil {
			return err
		}
	}
	return nil
}

func put[K comparable, V any](m map[K]V, k K, v V, table string) error {
	if _, exists := m[k]; exists {
		return domain.NewStorageError("seed "+table, fmt.Errorf("duplicate key %v", k))
	}
	m[k] = v
	return nil
}

// DropDerived removes the derived tables.
func (s *Store) DropDerived(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.features = nil
	s.state.summaries = nil
	return nil
}

// CreateDerived creates the derived tables if they do not exist.
func (s *Store) CreateDerived(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.features == nil {
		s.state.features = make(map[int64]domain.PulseResponseFeature)
	}
	if s.state.summaries == nil {
		s.state.summaries = make(map[summaryKey]domain.ConnectionSummary)
	}
	return nil
}

// MaxResponseID returns the largest response id.
func (s *Store) MaxResponseID(context.Context) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var maxID int64
	found := false
	for id := range s.state.responses {
		if !found || id > maxID {
			maxID, found = id, true
		}
	}
	return maxID, found, nil
}

// CountResponses counts responses with id < stopID.
func (s *Store) CountResponses(_ context.Context, stopID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for id := range s.state.responses {
		if id < stopID {
			n++
		}
	}
	return n, nil
}

// OpenSession returns a session over the shared state.
func (s *Store) OpenSession(context.Context) (domain.ResponseSession, error) {
	return &session{store: s}, nil
}

type session struct {
	store  *Store
	closed bool
}

func (s *session) FetchResponses(_ context.Context, startID, stopID int64, limit int) ([]domain.RawResponse, error) {
	if s.closed {
		return nil, domain.NewStorageError("fetch responses", fmt.Errorf("session closed"))
	}
	st := s.store
	st.mu.RLock()
	defer st.mu.RUnlock()
	// Join before limiting so a window of baseline-less ids cannot end the page early.
	ids := make([]int64, 0)
	for id, r := range st.state.responses {
		if id < startID || id >= stopID {
			continue
		}
		if _, ok := st.state.baselines[r.BaselineID]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domain.RawResponse, 0, len(ids))
	for _, id := range ids {
		r := st.state.responses[id]
		base := st.state.baselines[r.BaselineID]
		out = append(out, domain.RawResponse{ID: r.ID, BaselineID: r.BaselineID, Data: r.Data, BaselineData: base.Data})
	}
	return out, nil
}

func (s *session) InsertFeatures(_ context.Context, features []domain.PulseResponseFeature) error {
	if s.closed {
		return domain.NewStorageError("insert features", fmt.Errorf("session closed"))
	}
	st := s.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state.features == nil {
		return domain.NewStorageError("insert features", fmt.Errorf("table pulse_response_feature does not exist"))
	}
	seen := make(map[int64]struct{}, len(features))
	for _, f := range features {
		if _, ok := st.state.responses[f.ResponseID]; !ok {
			return domain.NewStorageError("insert features", fmt.Errorf("pulse response %d does not exist", f.ResponseID))
		}
		if _, dup := st.state.features[f.ResponseID]; dup {
			return domain.NewStorageError("insert features", fmt.Errorf("unique constraint: pulse_response_id %d", f.ResponseID))
		}
		if _, dup := seen[f.ResponseID]; dup {
			return domain.NewStorageError("insert features", fmt.Errorf("unique constraint: pulse_response_id %d", f.ResponseID))
		}
		seen[f.ResponseID] = struct{}{}
	}
	for _, f := range features {
		st.state.features[f.ResponseID] = f
	}
	return nil
}

func (s *session) Close() error {
	s.closed = true
	return nil
}

// ListExperiments returns experiment ids ascending.
func (s *Store) ListExperiments(context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.state.experiments))
	for id := range s.state.experiments {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// RecordingCounts maps device key to recording count within the experiment.
func (s *Store) RecordingCounts(_ context.Context, experimentID int64) (map[int]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[int]int{}
	for _, r := range s.state.recordings {
		if sr, ok := s.state.syncRecs[r.SyncRecID]; ok && sr.ExperimentID == experimentID {
			out[r.DeviceKey]++
		}
	}
	return out, nil
}

// PairFeatures resolves the same joins as the SQL stores.
func (s *Store) PairFeatures(_ context.Context, experimentID int64, pair domain.ChannelPair, clampMode string) ([]domain.PulseResponseFeature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.features == nil {
		return nil, domain.NewStorageError("pair features", fmt.Errorf("table pulse_response_feature does not exist"))
	}
	var out []domain.PulseResponseFeature
	for id, f := range s.state.features {
		resp := s.state.responses[id]
		post, ok := s.state.recordings[resp.RecordingID]
		if !ok || post.DeviceKey != pair.Post {
			continue
		}
		if clamp, ok := s.state.clamps[post.ID]; !ok || clamp.ClampMode != clampMode {
			continue
		}
		if sr, ok := s.state.syncRecs[post.SyncRecID]; !ok || sr.ExperimentID != experimentID {
			continue
		}
		pulse, ok := s.state.pulses[resp.StimPulseID]
		if !ok {
			continue
		}
		if pre, ok := s.state.recordings[pulse.RecordingID]; !ok || pre.DeviceKey != pair.Pre {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResponseID < out[j].ResponseID })
	return out, nil
}

// InsertSummaries writes all summaries or none.
func (s *Store) InsertSummaries(_ context.Context, summaries []domain.ConnectionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(summaries) == 0 {
		return nil
	}
	if s.state.summaries == nil {
		return domain.NewStorageError("insert summaries", fmt.Errorf("table connection_summary does not exist"))
	}
	pending := make(map[summaryKey]domain.ConnectionSummary, len(summaries))
	for _, c := range summaries {
		k := summaryKey{experiment: c.ExperimentID, pre: c.Pre, post: c.Post}
		_, stored := s.state.summaries[k]
		_, queued := pending[k]
		if stored || queued {
			return domain.NewStorageError("insert summaries", fmt.Errorf("unique constraint: experiment %d pair %s", c.ExperimentID, c.Pair()))
		}
		pending[k] = c
	}
	for k, c := range pending {
		s.state.summaries[k] = c
	}
	return nil
}

// ListSummaries returns summaries ordered by (experiment, pre, post).
func (s *Store) ListSummaries(context.Context) ([]domain.ConnectionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ConnectionSummary, 0, len(s.state.summaries))
	for _, c := range s.state.summaries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ExperimentID != b.ExperimentID {
			return a.ExperimentID < b.ExperimentID
		}
		if a.Pre != b.Pre {
			return a.Pre < b.Pre
		}
		return a.Post < b.Post
	})
	return out, nil
}

// Features returns a copy of the feature table ordered by response id.
func (s *Store) Features() []domain.PulseResponseFeature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PulseResponseFeature, 0, len(s.state.features))
	for _, f := range s.state.features {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResponseID < out[j].ResponseID })
	return out
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
