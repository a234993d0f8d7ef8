package sqlstore

import (
	"context"

	"synstrength/pkg/domain"
)

// Seed inserts source rows in one transaction. The source tables must exist
// (see ApplyBase).
func (s *Store) Seed(ctx context.Context, ds domain.SourceDataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("begin seed", err)
	}
	steps := []struct {
		table string
		cols  []string
		n     int
		row   func(int) []any
	}{
		{"experiment", []string{"id"}, len(ds.Experiments), func(i int) []any {
			return []any{ds.Experiments[i].ID}
		}},
		{"sync_rec", []string{"id", "experiment_id"}, len(ds.SyncRecs), func(i int) []any {
			r := ds.SyncRecs[i]
			return []any{r.ID, r.ExperimentID}
		}},
		{"recording", []string{"id", "device_key", "sync_rec_id"}, len(ds.Recordings), func(i int) []any {
			r := ds.Recordings[i]
			return []any{r.ID, r.DeviceKey, r.SyncRecID}
		}},
		{"patch_clamp_recording", []string{"id", "recording_id", "clamp_mode"}, len(ds.PatchClampRecordings), func(i int) []any {
			r := ds.PatchClampRecordings[i]
			return []any{r.ID, r.RecordingID, r.ClampMode}
		}},
		{"stim_pulse", []string{"id", "recording_id"}, len(ds.StimPulses), func(i int) []any {
			r := ds.StimPulses[i]
			return []any{r.ID, r.RecordingID}
		}},
		{"baseline", []string{"id", "data"}, len(ds.Baselines), func(i int) []any {
			r := ds.Baselines[i]
			return []any{r.ID, r.Data}
		}},
		{"pulse_response", []string{"id", "baseline_id", "recording_id", "stim_pulse_id", "data"}, len(ds.PulseResponses), func(i int) []any {
			r := ds.PulseResponses[i]
			return []any{r.ID, r.BaselineID, r.RecordingID, r.StimPulseID, r.Data}
		}},
	}
	for _, step := range steps {
		if step.n == 0 {
			continue
		}
		if err := insertChunked(ctx, tx, s.reg, step.table, step.cols, step.n, featureChunk, step.row); err != nil {
			_ = tx.Rollback()
			return domain.NewStorageError("seed "+step.table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("commit seed", err)
	}
	return nil
}
