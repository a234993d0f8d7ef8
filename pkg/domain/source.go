package domain

import "context"

// Source table rows. These tables are owned by the acquisition database; the
// pipeline only reads them, and the types exist so tests and dev tooling can
// seed a store.

type Experiment struct {
	ID int64
}

type SyncRec struct {
	ID           int64
	ExperimentID int64
}

type Recording struct {
	ID        int64
	DeviceKey int
	SyncRecID int64
}

type PatchClampRecording struct {
	ID          int64
	RecordingID int64
	ClampMode   string
}

type StimPulse struct {
	ID          int64
	RecordingID int64
}

type Baseline struct {
	ID   int64
	Data []byte
}

type PulseResponse struct {
	ID          int64
	BaselineID  int64
	RecordingID int64
	StimPulseID int64
	Data        []byte
}

// SourceDataset is a complete set of source rows in dependency order.
type SourceDataset struct {
	Experiments          []Experiment
	SyncRecs             []SyncRec
	Recordings           []Recording
	PatchClampRecordings []PatchClampRecording
	StimPulses           []StimPulse
	Baselines            []Baseline
	PulseResponses       []PulseResponse
}

// Seeder loads source rows into a store. It is never called by the rebuild.
type Seeder interface {
	Seed(ctx context.Context, ds SourceDataset) error
}
