package domain

import "context"

// ResponseSession is one worker's isolated handle on the store. Implementations
// bind a session to a single connection; sessions are not shared between goroutines.
type ResponseSession interface {
	// FetchResponses returns up to limit responses with startID <= id < stopID,
	// ordered by id ascending and joined with their baseline.
	FetchResponses(ctx context.Context, startID, stopID int64, limit int) ([]RawResponse, error)
	// InsertFeatures writes the batch in one bulk statement set and commits it.
	// Nothing from the batch is visible if an error is returned.
	InsertFeatures(ctx context.Context, features []PulseResponseFeature) error
	Close() error
}

// SessionFactory opens isolated worker sessions.
type SessionFactory interface {
	OpenSession(ctx context.Context) (ResponseSession, error)
}

// ConnectivitySource exposes the read queries needed by the aggregator.
type ConnectivitySource interface {
	ListExperiments(ctx context.Context) ([]int64, error)
	// RecordingCounts maps device key to the number of recordings of that
	// device within the experiment.
	RecordingCounts(ctx context.Context, experimentID int64) (map[int]int, error)
	// PairFeatures returns features of responses evoked on pair.Pre and recorded
	// on pair.Post in the experiment under the given clamp mode, ordered by response id.
	PairFeatures(ctx context.Context, experimentID int64, pair ChannelPair, clampMode string) ([]PulseResponseFeature, error)
}

// SummarySink persists connection summaries in one committed write.
type SummarySink interface {
	InsertSummaries(ctx context.Context, summaries []ConnectionSummary) error
}

// DerivedTables manages the lifecycle of the two tables owned by the pipeline.
type DerivedTables interface {
	DropDerived(ctx context.Context) error
	CreateDerived(ctx context.Context) error
}

// Store is the full storage surface used by the rebuild pipeline.
type Store interface {
	SessionFactory
	ConnectivitySource
	SummarySink
	DerivedTables
	// MaxResponseID returns the largest pulse_response id; ok is false when the table is empty.
	MaxResponseID(ctx context.Context) (id int64, ok bool, err error)
	// CountResponses returns the number of pulse responses with id < stopID.
	CountResponses(ctx context.Context, stopID int64) (int64, error)
	ListSummaries(ctx context.Context) ([]ConnectionSummary, error)
	Close() error
}
