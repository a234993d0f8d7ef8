package domain

import "fmt"

// StorageError reports a connection, query or commit failure. It is fatal for
// the worker or aggregation step that hit it and is never retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err with the failing operation name. A nil err returns nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// MalformedRecordError is returned when a stored sample buffer cannot be decoded.
// The batch containing the record is aborted rather than committed short.
type MalformedRecordError struct {
	ResponseID int64
	Field      string
	Err        error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("pulse response %d: malformed %s: %v", e.ResponseID, e.Field, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// EmptyCohortError marks a channel pair with too few feature rows to summarise.
// It is non-fatal: the aggregator skips the pair and reports it.
type EmptyCohortError struct {
	ExperimentID int64
	Pair         ChannelPair
	Count        int
	Min          int
}

func (e *EmptyCohortError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("experiment %d pair %s: no feature rows", e.ExperimentID, e.Pair)
	}
	return fmt.Sprintf("experiment %d pair %s: %d feature rows, need at least %d", e.ExperimentID, e.Pair, e.Count, e.Min)
}
