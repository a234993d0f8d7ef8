package domain

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestStorageErrorWraps(t *testing.T) {
	if NewStorageError("fetch", nil) != nil {
		t.Fatalf("nil error should stay nil")
	}
	err := NewStorageError("fetch responses", io.ErrUnexpectedEOF)
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "fetch responses" || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("unexpected %v", err)
	}
}

func TestEmptyCohortMessages(t *testing.T) {
	pair := ChannelPair{Pre: 1, Post: 2}
	if msg := (&EmptyCohortError{ExperimentID: 3, Pair: pair}).Error(); !strings.Contains(msg, "no feature rows") || !strings.Contains(msg, "1=>2") {
		t.Fatalf("empty message %q", msg)
	}
	if msg := (&EmptyCohortError{ExperimentID: 3, Pair: pair, Count: 2, Min: 5}).Error(); !strings.Contains(msg, "need at least 5") {
		t.Fatalf("below minimum message %q", msg)
	}
	mal := &MalformedRecordError{ResponseID: 9, Field: "baseline", Err: io.EOF}
	if !errors.Is(mal, io.EOF) || !strings.Contains(mal.Error(), "malformed baseline") {
		t.Fatalf("malformed %v", mal)
	}
}
