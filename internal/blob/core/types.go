// Package core defines the blob storage abstraction used to archive rebuild
// artifacts.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local filesystem (default, dev)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a minimal S3-like object store. Objects are immutable: Put fails
// with ErrExists when the key is taken.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get returns ErrNotFound (possibly wrapped) for a missing key.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// List returns blobs with the prefix ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	ErrExists   = errors.New("blob already exists")
	ErrNotFound = errors.New("blob not found")
)

// ValidateKey rejects keys that are blank, absolute or climb out of the store
// with "..". Keys are slash separated on every platform.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("empty blob key")
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("blob key %q is absolute", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("blob key %q contains '..'", key)
		}
	}
	return nil
}

// CloneMetadata copies user metadata so stores never alias caller maps.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
