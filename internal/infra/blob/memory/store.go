// Package memory keeps rebuild artifacts in process memory. It backs the
// pipeline tests and runs where archiving to disk is not wanted.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"synstrength/internal/blob/core"
)

type object struct {
	info core.Info
	body []byte
}

// Store is a write-once map of artifacts keyed by blob key.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{objects: make(map[string]object), now: time.Now}
}

func (s *Store) Driver() core.Driver { return core.DriverMemory }

func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if err := core.ValidateKey(key); err != nil {
		return core.Info{}, err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, fmt.Errorf("read blob %s: %w", key, err)
	}
	sum := sha256.Sum256(body)
	obj := object{
		info: core.Info{
			Key:          key,
			Size:         int64(len(body)),
			ContentType:  opts.ContentType,
			ETag:         hex.EncodeToString(sum[:]),
			Metadata:     core.CloneMetadata(opts.Metadata),
			LastModified: s.now().UTC(),
		},
		body: body,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.objects[key]; taken {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrExists)
	}
	s.objects[key] = obj
	return obj.snapshot(), nil
}

func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	return obj.snapshot(), io.NopCloser(bytes.NewReader(obj.body)), nil
}

func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, err
	}
	return obj.snapshot(), nil
}

// List returns the artifacts under prefix in key order.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Info
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.snapshot())
		}
	}
	slices.SortFunc(out, func(a, b core.Info) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

func (s *Store) lookup(key string) (object, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return object{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return obj, nil
}

// snapshot copies the metadata map; bodies are never mutated after Put.
func (o object) snapshot() core.Info {
	info := o.info
	info.Metadata = core.CloneMetadata(o.info.Metadata)
	return info
}
