// Package fs archives rebuild artifacts under a local directory. Every object
// is stored as its own file next to a JSON "<key>.info" file carrying the
// blob.Info returned by Put.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"synstrength/internal/blob/core"
)

// DefaultRoot is used when no root is configured.
const DefaultRoot = "./artifacts"

const infoSuffix = ".info"

// Store implements core.Store on the local filesystem.
type Store struct {
	root string
}

// New returns a store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = DefaultRoot
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// Root returns the directory objects are stored under.
func (s *Store) Root() string { return s.root }

func (s *Store) path(key string) (string, error) {
	if err := core.ValidateKey(key); err != nil {
		return "", err
	}
	if strings.HasSuffix(key, infoSuffix) {
		return "", fmt.Errorf("blob key %q uses reserved suffix %s", key, infoSuffix)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Put writes the body to a temp file and hard-links it into place, so a
// concurrent Put of the same key fails with ErrExists instead of overwriting.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	dst, err := s.path(key)
	if err != nil {
		return core.Info{}, err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.Info{}, err
	}
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return core.Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return core.Info{}, fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := os.Link(tmp.Name(), dst); err != nil {
		if errors.Is(err, iofs.ErrExist) {
			return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrExists)
		}
		return core.Info{}, err
	}

	info := core.Info{
		Key:          key,
		Size:         size,
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(h.Sum(nil)),
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	b, err := json.Marshal(info)
	if err != nil {
		return core.Info{}, err
	}
	if err := os.WriteFile(dst+infoSuffix, b, 0o644); err != nil {
		return core.Info{}, fmt.Errorf("write blob info %s: %w", key, err)
	}
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		return core.Info{}, nil, notFound(key, err)
	}
	return info, f, nil
}

func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	p, err := s.path(key)
	if err != nil {
		return core.Info{}, err
	}
	info, err := readInfo(p + infoSuffix)
	if err != nil {
		return core.Info{}, notFound(key, err)
	}
	return info, nil
}

// List reads every info file whose key has the prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var out []core.Info
	err := filepath.WalkDir(s.root, func(p string, d iofs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, infoSuffix) {
			return err
		}
		info, err := readInfo(p)
		if err != nil {
			return err
		}
		if strings.HasPrefix(info.Key, prefix) {
			out = append(out, info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b core.Info) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

func readInfo(p string) (core.Info, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return core.Info{}, err
	}
	var info core.Info
	if err := json.Unmarshal(b, &info); err != nil {
		return core.Info{}, fmt.Errorf("decode %s: %w", p, err)
	}
	return info, nil
}

func notFound(key string, err error) error {
	if errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return err
}
