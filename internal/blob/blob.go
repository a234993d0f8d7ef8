// Package blob is the single entry point to artifact storage. Callers depend on
// Store and pick a backend through Open; only this package imports the infra
// adapters.
package blob

import (
	"context"
	"fmt"

	"synstrength/internal/blob/core"
	fsstore "synstrength/internal/infra/blob/fs"
	memorystore "synstrength/internal/infra/blob/memory"
	s3store "synstrength/internal/infra/blob/s3"
)

type (
	Store      = core.Store
	Info       = core.Info
	PutOptions = core.PutOptions
	Driver     = core.Driver
	S3Config   = s3store.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists   = core.ErrExists
	ErrNotFound = core.ErrNotFound
)

// Config selects and configures a backend. An empty Driver means filesystem.
type Config struct {
	Driver Driver   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// Open constructs the Store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fsstore.New(cfg.FSRoot)
	case DriverS3:
		return s3store.New(ctx, cfg.S3)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }
