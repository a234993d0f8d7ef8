package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"synstrength/internal/blob"
	"synstrength/internal/config"
	"synstrength/internal/infra/persistence/memory"
	"synstrength/internal/infra/persistence/postgres"
	"synstrength/internal/infra/persistence/sqlite"
	"synstrength/internal/observability"
	"synstrength/pkg/domain"
)

// OpenStore selects the storage backend named by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.Storage, workers int) (domain.Store, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return memory.NewStore(), nil
	case "", config.StorageSQLite:
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StoragePostgres:
		conns := cfg.MaxOpenConns
		if conns <= 0 {
			// one connection per worker session plus the aggregator's reads
			conns = workers + 2
		}
		st, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.Options{MaxOpenConns: conns})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// Open builds a Service from cfg: it opens the store and, unless
// withArtifacts is false, the artifact blob store.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, metrics *observability.Metrics, withArtifacts bool) (*Service, error) {
	store, err := OpenStore(ctx, cfg.Storage, cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	var artifacts blob.Store
	if withArtifacts {
		artifacts, err = blob.Open(ctx, cfg.Blob)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open blob store: %w", err)
		}
	}
	return New(store, Options{
		Workers:         cfg.Workers,
		BatchSize:       cfg.BatchSize,
		SampleRate:      cfg.SampleRate,
		MinSamples:      cfg.MinSamples,
		PairConcurrency: cfg.PairConcurrency,
		ClampMode:       cfg.ClampMode,
		Logger:          logger,
		Metrics:         metrics,
		Artifacts:       artifacts,
	}), nil
}

// baseApplier is implemented by stores that can create the source tables.
type baseApplier interface {
	ApplyBase(ctx context.Context) error
}

// Seed creates the source tables when the store supports it and loads ds.
// Dev and test use only.
func Seed(ctx context.Context, store domain.Store, ds domain.SourceDataset) error {
	seeder, ok := store.(domain.Seeder)
	if !ok {
		return fmt.Errorf("store %T cannot be seeded", store)
	}
	if b, ok := store.(baseApplier); ok {
		if err := b.ApplyBase(ctx); err != nil {
			return err
		}
	}
	return seeder.Seed(ctx, ds)
}
