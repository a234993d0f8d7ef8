// Package postgres opens the pipeline store on a Postgres database through the
// pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"synstrength/internal/infra/persistence/sqlstore"
	"synstrength/internal/schema"
)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/synstrength?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Options tunes the connection pool. Zero values keep database/sql defaults.
type Options struct {
	MaxOpenConns int
}

// Open connects to dsn (DefaultDSN when empty) and verifies the connection.
func Open(ctx context.Context, dsn string, opts Options) (*sqlstore.Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	reg, err := schema.NewRegistry(schema.Postgres)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlstore.New(db, reg), nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
