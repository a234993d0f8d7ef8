// Package sqlite opens the pipeline store on a local SQLite file using the pure
// Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"synstrength/internal/infra/persistence/sqlstore"
	"synstrength/internal/schema"
)

const defaultPath = "synstrength.db"

// Workers hold one connection each; WAL lets readers proceed during a commit
// and the busy timeout serialises concurrent writers instead of failing them.
const pragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// DSN returns the driver data source name for path.
func DSN(path string) string {
	return "file:" + path + "?" + pragmas
}

// Open opens (creating if needed) the database at path. An empty path uses
// synstrength.db in the working directory.
func Open(ctx context.Context, path string) (*sqlstore.Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	reg, err := schema.NewRegistry(schema.SQLite)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlstore.New(db, reg), nil
}
