// Package testutil provides a recording stub database for postgres store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
)

// QueryFunc answers a query with column names and rows.
type QueryFunc func(query string, args []driver.NamedValue) ([]string, [][]driver.Value, error)

// StubConn is a single driver connection that records every statement. Rows of
// INSERT statements are kept per table so tests can assert on chunked writes.
type StubConn struct {
	mu      sync.Mutex
	Execs   []string
	Queries []string
	Tables  map[string][]map[string]any
	Query   QueryFunc

	FailPing   bool
	FailExec   bool
	FailTables map[string]bool

	Commits   int
	Rollbacks int
}

var stubSeq atomic.Int64

// NewStubDB registers a fresh driver name and opens a sql.DB whose only
// connection is the returned StubConn.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, stubDriver{conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *StubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("stub does not prepare %q", query)
}

func (c *StubConn) Close() error { return nil }

func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return stubTx{c}, nil
}

func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("stub ping refused")
	}
	return nil
}

var insertRE = regexp.MustCompile(`(?is)^\s*INSERT\s+INTO\s+(\w+)\s*\(([^)]*)\)`)

// ExecContext records the statement. INSERTs are split into rows by their
// column count, which is how the store batches multi-row VALUES lists.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("stub exec refused")
	}
	m := insertRE.FindStringSubmatch(query)
	if m == nil {
		return driver.RowsAffected(0), nil
	}
	table := strings.ToLower(m[1])
	if c.FailTables[table] {
		return nil, fmt.Errorf("stub insert into %s refused", table)
	}
	var cols []string
	for _, col := range strings.Split(m[2], ",") {
		cols = append(cols, strings.ToLower(strings.TrimSpace(col)))
	}
	if len(args)%len(cols) != 0 {
		return nil, fmt.Errorf("%d args for %d columns of %s", len(args), len(cols), table)
	}
	for off := 0; off < len(args); off += len(cols) {
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = args[off+i].Value
		}
		c.Tables[table] = append(c.Tables[table], row)
	}
	return driver.RowsAffected(len(args) / len(cols)), nil
}

// QueryContext records the query, including ones without a handler, and
// answers it through Query.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	c.Queries = append(c.Queries, query)
	fn := c.Query
	c.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("no stub query handler for %q", query)
	}
	cols, rows, err := fn(query, args)
	if err != nil {
		return nil, err
	}
	return &stubRows{cols: cols, rows: rows}, nil
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	t.conn.mu.Lock()
	t.conn.Commits++
	t.conn.mu.Unlock()
	return nil
}

func (t stubTx) Rollback() error {
	t.conn.mu.Lock()
	t.conn.Rollbacks++
	t.conn.mu.Unlock()
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if len(r.rows) == 0 {
		return io.EOF
	}
	copy(dest, r.rows[0])
	r.rows = r.rows[1:]
	return nil
}
