// Package schema owns the DDL for the source and derived tables. A Registry is
// built once by the entry point and handed to the store and the pipeline.
package schema

import (
	"bufio"
	"fmt"
	"strings"

	sqldocs "synstrength/docs/schema/sql"
)

// Dialect names a supported SQL engine.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Derived tables in creation order. Drops run in reverse.
const (
	TableFeature = "pulse_response_feature"
	TableSummary = "connection_summary"
)

// Registry holds the parsed DDL for one dialect.
type Registry struct {
	dialect Dialect
	base    []string
	derived []string
}

// NewRegistry returns the registry for d.
func NewRegistry(d Dialect) (*Registry, error) {
	var base, derived string
	switch d {
	case SQLite:
		base, derived = sqldocs.BaseSQLite, sqldocs.DerivedSQLite
	case Postgres:
		base, derived = sqldocs.BasePostgres, sqldocs.DerivedPostgres
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", d)
	}
	return &Registry{dialect: d, base: SplitStatements(base), derived: SplitStatements(derived)}, nil
}

// Dialect reports the registry's engine.
func (r *Registry) Dialect() Dialect { return r.dialect }

// DerivedTables lists the pipeline-owned tables in creation order.
func (r *Registry) DerivedTables() []string {
	return []string{TableFeature, TableSummary}
}

// BaseDDL creates the source tables. Used only for seeding.
func (r *Registry) BaseDDL() []string { return append([]string(nil), r.base...) }

// DerivedCreate creates the derived tables and their indexes.
func (r *Registry) DerivedCreate() []string { return append([]string(nil), r.derived...) }

// DerivedDrop removes the derived tables, dependents first.
func (r *Registry) DerivedDrop() []string {
	tables := r.DerivedTables()
	out := make([]string, 0, len(tables))
	for i := len(tables) - 1; i >= 0; i-- {
		out = append(out, "DROP TABLE IF EXISTS "+tables[i])
	}
	return out
}

// Rebind rewrites ? placeholders to the dialect's positional form.
func (r *Registry) Rebind(query string) string {
	if r.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// Blank lines and "--" comment lines are dropped.
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSuffix(strings.TrimSpace(current.String()), ";")
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()
	return stmts
}
