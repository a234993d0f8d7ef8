// Package sqldocs exposes the SQL schema bundles directly from the docs tree.
package sqldocs

import _ "embed"

// BaseSQLite creates the externally owned source tables for SQLite. Used by
// dev seeding and tests only.
//
//go:embed base_sqlite.sql
var BaseSQLite string

// DerivedSQLite creates the pipeline-owned derived tables for SQLite.
//
//go:embed derived_sqlite.sql
var DerivedSQLite string

// BasePostgres creates the externally owned source tables for Postgres.
//
//go:embed base_postgres.sql
var BasePostgres string

// DerivedPostgres creates the pipeline-owned derived tables for Postgres.
//
//go:embed derived_postgres.sql
var DerivedPostgres string
