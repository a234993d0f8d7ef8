package schema

import (
	"strings"
	"testing"
)

func TestSplitStatementsDropsCommentsAndBlankLines(t *testing.T) {
	ddl := "-- header\nCREATE TABLE a (\n  id INTEGER\n);\n\n-- note\nCREATE INDEX a_idx ON a(id);\nSELECT 1"
	got := SplitStatements(ddl)
	if len(got) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(got), got)
	}
	if !strings.HasPrefix(got[0], "CREATE TABLE a (") || strings.HasSuffix(got[0], ";") {
		t.Fatalf("unexpected first statement %q", got[0])
	}
	if got[2] != "SELECT 1" {
		t.Fatalf("tail statement %q", got[2])
	}
}

func TestRegistryDialects(t *testing.T) {
	for _, d := range []Dialect{SQLite, Postgres} {
		reg, err := NewRegistry(d)
		if err != nil {
			t.Fatalf("%s: %v", d, err)
		}
		if reg.Dialect() != d {
			t.Fatalf("dialect %s", reg.Dialect())
		}
		create := strings.Join(reg.DerivedCreate(), "\n")
		for _, table := range reg.DerivedTables() {
			if !strings.Contains(create, "CREATE TABLE IF NOT EXISTS "+table) {
				t.Fatalf("%s: derived DDL missing %s", d, table)
			}
		}
		if base := strings.Join(reg.BaseDDL(), "\n"); strings.Contains(base, TableFeature) {
			t.Fatalf("%s: base DDL must not create derived tables", d)
		}
		if len(reg.BaseDDL()) < 7 {
			t.Fatalf("%s: expected every source table, got %d statements", d, len(reg.BaseDDL()))
		}
	}
	if _, err := NewRegistry("oracle"); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
}

func TestDerivedDropRunsDependentsFirst(t *testing.T) {
	reg, _ := NewRegistry(SQLite)
	drops := reg.DerivedDrop()
	if len(drops) != 2 || drops[0] != "DROP TABLE IF EXISTS connection_summary" || drops[1] != "DROP TABLE IF EXISTS pulse_response_feature" {
		t.Fatalf("drops %v", drops)
	}
}

func TestRebind(t *testing.T) {
	pg, _ := NewRegistry(Postgres)
	if got := pg.Rebind("SELECT * FROM t WHERE a = ? AND b < ?"); got != "SELECT * FROM t WHERE a = $1 AND b < $2" {
		t.Fatalf("postgres rebind %q", got)
	}
	lite, _ := NewRegistry(SQLite)
	if got := lite.Rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite rebind %q", got)
	}
}
