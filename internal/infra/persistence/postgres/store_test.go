package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"math"
	"strings"
	"testing"

	"synstrength/internal/infra/persistence/postgres/testutil"
	"synstrength/internal/schema"
	"synstrength/pkg/domain"
)

func openStub(t *testing.T) (*testutil.StubConn, func() (string, string)) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dsn
		return db, nil
	})
	t.Cleanup(restore)
	return conn, func() (string, string) { return gotDriver, gotDSN }
}

func TestOpenUsesPgxAndDefaultDSN(t *testing.T) {
	_, opened := openStub(t)
	store, err := Open(context.Background(), "", Options{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = store.Close() }()
	drv, dsn := opened()
	if drv != "pgx" || dsn != DefaultDSN {
		t.Fatalf("opened %s %s", drv, dsn)
	}
	if store.Registry().Dialect() != schema.Postgres {
		t.Fatalf("dialect %s", store.Registry().Dialect())
	}
}

func TestOpenFailsWhenPingFails(t *testing.T) {
	conn, _ := openStub(t)
	conn.FailPing = true
	if _, err := Open(context.Background(), "postgres://db/x", Options{}); err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestDerivedDDLUsesPostgresBundle(t *testing.T) {
	conn, _ := openStub(t)
	store, err := Open(context.Background(), "", Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := store.DropDerived(ctx); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := store.CreateDerived(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	reg, _ := schema.NewRegistry(schema.Postgres)
	want := append(reg.DerivedDrop(), reg.DerivedCreate()...)
	if len(conn.Execs) != len(want) {
		t.Fatalf("expected %d statements, got %d", len(want), len(conn.Execs))
	}
	for i := range want {
		if conn.Execs[i] != want[i] {
			t.Fatalf("statement %d:\nwant %s\ngot  %s", i, want[i], conn.Execs[i])
		}
	}
	if !strings.Contains(strings.Join(conn.Execs, "\n"), "DOUBLE PRECISION") {
		t.Fatalf("expected postgres column types")
	}
}

func TestQueriesUsePositionalPlaceholders(t *testing.T) {
	conn, _ := openStub(t)
	store, err := Open(context.Background(), "", Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	conn.Query = func(query string, args []driver.NamedValue) ([]string, [][]driver.Value, error) {
		switch {
		case strings.HasPrefix(query, "SELECT MAX(id)"):
			return []string{"max"}, [][]driver.Value{{nil}}, nil
		case strings.Contains(query, "FROM pulse_response\nJOIN baseline"):
			return []string{"id", "baseline_id", "data", "data"}, [][]driver.Value{{int64(4), int64(9), []byte{1}, []byte{2}}}, nil
		default:
			return nil, nil, nil
		}
	}
	if _, ok, err := store.MaxResponseID(ctx); err != nil || ok {
		t.Fatalf("empty max id: ok=%v err=%v", ok, err)
	}
	sess, err := store.OpenSession(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	rows, err := sess.FetchResponses(ctx, 0, 10, 1000)
	if err != nil || len(rows) != 1 || rows[0].BaselineID != 9 {
		t.Fatalf("fetch %+v %v", rows, err)
	}
	_ = sess.Close()
	last := conn.Queries[len(conn.Queries)-1]
	if !strings.Contains(last, "pulse_response.id >= $1 AND pulse_response.id < $2") || !strings.Contains(last, "LIMIT $3") {
		t.Fatalf("placeholders not rebound: %s", last)
	}

	err = store.InsertSummaries(ctx, []domain.ConnectionSummary{
		{ExperimentID: 1, Pre: 1, Post: 2, SynapseType: domain.SynapseExcitatory, AmpTTest: math.NaN()},
		{ExperimentID: 1, Pre: 2, Post: 1, SynapseType: domain.SynapseInhibitory},
	})
	if err != nil {
		t.Fatalf("insert summaries: %v", err)
	}
	stored := conn.Tables["connection_summary"]
	if len(stored) != 2 || stored[0]["amp_ttest"] != nil || stored[1]["synapse_type"] != "in" {
		t.Fatalf("stored %v", stored)
	}
	insert := conn.Execs[len(conn.Execs)-1]
	if !strings.Contains(insert, "$38") || strings.Contains(insert, "?") {
		t.Fatalf("insert not rebound: %s", insert)
	}
	if conn.Commits != 1 {
		t.Fatalf("commits %d", conn.Commits)
	}
}

func TestInsertSummariesRollsBackOnFailure(t *testing.T) {
	conn, _ := openStub(t)
	store, err := Open(context.Background(), "", Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	conn.FailTables = map[string]bool{"connection_summary": true}
	err = store.InsertSummaries(context.Background(), []domain.ConnectionSummary{{ExperimentID: 1}})
	var storageErr *domain.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if conn.Rollbacks != 1 || conn.Commits != 0 {
		t.Fatalf("rollbacks %d commits %d", conn.Rollbacks, conn.Commits)
	}
}
