// Package sqlstore implements the pipeline storage contracts on database/sql.
// The sqlite and postgres packages open the connection; this package owns the
// queries, rebinding placeholders per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"synstrength/internal/schema"
	"synstrength/pkg/domain"
)

var (
	_ domain.Store  = (*Store)(nil)
	_ domain.Seeder = (*Store)(nil)
)

// Rows per multi-row INSERT. Both engines accept far more bound parameters
// than featureChunk*9 or summaryChunk*19.
const (
	featureChunk = 500
	summaryChunk = 200
)

// Store is a dialect-aware SQL store.
type Store struct {
	db  *sql.DB
	reg *schema.Registry
}

// New wraps db. The registry selects the DDL and placeholder style.
func New(db *sql.DB, reg *schema.Registry) *Store {
	return &Store{db: db, reg: reg}
}

// DB exposes the underlying pool for integration hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Registry returns the schema registry the store was built with.
func (s *Store) Registry() *schema.Registry { return s.reg }

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

// ApplyBase creates the source tables. Dev and test seeding only.
func (s *Store) ApplyBase(ctx context.Context) error {
	return s.exec(ctx, "apply base ddl", s.reg.BaseDDL())
}

// DropDerived drops the pipeline-owned tables.
func (s *Store) DropDerived(ctx context.Context) error {
	return s.exec(ctx, "drop derived tables", s.reg.DerivedDrop())
}

// CreateDerived creates the pipeline-owned tables.
func (s *Store) CreateDerived(ctx context.Context) error {
	return s.exec(ctx, "create derived tables", s.reg.DerivedCreate())
}

func (s *Store) exec(ctx context.Context, op string, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return domain.NewStorageError(op, fmt.Errorf("execute ddl: %w", err))
		}
	}
	return nil
}

// MaxResponseID returns the largest pulse_response id.
func (s *Store) MaxResponseID(ctx context.Context) (int64, bool, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM pulse_response`).Scan(&id); err != nil {
		return 0, false, domain.NewStorageError("max response id", err)
	}
	return id.Int64, id.Valid, nil
}

// CountResponses counts pulse responses with id < stopID.
func (s *Store) CountResponses(ctx context.Context, stopID int64) (int64, error) {
	var n int64
	q := s.reg.Rebind(`SELECT COUNT(*) FROM pulse_response WHERE id < ?`)
	if err := s.db.QueryRowContext(ctx, q, stopID).Scan(&n); err != nil {
		return 0, domain.NewStorageError("count responses", err)
	}
	return n, nil
}

// OpenSession pins one pooled connection for a worker.
func (s *Store) OpenSession(ctx context.Context) (domain.ResponseSession, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, domain.NewStorageError("open session", err)
	}
	return &session{conn: conn, reg: s.reg}, nil
}

type session struct {
	conn *sql.Conn
	reg  *schema.Registry
}

const fetchResponsesSQL = `SELECT pulse_response.id, pulse_response.baseline_id, pulse_response.data, baseline.data
FROM pulse_response
JOIN baseline ON baseline.id = pulse_response.baseline_id
WHERE pulse_response.id >= ? AND pulse_response.id < ?
ORDER BY pulse_response.id
LIMIT ?`

func (s *session) FetchResponses(ctx context.Context, startID, stopID int64, limit int) ([]domain.RawResponse, error) {
	rows, err := s.conn.QueryContext(ctx, s.reg.Rebind(fetchResponsesSQL), startID, stopID, limit)
	if err != nil {
		return nil, domain.NewStorageError("fetch responses", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.RawResponse, 0, limit)
	for rows.Next() {
		var r domain.RawResponse
		if err := rows.Scan(&r.ID, &r.BaselineID, &r.Data, &r.BaselineData); err != nil {
			return nil, domain.NewStorageError("scan response", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate responses", err)
	}
	return out, nil
}

var featureColumns = []string{
	"pulse_response_id", "pos_amp", "neg_amp", "pos_base_amp", "neg_base_amp",
	"pos_dec_amp", "neg_dec_amp", "pos_dec_base_amp", "neg_dec_base_amp",
}

func (s *session) InsertFeatures(ctx context.Context, features []domain.PulseResponseFeature) error {
	if len(features) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("begin features", err)
	}
	err = insertChunked(ctx, tx, s.reg, schema.TableFeature, featureColumns, len(features), featureChunk, func(i int) []any {
		f := features[i]
		return []any{f.ResponseID, nullable(f.PosAmp), nullable(f.NegAmp), nullable(f.PosBaseAmp), nullable(f.NegBaseAmp),
			nullable(f.PosDecAmp), nullable(f.NegDecAmp), nullable(f.PosDecBaseAmp), nullable(f.NegDecBaseAmp)}
	})
	if err != nil {
		_ = tx.Rollback()
		return domain.NewStorageError("insert features", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("commit features", err)
	}
	return nil
}

func (s *session) Close() error { return s.conn.Close() }

// ListExperiments returns experiment ids ascending.
func (s *Store) ListExperiments(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM experiment ORDER BY id`)
	if err != nil {
		return nil, domain.NewStorageError("list experiments", err)
	}
	defer func() { _ = rows.Close() }()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, domain.NewStorageError("scan experiment", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate experiments", err)
	}
	return out, nil
}

const recordingCountsSQL = `SELECT recording.device_key, COUNT(recording.id)
FROM recording
JOIN sync_rec ON sync_rec.id = recording.sync_rec_id
WHERE sync_rec.experiment_id = ?
GROUP BY recording.device_key`

// RecordingCounts maps device key to recording count within the experiment.
func (s *Store) RecordingCounts(ctx context.Context, experimentID int64) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, s.reg.Rebind(recordingCountsSQL), experimentID)
	if err != nil {
		return nil, domain.NewStorageError("recording counts", err)
	}
	defer func() { _ = rows.Close() }()
	out := map[int]int{}
	for rows.Next() {
		var device, n int
		if err := rows.Scan(&device, &n); err != nil {
			return nil, domain.NewStorageError("scan recording count", err)
		}
		out[device] = n
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate recording counts", err)
	}
	return out, nil
}

// The presynaptic channel is the recording the stimulus was delivered on; the
// postsynaptic channel is the recording the response was measured on.
const pairFeaturesSQL = `SELECT f.pulse_response_id, f.pos_amp, f.neg_amp, f.pos_base_amp, f.neg_base_amp,
	f.pos_dec_amp, f.neg_dec_amp, f.pos_dec_base_amp, f.neg_dec_base_amp
FROM pulse_response_feature f
JOIN pulse_response pr ON pr.id = f.pulse_response_id
JOIN recording post_rec ON post_rec.id = pr.recording_id
JOIN patch_clamp_recording pcr ON pcr.recording_id = post_rec.id
JOIN sync_rec sr ON sr.id = post_rec.sync_rec_id
JOIN stim_pulse sp ON sp.id = pr.stim_pulse_id
JOIN recording pre_rec ON pre_rec.id = sp.recording_id
WHERE sr.experiment_id = ? AND pre_rec.device_key = ? AND post_rec.device_key = ? AND pcr.clamp_mode = ?
ORDER BY f.pulse_response_id`

// PairFeatures returns the features of one channel pair.
func (s *Store) PairFeatures(ctx context.Context, experimentID int64, pair domain.ChannelPair, clampMode string) ([]domain.PulseResponseFeature, error) {
	rows, err := s.db.QueryContext(ctx, s.reg.Rebind(pairFeaturesSQL), experimentID, pair.Pre, pair.Post, clampMode)
	if err != nil {
		return nil, domain.NewStorageError("pair features", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.PulseResponseFeature
	for rows.Next() {
		var f domain.PulseResponseFeature
		var v [8]sql.NullFloat64
		if err := rows.Scan(&f.ResponseID, &v[0], &v[1], &v[2], &v[3], &v[4], &v[5], &v[6], &v[7]); err != nil {
			return nil, domain.NewStorageError("scan pair feature", err)
		}
		f.PosAmp, f.NegAmp, f.PosBaseAmp, f.NegBaseAmp = nanIfNull(v[0]), nanIfNull(v[1]), nanIfNull(v[2]), nanIfNull(v[3])
		f.PosDecAmp, f.NegDecAmp, f.PosDecBaseAmp, f.NegDecBaseAmp = nanIfNull(v[4]), nanIfNull(v[5]), nanIfNull(v[6]), nanIfNull(v[7])
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate pair features", err)
	}
	return out, nil
}

var summaryColumns = []string{
	"experiment_id", "pre_channel", "post_channel", "synapse_type", "sample_count",
	"amp_mean", "amp_stdev", "base_amp_mean", "base_amp_stdev",
	"deconv_amp_mean", "deconv_amp_stdev", "deconv_base_amp_mean", "deconv_base_amp_stdev",
	"amp_comparison_stat", "deconv_amp_comparison_stat",
	"amp_comparison_pvalue", "deconv_amp_comparison_pvalue",
	"amp_ttest", "deconv_amp_ttest",
}

// InsertSummaries writes every summary in one transaction.
func (s *Store) InsertSummaries(ctx context.Context, summaries []domain.ConnectionSummary) error {
	if len(summaries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("begin summaries", err)
	}
	err = insertChunked(ctx, tx, s.reg, schema.TableSummary, summaryColumns, len(summaries), summaryChunk, func(i int) []any {
		c := summaries[i]
		return []any{c.ExperimentID, c.Pre, c.Post, string(c.SynapseType), c.SampleCount,
			nullable(c.AmpMean), nullable(c.AmpStdev), nullable(c.BaseAmpMean), nullable(c.BaseAmpStdev),
			nullable(c.DeconvAmpMean), nullable(c.DeconvAmpStdev), nullable(c.DeconvBaseAmpMean), nullable(c.DeconvBaseAmpStdev),
			nullable(c.AmpComparisonStat), nullable(c.DeconvAmpComparisonStat),
			nullable(c.AmpComparisonPValue), nullable(c.DeconvAmpComparisonPValue),
			nullable(c.AmpTTest), nullable(c.DeconvAmpTTest)}
	})
	if err != nil {
		_ = tx.Rollback()
		return domain.NewStorageError("insert summaries", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("commit summaries", err)
	}
	return nil
}

// ListSummaries returns the stored summaries ordered by (experiment, pre, post).
func (s *Store) ListSummaries(ctx context.Context) ([]domain.ConnectionSummary, error) {
	q := `SELECT ` + strings.Join(summaryColumns, ", ") + ` FROM connection_summary ORDER BY experiment_id, pre_channel, post_channel`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, domain.NewStorageError("list summaries", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.ConnectionSummary
	for rows.Next() {
		var c domain.ConnectionSummary
		var synapse string
		var v [14]sql.NullFloat64
		dest := []any{&c.ExperimentID, &c.Pre, &c.Post, &synapse, &c.SampleCount}
		for i := range v {
			dest = append(dest, &v[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, domain.NewStorageError("scan summary", err)
		}
		c.SynapseType = domain.SynapseType(synapse)
		c.AmpMean, c.AmpStdev, c.BaseAmpMean, c.BaseAmpStdev = nanIfNull(v[0]), nanIfNull(v[1]), nanIfNull(v[2]), nanIfNull(v[3])
		c.DeconvAmpMean, c.DeconvAmpStdev, c.DeconvBaseAmpMean, c.DeconvBaseAmpStdev = nanIfNull(v[4]), nanIfNull(v[5]), nanIfNull(v[6]), nanIfNull(v[7])
		c.AmpComparisonStat, c.DeconvAmpComparisonStat = nanIfNull(v[8]), nanIfNull(v[9])
		c.AmpComparisonPValue, c.DeconvAmpComparisonPValue = nanIfNull(v[10]), nanIfNull(v[11])
		c.AmpTTest, c.DeconvAmpTTest = nanIfNull(v[12]), nanIfNull(v[13])
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate summaries", err)
	}
	return out, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertChunked writes n rows as multi-row INSERT statements of at most chunk rows.
func insertChunked(ctx context.Context, ex execer, reg *schema.Registry, table string, cols []string, n, chunk int, row func(int) []any) error {
	head := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES "
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		var b strings.Builder
		b.WriteString(head)
		args := make([]any, 0, (end-start)*len(cols))
		for i := start; i < end; i++ {
			if i > start {
				b.WriteString(", ")
			}
			b.WriteString(tuple)
			args = append(args, row(i)...)
		}
		if _, err := ex.ExecContext(ctx, reg.Rebind(b.String()), args...); err != nil {
			return fmt.Errorf("insert %s rows %d..%d: %w", table, start, end-1, err)
		}
	}
	return nil
}

// nullable stores NaN as NULL.
func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func nanIfNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
