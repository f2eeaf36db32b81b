// Package runstore persists the history of pipeline runs in SQLite.
package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/route-playback/core"
	"github.com/signalsfoundry/route-playback/internal/logging"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Sample is the stored form of one accepted sample.
type Sample struct {
	Index        int       `msgpack:"i" json:"index"`
	Time         time.Time `msgpack:"t" json:"time"`
	Lon          float64   `msgpack:"lon" json:"lon"`
	Lat          float64   `msgpack:"lat" json:"lat"`
	Alt          float64   `msgpack:"alt" json:"alt"`
	Distance     float64   `msgpack:"d" json:"distance"`
	Speed        float64   `msgpack:"v" json:"speed"`
	Acceleration float64   `msgpack:"a" json:"acceleration"`
}

// Run is one recorded pipeline run.
type Run struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Source    string        `json:"source"`
	Outcome   string        `json:"outcome"`
	Error     string        `json:"error,omitempty"`
	Settings  core.Settings `json:"settings"`
	Stats     core.Stats    `json:"stats"`
	Window    *core.Window  `json:"window,omitempty"`
	Samples   []Sample      `json:"samples,omitempty"`
}

// NewRun builds the record of a run over source. tr is nil for failed runs.
func NewRun(source string, s core.Settings, tr *core.Trajectory, runErr error) Run {
	r := Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Source:    source,
		Outcome:   OutcomeSuccess,
		Settings:  s,
	}
	if runErr != nil {
		r.Outcome = OutcomeFailure
		r.Error = runErr.Error()
	}
	if tr == nil {
		return r
	}
	w := tr.Window
	r.Window = &w
	r.Stats = tr.Stats
	r.Samples = make([]Sample, len(tr.Samples))
	for i, s := range tr.Samples {
		r.Samples[i] = Sample{
			Index:        s.Index,
			Time:         s.Time,
			Lon:          s.Coordinate.Lon,
			Lat:          s.Coordinate.Lat,
			Alt:          s.Coordinate.Alt,
			Distance:     s.Distance,
			Speed:        s.Speed,
			Acceleration: s.Acceleration,
		}
	}
	return r
}

// Store records runs in a SQLite database.
type Store struct {
	db  *sql.DB
	log logging.Logger
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Noop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One writer connection; also keeps ":memory:" databases on a single
	// connection.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, log: log}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func applyPragmas(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores r.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	blob, err := encodeSamples(r.Samples)
	if err != nil {
		return err
	}
	var start, stop sql.NullInt64
	if r.Window != nil {
		start = sql.NullInt64{Int64: r.Window.Start.UnixNano(), Valid: true}
		stop = sql.NullInt64{Int64: r.Window.Stop.UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, created_at, source, outcome, error,
			max_velocity, start_index, end_index, lead_time, trail_time,
			raw_count, accepted_count, rejected_count, path_length, max_speed, mean_speed,
			window_start, window_stop, samples
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.UnixNano(), r.Source, r.Outcome, r.Error,
		r.Settings.MaxVelocity, r.Settings.StartIndex, r.Settings.EndIndex, r.Settings.LeadTime, r.Settings.TrailTime,
		r.Stats.RawCount, r.Stats.AcceptedCount, r.Stats.RejectedCount, r.Stats.PathLength, r.Stats.MaxSpeed, r.Stats.MeanSpeed,
		start, stop, blob,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	s.log.Debug(ctx, "recorded run",
		logging.String("run_id", r.ID),
		logging.String("outcome", r.Outcome),
		logging.Int("samples", len(r.Samples)),
	)
	return nil
}

const runColumns = `id, created_at, source, outcome, error,
	max_velocity, start_index, end_index, lead_time, trail_time,
	raw_count, accepted_count, rejected_count, path_length, max_speed, mean_speed,
	window_start, window_stop`

// ListRuns returns up to limit runs, newest first, without their samples.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns the run with the given id, including its samples.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+`, samples FROM runs WHERE id = ?`, id)

	var blob []byte
	r, err := scanRun(row, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}
	if r.Samples, err = decodeSamples(blob); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", id, err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner, extra ...any) (Run, error) {
	var (
		r           Run
		created     int64
		start, stop sql.NullInt64
	)
	dest := []any{
		&r.ID, &created, &r.Source, &r.Outcome, &r.Error,
		&r.Settings.MaxVelocity, &r.Settings.StartIndex, &r.Settings.EndIndex, &r.Settings.LeadTime, &r.Settings.TrailTime,
		&r.Stats.RawCount, &r.Stats.AcceptedCount, &r.Stats.RejectedCount, &r.Stats.PathLength, &r.Stats.MaxSpeed, &r.Stats.MeanSpeed,
		&start, &stop,
	}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	if start.Valid && stop.Valid {
		r.Window = &core.Window{
			Start: time.Unix(0, start.Int64).UTC(),
			Stop:  time.Unix(0, stop.Int64).UTC(),
		}
	}
	return r, nil
}
