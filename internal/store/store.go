// Package store persists bot runs to SQLite: one row per run plus an
// event trail and per-move board snapshots. The schema is created on
// open and mirrored in embedded migrations for managed upgrades.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/linkclear/linkclear/internal/board"
)

// ErrRunNotFound reports a run id with no row behind it.
var ErrRunNotFound = errors.New("run not found")

type DB struct {
	*sql.DB
	path string
}

// NewDB opens (or creates) the runs database at path and ensures the
// schema exists.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id          TEXT PRIMARY KEY,
			started_at_unix INTEGER NOT NULL,
			ended_at_unix   INTEGER,
			mode            TEXT NOT NULL,
			dry_run         INTEGER NOT NULL DEFAULT 0,
			rows            INTEGER NOT NULL,
			cols            INTEGER NOT NULL,
			moves           INTEGER NOT NULL DEFAULT 0,
			failures        INTEGER NOT NULL DEFAULT 0,
			halt_reason     TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS run_events (
			event_id        INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id          TEXT NOT NULL,
			move            INTEGER NOT NULL,
			event           TEXT NOT NULL,
			reason          TEXT NOT NULL DEFAULT '',
			detail          TEXT NOT NULL DEFAULT '',
			created_at_unix INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
		CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, event_id);
		CREATE TABLE IF NOT EXISTS board_snapshots (
			snapshot_id     INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id          TEXT NOT NULL,
			move            INTEGER NOT NULL,
			board_json      TEXT NOT NULL,
			confidence_json TEXT NOT NULL DEFAULT '',
			mean_confidence DOUBLE NOT NULL DEFAULT 0,
			min_confidence  DOUBLE NOT NULL DEFAULT 0,
			created_at_unix INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
		CREATE INDEX IF NOT EXISTS idx_board_snapshots_run ON board_snapshots(run_id, move);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// OpenDB opens the database without touching the schema. The migrate
// subcommand uses it so migrations stay the only schema authority on
// that path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{DB: db, path: path}, nil
}

// Path reports the database file path.
func (db *DB) Path() string { return db.path }

// Run is one bot session from start to halt.
type Run struct {
	ID         string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Mode       string     `json:"mode"`
	DryRun     bool       `json:"dry_run"`
	Rows       int        `json:"rows"`
	Cols       int        `json:"cols"`
	Moves      int        `json:"moves"`
	Failures   int        `json:"failures"`
	HaltReason string     `json:"halt_reason,omitempty"`
}

// NewRun builds a Run with a fresh id.
func NewRun(mode string, dryRun bool, rows, cols int, startedAt time.Time) *Run {
	return &Run{
		ID:        uuid.NewString(),
		StartedAt: startedAt,
		Mode:      mode,
		DryRun:    dryRun,
		Rows:      rows,
		Cols:      cols,
	}
}

// RunEvent is one entry in a run's audit trail: a move, a failure, a
// rescan, a halt.
type RunEvent struct {
	ID        int64     `json:"event_id"`
	RunID     string    `json:"run_id"`
	Move      int       `json:"move"`
	Event     string    `json:"event"`
	Reason    string    `json:"reason,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ConfidencePoint is one move's classification confidence summary.
type ConfidencePoint struct {
	Move int     `json:"move"`
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
}

// CreateRun inserts a new run row.
func (db *DB) CreateRun(run *Run) error {
	_, err := db.Exec(
		`INSERT INTO runs (run_id, started_at_unix, mode, dry_run, rows, cols, moves, failures)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.Unix(), run.Mode, run.DryRun, run.Rows, run.Cols, run.Moves, run.Failures,
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateRunProgress refreshes the live counters on a running run so run
// listings stay current.
func (db *DB) UpdateRunProgress(id string, moves, failures int) error {
	res, err := db.Exec(`UPDATE runs SET moves = ?, failures = ? WHERE run_id = ?`, moves, failures, id)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	return requireRow(res, id)
}

// FinishRun stamps the end time, final counters, and halt reason.
func (db *DB) FinishRun(id string, endedAt time.Time, moves, failures int, haltReason string) error {
	res, err := db.Exec(
		`UPDATE runs SET ended_at_unix = ?, moves = ?, failures = ?, halt_reason = ? WHERE run_id = ?`,
		endedAt.Unix(), moves, failures, haltReason, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun loads one run by id.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(
		`SELECT run_id, started_at_unix, ended_at_unix, mode, dry_run, rows, cols, moves, failures, halt_reason
		 FROM runs WHERE run_id = ?`, id)
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first. A non-positive
// limit selects a default of 50.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT run_id, started_at_unix, ended_at_unix, mode, dry_run, rows, cols, moves, failures, halt_reason
		 FROM runs ORDER BY started_at_unix DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRun(scan func(dest ...interface{}) error) (*Run, error) {
	var (
		run     Run
		started int64
		ended   sql.NullInt64
	)
	if err := scan(&run.ID, &started, &ended, &run.Mode, &run.DryRun,
		&run.Rows, &run.Cols, &run.Moves, &run.Failures, &run.HaltReason); err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(started, 0).UTC()
	if ended.Valid {
		t := time.Unix(ended.Int64, 0).UTC()
		run.EndedAt = &t
	}
	return &run, nil
}

// RecordEvent appends one entry to a run's audit trail.
func (db *DB) RecordEvent(runID string, move int, event, reason, detail string) error {
	_, err := db.Exec(
		`INSERT INTO run_events (run_id, move, event, reason, detail, created_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, move, event, reason, detail, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s event for run %s: %w", event, runID, err)
	}
	return nil
}

// ListEvents returns a run's events in insertion order. A non-positive
// limit selects a default of 200.
func (db *DB) ListEvents(runID string, limit int) ([]RunEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(
		`SELECT event_id, run_id, move, event, reason, detail, created_at_unix
		 FROM run_events WHERE run_id = ? ORDER BY event_id LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var (
			ev      RunEvent
			created int64
		)
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Move, &ev.Event, &ev.Reason, &ev.Detail, &created); err != nil {
			return nil, err
		}
		ev.CreatedAt = time.Unix(created, 0).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SaveBoardSnapshot stores the classified board and its confidences for
// one move.
func (db *DB) SaveBoardSnapshot(runID string, move int, b *board.Board, conf *board.ConfidenceMap) error {
	boardJSON, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode board: %w", err)
	}

	var (
		confJSON   []byte
		mean, minC float64
	)
	if conf != nil {
		confJSON, err = json.Marshal(conf)
		if err != nil {
			return fmt.Errorf("failed to encode confidence map: %w", err)
		}
		mean = conf.Mean()
		minC = conf.Min()
	}

	_, err = db.Exec(
		`INSERT INTO board_snapshots (run_id, move, board_json, confidence_json, mean_confidence, min_confidence, created_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, move, string(boardJSON), string(confJSON), mean, minC, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save board snapshot for run %s move %d: %w", runID, move, err)
	}
	return nil
}

// ConfidenceSeries returns the per-move confidence summary for a run,
// ordered by move. It feeds the confidence chart.
func (db *DB) ConfidenceSeries(runID string) ([]ConfidencePoint, error) {
	rows, err := db.Query(
		`SELECT move, mean_confidence, min_confidence
		 FROM board_snapshots WHERE run_id = ? ORDER BY move`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []ConfidencePoint
	for rows.Next() {
		var p ConfidencePoint
		if err := rows.Scan(&p.Move, &p.Mean, &p.Min); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// LatestBoardSnapshot returns the most recent stored board for a run,
// or nil when none exist yet.
func (db *DB) LatestBoardSnapshot(runID string) (*board.Board, *board.ConfidenceMap, error) {
	var boardJSON, confJSON string
	err := db.QueryRow(
		`SELECT board_json, confidence_json FROM board_snapshots
		 WHERE run_id = ? ORDER BY move DESC LIMIT 1`, runID).Scan(&boardJSON, &confJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	var b board.Board
	if err := json.Unmarshal([]byte(boardJSON), &b); err != nil {
		return nil, nil, fmt.Errorf("failed to decode stored board: %w", err)
	}
	if confJSON == "" {
		return &b, nil, nil
	}
	var conf board.ConfidenceMap
	if err := json.Unmarshal([]byte(confJSON), &conf); err != nil {
		return nil, nil, fmt.Errorf("failed to decode stored confidence map: %w", err)
	}
	return &b, &conf, nil
}
