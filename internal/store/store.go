// Package store keeps the local audit trail of marking runs so graders
// can review afterwards what was marked, skipped, and why.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/automark/internal/marker"
	"github.com/pavelanni/automark/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		root_url TEXT NOT NULL,
		strategy TEXT NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		students INTEGER NOT NULL DEFAULT 0,
		sections INTEGER NOT NULL DEFAULT 0,
		marked INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		no_decision INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		username TEXT NOT NULL,
		section_key TEXT NOT NULL,
		action TEXT NOT NULL,
		mark REAL,
		feedback TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// BeginRun records the start of a marking run and returns its id.
func (s *Store) BeginRun(rootURL, strategy string, dryRun bool) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO runs (root_url, strategy, dry_run, started_at) VALUES (?, ?, ?, ?)`,
		rootURL, strategy, dryRun, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishRun stores the final counters for a run.
func (s *Store) FinishRun(runID int64, sum marker.Summary) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, students = ?, sections = ?, marked = ?,
		 skipped = ?, no_decision = ?, failed = ? WHERE id = ?`,
		time.Now(), sum.Students, sum.Sections, sum.Marked,
		sum.Skipped, sum.NoDecision, sum.Failed, runID,
	)
	return err
}

// RunRecorder returns a marker.Recorder that files decisions under runID.
func (s *Store) RunRecorder(runID int64) marker.Recorder {
	return &runRecorder{store: s, runID: runID}
}

type runRecorder struct {
	store *Store
	runID int64
}

func (r *runRecorder) RecordDecision(d marker.Decision) error {
	_, err := r.store.db.Exec(
		`INSERT INTO decisions (run_id, username, section_key, action, mark, feedback, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.runID, d.Username, d.SectionKey, d.Action, d.Mark, d.Feedback, d.Err, time.Now(),
	)
	return err
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns() ([]model.RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, root_url, strategy, dry_run, started_at, finished_at,
		        students, sections, marked, skipped, no_decision, failed
		 FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []model.RunRecord
	for rows.Next() {
		var r model.RunRecord
		if err := rows.Scan(&r.ID, &r.RootURL, &r.Strategy, &r.DryRun, &r.StartedAt, &r.FinishedAt,
			&r.Students, &r.Sections, &r.Marked, &r.Skipped, &r.NoDecision, &r.Failed); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListDecisions returns a run's decisions in insertion order.
func (s *Store) ListDecisions(runID int64) ([]model.DecisionRecord, error) {
	rows, err := s.db.Query(
		`SELECT username, section_key, action, mark, feedback, error, created_at
		 FROM decisions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var decisions []model.DecisionRecord
	for rows.Next() {
		var d model.DecisionRecord
		if err := rows.Scan(&d.Username, &d.SectionKey, &d.Action, &d.Mark, &d.Feedback, &d.Error, &d.CreatedAt); err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
