// Package journal persists a local record of pipeline runs: one row per
// run plus an event per configuration step and observed job transition.
// The bakery owns all remote state; the journal only remembers what this
// machine asked for and saw.
package journal

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding runs and their events.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used
// by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "bakectl.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

// CreateRun inserts a new run in the running state.
func (s *Store) CreateRun(r Run) error {
	status := r.Status
	if status == "" {
		status = RunRunning
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, repo, bake, plan_path, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, '')`,
		r.ID, r.Repo, r.Bake, r.PlanPath, status, r.Error,
		r.StartedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// FinishRun marks a run terminal with the given status and optional error
// message.
func (s *Store) FinishRun(id, status, errMsg string) error {
	res, err := s.db.Exec(`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, errMsg, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendEvent records a step or job transition for a run.
func (s *Store) AppendEvent(e Event) error {
	_, err := s.db.Exec(`
		INSERT INTO events (id, run_id, step, target, status, lines, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Step, e.Target, e.Status, e.Lines, e.Detail,
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetRun returns a single run by ID.
func (s *Store) GetRun(id string) (Run, error) {
	var r Run
	var startedAt, finishedAt string
	err := s.db.QueryRow(`
		SELECT id, repo, bake, plan_path, status, error, started_at, finished_at
		FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Repo, &r.Bake, &r.PlanPath, &r.Status, &r.Error, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	if r.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return Run{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if finishedAt != "" {
		if r.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
			return Run{}, fmt.Errorf("parsing finished_at: %w", err)
		}
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, repo, bake, plan_path, status, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var r Run
		var startedAt, finishedAt string
		if err := rows.Scan(&r.ID, &r.Repo, &r.Bake, &r.PlanPath, &r.Status, &r.Error, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if finishedAt != "" {
			if r.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
				return nil, fmt.Errorf("parsing finished_at: %w", err)
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListEvents returns a run's events in insertion order.
func (s *Store) ListEvents(runID string) ([]Event, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, step, target, status, lines, detail, created_at
		FROM events WHERE run_id = ? ORDER BY created_at ASC, rowid ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Event
	for rows.Next() {
		var e Event
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Step, &e.Target, &e.Status, &e.Lines, &e.Detail, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
