package checkpoint

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteJournal implements Journal on a single SQLite file.
type SQLiteJournal struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewSQLiteJournal opens the journal at dbPath, creating it if needed.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	j := &SQLiteJournal{db: db}
	if err := j.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return j, nil
}

func (j *SQLiteJournal) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS tasks (
		key TEXT NOT NULL PRIMARY KEY,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		size INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		last_error TEXT,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_outcome ON tasks(outcome);
	`

	_, err := j.db.Exec(query)
	return err
}

// Write inserts or updates the row for rec.Key. Writes are serialized so a
// single process never trips SQLite's busy path.
func (j *SQLiteJournal) Write(rec *Record) error {
	j.writeMu.Lock()
	defer j.writeMu.Unlock()

	rec.UpdatedAt = time.Now()

	query := `
	INSERT INTO tasks (key, run_id, seq, size, outcome, attempts, last_error, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		run_id = excluded.run_id,
		seq = excluded.seq,
		size = excluded.size,
		outcome = excluded.outcome,
		attempts = excluded.attempts,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at
	`

	_, err := j.db.Exec(query,
		rec.Key,
		rec.RunID,
		rec.Index,
		rec.Size,
		rec.Outcome,
		rec.Attempts,
		rec.LastError,
		rec.UpdatedAt,
	)
	return err
}

// ResumeIndex walks the succeeded rows in sequence order and returns the
// first index after the contiguous prefix.
func (j *SQLiteJournal) ResumeIndex() (int, error) {
	rows, err := j.db.Query(`SELECT seq FROM tasks WHERE outcome = ? ORDER BY seq ASC`, OutcomeSucceeded)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	next := 1
	for rows.Next() {
		var seq int
		if err := rows.Scan(&seq); err != nil {
			return 0, err
		}
		if seq != next {
			break
		}
		next++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	return next, nil
}

// Reset clears every row.
func (j *SQLiteJournal) Reset() error {
	j.writeMu.Lock()
	defer j.writeMu.Unlock()

	_, err := j.db.Exec(`DELETE FROM tasks`)
	return err
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
