package checkpoint

import "time"

// Outcome is the terminal status a journal row records for one task.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Record is one journaled task outcome, keyed by object key. Index is the
// task's 1-based position in the run's inventory.
type Record struct {
	RunID     string
	Key       string
	Index     int
	Size      int64
	Outcome   Outcome
	Attempts  int
	LastError string
	UpdatedAt time.Time
}

// Journal persists per-task outcomes across runs so an interrupted migration
// can restart from an informed index.
type Journal interface {
	// Write inserts or updates the row for rec.Key.
	Write(rec *Record) error

	// ResumeIndex returns the first index after the contiguous prefix of
	// succeeded rows. An empty journal yields 1.
	ResumeIndex() (int, error)

	// Reset clears every row, giving a fresh run an empty journal.
	Reset() error

	Close() error
}
