package migrate

import "time"

// Failure pairs a key with the error that exhausted its attempts.
type Failure struct {
	Key   string
	Index int
	Err   error
}

// Report summarizes a finished run.
type Report struct {
	RunID         string
	DryRun        bool
	InventorySize int
	SkippedCount  int
	PlannedCount  int

	Succeeded  []string
	Failures   []Failure
	BytesMoved int64

	// Source cleanup. DeletionSkipped is set when deletion was requested
	// but failures forced the gate shut.
	SourceDeleted   int
	DeleteErrors    []Failure
	DeletionSkipped bool

	Elapsed    time.Duration
	Throughput float64 // completed tasks per second
}
