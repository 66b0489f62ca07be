package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/seriaati/image-host/internal/checkpoint"
	"github.com/seriaati/image-host/internal/metrics"
	"github.com/seriaati/image-host/internal/progress"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrStartIndex reports a start index outside the inventory bounds. The
// invoking run fails before any transfer begins.
var ErrStartIndex = errors.New("migrate: start index out of range")

// Source is the read side of a migration.
type Source interface {
	List(ctx context.Context) (map[string]int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Destination is the write side of a migration.
type Destination interface {
	Save(ctx context.Context, key string, content []byte) (string, error)
}

// Options are the user-facing migration knobs.
type Options struct {
	DryRun       bool
	DeleteSource bool
	Concurrency  int
	MaxRetries   int           // extra attempts after the first
	StartIndex   int           // 1-based inventory position to start from
	BackoffUnit  time.Duration // base of the exponential retry delay
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 10
	}
	if o.StartIndex == 0 {
		o.StartIndex = 1
	}
	if o.BackoffUnit <= 0 {
		o.BackoffUnit = time.Second
	}
	return o
}

// Plan is the frozen slice of inventory a run will execute.
type Plan struct {
	Tasks      []*Task // from StartIndex on, in listing order
	Inventory  int     // size of the full snapshot
	Skipped    int     // entries before StartIndex
	TotalBytes int64   // summed size of the planned tasks
}

// Job moves the source inventory to the destination. Build one per run.
type Job struct {
	src     Source
	dst     Destination
	opts    Options
	runID   string
	logger  *zap.Logger
	tracker *progress.Tracker
	metrics *metrics.Collector
	journal checkpoint.Journal

	plan *Plan

	sleep func(context.Context, time.Duration) error

	mu        sync.Mutex
	succeeded []string
	failures  []Failure
	bytes     int64
	completed int
}

// NewJob builds a migration job. Journal, collector and tracker may be nil
// when the caller does not need them.
func NewJob(src Source, dst Destination, opts Options, journal checkpoint.Journal, collector *metrics.Collector, tracker *progress.Tracker, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		src:     src,
		dst:     dst,
		opts:    opts.withDefaults(),
		runID:   ksuid.New().String(),
		logger:  logger,
		tracker: tracker,
		metrics: collector,
		journal: journal,
		sleep:   sleepCtx,
	}
}

// Plan snapshots the source inventory, validates the start index, and
// freezes the task slice. The snapshot is taken at most once; Run reuses it.
func (j *Job) Plan(ctx context.Context) (*Plan, error) {
	if j.plan != nil {
		return j.plan, nil
	}

	inventory, err := j.src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing source: %w", err)
	}

	keys := make([]string, 0, len(inventory))
	for key := range inventory {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	// An empty source with the default start index is a clean no-op run.
	if len(keys) == 0 && j.opts.StartIndex == 1 {
		j.plan = &Plan{}
		return j.plan, nil
	}

	if j.opts.StartIndex < 1 || j.opts.StartIndex > len(keys) {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrStartIndex, j.opts.StartIndex, len(keys))
	}

	plan := &Plan{
		Inventory: len(keys),
		Skipped:   j.opts.StartIndex - 1,
	}
	for i := j.opts.StartIndex - 1; i < len(keys); i++ {
		key := keys[i]
		plan.Tasks = append(plan.Tasks, &Task{
			Key:   key,
			Size:  inventory[key],
			Index: i + 1,
		})
		plan.TotalBytes += inventory[key]
	}

	j.plan = plan
	return plan, nil
}

// Run executes the plan. In dry-run mode it reports the would-be transfers
// and stops. Otherwise every task runs in its own goroutine behind the
// admission semaphore, one task's failure never cancels its siblings, and
// source deletion happens only after an all-success run.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	plan, err := j.Plan(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:         j.runID,
		DryRun:        j.opts.DryRun,
		InventorySize: plan.Inventory,
		SkippedCount:  plan.Skipped,
		PlannedCount:  len(plan.Tasks),
	}

	if len(plan.Tasks) == 0 {
		j.logger.Info("nothing to migrate", zap.String("run_id", j.runID))
		return report, nil
	}

	if j.opts.DryRun {
		for _, t := range plan.Tasks {
			j.logger.Info("would migrate",
				zap.Int("index", t.Index),
				zap.Int("total", plan.Inventory),
				zap.String("key", t.Key),
				zap.Int64("size", t.Size),
			)
		}
		return report, nil
	}

	j.logger.Info("starting migration",
		zap.String("run_id", j.runID),
		zap.Int("tasks", len(plan.Tasks)),
		zap.Int("skipped", plan.Skipped),
		zap.Int("concurrency", j.opts.Concurrency),
		zap.Int("max_retries", j.opts.MaxRetries),
		zap.Bool("delete_source", j.opts.DeleteSource),
	)

	if j.tracker != nil {
		j.tracker.SetTotal(len(plan.Tasks), plan.TotalBytes)
	}

	start := time.Now()

	// Every task is issued at once; the semaphore decides how many may
	// transfer at the same time.
	sem := semaphore.NewWeighted(int64(j.opts.Concurrency))
	var wg sync.WaitGroup
	for _, t := range plan.Tasks {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.runTask(ctx, sem, t, plan.Inventory)
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)

	j.mu.Lock()
	report.Succeeded = append([]string(nil), j.succeeded...)
	report.Failures = append([]Failure(nil), j.failures...)
	report.BytesMoved = j.bytes
	completed := j.completed
	j.mu.Unlock()

	sort.Strings(report.Succeeded)
	report.Elapsed = elapsed
	if elapsed > 0 {
		report.Throughput = float64(completed) / elapsed.Seconds()
	}

	j.deleteSource(ctx, report)

	j.logger.Info("migration finished",
		zap.String("run_id", j.runID),
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failures)),
		zap.Int("skipped", report.SkippedCount),
		zap.String("moved", progress.FormatBytes(report.BytesMoved)),
		zap.Duration("elapsed", elapsed),
	)

	return report, nil
}

// runTask drives one task from admission to a terminal status, retrying
// failed attempts with exponential backoff.
func (j *Job) runTask(ctx context.Context, sem *semaphore.Weighted, t *Task, total int) {
	if err := sem.Acquire(ctx, 1); err != nil {
		// The run was cancelled while this task waited for admission.
		t.Err = fmt.Errorf("not admitted: %w", err)
		j.settleFailure(t, total)
		return
	}
	defer sem.Release(1)

	if j.metrics != nil {
		j.metrics.TransferStarted()
		defer j.metrics.TransferDone()
	}

	started := time.Now()

	for attempt := 0; ; attempt++ {
		t.Status = TaskInFlight
		t.Attempts = attempt + 1

		err := j.transfer(ctx, t.Key)
		if err == nil {
			t.Status = TaskSucceeded
			if j.metrics != nil {
				j.metrics.ObserveDuration(time.Since(started))
			}
			j.settleSuccess(t, total)
			return
		}

		t.Err = err
		j.logger.Warn("attempt failed",
			zap.Int("index", t.Index),
			zap.String("key", t.Key),
			zap.Int("attempt", t.Attempts),
			zap.Error(err),
		)

		if attempt == j.opts.MaxRetries {
			break
		}

		// Wait unit*2^n between attempt n and n+1, uncapped and without
		// jitter.
		t.Status = TaskRetrying
		if err := j.sleep(ctx, j.opts.BackoffUnit<<uint(attempt)); err != nil {
			break
		}
	}

	t.Status = TaskFailed
	if j.metrics != nil {
		j.metrics.ObserveDuration(time.Since(started))
	}
	j.settleFailure(t, total)
}

// transfer is a single attempt: read all source bytes, then save them to
// the destination.
func (j *Job) transfer(ctx context.Context, key string) error {
	rc, err := j.src.Open(ctx, key)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	if _, err := j.dst.Save(ctx, key, content); err != nil {
		return fmt.Errorf("saving to destination: %w", err)
	}
	return nil
}

func (j *Job) settleSuccess(t *Task, total int) {
	j.mu.Lock()
	j.succeeded = append(j.succeeded, t.Key)
	j.bytes += t.Size
	j.completed++
	j.mu.Unlock()

	if j.tracker != nil {
		j.tracker.AddSuccess(t.Size)
	}
	if j.metrics != nil {
		j.metrics.IncSucceeded()
		j.metrics.AddBytes(t.Size)
	}
	j.journalWrite(t, checkpoint.OutcomeSucceeded)

	j.logger.Info("migrated",
		zap.Int("index", t.Index),
		zap.Int("total", total),
		zap.String("key", t.Key),
		zap.Int64("size", t.Size),
		zap.Int("attempts", t.Attempts),
	)
}

func (j *Job) settleFailure(t *Task, total int) {
	t.Status = TaskFailed

	j.mu.Lock()
	j.failures = append(j.failures, Failure{Key: t.Key, Index: t.Index, Err: t.Err})
	j.completed++
	j.mu.Unlock()

	if j.tracker != nil {
		j.tracker.AddFailure()
	}
	if j.metrics != nil {
		j.metrics.IncFailed()
	}
	j.journalWrite(t, checkpoint.OutcomeFailed)

	j.logger.Error("migration failed",
		zap.Int("index", t.Index),
		zap.Int("total", total),
		zap.String("key", t.Key),
		zap.Int("attempts", t.Attempts),
		zap.Error(t.Err),
	)
}

func (j *Job) journalWrite(t *Task, outcome checkpoint.Outcome) {
	if j.journal == nil {
		return
	}

	rec := &checkpoint.Record{
		RunID:    j.runID,
		Key:      t.Key,
		Index:    t.Index,
		Size:     t.Size,
		Outcome:  outcome,
		Attempts: t.Attempts,
	}
	if outcome == checkpoint.OutcomeFailed && t.Err != nil {
		rec.LastError = t.Err.Error()
	}

	if err := j.journal.Write(rec); err != nil {
		j.logger.Warn("journal write failed", zap.String("key", t.Key), zap.Error(err))
	}
}

// deleteSource removes migrated objects from the source, but only when the
// caller asked for it and every task succeeded. Individual deletion errors
// are reported and do not stop the sweep.
func (j *Job) deleteSource(ctx context.Context, report *Report) {
	if !j.opts.DeleteSource {
		return
	}

	if len(report.Failures) > 0 {
		report.DeletionSkipped = true
		j.logger.Warn("keeping source objects: run had failures",
			zap.Int("failures", len(report.Failures)),
		)
		return
	}

	for _, key := range report.Succeeded {
		if err := j.src.Delete(ctx, key); err != nil {
			report.DeleteErrors = append(report.DeleteErrors, Failure{Key: key, Err: err})
			j.logger.Warn("failed to delete source object", zap.String("key", key), zap.Error(err))
			continue
		}
		report.SourceDeleted++
	}

	j.logger.Info("source cleanup finished",
		zap.Int("deleted", report.SourceDeleted),
		zap.Int("errors", len(report.DeleteErrors)),
	)
}

// sleepCtx waits for d unless ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
