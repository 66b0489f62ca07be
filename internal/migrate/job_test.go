package migrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeSource struct {
	mu      sync.Mutex
	objects map[string][]byte

	listErr   error
	openErr   func(key string, call int) error
	deleteErr func(key string) error

	openCalls   map[string]int
	deleteCalls int
}

func newFakeSource(objects map[string][]byte) *fakeSource {
	cp := make(map[string][]byte, len(objects))
	for k, v := range objects {
		cp[k] = v
	}
	return &fakeSource{objects: cp, openCalls: make(map[string]int)}
}

func (s *fakeSource) List(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make(map[string]int64, len(s.objects))
	for k, v := range s.objects {
		out[k] = int64(len(v))
	}
	return out, nil
}

func (s *fakeSource) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.openCalls[key]++
	if s.openErr != nil {
		if err := s.openErr(key, s.openCalls[key]); err != nil {
			return nil, err
		}
	}
	content, ok := s.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (s *fakeSource) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteCalls++
	if s.deleteErr != nil {
		if err := s.deleteErr(key); err != nil {
			return err
		}
	}
	if _, ok := s.objects[key]; !ok {
		return errors.New("no such key")
	}
	delete(s.objects, key)
	return nil
}

func (s *fakeSource) remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *fakeSource) totalOpens() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, n := range s.openCalls {
		total += n
	}
	return total
}

type fakeDestination struct {
	mu          sync.Mutex
	saved       map[string][]byte
	saveCalls   map[string]int
	inFlight    int
	maxInFlight int

	saveErr func(key string, call int) error
	delay   time.Duration
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{saved: make(map[string][]byte), saveCalls: make(map[string]int)}
}

func (d *fakeDestination) Save(ctx context.Context, key string, content []byte) (string, error) {
	d.mu.Lock()
	d.inFlight++
	if d.inFlight > d.maxInFlight {
		d.maxInFlight = d.inFlight
	}
	d.saveCalls[key]++
	call := d.saveCalls[key]
	d.mu.Unlock()

	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight--

	if d.saveErr != nil {
		if err := d.saveErr(key, call); err != nil {
			return "", err
		}
	}
	d.saved[key] = append([]byte(nil), content...)
	return key, nil
}

func (d *fakeDestination) savedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.saved)
}

func (d *fakeDestination) callsFor(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveCalls[key]
}

// seedObjects builds n objects whose keys sort in creation order and whose
// sizes are 10, 20, ... bytes.
func seedObjects(n int) map[string][]byte {
	out := make(map[string][]byte, n)
	for i := 1; i <= n; i++ {
		key := fmt.Sprintf("img-%02d.png", i)
		out[key] = bytes.Repeat([]byte{byte(i)}, i*10)
	}
	return out
}

func newTestJob(src Source, dst Destination, opts Options) *Job {
	j := NewJob(src, dst, opts, nil, nil, nil, zap.NewNop())
	j.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return j
}

func TestRunMigratesEverything(t *testing.T) {
	src := newFakeSource(seedObjects(5))
	dst := newFakeDestination()
	job := newTestJob(src, dst, Options{Concurrency: 2})

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.InventorySize != 5 || report.PlannedCount != 5 || report.SkippedCount != 0 {
		t.Errorf("report = inventory %d, planned %d, skipped %d, want 5, 5, 0",
			report.InventorySize, report.PlannedCount, report.SkippedCount)
	}
	if len(report.Succeeded) != 5 {
		t.Fatalf("Succeeded = %d keys, want 5", len(report.Succeeded))
	}
	if len(report.Failures) != 0 {
		t.Fatalf("Failures = %v, want none", report.Failures)
	}
	if want := int64(10 + 20 + 30 + 40 + 50); report.BytesMoved != want {
		t.Errorf("BytesMoved = %d, want %d", report.BytesMoved, want)
	}

	for key, content := range seedObjects(5) {
		got, ok := dst.saved[key]
		if !ok {
			t.Fatalf("destination missing %q", key)
		}
		if !bytes.Equal(got, content) {
			t.Errorf("destination content for %q does not match source", key)
		}
	}

	// Nothing asked for deletion, so the source keeps everything.
	if src.remaining() != 5 {
		t.Errorf("source has %d objects left, want 5", src.remaining())
	}
}

func TestRunHonorsConcurrencyLimit(t *testing.T) {
	src := newFakeSource(seedObjects(8))
	dst := newFakeDestination()
	dst.delay = 20 * time.Millisecond

	job := newTestJob(src, dst, Options{Concurrency: 2})

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Succeeded) != 8 {
		t.Fatalf("Succeeded = %d keys, want 8", len(report.Succeeded))
	}
	if dst.maxInFlight > 2 {
		t.Errorf("observed %d concurrent transfers, limit is 2", dst.maxInFlight)
	}
}

func TestRunStartIndex(t *testing.T) {
	src := newFakeSource(seedObjects(5))
	dst := newFakeDestination()
	job := newTestJob(src, dst, Options{Concurrency: 2, StartIndex: 3})

	plan, err := job.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.Skipped != 2 || len(plan.Tasks) != 3 {
		t.Fatalf("plan = %d skipped, %d tasks, want 2 and 3", plan.Skipped, len(plan.Tasks))
	}
	// Tasks keep their position in the full inventory.
	for i, want := range []int{3, 4, 5} {
		if plan.Tasks[i].Index != want {
			t.Errorf("task %d has index %d, want %d", i, plan.Tasks[i].Index, want)
		}
	}

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.SkippedCount != 2 || len(report.Succeeded) != 3 {
		t.Fatalf("report = %d skipped, %d succeeded, want 2 and 3", report.SkippedCount, len(report.Succeeded))
	}

	if dst.savedCount() != 3 {
		t.Fatalf("destination holds %d objects, want 3", dst.savedCount())
	}
	for _, key := range []string{"img-01.png", "img-02.png"} {
		if _, ok := dst.saved[key]; ok {
			t.Errorf("skipped key %q was transferred", key)
		}
	}
}

func TestPlanStartIndexBounds(t *testing.T) {
	tests := []struct {
		name  string
		start int
	}{
		{name: "beyond inventory", start: 6},
		{name: "negative", start: -1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource(seedObjects(5))
			job := newTestJob(src, newFakeDestination(), Options{StartIndex: tt.start})

			_, err := job.Plan(context.Background())
			if !errors.Is(err, ErrStartIndex) {
				t.Fatalf("Plan() error = %v, want ErrStartIndex", err)
			}
		})
	}
}

func TestRunEmptyInventory(t *testing.T) {
	src := newFakeSource(nil)
	dst := newFakeDestination()
	job := newTestJob(src, dst, Options{})

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.PlannedCount != 0 || len(report.Succeeded) != 0 || len(report.Failures) != 0 {
		t.Errorf("report is not empty: %+v", report)
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	src := newFakeSource(seedObjects(1))
	dst := newFakeDestination()
	dst.saveErr = func(key string, call int) error {
		if call <= 2 {
			return fmt.Errorf("transient %d", call)
		}
		return nil
	}

	job := newTestJob(src, dst, Options{Concurrency: 1, MaxRetries: 3, BackoffUnit: time.Second})

	var mu sync.Mutex
	var delays []time.Duration
	job.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}

	plan, err := job.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Succeeded) != 1 || len(report.Failures) != 0 {
		t.Fatalf("report = %d succeeded, %d failed, want 1 and 0", len(report.Succeeded), len(report.Failures))
	}

	task := plan.Tasks[0]
	if task.Status != TaskSucceeded {
		t.Errorf("task status = %s, want succeeded", task.Status)
	}
	if task.Attempts != 3 {
		t.Errorf("task took %d attempts, want 3", task.Attempts)
	}
	if dst.callsFor(task.Key) != 3 {
		t.Errorf("destination saw %d saves, want 3", dst.callsFor(task.Key))
	}

	// The delay doubles after each failed attempt.
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("recorded %d backoffs %v, want %d", len(delays), delays, len(want))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("backoff %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestRunPermanentFailure(t *testing.T) {
	errBoom := errors.New("boom")

	src := newFakeSource(seedObjects(1))
	dst := newFakeDestination()
	dst.saveErr = func(key string, call int) error { return errBoom }

	job := newTestJob(src, dst, Options{Concurrency: 1, MaxRetries: 2})

	plan, err := job.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Succeeded) != 0 || len(report.Failures) != 1 {
		t.Fatalf("report = %d succeeded, %d failed, want 0 and 1", len(report.Succeeded), len(report.Failures))
	}

	task := plan.Tasks[0]
	if task.Status != TaskFailed {
		t.Errorf("task status = %s, want failed", task.Status)
	}
	// First attempt plus MaxRetries more.
	if task.Attempts != 3 {
		t.Errorf("task took %d attempts, want 3", task.Attempts)
	}

	failure := report.Failures[0]
	if failure.Key != task.Key || failure.Index != 1 {
		t.Errorf("failure = %q at %d, want %q at 1", failure.Key, failure.Index, task.Key)
	}
	if !errors.Is(failure.Err, errBoom) {
		t.Errorf("failure error = %v, want wrapped %v", failure.Err, errBoom)
	}
}

func TestRunDeleteSource(t *testing.T) {
	src := newFakeSource(seedObjects(5))
	dst := newFakeDestination()
	job := newTestJob(src, dst, Options{Concurrency: 2, DeleteSource: true})

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.SourceDeleted != 5 {
		t.Errorf("SourceDeleted = %d, want 5", report.SourceDeleted)
	}
	if report.DeletionSkipped {
		t.Error("DeletionSkipped = true on an all-success run")
	}
	if src.remaining() != 0 {
		t.Errorf("source has %d objects left, want 0", src.remaining())
	}
}

func TestRunKeepsSourceOnFailure(t *testing.T) {
	src := newFakeSource(seedObjects(5))
	dst := newFakeDestination()
	dst.saveErr = func(key string, call int) error {
		if key == "img-03.png" {
			return errors.New("boom")
		}
		return nil
	}

	job := newTestJob(src, dst, Options{Concurrency: 2, MaxRetries: 0, DeleteSource: true})

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.Failures) != 1 || len(report.Succeeded) != 4 {
		t.Fatalf("report = %d failed, %d succeeded, want 1 and 4", len(report.Failures), len(report.Succeeded))
	}
	if !report.DeletionSkipped {
		t.Error("DeletionSkipped = false, want true after a failed task")
	}
	if report.SourceDeleted != 0 {
		t.Errorf("SourceDeleted = %d, want 0", report.SourceDeleted)
	}
	if src.remaining() != 5 {
		t.Errorf("source has %d objects left, want all 5", src.remaining())
	}
}

func TestRunBestEffortDelete(t *testing.T) {
	src := newFakeSource(seedObjects(5))
	src.deleteErr = func(key string) error {
		if key == "img-02.png" {
			return errors.New("locked")
		}
		return nil
	}

	job := newTestJob(src, newFakeDestination(), Options{Concurrency: 2, DeleteSource: true})

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.SourceDeleted != 4 {
		t.Errorf("SourceDeleted = %d, want 4", report.SourceDeleted)
	}
	if len(report.DeleteErrors) != 1 || report.DeleteErrors[0].Key != "img-02.png" {
		t.Errorf("DeleteErrors = %v, want one entry for img-02.png", report.DeleteErrors)
	}
	if src.remaining() != 1 {
		t.Errorf("source has %d objects left, want 1", src.remaining())
	}
}

func TestRunDryRun(t *testing.T) {
	src := newFakeSource(seedObjects(5))
	dst := newFakeDestination()
	job := newTestJob(src, dst, Options{DryRun: true, DeleteSource: true})

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !report.DryRun {
		t.Error("report.DryRun = false")
	}
	if report.PlannedCount != 5 {
		t.Errorf("PlannedCount = %d, want 5", report.PlannedCount)
	}
	if len(report.Succeeded) != 0 || report.BytesMoved != 0 {
		t.Error("dry run recorded transfers")
	}

	if src.totalOpens() != 0 {
		t.Errorf("dry run opened %d source objects", src.totalOpens())
	}
	if dst.savedCount() != 0 {
		t.Errorf("dry run saved %d objects", dst.savedCount())
	}
	if src.remaining() != 5 {
		t.Errorf("dry run deleted source objects, %d left", src.remaining())
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := newFakeSource(seedObjects(5))
	dst := newFakeDestination()
	job := newTestJob(src, dst, Options{Concurrency: 2})

	// Plan before cancelling so the snapshot itself succeeds.
	if _, err := job.Plan(ctx); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	cancel()

	report, err := job.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.Failures) != 5 {
		t.Fatalf("Failures = %d, want all 5 tasks", len(report.Failures))
	}
	for _, f := range report.Failures {
		if !errors.Is(f.Err, context.Canceled) {
			t.Errorf("failure for %q = %v, want context.Canceled", f.Key, f.Err)
		}
	}
	if dst.savedCount() != 0 {
		t.Errorf("cancelled run saved %d objects", dst.savedCount())
	}
}

func TestRunListError(t *testing.T) {
	src := newFakeSource(nil)
	src.listErr = errors.New("unreachable")

	job := newTestJob(src, newFakeDestination(), Options{})

	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("Run() succeeded with a failing source listing")
	}
}

func TestPlanSnapshotTakenOnce(t *testing.T) {
	src := newFakeSource(seedObjects(2))
	job := newTestJob(src, newFakeDestination(), Options{})

	first, err := job.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	// Inventory changes after the snapshot must not affect the run.
	src.mu.Lock()
	src.objects["img-99.png"] = []byte("late")
	src.mu.Unlock()

	second, err := job.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if first != second {
		t.Error("Plan() rebuilt the snapshot")
	}
	if len(second.Tasks) != 2 {
		t.Errorf("plan has %d tasks, want the 2 from the snapshot", len(second.Tasks))
	}
}
