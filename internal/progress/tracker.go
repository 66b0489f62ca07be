package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status is a point-in-time view of a running migration.
type Status struct {
	TotalTasks     int64
	CompletedTasks int64
	Succeeded      int64
	Failed         int64
	TotalBytes     int64
	ProcessedBytes int64
	StartTime      time.Time
	Throughput     float64       // completed tasks per second since start
	ByteRate       float64       // processed bytes per second since start
	ETA            time.Duration // remaining tasks / throughput
}

// Tracker accumulates task outcomes under a lock. Transfer goroutines feed
// it; the display loop and the final report read it.
type Tracker struct {
	mu     sync.RWMutex
	status Status
	now    func() time.Time
}

// NewTracker returns an empty tracker. SetTotal fixes the workload before
// tasks start completing.
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.status.StartTime = t.now()
	return t
}

// SetTotal fixes the planned workload and restarts the clock.
func (t *Tracker) SetTotal(tasks int, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.TotalTasks = int64(tasks)
	t.status.TotalBytes = bytes
	t.status.StartTime = t.now()
}

// AddSuccess records one task whose object reached the destination.
func (t *Tracker) AddSuccess(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Succeeded++
	t.status.CompletedTasks++
	t.status.ProcessedBytes += bytes
	t.recalc()
}

// AddFailure records one task that exhausted its attempts.
func (t *Tracker) AddFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Failed++
	t.status.CompletedTasks++
	t.recalc()
}

// recalc refreshes throughput and ETA. Callers hold the lock.
func (t *Tracker) recalc() {
	elapsed := t.now().Sub(t.status.StartTime)
	if elapsed <= 0 {
		return
	}

	t.status.Throughput = float64(t.status.CompletedTasks) / elapsed.Seconds()
	t.status.ByteRate = float64(t.status.ProcessedBytes) / elapsed.Seconds()

	remaining := t.status.TotalTasks - t.status.CompletedTasks
	if remaining <= 0 || t.status.Throughput == 0 {
		t.status.ETA = 0
		return
	}
	t.status.ETA = time.Duration(float64(remaining) / t.status.Throughput * float64(time.Second))
}

// GetStatus returns a copy of the current status.
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// GetProgressPercent returns completed tasks as a percentage of the total.
func (t *Tracker) GetProgressPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status.TotalTasks == 0 {
		return 0
	}
	return float64(t.status.CompletedTasks) / float64(t.status.TotalTasks) * 100
}

// FormatSpeed formats a byte rate in human readable form.
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond < 1024 {
		return fmt.Sprintf("%.1f B/s", bytesPerSecond)
	} else if bytesPerSecond < 1024*1024 {
		return fmt.Sprintf("%.1f KB/s", bytesPerSecond/1024)
	} else if bytesPerSecond < 1024*1024*1024 {
		return fmt.Sprintf("%.1f MB/s", bytesPerSecond/(1024*1024))
	}
	return fmt.Sprintf("%.1f GB/s", bytesPerSecond/(1024*1024*1024))
}

// FormatBytes formats a byte count in human readable form.
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	} else if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	} else if bytes < 1024*1024*1024 {
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
	return fmt.Sprintf("%.1f GB", float64(bytes)/(1024*1024*1024))
}

// FormatDuration formats a duration in human readable form. Zero means the
// value is not known yet.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "--"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
