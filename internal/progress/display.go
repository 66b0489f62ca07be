package progress

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Display renders a live status line on a ticker until stopped.
type Display struct {
	tracker  *Tracker
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	lastLen  int
}

// NewDisplay creates a display reading from tracker every interval.
func NewDisplay(tracker *Tracker, interval time.Duration) *Display {
	return &Display{
		tracker:  tracker,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins rendering in a background goroutine.
func (d *Display) Start() {
	go d.displayLoop()
}

// Stop renders the final state and halts the loop. It returns once the
// status line has been terminated with a newline.
func (d *Display) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Display) displayLoop() {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.render()
		case <-d.stopCh:
			d.render()
			fmt.Println()
			return
		}
	}
}

// render redraws the status line in place, padding over any leftover from a
// longer previous line.
func (d *Display) render() {
	line := d.statusLine()

	pad := d.lastLen - len(line)
	d.lastLen = len(line)
	if pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	fmt.Print("\r" + line)
}

func (d *Display) statusLine() string {
	status := d.tracker.GetStatus()

	return fmt.Sprintf("%s %d/%d ok:%d failed:%d %s %.1f obj/s eta %s",
		progressBar(d.tracker.GetProgressPercent(), 24),
		status.CompletedTasks, status.TotalTasks,
		status.Succeeded, status.Failed,
		FormatBytes(status.ProcessedBytes),
		status.Throughput,
		FormatDuration(status.ETA),
	)
}

// progressBar renders a fixed-width visual bar for percent.
func progressBar(percent float64, width int) string {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	filled := int(percent * float64(width) / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	return fmt.Sprintf("[%s] %5.1f%%", bar, percent)
}

// IsTerminalSupported reports whether stdout is a terminal that can host the
// in-place status line.
func IsTerminalSupported() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fileInfo.Mode()&os.ModeCharDevice != 0
}
