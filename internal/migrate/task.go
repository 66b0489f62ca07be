package migrate

// TaskStatus tracks a task through its lifecycle. A task leaves Pending
// exactly once and never returns to it; Succeeded and Failed are terminal.
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskInFlight
	TaskRetrying
	TaskSucceeded
	TaskFailed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskInFlight:
		return "in_flight"
	case TaskRetrying:
		return "retrying"
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task is one object to move. Index is the task's 1-based position in the
// full inventory snapshot; it survives slicing, so status lines always show
// the original position. Attempts and Status are only touched by the single
// goroutine executing the task.
type Task struct {
	Key      string
	Size     int64
	Index    int
	Attempts int
	Status   TaskStatus
	Err      error
}
