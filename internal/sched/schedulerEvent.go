// internal/sched/schedulerEvent.go

package sched

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusEnqueue
	StatusRelease
	StatusDispatch
	StatusPreempt
	StatusResume
	StatusFinish
	StatusTick
	StatusLock
	StatusUnlock
	StatusHalt
)

// StatusEvent is emitted every tick or on key actions
type StatusEvent struct {
	Tick     uint64
	Kind     StatusKind
	TaskID   TaskID
	Task     string
	Priority int
	Ceiling  int    // effective core priority when the event was emitted
	Deadline uint64 // enqueue and release only
	Err      error  // halt only
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusIdle:
		return "Idle"
	case StatusEnqueue:
		return "Enqueued"
	case StatusRelease:
		return "Release"
	case StatusDispatch:
		return "Dispatch"
	case StatusPreempt:
		return "Preempt"
	case StatusResume:
		return "Resume"
	case StatusFinish:
		return "Finish"
	case StatusTick:
		return "Tick"
	case StatusLock:
		return "Lock"
	case StatusUnlock:
		return "Unlock"
	case StatusHalt:
		return "Halt"
	default:
		return "Unknown"
	}
}
