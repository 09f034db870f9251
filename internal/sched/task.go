package sched

import "context"

const (
	IdlePriority = 0  // level of the core's idle loop, never assigned to a task
	MinPriority  = 1  // least urgent task level
	MaxPriority  = 15 // most urgent task level (4 NVIC priority bits)
)

// TaskID uniquely identifies a task in the scheduler.
type TaskID uint64

// TaskState is the dispatch state of a task.
type TaskState int

const (
	Dormant TaskState = iota
	Queued
	Running
	Preempted
)

func (s TaskState) String() string {
	switch s {
	case Dormant:
		return "Dormant"
	case Queued:
		return "Queued"
	case Running:
		return "Running"
	case Preempted:
		return "Preempted"
	default:
		return "Unknown"
	}
}

// Handler is the work a task performs on each dispatch. The payload is the
// value given when the invocation was scheduled (nil for interrupt handlers).
// A non-nil error is treated as an invariant violation and halts the core.
type Handler func(ctx context.Context, payload any) error

// Task represents one schedulable task unit.
type Task struct {
	ID       TaskID
	Name     string
	Priority int // MinPriority - MaxPriority, where MaxPriority is the most urgent
	Capacity int // outstanding invocations allowed at once
	Run      Handler

	state  TaskState
	queued int  // invocations sitting in the timer or ready queue
	line   Line // bound interrupt line, NoLine for software tasks
}

// NewTask creates a software task with a capacity of one.
func NewTask(id TaskID, name string, priority int, work Handler) *Task {
	// clamp priority within the legal region.
	if priority < MinPriority {
		priority = MinPriority
	} else if priority > MaxPriority {
		priority = MaxPriority
	}

	return &Task{
		ID:       id,
		Name:     name,
		Priority: priority,
		Capacity: 1,
		Run:      work,
		line:     NoLine,
	}
}

// State returns the task's current dispatch state.
func (t *Task) State() TaskState { return t.state }

// Line returns the interrupt line the task is bound to, or NoLine.
func (t *Task) Line() Line { return t.line }
