package sched

import "errors"

var (
	// ErrHalted is returned once the core has latched into its halt state.
	ErrHalted = errors.New("core halted")
	// ErrQueueFull reports that the scheduled-event queue has no headroom left.
	ErrQueueFull = errors.New("event queue exhausted")
	// ErrTaskSaturated reports a task scheduled beyond its capacity.
	ErrTaskSaturated = errors.New("task saturated")
	// ErrCeiling reports a shared resource accessed from the wrong priority.
	ErrCeiling = errors.New("priority ceiling violation")
	// ErrLocked reports a nested acquisition of a shared resource.
	ErrLocked = errors.New("resource already locked")
	// ErrInvariant reports a broken dispatcher invariant.
	ErrInvariant = errors.New("dispatcher invariant violated")
	// ErrNotRunnable is returned when Run is called on a core that already ran.
	ErrNotRunnable = errors.New("core already started")
)
