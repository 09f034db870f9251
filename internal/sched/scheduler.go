// internal/sched/scheduler.go

package sched

import (
	"context"
	"fmt"
	"math/bits"
	"sync/atomic"
	"time"
)

// Line is a hardware interrupt line. Pending lines are dispatched to the task
// bound to them.
type Line uint8

const (
	LineSysTick Line = 0    // tick interrupt, serviced by the core itself
	MaxLine     Line = 63   // highest line a task may bind to
	NoLine      Line = 0xFF // marks a software task
)

// SysTickTaskID is reserved for the core's tick handler.
const SysTickTaskID TaskID = 0

// unwind carries the reason the core stops through the nested task frames
// back to Run.
type unwind struct {
	err error
}

// Core is a single simulated processor core with a fixed-priority,
// fully preemptive dispatcher.
//
// Tasks run nested on the goroutine that called Run: whenever the running
// code reaches an instruction boundary (Step), any pending interrupt or ready
// task whose priority is strictly above the current ceiling runs to
// completion before control returns. Only Pend, ClearPending, IsPending, Now
// and Halted may be called from other goroutines.
type Core struct {
	cfg Config

	tasks    map[TaskID]*Task
	handlers map[Line]*Task
	systick  *Task
	timers   *timerQueue
	ready    *readyQueue
	seq      uint64

	pending atomic.Uint64
	tick    atomic.Uint64
	halted  atomic.Bool
	cycle   int
	ceiling int     // effective priority: running task, raised by locks
	stack   []*Task // running task and the tasks it preempted

	pacer     Pacer
	observers []func(StatusEvent)
	hooks     []func(tick uint64)

	ctx       context.Context
	started   bool
	running   bool
	unwinding bool
	limit     uint64
	haltErr   error
}

// New creates a core with the given configuration. The SysTick handler is
// registered under SysTickTaskID at cfg.TimerPriority.
func New(cfg Config) *Core {
	cfg.Sanitize()

	c := &Core{
		cfg:      cfg,
		tasks:    make(map[TaskID]*Task),
		handlers: make(map[Line]*Task),
		timers:   newTimerQueue(),
		ready:    newReadyQueue(),
		ctx:      context.Background(),
	}
	c.systick = NewTask(SysTickTaskID, "systick", cfg.TimerPriority, c.releaseDue)
	c.systick.line = LineSysTick
	c.tasks[SysTickTaskID] = c.systick
	c.handlers[LineSysTick] = c.systick
	return c
}

// Config returns the sanitized configuration of the core.
func (c *Core) Config() Config { return c.cfg }

// Register adds a task to the core. Tasks must be registered before Run.
func (c *Core) Register(t *Task) error {
	if c.started {
		return fmt.Errorf("register task %d: %w", t.ID, ErrNotRunnable)
	}
	if _, dup := c.tasks[t.ID]; dup {
		return fmt.Errorf("task %d already exists", t.ID)
	}
	if t.Capacity <= 0 {
		t.Capacity = 1
	}
	t.line = NoLine
	t.state = Dormant
	c.tasks[t.ID] = t
	return nil
}

// BindInterrupt makes t the handler of line. A bound task is dispatched
// whenever its line is pending; it is responsible for clearing the line.
func (c *Core) BindInterrupt(line Line, t *Task) error {
	if line == LineSysTick || line > MaxLine {
		return fmt.Errorf("line %d cannot be bound", line)
	}
	if c.tasks[t.ID] != t {
		return fmt.Errorf("no such task %d", t.ID)
	}
	if h, ok := c.handlers[line]; ok {
		return fmt.Errorf("line %d already bound to task %s", line, h.Name)
	}
	if t.queued > 0 {
		return fmt.Errorf("task %s has scheduled invocations", t.Name)
	}
	t.line = line
	c.handlers[line] = t
	return nil
}

// SetPacer makes every tick boundary wait on p, which runs the core in real
// time instead of as fast as possible.
func (c *Core) SetPacer(p Pacer) { c.pacer = p }

// Observe registers fn to receive every status event. Observers run on the
// core goroutine and must not call back into the core.
func (c *Core) Observe(fn func(StatusEvent)) { c.observers = append(c.observers, fn) }

// OnTick registers fn to run at each tick boundary, before the SysTick
// interrupt is raised. It models the world outside the core (stimuli, probes).
func (c *Core) OnTick(fn func(tick uint64)) { c.hooks = append(c.hooks, fn) }

// Now returns the monotonic tick count.
func (c *Core) Now() uint64 { return c.tick.Load() }

// Ticks converts d into whole ticks, rounding up.
func (c *Core) Ticks(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	per := time.Duration(c.cfg.TickMS) * time.Millisecond
	return uint64((d + per - 1) / per)
}

// Current returns the running task, or nil when the core is idle.
func (c *Core) Current() *Task {
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1]
}

// Priority returns the current effective priority (ceiling) of the core.
func (c *Core) Priority() int { return c.ceiling }

// Halted reports whether the core latched into its halt state.
func (c *Core) Halted() bool { return c.halted.Load() }

// QueueLen returns the number of scheduled events not yet dispatched.
func (c *Core) QueueLen() int { return c.timers.size() + c.ready.size() }

// NextDeadline returns the earliest pending timer deadline.
func (c *Core) NextDeadline() (uint64, bool) { return c.timers.next() }

// Pend raises an interrupt request on line. Safe for concurrent use.
func (c *Core) Pend(line Line) {
	if line > MaxLine || c.halted.Load() {
		return
	}
	c.pending.Or(1 << line)
}

// ClearPending clears the pending bit of line. Safe for concurrent use.
func (c *Core) ClearPending(line Line) {
	if line > MaxLine {
		return
	}
	c.pending.And(^(uint64(1) << line))
}

// IsPending reports whether line has an outstanding request.
func (c *Core) IsPending(line Line) bool {
	if line > MaxLine {
		return false
	}
	return c.pending.Load()&(1<<line) != 0
}

// ScheduleNow queues an invocation of t for immediate dispatch. If t is more
// urgent than the caller it runs before ScheduleNow returns.
func (c *Core) ScheduleNow(t *Task, payload any) error {
	return c.schedule(t, payload, 0)
}

// ScheduleAfter queues an invocation of t once delay ticks have elapsed. It
// never blocks the caller.
func (c *Core) ScheduleAfter(delay uint64, t *Task, payload any) error {
	return c.schedule(t, payload, delay)
}

func (c *Core) schedule(t *Task, payload any, delay uint64) error {
	if c.halted.Load() {
		return ErrHalted
	}
	if c.tasks[t.ID] != t {
		return fmt.Errorf("no such task %d", t.ID)
	}
	if t.line != NoLine {
		return fmt.Errorf("%w: task %s is bound to line %d", ErrInvariant, t.Name, t.line)
	}
	if c.QueueLen() >= c.cfg.QueueCapacity {
		return fmt.Errorf("schedule %s: %w", t.Name, ErrQueueFull)
	}
	if t.queued >= t.Capacity {
		return fmt.Errorf("schedule %s: %w", t.Name, ErrTaskSaturated)
	}

	c.seq++
	ev := &event{task: t, payload: payload, deadline: c.Now() + delay, seq: c.seq}
	t.queued++
	if t.state == Dormant {
		t.state = Queued
	}
	c.emit(StatusEnqueue, t, ev.deadline)

	if delay > 0 {
		c.timers.push(ev)
		return nil
	}
	c.ready.push(ev)
	if c.running && !c.unwinding {
		c.preempt()
	}
	return nil
}

// Step marks one instruction boundary of the running code. Every tick's worth
// of cycles it raises the SysTick interrupt; then it lets any work more urgent
// than the current ceiling run. Outside Run it does nothing.
func (c *Core) Step() {
	if !c.running || c.unwinding {
		return
	}
	c.cycle++
	if c.cycle >= c.cfg.CyclesPerTick {
		c.cycle = 0
		c.boundary()
	}
	c.preempt()
}

func (c *Core) boundary() {
	if c.limit > 0 && c.Now() >= c.limit {
		c.stop(nil)
	}
	if err := c.ctx.Err(); err != nil {
		c.stop(err)
	}
	if c.pacer != nil {
		if err := c.pacer.Wait(c.ctx); err != nil {
			c.stop(err)
		}
	}

	now := c.tick.Add(1)
	c.emit(StatusTick, nil, 0)
	for _, fn := range c.hooks {
		fn(now)
	}
	c.Pend(LineSysTick)
}

// preempt runs everything more urgent than the current ceiling.
func (c *Core) preempt() {
	for !c.unwinding {
		t, payload, ok := c.next()
		if !ok {
			return
		}
		c.dispatch(t, payload)
	}
}

// next picks the most urgent candidate above the ceiling. Interrupt lines win
// ties against released events.
func (c *Core) next() (*Task, any, bool) {
	var irq *Task
	for mask := c.pending.Load(); mask != 0; {
		line := Line(bits.TrailingZeros64(mask))
		mask &^= 1 << line
		h := c.handlers[line]
		if h == nil || h.Priority <= c.ceiling {
			continue
		}
		if irq == nil || h.Priority > irq.Priority {
			irq = h
		}
	}

	if head, ok := c.ready.peek(); ok && head.task.Priority > c.ceiling &&
		(irq == nil || head.task.Priority > irq.Priority) {
		c.ready.pop()
		head.task.queued--
		return head.task, head.payload, true
	}
	if irq != nil {
		return irq, nil, true
	}
	return nil, nil, false
}

// dispatch runs t to completion on top of whatever it preempted.
func (c *Core) dispatch(t *Task, payload any) {
	for _, r := range c.stack {
		if r.Priority == t.Priority {
			c.Fatal(fmt.Errorf("%w: %s would nest inside %s at priority %d", ErrInvariant, t.Name, r.Name, t.Priority))
		}
	}

	if top := c.Current(); top != nil {
		top.state = Preempted
		c.emit(StatusPreempt, top, 0)
	}
	prev := c.ceiling
	c.ceiling = t.Priority
	c.stack = append(c.stack, t)
	t.state = Running
	c.emit(StatusDispatch, t, 0)

	err := t.Run(c.ctx, payload)

	c.stack = c.stack[:len(c.stack)-1]
	c.ceiling = prev
	if t.queued > 0 {
		t.state = Queued
	} else {
		t.state = Dormant
	}
	c.emit(StatusFinish, t, 0)
	if err != nil {
		c.Fatal(fmt.Errorf("task %s: %w", t.Name, err))
	}

	if top := c.Current(); top != nil {
		top.state = Running
		c.emit(StatusResume, top, 0)
	}
}

// releaseDue is the SysTick handler: it moves every elapsed timer into the
// ready queue. Each release is an instruction boundary, so only work above
// the timer priority can interleave with it.
func (c *Core) releaseDue(_ context.Context, _ any) error {
	c.ClearPending(LineSysTick)
	now := c.Now()
	for {
		ev, ok := c.timers.popDue(now)
		if !ok {
			return nil
		}
		c.ready.push(ev)
		c.emit(StatusRelease, ev.task, ev.deadline)
		c.Step()
	}
}

// raise lifts the ceiling to at least level and returns the previous one.
func (c *Core) raise(level int) int {
	prev := c.ceiling
	if level > c.ceiling {
		c.ceiling = level
	}
	return prev
}

// restore drops the ceiling back and lets work pended meanwhile run at once.
func (c *Core) restore(prev int) {
	c.ceiling = prev
	if c.running && !c.unwinding {
		c.preempt()
	}
}

// Halt latches the core: no task ever runs again and Run returns ErrHalted.
// Called from a task it does not return.
func (c *Core) Halt() { c.halt(ErrHalted) }

// Fatal halts the core because of err. Called from a task it does not return.
func (c *Core) Fatal(err error) { c.halt(fmt.Errorf("%w: %w", ErrHalted, err)) }

func (c *Core) halt(err error) {
	if c.halted.Swap(true) {
		return
	}
	c.haltErr = err
	if len(c.observers) > 0 {
		ev := StatusEvent{Tick: c.Now(), Kind: StatusHalt, Ceiling: c.ceiling, Err: err}
		if t := c.Current(); t != nil {
			ev.TaskID, ev.Task, ev.Priority = t.ID, t.Name, t.Priority
		}
		for _, fn := range c.observers {
			fn(ev)
		}
	}
	if c.running {
		c.unwinding = true
		panic(unwind{err: err})
	}
}

func (c *Core) stop(err error) {
	c.unwinding = true
	panic(unwind{err: err})
}

// Run executes the idle loop until the core halts or ctx is done. It returns
// an error wrapping ErrHalted after a halt and ctx.Err() on cancellation. A
// core runs at most once.
func (c *Core) Run(ctx context.Context) (err error) {
	if c.halted.Load() {
		return c.haltErr
	}
	if c.started {
		return ErrNotRunnable
	}
	c.started = true
	c.ctx = ctx
	c.running = true

	defer func() {
		c.running = false
		if r := recover(); r != nil {
			u, ok := r.(unwind)
			if !ok {
				panic(r)
			}
			err = u.err
		}
	}()

	for {
		c.Step()
	}
}

// RunTicks is Run limited to n ticks: it returns nil once tick n has fully
// elapsed.
func (c *Core) RunTicks(ctx context.Context, n uint64) error {
	if n == 0 {
		return nil
	}
	c.limit = n
	return c.Run(ctx)
}

func (c *Core) emit(kind StatusKind, t *Task, deadline uint64) {
	if len(c.observers) == 0 {
		return
	}
	ev := StatusEvent{Tick: c.Now(), Kind: kind, Ceiling: c.ceiling, Deadline: deadline}
	if t != nil {
		ev.TaskID, ev.Task, ev.Priority = t.ID, t.Name, t.Priority
	}
	for _, fn := range c.observers {
		fn(ev)
	}
}
