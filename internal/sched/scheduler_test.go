package sched

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CyclesPerTick = 4
	return New(cfg)
}

func mustRegister(t *testing.T, c *Core, tasks ...*Task) {
	t.Helper()
	for _, task := range tasks {
		require.NoError(t, c.Register(task))
	}
}

// recorder collects labels from task handlers in execution order.
type recorder struct {
	got []string
}

func (r *recorder) add(format string, args ...any) {
	r.got = append(r.got, fmt.Sprintf(format, args...))
}

func (r *recorder) indexOf(s string) int {
	for i, v := range r.got {
		if v == s {
			return i
		}
	}
	return -1
}

func TestScheduleAfterReleasesAtDeadline(t *testing.T) {
	c := newTestCore(t)
	var ran []uint64
	task := NewTask(1, "once", 3, func(context.Context, any) error {
		ran = append(ran, c.Now())
		return nil
	})
	mustRegister(t, c, task)
	require.NoError(t, c.ScheduleAfter(5, task, nil))
	assert.Equal(t, Queued, task.State())

	require.NoError(t, c.RunTicks(context.Background(), 10))

	assert.Equal(t, []uint64{5}, ran)
	assert.Equal(t, Dormant, task.State())
	assert.Equal(t, uint64(10), c.Now())
	assert.Zero(t, c.QueueLen())
}

func TestPayloadReachesHandler(t *testing.T) {
	c := newTestCore(t)
	var got any
	task := NewTask(1, "payload", 2, func(_ context.Context, payload any) error {
		got = payload
		return nil
	})
	mustRegister(t, c, task)
	require.NoError(t, c.ScheduleAfter(2, task, uint32(42)))

	require.NoError(t, c.RunTicks(context.Background(), 3))
	assert.Equal(t, uint32(42), got)
}

func TestSameDeadlineRunsByPriority(t *testing.T) {
	c := newTestCore(t)
	rec := &recorder{}
	mk := func(id TaskID, prio int) *Task {
		return NewTask(id, fmt.Sprintf("p%d", prio), prio, func(context.Context, any) error {
			rec.add("p%d", prio)
			return nil
		})
	}
	low, high, mid := mk(1, 2), mk(2, 4), mk(3, 3)
	mustRegister(t, c, low, high, mid)
	for _, task := range []*Task{low, high, mid} {
		require.NoError(t, c.ScheduleAfter(3, task, nil))
	}

	require.NoError(t, c.RunTicks(context.Background(), 5))
	assert.Equal(t, []string{"p4", "p3", "p2"}, rec.got)
}

func TestEarlierDeadlineBeatsPriority(t *testing.T) {
	c := newTestCore(t)
	rec := &recorder{}
	low := NewTask(1, "low", 1, func(context.Context, any) error {
		rec.add("low@%d", c.Now())
		return nil
	})
	high := NewTask(2, "high", 4, func(context.Context, any) error {
		rec.add("high@%d", c.Now())
		return nil
	})
	mustRegister(t, c, low, high)
	require.NoError(t, c.ScheduleAfter(3, high, nil))
	require.NoError(t, c.ScheduleAfter(2, low, nil))

	require.NoError(t, c.RunTicks(context.Background(), 5))
	assert.Equal(t, []string{"low@2", "high@3"}, rec.got)
}

func TestHigherPriorityPreemptsRunningTask(t *testing.T) {
	c := newTestCore(t)
	rec := &recorder{}
	var lowStateInHigh TaskState

	var low *Task
	low = NewTask(1, "low", 1, func(context.Context, any) error {
		for i := 0; i < 20; i++ {
			c.Step()
			rec.add("low%d", i)
		}
		return nil
	})
	high := NewTask(2, "high", 3, func(context.Context, any) error {
		lowStateInHigh = low.State()
		rec.add("high")
		return nil
	})
	mustRegister(t, c, low, high)
	require.NoError(t, c.ScheduleNow(low, nil))
	require.NoError(t, c.ScheduleAfter(1, high, nil))

	require.NoError(t, c.RunTicks(context.Background(), 8))

	idx := rec.indexOf("high")
	require.Greater(t, idx, 0, "high must run after low started")
	assert.Less(t, idx, len(rec.got)-1, "low must resume after high")
	assert.Equal(t, "low19", rec.got[len(rec.got)-1])
	assert.Equal(t, Preempted, lowStateInHigh)
	assert.Equal(t, Dormant, low.State())
}

func TestEqualPriorityWaitsForRunningTask(t *testing.T) {
	c := newTestCore(t)
	rec := &recorder{}
	first := NewTask(1, "first", 2, func(context.Context, any) error {
		for i := 0; i < 12; i++ {
			c.Step()
		}
		rec.add("first")
		return nil
	})
	second := NewTask(2, "second", 2, func(context.Context, any) error {
		rec.add("second")
		return nil
	})
	mustRegister(t, c, first, second)
	require.NoError(t, c.ScheduleNow(first, nil))
	require.NoError(t, c.ScheduleAfter(1, second, nil))

	require.NoError(t, c.RunTicks(context.Background(), 6))
	assert.Equal(t, []string{"first", "second"}, rec.got)
}

func TestScheduleNowPreemptsLowerCaller(t *testing.T) {
	c := newTestCore(t)
	rec := &recorder{}
	high := NewTask(2, "high", 4, func(context.Context, any) error {
		rec.add("high")
		return nil
	})
	low := NewTask(1, "low", 1, func(context.Context, any) error {
		rec.add("before")
		if err := c.ScheduleNow(high, nil); err != nil {
			return err
		}
		rec.add("after")
		return nil
	})
	mustRegister(t, c, low, high)
	require.NoError(t, c.ScheduleNow(low, nil))

	require.NoError(t, c.RunTicks(context.Background(), 2))
	assert.Equal(t, []string{"before", "high", "after"}, rec.got)
}

func TestQueueExhaustionIsFatal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CyclesPerTick = 4
	cfg.QueueCapacity = 2
	c := New(cfg)

	noop := func(context.Context, any) error { return nil }
	a := NewTask(1, "a", 2, noop)
	b := NewTask(2, "b", 2, noop)
	d := NewTask(3, "d", 2, noop)
	spawner := NewTask(4, "spawner", 3, func(context.Context, any) error {
		for _, task := range []*Task{a, b, d} {
			if err := c.ScheduleAfter(10, task, nil); err != nil {
				return err
			}
		}
		return nil
	})
	mustRegister(t, c, a, b, d, spawner)
	require.NoError(t, c.ScheduleNow(spawner, nil))

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.ErrorIs(t, err, ErrHalted)
	assert.True(t, c.Halted())
}

func TestSchedulingSaturatedTask(t *testing.T) {
	c := newTestCore(t)
	task := NewTask(1, "t", 2, func(context.Context, any) error { return nil })
	mustRegister(t, c, task)

	require.NoError(t, c.ScheduleAfter(5, task, nil))
	err := c.ScheduleAfter(6, task, nil)
	assert.ErrorIs(t, err, ErrTaskSaturated)
	assert.Equal(t, 1, c.QueueLen())
}

func TestHandlerErrorHaltsCore(t *testing.T) {
	c := newTestCore(t)
	boom := errors.New("boom")
	task := NewTask(1, "bad", 2, func(context.Context, any) error { return boom })
	mustRegister(t, c, task)
	require.NoError(t, c.ScheduleAfter(1, task, nil))

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrHalted)
}

func TestInterruptHandlerMustClearPending(t *testing.T) {
	c := newTestCore(t)
	const line Line = 3
	runs := 0
	isr := NewTask(1, "isr", 6, func(context.Context, any) error {
		runs++
		if runs == 3 {
			c.ClearPending(line)
		}
		return nil
	})
	mustRegister(t, c, isr)
	require.NoError(t, c.BindInterrupt(line, isr))
	c.OnTick(func(tick uint64) {
		if tick == 2 {
			c.Pend(line)
		}
	})

	require.NoError(t, c.RunTicks(context.Background(), 5))
	assert.Equal(t, 3, runs)
	assert.False(t, c.IsPending(line))
}

func TestHaltIsTerminal(t *testing.T) {
	c := newTestCore(t)
	const line Line = 1
	var periodicRuns []uint64

	var periodic *Task
	periodic = NewTask(1, "periodic", 3, func(context.Context, any) error {
		periodicRuns = append(periodicRuns, c.Now())
		return c.ScheduleAfter(1, periodic, nil)
	})
	isr := NewTask(2, "stop", 6, func(context.Context, any) error {
		c.ClearPending(line)
		c.Halt()
		return errors.New("unreachable")
	})
	mustRegister(t, c, periodic, isr)
	require.NoError(t, c.BindInterrupt(line, isr))
	require.NoError(t, c.ScheduleAfter(1, periodic, nil))
	c.OnTick(func(tick uint64) {
		if tick == 3 {
			c.Pend(line)
		}
	})

	err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrHalted)
	assert.NotContains(t, err.Error(), "unreachable")
	assert.Equal(t, []uint64{1, 2}, periodicRuns)
	assert.Equal(t, uint64(3), c.Now())
	assert.True(t, c.Halted())

	assert.ErrorIs(t, c.ScheduleNow(periodic, nil), ErrHalted)
	c.Pend(line)
	assert.False(t, c.IsPending(line))
	assert.ErrorIs(t, c.Run(context.Background()), ErrHalted)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	c := newTestCore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.Halted())
	assert.ErrorIs(t, c.Run(context.Background()), ErrNotRunnable)
}

func TestRunWithPacer(t *testing.T) {
	c := newTestCore(t)
	clock := NewTickClock(16)
	clock.Start(time.Millisecond)
	defer clock.Stop()
	c.SetPacer(clock)

	start := time.Now()
	require.NoError(t, c.RunTicks(context.Background(), 5))
	assert.GreaterOrEqual(t, time.Since(start), 4*time.Millisecond)
}

func TestTicksRoundsUp(t *testing.T) {
	c := New(DefaultConfig())
	tests := []struct {
		in   time.Duration
		want uint64
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Millisecond, 1},
		{10 * time.Millisecond, 1},
		{15 * time.Millisecond, 2},
		{time.Second, 100},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, c.Ticks(tt.in))
		})
	}
}

func TestRegisterAndBindErrors(t *testing.T) {
	c := newTestCore(t)
	noop := func(context.Context, any) error { return nil }
	a := NewTask(1, "a", 2, noop)
	mustRegister(t, c, a)

	assert.EqualError(t, c.Register(NewTask(1, "dup", 2, noop)), "task 1 already exists")
	assert.Error(t, c.Register(NewTask(SysTickTaskID, "tick", 2, noop)))
	assert.Error(t, c.BindInterrupt(LineSysTick, a))
	assert.Error(t, c.BindInterrupt(MaxLine+1, a))
	assert.Error(t, c.BindInterrupt(2, NewTask(9, "stranger", 2, noop)))

	require.NoError(t, c.BindInterrupt(2, a))
	assert.Equal(t, Line(2), a.Line())
	assert.Error(t, c.BindInterrupt(2, a))
	assert.ErrorIs(t, c.ScheduleNow(a, nil), ErrInvariant)
}

func TestNewTaskClampsPriority(t *testing.T) {
	assert.Equal(t, MinPriority, NewTask(1, "x", -3, nil).Priority)
	assert.Equal(t, MaxPriority, NewTask(1, "x", 99, nil).Priority)
	assert.Equal(t, 1, NewTask(1, "x", 4, nil).Capacity)
}

func TestStatusEventsTracePreemption(t *testing.T) {
	c := newTestCore(t)
	var trace []string
	c.Observe(func(ev StatusEvent) {
		if ev.Kind == StatusTick || ev.TaskID == SysTickTaskID {
			return
		}
		trace = append(trace, ev.Kind.String()+":"+ev.Task)
	})
	low := NewTask(1, "low", 1, func(context.Context, any) error {
		for i := 0; i < 6; i++ {
			c.Step()
		}
		return nil
	})
	high := NewTask(2, "high", 3, func(context.Context, any) error { return nil })
	mustRegister(t, c, low, high)
	require.NoError(t, c.ScheduleNow(low, nil))
	require.NoError(t, c.ScheduleAfter(1, high, nil))

	require.NoError(t, c.RunTicks(context.Background(), 3))

	require.GreaterOrEqual(t, len(trace), 3)
	assert.Equal(t, []string{"Enqueued:low", "Enqueued:high", "Dispatch:low"}, trace[:3])
	assert.Contains(t, trace, "Release:high")
	assert.True(t, containsRun(trace, "Preempt:low", "Dispatch:high", "Finish:high", "Resume:low"), "trace: %v", trace)
	assert.Equal(t, "Finish:low", trace[len(trace)-1])
}

// containsRun reports whether want appears contiguously in got.
func containsRun(got []string, want ...string) bool {
	for i := 0; i+len(want) <= len(got); i++ {
		match := true
		for j := range want {
			if got[i+j] != want[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
