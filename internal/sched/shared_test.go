package sched

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockHoldsOffUsersButNotHigherWork(t *testing.T) {
	c := newTestCore(t)
	rec := &recorder{}

	var res *Shared[int]
	holder := NewTask(1, "holder", 1, func(context.Context, any) error {
		err := res.Lock(func(v *int) {
			rec.add("in")
			for i := 0; i < 12; i++ {
				c.Step()
			}
			*v++
			rec.add("out")
		})
		rec.add("after")
		return err
	})
	user := NewTask(2, "user", 3, func(context.Context, any) error {
		return res.Lock(func(v *int) {
			rec.add("user:%d", *v)
		})
	})
	outsider := NewTask(3, "outsider", 4, func(context.Context, any) error {
		rec.add("outsider")
		return nil
	})
	mustRegister(t, c, holder, user, outsider)
	res = NewShared(c, "counter", 0, holder, user)
	require.Equal(t, 3, res.Ceiling())

	require.NoError(t, c.ScheduleNow(holder, nil))
	require.NoError(t, c.ScheduleAfter(1, user, nil))
	require.NoError(t, c.ScheduleAfter(1, outsider, nil))

	require.NoError(t, c.RunTicks(context.Background(), 6))
	assert.Equal(t, []string{"in", "outsider", "out", "user:1", "after"}, rec.got)
	assert.False(t, res.Locked())
	assert.Equal(t, IdlePriority, c.Priority())
}

func TestLockRejectsNestedAcquisition(t *testing.T) {
	c := newTestCore(t)
	var res *Shared[string]
	var nestedErr error
	task := NewTask(1, "t", 2, func(context.Context, any) error {
		return res.Lock(func(*string) {
			nestedErr = res.Lock(func(*string) {})
		})
	})
	mustRegister(t, c, task)
	res = NewShared(c, "r", "", task)
	require.NoError(t, c.ScheduleNow(task, nil))

	require.NoError(t, c.RunTicks(context.Background(), 1))
	assert.ErrorIs(t, nestedErr, ErrLocked)
}

func TestLockAboveCeilingIsRejected(t *testing.T) {
	c := newTestCore(t)
	var res *Shared[int]
	user := NewTask(1, "user", 2, nil)
	intruder := NewTask(2, "intruder", 5, func(context.Context, any) error {
		return res.Lock(func(*int) {})
	})
	mustRegister(t, c, user, intruder)
	res = NewShared(c, "r", 0, user)
	require.NoError(t, c.ScheduleNow(intruder, nil))

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrCeiling)
	assert.ErrorIs(t, err, ErrHalted)
}

func TestOverrideNeedsPriorityAboveCeiling(t *testing.T) {
	c := newTestCore(t)
	var res *Shared[int]
	var lowErr error
	user := NewTask(1, "user", 2, func(context.Context, any) error {
		lowErr = res.Override(func(v *int) { *v = 7 })
		return nil
	})
	top := NewTask(2, "top", 6, func(context.Context, any) error {
		return res.Override(func(v *int) { *v = 9 })
	})
	mustRegister(t, c, user, top)
	res = NewShared(c, "r", 0, user)
	require.NoError(t, c.ScheduleNow(user, nil))
	require.NoError(t, c.ScheduleAfter(1, top, nil))

	require.NoError(t, c.RunTicks(context.Background(), 2))
	assert.ErrorIs(t, lowErr, ErrCeiling)
	require.NoError(t, res.Lock(func(v *int) { assert.Equal(t, 9, *v) }))
}
