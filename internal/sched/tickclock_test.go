package sched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickClockWait(t *testing.T) {
	clock := NewTickClock(4)
	clock.Start(time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.Wait(ctx))
	assert.GreaterOrEqual(t, clock.Count(), int64(1))

	clock.Stop()
	var err error
	for i := 0; i < 16 && err == nil; i++ {
		err = clock.Wait(ctx)
	}
	assert.ErrorIs(t, err, errClockStopped)
}

func TestTickClockWaitHonoursContext(t *testing.T) {
	clock := NewTickClock(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, clock.Wait(ctx), context.Canceled)
}
