// internal/sched/tickclock.go

package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var errClockStopped = errors.New("tick clock stopped")

// Pacer holds the core at each tick boundary until the tick is due.
type Pacer interface {
	Wait(ctx context.Context) error
}

// TickClock emits ticks and counts them atomically.
type TickClock struct {
	Ch    chan struct{}
	count atomic.Int64
	stop  chan struct{}
}

// NewTickClock creates a clock but does not share it.
func NewTickClock(buffer int) *TickClock {
	return &TickClock{
		Ch:   make(chan struct{}, buffer),
		stop: make(chan struct{}),
	}
}

// Start begins emitting ticks at the given interval.
func (c *TickClock) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.count.Add(1)
				// a core that lags behind catches up instead of stalling the ticker
				select {
				case c.Ch <- struct{}{}:
				default:
				}
			case <-c.stop:
				close(c.Ch)
				return
			}
		}
	}()
}

// Stop signals the clock to stop emitting ticks.
func (c *TickClock) Stop() {
	close(c.stop)
}

// Count returns the current tick count atomically.
func (c *TickClock) Count() int64 {
	return c.count.Load()
}

// Wait blocks until the next tick, which makes the clock a Pacer for a core
// running in real time.
func (c *TickClock) Wait(ctx context.Context) error {
	select {
	case _, ok := <-c.Ch:
		if !ok {
			return errClockStopped
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
