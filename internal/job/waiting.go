package job

import (
	"time"

	"mcusched/internal/sched"
)

// waitTicks converts a delay in milliseconds into whole core ticks.
func waitTicks(c *sched.Core, ms int) uint64 {
	return c.Ticks(time.Duration(ms) * time.Millisecond)
}
