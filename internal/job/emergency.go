package job

import (
	"context"

	"mcusched/internal/board"
	"mcusched/internal/sched"
)

// EmergencyStop handles the button's falling edge. It runs above every other
// task and latches the core; only a reset brings the board back.
type EmergencyStop struct {
	core   *sched.Core
	button *board.Button
	green  *board.OutputPin
	leds   *sched.Shared[LEDPair]
	sink   Sink
	task   *sched.Task
}

func newEmergencyStop(c *sched.Core, b *board.Board, sink Sink, priority int) *EmergencyStop {
	e := &EmergencyStop{core: c, button: b.Button, green: b.Green, sink: sink}
	e.task = sched.NewTask(EmergencyStopID, "emergency_stop", priority, e.handle)
	return e
}

func (e *EmergencyStop) handle(_ context.Context, _ any) error {
	e.green.Toggle()
	e.sink.EmergencyStop()

	// No lock: nothing that uses the LEDs can run while this handler does.
	if err := e.leds.Override(func(l *LEDPair) { l.Off() }); err != nil {
		return err
	}

	e.button.ClearInterruptPendingBit()
	e.core.Halt()
	return nil
}
