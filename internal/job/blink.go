package job

import (
	"context"
	"fmt"

	"mcusched/internal/board"
	"mcusched/internal/sched"
)

// LEDPair is the shared output state: the red and blue LEDs, written
// together through their port.
type LEDPair struct {
	Red  *board.OutputPin
	Blue *board.OutputPin
	port *board.Port
}

// Toggle flips both LEDs in one port write.
func (l *LEDPair) Toggle() { l.port.Toggle() }

// Off drives both LEDs low in one port write.
func (l *LEDPair) Off() { l.port.Write(false) }

// Phase is a state of the blink cycle.
type Phase int

const (
	PhaseA Phase = iota
	WaitA
	PhaseB
	WaitB
)

func (p Phase) String() string {
	switch p {
	case PhaseA:
		return "PhaseA"
	case WaitA:
		return "WaitA"
	case PhaseB:
		return "PhaseB"
	case WaitB:
		return "WaitB"
	default:
		return "Unknown"
	}
}

// blinkTransitions is the only legal successor of every phase.
var blinkTransitions = map[Phase]Phase{
	PhaseA: WaitA,
	WaitA:  PhaseB,
	PhaseB: WaitB,
	WaitB:  PhaseA,
}

// Blinker drives the two-phase blink cycle: foo (phase A) and bar (phase B)
// each toggle the shared LEDs and re-arm the other after the interval.
type Blinker struct {
	core     *sched.Core
	sink     Sink
	leds     *sched.Shared[LEDPair]
	interval uint64

	foo *sched.Task
	bar *sched.Task

	phase   Phase
	counter uint32
}

func newBlinker(c *sched.Core, sink Sink, priority int, interval uint64) *Blinker {
	b := &Blinker{core: c, sink: sink, interval: interval, phase: WaitB}
	b.foo = sched.NewTask(FooID, "foo", priority, b.phaseA)
	b.bar = sched.NewTask(BarID, "bar", priority, b.phaseB)
	return b
}

// Phase returns the current state of the cycle.
func (b *Blinker) Phase() Phase { return b.phase }

// Counter returns the number of phase A runs, modulo 2^32.
func (b *Blinker) Counter() uint32 { return b.counter }

func (b *Blinker) advance(to Phase) error {
	if next := blinkTransitions[b.phase]; next != to {
		return fmt.Errorf("%w: blink phase %s cannot follow %s", sched.ErrInvariant, to, b.phase)
	}
	b.phase = to
	return nil
}

func (b *Blinker) phaseA(_ context.Context, _ any) error {
	if err := b.advance(PhaseA); err != nil {
		return err
	}
	b.sink.PhaseA()

	err := b.leds.Lock(func(l *LEDPair) {
		l.Toggle()
		b.counter++ // wraps at math.MaxUint32
	})
	if err != nil {
		return err
	}

	if err := b.advance(WaitA); err != nil {
		return err
	}
	return b.core.ScheduleAfter(b.interval, b.bar, b.counter)
}

func (b *Blinker) phaseB(_ context.Context, payload any) error {
	counter, ok := payload.(uint32)
	if !ok {
		return fmt.Errorf("%w: bar payload %T", sched.ErrInvariant, payload)
	}
	if err := b.advance(PhaseB); err != nil {
		return err
	}
	b.sink.PhaseB(counter)

	if err := b.leds.Lock(func(l *LEDPair) { l.Toggle() }); err != nil {
		return err
	}

	if err := b.advance(WaitB); err != nil {
		return err
	}
	return b.core.ScheduleAfter(b.interval, b.foo, nil)
}
