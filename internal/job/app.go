// Package job holds the firmware tasks and the init routine that wires them
// to the core and the board.
package job

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"mcusched/internal/board"
	"mcusched/internal/config"
	"mcusched/internal/sched"
)

// Sink receives the diagnostic output of the tasks.
type Sink interface {
	Boot(sysclkHz uint32)
	PhaseA()
	PhaseB(counter uint32)
	KeyPressed(column, row int)
	EmergencyStop()
}

const (
	FooID sched.TaskID = iota + 1
	BarID
	KeyListenerID
	EmergencyStopID
)

// System is the initialized firmware: core, board, shared LEDs and tasks.
type System struct {
	Core      *sched.Core
	Board     *board.Board
	LEDs      *sched.Shared[LEDPair]
	Blinker   *Blinker
	Keypad    *KeyListener
	Emergency *EmergencyStop

	log zerolog.Logger
}

type options struct {
	log       zerolog.Logger
	observers []func(sched.StatusEvent)
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger for events that are not firmware output.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithObserver registers fn with the core before anything is scheduled, so
// it also sees the boot-time enqueues.
func WithObserver(fn func(sched.StatusEvent)) Option {
	return func(o *options) { o.observers = append(o.observers, fn) }
}

// New runs the init routine: it configures the board, registers the tasks,
// reports the system clock and arms the first blink and the keypad scan.
func New(cfg config.Config, sink Sink, opts ...Option) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	core := sched.New(cfg.Sched)
	for _, fn := range o.observers {
		core.Observe(fn)
	}
	b, err := board.New(core, cfg.Board)
	if err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}

	blinker := newBlinker(core, sink, cfg.Tasks.BlinkPriority, waitTicks(core, cfg.Blink.IntervalMS))
	keypad := newKeyListener(b.Keypad, sink, cfg.Tasks.KeypadPriority)
	stop := newEmergencyStop(core, b, sink, cfg.Tasks.EmergencyPriority)

	for _, t := range []*sched.Task{blinker.foo, blinker.bar, keypad.task, stop.task} {
		if err := core.Register(t); err != nil {
			return nil, err
		}
	}
	if err := core.BindInterrupt(b.Button.Line(), stop.task); err != nil {
		return nil, err
	}

	leds := sched.NewShared(core, "leds", LEDPair{Red: b.Red, Blue: b.Blue, port: b.LEDs}, blinker.foo, blinker.bar)
	blinker.leds = leds
	stop.leds = leds

	s := &System{
		Core:      core,
		Board:     b,
		LEDs:      leds,
		Blinker:   blinker,
		Keypad:    keypad,
		Emergency: stop,
		log:       o.log,
	}
	if len(cfg.Stimuli) > 0 {
		core.OnTick(s.stimuli(cfg.Stimuli))
	}

	sink.Boot(core.Config().SysclkHz)

	if err := core.ScheduleAfter(waitTicks(core, cfg.Blink.StartDelayMS), blinker.foo, nil); err != nil {
		return nil, err
	}
	if err := core.ScheduleNow(keypad.task, nil); err != nil {
		return nil, err
	}
	return s, nil
}

// Run starts the core. It only returns once the core halts or ctx ends.
func (s *System) Run(ctx context.Context) error { return s.Core.Run(ctx) }

// RunTicks runs the core for n ticks.
func (s *System) RunTicks(ctx context.Context, n uint64) error { return s.Core.RunTicks(ctx, n) }

// stimuli returns a tick hook that applies every stimulus at the start of its
// tick.
func (s *System) stimuli(list []config.Stimulus) func(uint64) {
	pending := make([]config.Stimulus, len(list))
	copy(pending, list)
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].AtTick < pending[j].AtTick })

	return func(tick uint64) {
		for len(pending) > 0 && pending[0].AtTick <= tick {
			if err := s.apply(pending[0]); err != nil {
				s.log.Debug().Err(err).Uint64("tick", tick).Str("action", pending[0].Action).Msg("stimulus ignored")
			}
			pending = pending[1:]
		}
	}
}

func (s *System) apply(st config.Stimulus) error {
	switch st.Action {
	case config.ActionPressKey:
		return s.Board.Keypad.Press(st.Column, st.Row)
	case config.ActionReleaseKey:
		return s.Board.Keypad.Release(st.Column, st.Row)
	case config.ActionPressButton:
		s.Board.Button.Press()
	case config.ActionReleaseButton:
		s.Board.Button.Release()
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}
	return nil
}
