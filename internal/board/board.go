// Package board models the microcontroller's pins: the shared red and blue
// LEDs, the diagnostic green LED, the emergency button on an external
// interrupt line and the 4x4 keypad matrix.
package board

import (
	"fmt"

	"mcusched/internal/sched"
)

// EXTILine maps external interrupt n to a core interrupt line.
func EXTILine(n int) sched.Line { return sched.Line(16 + n) }

// Layout mirrors the `board` section of the config file.
type Layout struct {
	Red        string   `yaml:"red"`
	Blue       string   `yaml:"blue"`
	Green      string   `yaml:"green"`
	Button     string   `yaml:"button"`
	ButtonEXTI int      `yaml:"button_exti"`
	Columns    []string `yaml:"columns"`
	Rows       []string `yaml:"rows"`
	RedOn      bool     `yaml:"red_on"`  // initial level of the red LED
	BlueOn     bool     `yaml:"blue_on"` // initial level of the blue LED
}

// DefaultLayout is the wiring of the reference board.
func DefaultLayout() Layout {
	return Layout{
		Red:        "PB12",
		Blue:       "PB14",
		Green:      "PB13",
		Button:     "PB0",
		ButtonEXTI: 0,
		Columns:    []string{"PA0", "PA1", "PA2", "PA3"},
		Rows:       []string{"PA4", "PA5", "PA6", "PA7"},
	}
}

// Board holds every configured pin.
type Board struct {
	Red    *OutputPin
	Blue   *OutputPin
	Green  *OutputPin
	Button *Button
	Keypad *Matrix

	// LEDs writes red and blue together; both must be on one port.
	LEDs *Port
}

// New configures the pins of l on the given core. Each pin may be used once.
func New(cpu Interrupter, l Layout) (*Board, error) {
	seen := make(map[PinID]string)
	parse := func(role, name string) (PinID, error) {
		id, err := ParsePin(name)
		if err != nil {
			return PinID{}, fmt.Errorf("%s: %w", role, err)
		}
		if other, dup := seen[id]; dup {
			return PinID{}, fmt.Errorf("%s: pin %s already used by %s", role, id, other)
		}
		seen[id] = role
		return id, nil
	}

	red, err := parse("red", l.Red)
	if err != nil {
		return nil, err
	}
	blue, err := parse("blue", l.Blue)
	if err != nil {
		return nil, err
	}
	green, err := parse("green", l.Green)
	if err != nil {
		return nil, err
	}
	button, err := parse("button", l.Button)
	if err != nil {
		return nil, err
	}
	if l.ButtonEXTI < 0 || l.ButtonEXTI > int(sched.MaxLine)-16 {
		return nil, fmt.Errorf("button: exti %d out of range", l.ButtonEXTI)
	}

	cols := make([]PinID, len(l.Columns))
	for i, name := range l.Columns {
		if cols[i], err = parse(fmt.Sprintf("column %d", i), name); err != nil {
			return nil, err
		}
	}
	rows := make([]PinID, len(l.Rows))
	for i, name := range l.Rows {
		if rows[i], err = parse(fmt.Sprintf("row %d", i), name); err != nil {
			return nil, err
		}
	}

	b := &Board{
		Red:    NewOutputPin(cpu, red, l.RedOn),
		Blue:   NewOutputPin(cpu, blue, l.BlueOn),
		Green:  NewOutputPin(cpu, green, false),
		Button: NewButton(cpu, button, EXTILine(l.ButtonEXTI), EdgeFalling),
		Keypad: NewMatrix(cpu, cols, rows),
	}
	if b.LEDs, err = NewPort(b.Red, b.Blue); err != nil {
		return nil, fmt.Errorf("red/blue: %w", err)
	}
	return b, nil
}
