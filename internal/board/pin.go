package board

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

// CPU is the part of the core pins need: every register access is an
// instruction boundary.
type CPU interface {
	Step()
}

// PinID identifies a GPIO pin as port letter and number, e.g. PB12.
type PinID struct {
	Port byte
	Num  uint8
}

func (p PinID) String() string { return fmt.Sprintf("P%c%d", p.Port, p.Num) }

// ParsePin parses names like "PB12".
func ParsePin(s string) (PinID, error) {
	if len(s) < 3 || s[0] != 'P' || s[1] < 'A' || s[1] > 'G' {
		return PinID{}, fmt.Errorf("invalid pin %q", s)
	}
	n, err := strconv.ParseUint(s[2:], 10, 8)
	if err != nil || n > 15 {
		return PinID{}, fmt.Errorf("invalid pin %q", s)
	}
	return PinID{Port: s[1], Num: uint8(n)}, nil
}

// Pull is the input bias of a pin.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// OutputPin is a push-pull output.
type OutputPin struct {
	id      PinID
	cpu     CPU
	level   atomic.Bool
	writes  atomic.Uint64
	onWrite func(level bool)
}

// NewOutputPin configures id as an output driven to initial.
func NewOutputPin(cpu CPU, id PinID, initial bool) *OutputPin {
	p := &OutputPin{id: id, cpu: cpu}
	p.level.Store(initial)
	return p
}

func (p *OutputPin) ID() PinID { return p.id }

func (p *OutputPin) SetHigh() { p.write(true) }

func (p *OutputPin) SetLow() { p.write(false) }

func (p *OutputPin) Toggle() {
	p.cpu.Step()
	p.store(!p.level.Load())
}

// IsSetHigh reads back the output data register.
func (p *OutputPin) IsSetHigh() bool {
	p.cpu.Step()
	return p.level.Load()
}

// Level samples the pin from outside the core without consuming a cycle.
func (p *OutputPin) Level() bool { return p.level.Load() }

// Writes counts register writes since configuration.
func (p *OutputPin) Writes() uint64 { return p.writes.Load() }

// OnWrite installs a probe called after every write. Probes model external
// circuitry and run on the core goroutine.
func (p *OutputPin) OnWrite(fn func(level bool)) { p.onWrite = fn }

func (p *OutputPin) write(level bool) {
	p.cpu.Step()
	p.store(level)
}

func (p *OutputPin) store(level bool) {
	p.level.Store(level)
	p.writes.Add(1)
	if p.onWrite != nil {
		p.onWrite(level)
	}
}

// InputPin is a digital input. Without an external driver it reads its
// pull level.
type InputPin struct {
	id    PinID
	cpu   CPU
	pull  Pull
	drive func() (level, driven bool)
}

// NewInputPin configures id as an input. drive may be nil.
func NewInputPin(cpu CPU, id PinID, pull Pull, drive func() (level, driven bool)) *InputPin {
	return &InputPin{id: id, cpu: cpu, pull: pull, drive: drive}
}

func (p *InputPin) ID() PinID { return p.id }

func (p *InputPin) Pull() Pull { return p.pull }

func (p *InputPin) IsHigh() bool {
	p.cpu.Step()
	return p.Level()
}

func (p *InputPin) IsLow() bool { return !p.IsHigh() }

// Level samples the electrical level without consuming a cycle.
func (p *InputPin) Level() bool {
	if p.drive != nil {
		if level, driven := p.drive(); driven {
			return level
		}
	}
	return p.pull == PullUp
}
