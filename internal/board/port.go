package board

import "fmt"

// Port is a set of outputs on one GPIO port that are written through a single
// register store, the way a BSRR write sets and resets several pins at once.
// No instruction boundary falls between the pins of one write.
type Port struct {
	cpu  CPU
	name byte
	pins []*OutputPin
}

// NewPort groups pins. All of them must sit on the same port.
func NewPort(pins ...*OutputPin) (*Port, error) {
	if len(pins) == 0 {
		return nil, fmt.Errorf("port needs at least one pin")
	}
	p := &Port{cpu: pins[0].cpu, name: pins[0].id.Port, pins: pins}
	for _, pin := range pins[1:] {
		if pin.id.Port != p.name {
			return nil, fmt.Errorf("pin %s is not on port %c", pin.id, p.name)
		}
	}
	return p, nil
}

// Name returns the port letter.
func (p *Port) Name() byte { return p.name }

// Toggle flips every pin of the port in one write.
func (p *Port) Toggle() {
	p.cpu.Step()
	for _, pin := range p.pins {
		pin.store(!pin.level.Load())
	}
}

// Write drives every pin of the port to level in one write.
func (p *Port) Write(level bool) {
	p.cpu.Step()
	for _, pin := range p.pins {
		pin.store(level)
	}
}
