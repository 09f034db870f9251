package board

import (
	"sync/atomic"

	"mcusched/internal/sched"
)

// Edge selects which transitions of an input raise its interrupt line.
type Edge int

const (
	EdgeNone    Edge = 0
	EdgeRising  Edge = 1 << 0
	EdgeFalling Edge = 1 << 1
	EdgeBoth         = EdgeRising | EdgeFalling
)

// Interrupter is the interrupt controller a button reports edges to.
type Interrupter interface {
	CPU
	Pend(line sched.Line)
	ClearPending(line sched.Line)
	IsPending(line sched.Line) bool
}

// Button is a push button wired between a pull-up input and ground, so a
// press is a falling edge. The pin is an external interrupt source on line.
type Button struct {
	*InputPin
	line    sched.Line
	edge    Edge
	intc    Interrupter
	pressed atomic.Bool
}

// NewButton configures id as a pull-up input that raises line on edge.
func NewButton(intc Interrupter, id PinID, line sched.Line, edge Edge) *Button {
	b := &Button{line: line, edge: edge, intc: intc}
	b.InputPin = NewInputPin(intc, id, PullUp, func() (bool, bool) {
		if b.pressed.Load() {
			return false, true
		}
		return false, false
	})
	return b
}

// Line returns the external interrupt line of the button.
func (b *Button) Line() sched.Line { return b.line }

// Press pulls the pin low. Safe for concurrent use.
func (b *Button) Press() {
	if !b.pressed.Swap(true) && b.edge&EdgeFalling != 0 {
		b.intc.Pend(b.line)
	}
}

// Release lets the pull-up take the pin high again. Safe for concurrent use.
func (b *Button) Release() {
	if b.pressed.Swap(false) && b.edge&EdgeRising != 0 {
		b.intc.Pend(b.line)
	}
}

// ClearInterruptPendingBit acknowledges the edge. A handler that returns
// without clearing it is entered again.
func (b *Button) ClearInterruptPendingBit() {
	b.intc.Step()
	b.intc.ClearPending(b.line)
}

// InterruptPending reports whether an edge is waiting to be handled.
func (b *Button) InterruptPending() bool { return b.intc.IsPending(b.line) }
