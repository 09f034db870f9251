package board

import (
	"fmt"
	"sync/atomic"
)

// Matrix is a keypad whose keys short a column output to a row input. A row
// reads high while a pressed key connects it to a column driven high; the
// rows are pulled down otherwise.
type Matrix struct {
	Columns []*OutputPin
	Rows    []*InputPin

	pressed [][]atomic.Bool // [column][row]
}

// NewMatrix configures the column outputs (initially low) and the pull-down
// row inputs.
func NewMatrix(cpu CPU, cols, rows []PinID) *Matrix {
	m := &Matrix{
		Columns: make([]*OutputPin, len(cols)),
		Rows:    make([]*InputPin, len(rows)),
		pressed: make([][]atomic.Bool, len(cols)),
	}
	for c, id := range cols {
		m.Columns[c] = NewOutputPin(cpu, id, false)
		m.pressed[c] = make([]atomic.Bool, len(rows))
	}
	for r, id := range rows {
		m.Rows[r] = NewInputPin(cpu, id, PullDown, m.rowDriver(r))
	}
	return m
}

func (m *Matrix) rowDriver(row int) func() (bool, bool) {
	return func() (bool, bool) {
		for c, col := range m.Columns {
			if m.pressed[c][row].Load() && col.Level() {
				return true, true
			}
		}
		return false, false
	}
}

// Press holds the key at (col, row) down. Safe for concurrent use.
func (m *Matrix) Press(col, row int) error {
	if err := m.check(col, row); err != nil {
		return err
	}
	m.pressed[col][row].Store(true)
	return nil
}

// Release lets the key at (col, row) go. Safe for concurrent use.
func (m *Matrix) Release(col, row int) error {
	if err := m.check(col, row); err != nil {
		return err
	}
	m.pressed[col][row].Store(false)
	return nil
}

// Pressed reports whether the key at (col, row) is held.
func (m *Matrix) Pressed(col, row int) bool {
	if m.check(col, row) != nil {
		return false
	}
	return m.pressed[col][row].Load()
}

func (m *Matrix) check(col, row int) error {
	if col < 0 || col >= len(m.Columns) || row < 0 || row >= len(m.Rows) {
		return fmt.Errorf("key (%d, %d) outside %dx%d matrix", col, row, len(m.Columns), len(m.Rows))
	}
	return nil
}
