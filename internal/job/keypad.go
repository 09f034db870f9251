package job

import (
	"context"

	"mcusched/internal/board"
	"mcusched/internal/sched"
)

// KeyListener scans the keypad matrix forever. It never returns, so it only
// gives up the core when something more urgent preempts it.
type KeyListener struct {
	matrix *board.Matrix
	sink   Sink
	task   *sched.Task
	passes uint64
}

func newKeyListener(m *board.Matrix, sink Sink, priority int) *KeyListener {
	k := &KeyListener{matrix: m, sink: sink}
	k.task = sched.NewTask(KeyListenerID, "key_listener", priority, k.scan)
	return k
}

// Passes returns the number of complete scans of the matrix.
func (k *KeyListener) Passes() uint64 { return k.passes }

func (k *KeyListener) scan(_ context.Context, _ any) error {
	for {
		for c, col := range k.matrix.Columns {
			col.SetHigh()
			for r, row := range k.matrix.Rows {
				if row.IsHigh() {
					k.sink.KeyPressed(c, r)
				}
			}
			col.SetLow()
		}
		k.passes++
	}
}
