package sched

import (
	pq "github.com/emirpasic/gods/queues/priorityqueue"
	"github.com/emirpasic/gods/trees/redblacktree"
)

// event is one scheduled invocation of a task.
type event struct {
	task     *Task
	payload  any
	deadline uint64
	seq      uint64
}

// timerKey is used as a key in the red-black tree.
type timerKey struct {
	deadline uint64
	priority int
	seq      uint64
}

// timerCmp orders pending timers by deadline; ties go to the more urgent task,
// then to arrival.
func timerCmp(a, b any) int {
	ka, kb := a.(timerKey), b.(timerKey)
	switch {
	case ka.deadline < kb.deadline:
		return -1
	case ka.deadline > kb.deadline:
		return 1
	case ka.priority > kb.priority:
		return -1
	case ka.priority < kb.priority:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}

// readyCmp orders released events so the heap's minimum is the most urgent:
// highest priority, then earliest deadline, then arrival.
func readyCmp(a, b any) int {
	ea, eb := a.(*event), b.(*event)
	switch {
	case ea.task.Priority > eb.task.Priority:
		return -1
	case ea.task.Priority < eb.task.Priority:
		return 1
	case ea.deadline < eb.deadline:
		return -1
	case ea.deadline > eb.deadline:
		return 1
	case ea.seq < eb.seq:
		return -1
	case ea.seq > eb.seq:
		return 1
	default:
		return 0
	}
}

// timerQueue holds events whose deadline has not elapsed yet.
type timerQueue struct {
	rbt *redblacktree.Tree
}

func newTimerQueue() *timerQueue {
	return &timerQueue{rbt: redblacktree.NewWith(timerCmp)}
}

func (q *timerQueue) push(ev *event) {
	q.rbt.Put(timerKey{deadline: ev.deadline, priority: ev.task.Priority, seq: ev.seq}, ev)
}

// popDue removes and returns the earliest event if its deadline is at or
// before now.
func (q *timerQueue) popDue(now uint64) (*event, bool) {
	node := q.rbt.Left()
	if node == nil {
		return nil, false
	}
	key := node.Key.(timerKey)
	if key.deadline > now {
		return nil, false
	}
	q.rbt.Remove(key)
	return node.Value.(*event), true
}

// next returns the earliest deadline, if any.
func (q *timerQueue) next() (uint64, bool) {
	node := q.rbt.Left()
	if node == nil {
		return 0, false
	}
	return node.Key.(timerKey).deadline, true
}

func (q *timerQueue) size() int { return q.rbt.Size() }

// readyQueue holds released events waiting for the core.
type readyQueue struct {
	heap *pq.Queue
}

func newReadyQueue() *readyQueue {
	return &readyQueue{heap: pq.NewWith(readyCmp)}
}

func (q *readyQueue) push(ev *event) { q.heap.Enqueue(ev) }

func (q *readyQueue) peek() (*event, bool) {
	v, ok := q.heap.Peek()
	if !ok {
		return nil, false
	}
	return v.(*event), true
}

func (q *readyQueue) pop() (*event, bool) {
	v, ok := q.heap.Dequeue()
	if !ok {
		return nil, false
	}
	return v.(*event), true
}

func (q *readyQueue) size() int { return q.heap.Size() }
